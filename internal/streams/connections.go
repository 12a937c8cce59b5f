package streams

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/technosupport/camwatch/internal/metrics"
)

const (
	ReasonClosed  = "closed"
	ReasonStopped = "stopped"
	ReasonSwept   = "swept"
)

// Connection is one proxied client stream.
type Connection struct {
	ID        string
	CameraID  string
	User      string
	CreatedAt time.Time

	lastAccess time.Time // guarded by ConnectionRegistry.mu

	upstream  io.Closer
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// close releases the upstream exactly once.
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.upstream != nil {
			if err := c.upstream.Close(); err != nil {
				log.Printf("[Proxy] closing upstream for %s: %v", c.ID, err)
			}
		}
	})
}

// ConnectionInfo is a read-only view of a registered connection.
type ConnectionInfo struct {
	ID         string    `json:"id"`
	CameraID   string    `json:"camera_id"`
	User       string    `json:"user"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}

// ConnectionRegistry tracks live proxied streams. An entry leaves the
// registry exactly once, whichever of stream end, explicit stop or stale
// sweep comes first; leaving always closes its upstream.
type ConnectionRegistry struct {
	mu    sync.Mutex
	conns map[string]*Connection
	now   func() time.Time
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{
		conns: make(map[string]*Connection),
		now:   time.Now,
	}
}

// Register adds a connection for cameraID/user. cancel, if set, is invoked
// when the entry is removed so blocked upstream reads return.
func (r *ConnectionRegistry) Register(cameraID, user string, upstream io.Closer, cancel context.CancelFunc) *Connection {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	stamp := now.UnixNano()
	id := fmt.Sprintf("%s_%s_%d", cameraID, user, stamp)
	for {
		if _, taken := r.conns[id]; !taken {
			break
		}
		stamp++
		id = fmt.Sprintf("%s_%s_%d", cameraID, user, stamp)
	}

	c := &Connection{
		ID:         id,
		CameraID:   cameraID,
		User:       user,
		CreatedAt:  now,
		lastAccess: now,
		upstream:   upstream,
		cancel:     cancel,
	}
	r.conns[id] = c
	metrics.SetActiveConnections(len(r.conns))
	return c
}

// Touch refreshes last access. It returns false if the connection is gone.
func (r *ConnectionRegistry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	if !ok {
		return false
	}
	c.lastAccess = r.now()
	return true
}

func (r *ConnectionRegistry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.conns[id]
	return ok
}

// Unregister removes and closes the connection. Already-gone ids return
// false without error.
func (r *ConnectionRegistry) Unregister(id string) bool {
	return r.remove(id, ReasonClosed)
}

func (r *ConnectionRegistry) remove(id, reason string) bool {
	r.mu.Lock()
	c, ok := r.conns[id]
	if ok {
		delete(r.conns, id)
		metrics.SetActiveConnections(len(r.conns))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	c.close()
	metrics.RecordConnectionClosed(reason)
	return true
}

// StopByCameraAndUser closes every connection of user on cameraID and
// returns how many were closed.
func (r *ConnectionRegistry) StopByCameraAndUser(cameraID, user string) int {
	ids := r.match(func(c *Connection) bool {
		return c.CameraID == cameraID && c.User == user
	})
	closed := 0
	for _, id := range ids {
		if r.remove(id, ReasonStopped) {
			log.Printf("[Proxy] closed connection %s", id)
			closed++
		}
	}
	return closed
}

// SweepStale closes connections idle for longer than maxIdle.
func (r *ConnectionRegistry) SweepStale(maxIdle time.Duration) int {
	now := r.now()
	ids := r.match(func(c *Connection) bool {
		return now.Sub(c.lastAccess) > maxIdle
	})
	swept := 0
	for _, id := range ids {
		if r.remove(id, ReasonSwept) {
			log.Printf("[Sweeper] cleaning up stale connection %s", id)
			swept++
		}
	}
	return swept
}

func (r *ConnectionRegistry) match(pred func(*Connection) bool) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for id, c := range r.conns {
		if pred(c) {
			ids = append(ids, id)
		}
	}
	return ids
}

func (r *ConnectionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// List returns connections ordered by creation time.
func (r *ConnectionRegistry) List() []ConnectionInfo {
	r.mu.Lock()
	out := make([]ConnectionInfo, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, ConnectionInfo{
			ID:         c.ID,
			CameraID:   c.CameraID,
			User:       c.User,
			CreatedAt:  c.CreatedAt,
			LastAccess: c.lastAccess,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CloseAll tears down every connection, for shutdown.
func (r *ConnectionRegistry) CloseAll() int {
	ids := r.match(func(*Connection) bool { return true })
	n := 0
	for _, id := range ids {
		if r.remove(id, ReasonClosed) {
			n++
		}
	}
	return n
}
