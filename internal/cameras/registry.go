package cameras

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/technosupport/camwatch/internal/frames"
	"github.com/technosupport/camwatch/internal/health"
	"github.com/technosupport/camwatch/internal/metrics"
)

const (
	DefaultHost       = "localhost"
	DefaultBasePort   = 10001
	DefaultCandidates = 50
	IDPrefix          = "camera"
	StreamPath        = "/stream"
	CapturePath       = "/capture"

	scanWorkers = 8

	// targetedScanTimeout bounds a rescan started by Lookup, which runs
	// detached from the requesting client.
	targetedScanTimeout = 30 * time.Second
)

// Descriptor is one discovered camera. It is rebuilt on every scan.
type Descriptor struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	StreamURL   string          `json:"-"`
	CaptureURL  string          `json:"-"`
	StreamPort  int             `json:"stream_port"`
	CapturePort int             `json:"capture_port"`
	Rotation    frames.Rotation `json:"rotation"`
}

// RotationSource supplies persisted rotation per camera id.
type RotationSource interface {
	Rotation(cameraID string) frames.Rotation
}

type RegistryConfig struct {
	Host          string
	BasePort      int
	Candidates    int
	MissCacheSize int
	MissCacheTTL  time.Duration
}

// Registry owns the current camera snapshot. Every Discover re-probes the
// whole port range and replaces the snapshot; readers may see a stale one.
type Registry struct {
	cfg       RegistryConfig
	prober    health.Prober
	checker   health.EndpointChecker
	rotations RotationSource

	mu      sync.RWMutex
	current map[string]Descriptor

	scanMu sync.Mutex
	misses *lru.Cache[string, time.Time]
}

func NewRegistry(cfg RegistryConfig, prober health.Prober, checker health.EndpointChecker, rotations RotationSource) *Registry {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.BasePort == 0 {
		cfg.BasePort = DefaultBasePort
	}
	if cfg.Candidates == 0 {
		cfg.Candidates = DefaultCandidates
	}
	if cfg.MissCacheSize <= 0 {
		cfg.MissCacheSize = 256
	}
	misses, _ := lru.New[string, time.Time](cfg.MissCacheSize)

	return &Registry{
		cfg:       cfg,
		prober:    prober,
		checker:   checker,
		rotations: rotations,
		current:   make(map[string]Descriptor),
		misses:    misses,
	}
}

// PortsFor returns the stream and capture ports of the n-th camera (1-based).
func (r *Registry) PortsFor(n int) (stream, capture int) {
	stream = r.cfg.BasePort + (n-1)*2
	return stream, stream + 1
}

// ParseID extracts N from "cameraN". ok is false for anything not id-shaped.
func ParseID(id string) (n int, ok bool) {
	rest, found := strings.CutPrefix(id, IDPrefix)
	if !found || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 || strconv.Itoa(n) != rest {
		return 0, false
	}
	return n, true
}

// Discover probes every candidate and atomically replaces the snapshot.
// Probe failures are logged and treated as absent; it never fails. A scan
// interrupted by ctx leaves the current snapshot in place and returns it.
func (r *Registry) Discover(ctx context.Context) map[string]Descriptor {
	r.scanMu.Lock()
	defer r.scanMu.Unlock()

	start := time.Now()
	found := make([]*Descriptor, r.cfg.Candidates)

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < scanWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				found[idx] = r.probeCandidate(ctx, idx+1)
			}
		}()
	}
	for idx := 0; idx < r.cfg.Candidates; idx++ {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		log.Printf("[Discovery] scan interrupted (%v), keeping previous snapshot", err)
		return r.Current()
	}

	next := make(map[string]Descriptor)
	for _, d := range found {
		if d == nil {
			continue
		}
		if r.rotations != nil {
			d.Rotation = r.rotations.Rotation(d.ID)
		}
		next[d.ID] = *d
	}

	r.mu.Lock()
	r.current = next
	r.mu.Unlock()

	metrics.SetCamerasDiscovered(len(next))
	metrics.RecordDiscoveryDuration(time.Since(start))
	log.Printf("[Discovery] scan complete: %d camera(s) in %v", len(next), time.Since(start).Round(time.Millisecond))

	return cloneMap(next)
}

func (r *Registry) probeCandidate(ctx context.Context, n int) *Descriptor {
	streamPort, capturePort := r.PortsFor(n)
	streamURL := fmt.Sprintf("http://%s:%d%s", r.cfg.Host, streamPort, StreamPath)
	captureURL := fmt.Sprintf("http://%s:%d%s", r.cfg.Host, capturePort, CapturePath)

	if !r.endpointAlive(ctx, streamPort, streamURL) {
		return nil
	}
	if !r.endpointAlive(ctx, capturePort, captureURL) {
		return nil
	}

	id := fmt.Sprintf("%s%d", IDPrefix, n)
	log.Printf("[Discovery] found %s (stream %d, capture %d)", id, streamPort, capturePort)
	return &Descriptor{
		ID:          id,
		Name:        fmt.Sprintf("Camera %d", n),
		StreamURL:   streamURL,
		CaptureURL:  captureURL,
		StreamPort:  streamPort,
		CapturePort: capturePort,
		Rotation:    frames.RotateNone,
	}
}

func (r *Registry) endpointAlive(ctx context.Context, port int, url string) bool {
	if !r.prober.IsOpen(ctx, r.cfg.Host, port) {
		metrics.RecordProbe("closed")
		return false
	}
	ok, err := r.checker.Check(ctx, url)
	if err != nil {
		log.Printf("[Discovery] %s unreachable: %v", url, err)
		metrics.RecordProbe("error")
		return false
	}
	if !ok {
		log.Printf("[Discovery] %s returned non-2xx", url)
		metrics.RecordProbe("bad_status")
		return false
	}
	metrics.RecordProbe("ok")
	return true
}

// Current returns a copy of the latest snapshot.
func (r *Registry) Current() map[string]Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneMap(r.current)
}

// List returns the snapshot ordered by stream port.
func (r *Registry) List() []Descriptor {
	cur := r.Current()
	out := make([]Descriptor, 0, len(cur))
	for _, d := range cur {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamPort < out[j].StreamPort })
	return out
}

// Get looks up the snapshot without probing. Rotation reflects the
// settings at call time so a rotation change shows before the next scan.
func (r *Registry) Get(id string) (Descriptor, bool) {
	r.mu.RLock()
	d, ok := r.current[id]
	r.mu.RUnlock()
	if ok && r.rotations != nil {
		d.Rotation = r.rotations.Rotation(id)
	}
	return d, ok
}

// Lookup is Get plus a targeted rescan: an id-shaped unknown camera whose
// computed ports are both open triggers a full Discover. Recent misses are
// remembered for MissCacheTTL so repeated requests do not re-probe.
func (r *Registry) Lookup(ctx context.Context, id string) (Descriptor, error) {
	if d, ok := r.Get(id); ok {
		return d, nil
	}

	n, ok := ParseID(id)
	if !ok {
		return Descriptor{}, NewLookupError(id, CodeInvalidID, ErrCameraNotFound)
	}
	streamPort, capturePort := r.PortsFor(n)
	if streamPort > 65534 {
		return Descriptor{}, NewLookupError(id, CodeInvalidID, ErrCameraNotFound)
	}

	if at, hit := r.misses.Get(id); hit && time.Since(at) < r.cfg.MissCacheTTL {
		return Descriptor{}, NewLookupError(id, CodeNotFound, ErrCameraNotFound)
	}

	if !r.prober.IsOpen(ctx, r.cfg.Host, streamPort) || !r.prober.IsOpen(ctx, r.cfg.Host, capturePort) {
		r.misses.Add(id, time.Now())
		return Descriptor{}, NewLookupError(id, CodePortsClosed, ErrCameraNotFound)
	}

	log.Printf("[Discovery] ports for %s are open, rescanning", id)
	scanCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), targetedScanTimeout)
	r.Discover(scanCtx)
	cancel()

	if d, ok := r.Get(id); ok {
		r.misses.Remove(id)
		return d, nil
	}
	r.misses.Add(id, time.Now())
	return Descriptor{}, NewLookupError(id, CodeNotFound, ErrCameraNotFound)
}

// IsConnected reports whether a known camera's stream port is open right now.
// Unknown ids are reported disconnected without a rescan.
func (r *Registry) IsConnected(ctx context.Context, id string) bool {
	d, ok := r.Get(id)
	if !ok || d.StreamPort == 0 {
		return false
	}
	return r.prober.IsOpen(ctx, r.cfg.Host, d.StreamPort)
}

// IDs returns the known camera ids ordered by stream port.
func (r *Registry) IDs() []string {
	list := r.List()
	ids := make([]string, len(list))
	for i, d := range list {
		ids[i] = d.ID
	}
	return ids
}

// RunRescans calls Discover every interval until ctx is cancelled.
func (r *Registry) RunRescans(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Discover(ctx)
		}
	}
}

func cloneMap(m map[string]Descriptor) map[string]Descriptor {
	out := make(map[string]Descriptor, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
