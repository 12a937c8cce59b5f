package streams

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/technosupport/camwatch/internal/cameras"
	"github.com/technosupport/camwatch/internal/frames"
	"github.com/technosupport/camwatch/internal/health"
	"github.com/technosupport/camwatch/internal/metrics"
	"github.com/technosupport/camwatch/internal/mjpeg"
)

const (
	DefaultChunkSize   = 4096
	DefaultDialTimeout = 10 * time.Second
)

// ErrUsePlaceholder tells the caller to answer with the offline placeholder
// instead of live content. The wrapped cause says why.
var ErrUsePlaceholder = errors.New("camera offline, use placeholder")

// CameraLookup resolves a camera id, rescanning for id-shaped unknowns.
type CameraLookup interface {
	Lookup(ctx context.Context, id string) (cameras.Descriptor, error)
}

type ProxyConfig struct {
	Host        string
	ChunkSize   int
	DialTimeout time.Duration
}

// Proxy re-serves camera MJPEG streams with per-frame processing.
type Proxy struct {
	cfg         ProxyConfig
	cameras     CameraLookup
	rotations   cameras.RotationSource
	prober      health.Prober
	conns       *ConnectionRegistry
	fps         *frames.FPSTable
	transformer *frames.Transformer
	client      *http.Client
	now         func() time.Time
}

func NewProxy(cfg ProxyConfig, lookup CameraLookup, rotations cameras.RotationSource, prober health.Prober,
	conns *ConnectionRegistry, fps *frames.FPSTable, transformer *frames.Transformer) *Proxy {
	if cfg.Host == "" {
		cfg.Host = cameras.DefaultHost
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}

	// No overall client timeout: the body is an endless stream.
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: cfg.DialTimeout}).DialContext,
		ResponseHeaderTimeout: cfg.DialTimeout,
		DisableCompression:    true,
	}

	return &Proxy{
		cfg:         cfg,
		cameras:     lookup,
		rotations:   rotations,
		prober:      prober,
		conns:       conns,
		fps:         fps,
		transformer: transformer,
		client:      &http.Client{Transport: transport},
		now:         time.Now,
	}
}

func (p *Proxy) Connections() *ConnectionRegistry { return p.conns }

// Session is an opened upstream stream registered for one client.
type Session struct {
	proxy    *Proxy
	conn     *Connection
	camera   cameras.Descriptor
	boundary string
	body     io.ReadCloser
}

func (s *Session) ConnectionID() string { return s.conn.ID }
func (s *Session) Boundary() string     { return s.boundary }
func (s *Session) ContentType() string  { return mjpeg.ContentType(s.boundary) }

// Open resolves the camera and connects upstream. Any failure before the
// connection is registered returns an error wrapping ErrUsePlaceholder.
// ctx bounds the whole session; cancelling it ends Serve.
func (p *Proxy) Open(ctx context.Context, cameraID, user string) (*Session, error) {
	desc, err := p.cameras.Lookup(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	if !p.prober.IsOpen(ctx, p.cfg.Host, desc.StreamPort) {
		log.Printf("[Proxy] stream port %d for %s is not open", desc.StreamPort, cameraID)
		return nil, fmt.Errorf("%w: stream port %d closed", ErrUsePlaceholder, desc.StreamPort)
	}

	upCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(upCtx, http.MethodGet, desc.StreamURL, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		cancel()
		log.Printf("[Proxy] error connecting to %s (%s): %v", cameraID, desc.StreamURL, err)
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		log.Printf("[Proxy] camera %s returned status %d", cameraID, resp.StatusCode)
		return nil, fmt.Errorf("%w: upstream status %d", ErrUsePlaceholder, resp.StatusCode)
	}
	boundary, err := mjpeg.ParseBoundary(resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		cancel()
		log.Printf("[Proxy] could not find boundary for %s: %v", cameraID, err)
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}

	conn := p.conns.Register(cameraID, user, resp.Body, cancel)
	p.fps.Track(conn.ID, p.now())
	log.Printf("[Proxy] stream %s opened for %s (boundary %q)", conn.ID, user, boundary)

	return &Session{
		proxy:    p,
		conn:     conn,
		camera:   desc,
		boundary: boundary,
		body:     resp.Body,
	}, nil
}

// Serve copies frames to w until the upstream ends, the client goes away
// or the connection is removed from the registry. Cleanup always runs.
func (s *Session) Serve(ctx context.Context, w io.Writer) error {
	p := s.proxy
	id := s.conn.ID
	defer s.release()

	flusher, _ := w.(http.Flusher)
	reasm := mjpeg.NewReassembler(s.boundary)
	buf := make([]byte, p.cfg.ChunkSize)

	for {
		n, readErr := s.body.Read(buf)
		if n > 0 {
			if !p.conns.Touch(id) {
				log.Printf("[Proxy] connection %s terminated externally", id)
				return nil
			}
			for _, payload := range reasm.Feed(buf[:n]) {
				out, err := p.transformer.Transform(payload, p.rotation(s.camera), func() string {
					return p.fps.Tick(id, p.now())
				})
				if err != nil {
					metrics.RecordFrameDrop("codec")
					log.Printf("[Proxy] dropping frame for %s: %v", s.camera.ID, err)
					continue
				}
				if err := mjpeg.WritePart(w, s.boundary, out); err != nil {
					log.Printf("[Proxy] client for %s went away: %v", id, err)
					return nil
				}
				if flusher != nil {
					flusher.Flush()
				}
				metrics.RecordFrameProxied()
			}
		}

		if readErr != nil {
			switch {
			case errors.Is(readErr, io.EOF):
				log.Printf("[Proxy] stream ended for %s", id)
				return nil
			case ctx.Err() != nil || !p.conns.Contains(id):
				log.Printf("[Proxy] connection %s cancelled", id)
				return nil
			default:
				log.Printf("[Proxy] stream error for %s (%s): %v", s.camera.ID, id, readErr)
				return readErr
			}
		}
	}
}

// Close ends a session that will not be served.
func (s *Session) Close() {
	s.release()
}

func (s *Session) release() {
	s.proxy.fps.Release(s.conn.ID)
	if !s.proxy.conns.Unregister(s.conn.ID) {
		// already removed by stop or sweep, which closed the upstream
		return
	}
	log.Printf("[Proxy] removed connection %s", s.conn.ID)
}

func (p *Proxy) rotation(d cameras.Descriptor) frames.Rotation {
	if p.rotations != nil {
		return p.rotations.Rotation(d.ID)
	}
	return d.Rotation
}
