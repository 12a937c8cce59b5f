package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

const DefaultProbeTimeout = 1 * time.Second

// Prober reports whether a TCP endpoint accepts connections.
type Prober interface {
	IsOpen(ctx context.Context, host string, port int) bool
}

// EndpointChecker reports whether an HTTP endpoint answers with a 2xx status.
type EndpointChecker interface {
	Check(ctx context.Context, url string) (bool, error)
}

// TCPProber executes bounded TCP connects.
type TCPProber struct {
	Timeout time.Duration
}

func NewTCPProber(timeout time.Duration) *TCPProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &TCPProber{Timeout: timeout}
}

// IsOpen never fails: refused, unreachable and timed out all read as closed.
func (p *TCPProber) IsOpen(ctx context.Context, host string, port int) bool {
	d := net.Dialer{Timeout: p.Timeout}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// HTTPChecker issues a GET and inspects only the status line. The body is
// never read, so it is safe against endless multipart streams.
type HTTPChecker struct {
	client *http.Client
}

func NewHTTPChecker(timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &HTTPChecker{client: &http.Client{Timeout: timeout}}
}

func (c *HTTPChecker) Check(ctx context.Context, url string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so small error bodies can be reused by the transport.
		io.CopyN(io.Discard, resp.Body, 512)
		return false, nil
	}
	return true, nil
}
