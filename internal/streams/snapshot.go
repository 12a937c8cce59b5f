package streams

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

const (
	DefaultSnapshotTimeout = 5 * time.Second
	maxSnapshotBytes       = 16 << 20
)

// Snapshot fetches one still from the camera's capture endpoint and applies
// the camera's rotation. Every failure wraps ErrUsePlaceholder.
func (p *Proxy) Snapshot(ctx context.Context, cameraID string) ([]byte, error) {
	desc, err := p.cameras.Lookup(ctx, cameraID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultSnapshotTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, desc.CaptureURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		log.Printf("[Proxy] snapshot for %s failed: %v", cameraID, err)
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("[Proxy] snapshot for %s returned status %d", cameraID, resp.StatusCode)
		return nil, fmt.Errorf("%w: capture status %d", ErrUsePlaceholder, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSnapshotBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	out, err := p.transformer.RotateJPEG(raw, p.rotation(desc))
	if err != nil {
		log.Printf("[Proxy] snapshot for %s is not a usable JPEG: %v", cameraID, err)
		return nil, fmt.Errorf("%w: %v", ErrUsePlaceholder, err)
	}
	return out, nil
}
