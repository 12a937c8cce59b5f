package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is satisfied by *nats.Conn.
type natsConn interface {
	Publish(subj string, data []byte) error
}

type NATSSink struct {
	conn          natsConn
	subjectPrefix string
	maxRetries    int
}

func NewNATSSink(conn natsConn, subjectPrefix string, maxRetries int) *NATSSink {
	return &NATSSink{
		conn:          conn,
		subjectPrefix: subjectPrefix,
		maxRetries:    maxRetries,
	}
}

// ConnectNATS dials url with reconnects enabled.
func ConnectNATS(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("camwatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}

func (p *NATSSink) Name() string { return "nats" }

func (p *NATSSink) Subject(cameraID string) string {
	return p.subjectPrefix + "." + cameraID
}

func (p *NATSSink) Publish(ctx context.Context, ev PresenceEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}

	subject := p.Subject(ev.CameraID)
	for i := 0; i <= p.maxRetries; i++ {
		err = p.conn.Publish(subject, data)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(i*100) * time.Millisecond):
		}
	}
	return fmt.Errorf("publish failed after %d retries: %w", p.maxRetries, err)
}
