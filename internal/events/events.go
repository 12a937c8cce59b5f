// Package events publishes presence transitions to external sinks.
package events

import (
	"context"
	"log"
	"time"

	"github.com/technosupport/camwatch/internal/metrics"
)

// PresenceEvent is emitted when a camera goes from absent to present or back.
type PresenceEvent struct {
	CameraID       string    `json:"camera_id"`
	Present        bool      `json:"present"`
	Transition     string    `json:"transition"`
	At             time.Time `json:"at"`
	DetectionCount int       `json:"detection_count"`
	SessionSeconds float64   `json:"session_seconds,omitempty"`
	Evidence       string    `json:"evidence,omitempty"`
}

type Sink interface {
	Name() string
	Publish(ctx context.Context, ev PresenceEvent) error
}

// Fanout hands each event to every sink. A failing sink is logged and
// does not stop the others.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		if s != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Publish(ctx context.Context, ev PresenceEvent) {
	for _, s := range f.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			log.Printf("[Events] %s publish for %s failed: %v", s.Name(), ev.CameraID, err)
			metrics.RecordEventPublish(s.Name(), "error")
			continue
		}
		metrics.RecordEventPublish(s.Name(), "ok")
	}
}
