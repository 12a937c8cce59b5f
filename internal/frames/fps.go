package frames

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultFPSWindow = 10
	FPSUnavailable   = "FPS: N/A"
)

// FPSCounter keeps a rolling mean of instantaneous frame rates.
type FPSCounter struct {
	window  int
	last    time.Time
	samples []float64
}

func NewFPSCounter(window int, start time.Time) *FPSCounter {
	if window <= 0 {
		window = DefaultFPSWindow
	}
	return &FPSCounter{window: window, last: start}
}

// Tick records a frame at now and returns the overlay text.
func (c *FPSCounter) Tick(now time.Time) string {
	dt := now.Sub(c.last).Seconds()
	c.last = now
	if dt <= 0 {
		return FPSUnavailable
	}

	c.samples = append(c.samples, 1/dt)
	if len(c.samples) > c.window {
		c.samples = c.samples[len(c.samples)-c.window:]
	}

	var sum float64
	for _, s := range c.samples {
		sum += s
	}
	return fmt.Sprintf("FPS: %.1f", sum/float64(len(c.samples)))
}

// FPSTable holds one counter per live connection.
type FPSTable struct {
	mu       sync.Mutex
	window   int
	counters map[string]*FPSCounter
}

func NewFPSTable(window int) *FPSTable {
	return &FPSTable{window: window, counters: make(map[string]*FPSCounter)}
}

func (t *FPSTable) Track(connID string, start time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counters[connID] = NewFPSCounter(t.window, start)
}

// Tick returns FPSUnavailable for untracked connections.
func (t *FPSTable) Tick(connID string, now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counters[connID]
	if !ok {
		return FPSUnavailable
	}
	return c.Tick(now)
}

func (t *FPSTable) Release(connID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.counters, connID)
}

func (t *FPSTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.counters)
}
