// Package detection runs the per-camera person presence loop: capture a
// still, ask the detector, fold the answer into the presence state and keep
// evidence while someone is in view.
package detection

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/technosupport/camwatch/internal/cameras"
	"github.com/technosupport/camwatch/internal/detector"
	"github.com/technosupport/camwatch/internal/events"
	"github.com/technosupport/camwatch/internal/frames"
	"github.com/technosupport/camwatch/internal/metrics"
)

const (
	DefaultCaptureTimeout = 5 * time.Second
	maxCaptureBytes       = 16 << 20
)

type CameraLookup interface {
	Lookup(ctx context.Context, id string) (cameras.Descriptor, error)
}

type Rotator interface {
	RotateJPEG(data []byte, rot frames.Rotation) ([]byte, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev events.PresenceEvent)
}

type EngineConfig struct {
	CaptureTimeout  time.Duration
	MinSaveInterval time.Duration
	StatsEvery      int
}

type Engine struct {
	cfg      EngineConfig
	cameras  CameraLookup
	rotator  Rotator
	detector detector.Detector
	evidence EvidenceStore
	events   EventPublisher
	logger   *log.Logger

	locks  *LockTable
	mu     sync.RWMutex
	states map[string]State

	client *http.Client
	now    func() time.Time
}

func NewEngine(cfg EngineConfig, lookup CameraLookup, rotator Rotator, det detector.Detector, evidence EvidenceStore, logger *log.Logger) *Engine {
	if cfg.CaptureTimeout <= 0 {
		cfg.CaptureTimeout = DefaultCaptureTimeout
	}
	if cfg.MinSaveInterval <= 0 {
		cfg.MinSaveInterval = DefaultMinSaveInterval
	}
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = DefaultStatsEvery
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		cfg:      cfg,
		cameras:  lookup,
		rotator:  rotator,
		detector: det,
		evidence: evidence,
		logger:   logger,
		locks:    NewLockTable(),
		states:   make(map[string]State),
		client:   &http.Client{},
		now:      time.Now,
	}
}

// SetPublisher attaches the sink for presence transitions.
func (e *Engine) SetPublisher(p EventPublisher) {
	e.events = p
}

// CheckCamera runs one capture/detect/update cycle for a camera. Checks of
// the same camera are serialized; different cameras may run in parallel.
func (e *Engine) CheckCamera(ctx context.Context, cameraID string) error {
	lock := e.locks.Get(cameraID)
	lock.Lock()
	defer lock.Unlock()

	cam, err := e.cameras.Lookup(ctx, cameraID)
	if err != nil {
		metrics.RecordCheck(cameraID, "capture_error")
		return &StepError{CameraID: cameraID, Step: StepLookup, Err: err}
	}

	raw, err := e.capture(ctx, cam.CaptureURL)
	if err != nil {
		e.logger.Printf("[Detection] %s: capture failed: %v", cameraID, err)
		metrics.RecordCheck(cameraID, "capture_error")
		return &StepError{CameraID: cameraID, Step: StepCapture, Err: err}
	}

	img := raw
	if rotated, err := e.rotator.RotateJPEG(raw, cam.Rotation); err != nil {
		e.logger.Printf("[Detection] %s: rotation %s failed, using raw image: %v", cameraID, cam.Rotation, err)
	} else {
		img = rotated
	}

	reading := false
	res := detector.Result{Annotated: img}
	start := time.Now()
	got, err := e.detector.Detect(ctx, img)
	metrics.RecordDetectorLatency(e.detector.Name(), time.Since(start))
	if err != nil {
		e.logger.Printf("[Detection] ERROR %s: detector %s failed: %v", cameraID, e.detector.Name(), err)
		metrics.RecordCheck(cameraID, "detector_error")
	} else {
		res = got
		if res.Annotated == nil {
			res.Annotated = img
		}
		reading = res.Present
		if reading {
			metrics.RecordCheck(cameraID, "present")
		} else {
			metrics.RecordCheck(cameraID, "absent")
		}
	}

	now := e.now()
	e.mu.RLock()
	prev := e.states[cameraID]
	e.mu.RUnlock()

	d := Apply(prev, reading, now, e.cfg.MinSaveInterval)
	next := d.Next

	var saved string
	if d.Save {
		name, err := e.evidence.Save(ctx, Record{CameraID: cameraID, Time: now, Image: res.Annotated, RawText: res.RawText})
		if err != nil {
			e.logger.Printf("[Detection] %s: evidence save failed: %v", cameraID, err)
			metrics.RecordEvidence("error")
		} else {
			savedAt := now
			next.LastImageSaveTime = &savedAt
			saved = name
			metrics.RecordEvidence("ok")
			e.logger.Printf("[Detection] %s: saved %s (%s)", cameraID, name, d.SaveReason)
		}
	}

	e.mu.Lock()
	e.states[cameraID] = next
	e.mu.Unlock()
	metrics.SetPresent(cameraID, next.Present)

	e.report(ctx, cameraID, d, next, now, saved)
	return nil
}

func (e *Engine) capture(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.CaptureTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", ErrCaptureStatus, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCaptureBytes))
}

func (e *Engine) report(ctx context.Context, cameraID string, d Decision, s State, now time.Time, saved string) {
	switch d.Transition {
	case Appeared:
		e.logger.Printf("[Detection] %s: PERSON APPEARED (session #%d)", cameraID, s.DetectionCount)
		e.publish(ctx, cameraID, d, s, now, saved)
	case Left:
		e.logger.Printf("[Detection] %s: person left after %s", cameraID, d.SessionDuration.Round(time.Second))
		e.publish(ctx, cameraID, d, s, now, saved)
	}

	if s.Present || s.Checks%e.cfg.StatsEvery == 0 {
		e.logger.Printf("[Detection] %s: stats present=%t sessions=%d total=%s avg=%s checks=%d",
			cameraID, s.Present, s.DetectionCount,
			s.TotalIncludingCurrent(now).Round(time.Second), s.AverageSession().Round(time.Second), s.Checks)
	}
}

func (e *Engine) publish(ctx context.Context, cameraID string, d Decision, s State, now time.Time, saved string) {
	if e.events == nil {
		return
	}
	e.events.Publish(ctx, events.PresenceEvent{
		CameraID:       cameraID,
		Present:        s.Present,
		Transition:     d.Transition.String(),
		At:             now,
		DetectionCount: s.DetectionCount,
		SessionSeconds: d.SessionDuration.Seconds(),
		Evidence:       saved,
	})
}

// State returns a copy of the camera's state.
func (e *Engine) State(cameraID string) (State, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[cameraID]
	return s, ok
}

// Snapshot is the read model served by the API.
type Snapshot struct {
	CameraID              string     `json:"camera_id"`
	Present               bool       `json:"present"`
	DetectionCount        int        `json:"detection_count"`
	TotalDetectionSeconds float64    `json:"total_detection_seconds"`
	AverageSessionSeconds float64    `json:"average_session_seconds"`
	FirstDetection        *time.Time `json:"first_detection,omitempty"`
	LastDetection         *time.Time `json:"last_detection,omitempty"`
	LastCheckTime         time.Time  `json:"last_check_time"`
	LastImageSaveTime     *time.Time `json:"last_image_save_time,omitempty"`
	Checks                int        `json:"checks"`
}

// Snapshots lists every camera seen so far, ordered by id. Totals include
// the running session.
func (e *Engine) Snapshots() []Snapshot {
	now := e.now()
	e.mu.RLock()
	out := make([]Snapshot, 0, len(e.states))
	for id, s := range e.states {
		snap := Snapshot{
			CameraID:              id,
			Present:               s.Present,
			DetectionCount:        s.DetectionCount,
			TotalDetectionSeconds: s.TotalIncludingCurrent(now).Seconds(),
			AverageSessionSeconds: s.AverageSession().Seconds(),
			LastCheckTime:         s.LastCheckTime,
			LastImageSaveTime:     s.LastImageSaveTime,
			Checks:                s.Checks,
		}
		if !s.FirstDetection.IsZero() {
			first := s.FirstDetection
			snap.FirstDetection = &first
		}
		if !s.LastDetection.IsZero() {
			last := s.LastDetection
			snap.LastDetection = &last
		}
		out = append(out, snap)
	}
	e.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out
}

// LogSummary writes one line per camera with its running totals.
func (e *Engine) LogSummary() {
	snaps := e.Snapshots()
	e.logger.Printf("[Detection] summary for %d cameras", len(snaps))
	for _, s := range snaps {
		e.logger.Printf("[Detection]   %s: present=%t sessions=%d total=%.0fs avg=%.0fs",
			s.CameraID, s.Present, s.DetectionCount, s.TotalDetectionSeconds, s.AverageSessionSeconds)
	}
}
