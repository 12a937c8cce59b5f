package detection

import (
	"context"
	"fmt"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

const (
	DefaultCheckInterval = 300 * time.Second
	DefaultSummaryEvery  = 12
	DefaultRetryDelay    = 60 * time.Second
)

type SchedulerConfig struct {
	Interval     time.Duration
	SummaryEvery int
	RetryDelay   time.Duration
}

// Checker is the part of Engine the scheduler drives.
type Checker interface {
	CheckCamera(ctx context.Context, cameraID string) error
	LogSummary()
}

// IDSource returns the cameras to check on this cycle.
type IDSource func() []string

// StaticIDs always returns the same list.
func StaticIDs(ids []string) IDSource {
	cp := append([]string(nil), ids...)
	return func() []string { return cp }
}

type Scheduler struct {
	config  SchedulerConfig
	checker Checker
	ids     IDSource
	logger  *log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	cycles int
}

func NewScheduler(cfg SchedulerConfig, checker Checker, ids IDSource, logger *log.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultCheckInterval
	}
	if cfg.SummaryEvery <= 0 {
		cfg.SummaryEvery = DefaultSummaryEvery
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{config: cfg, checker: checker, ids: ids, logger: logger}
}

// Start runs RunForever in the background until Stop.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunForever(ctx)
	}()
}

func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunForever checks every camera once per interval, starting immediately.
// A cycle that panics is logged and retried after RetryDelay.
func (s *Scheduler) RunForever(ctx context.Context) {
	s.logger.Printf("[Detection] scheduler started, interval=%s", s.config.Interval)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		if err := s.safeCycle(ctx); err != nil {
			s.logger.Printf("[Detection] ERROR cycle aborted: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.config.RetryDelay):
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Printf("[Detection] scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	s.RunCycle(ctx)
	return nil
}

// RunCycle checks each camera in order. Failures of one camera are logged
// and do not affect the rest.
func (s *Scheduler) RunCycle(ctx context.Context) {
	ids := s.ids()
	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		s.checkOne(ctx, id)
	}

	s.cycles++
	if s.cycles%s.config.SummaryEvery == 0 {
		s.checker.LogSummary()
	}
}

func (s *Scheduler) checkOne(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("[Detection] ERROR panic checking %s: %v\n%s", id, r, debug.Stack())
		}
	}()
	if err := s.checker.CheckCamera(ctx, id); err != nil {
		s.logger.Printf("[Detection] check %s failed: %v", id, err)
	}
}
