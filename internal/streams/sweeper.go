package streams

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

const (
	DefaultSweepInterval = 60 * time.Second
	DefaultMaxIdle       = 300 * time.Second
)

type SweeperConfig struct {
	Interval time.Duration
	MaxIdle  time.Duration
}

// Sweeper periodically removes idle connections.
type Sweeper struct {
	config SweeperConfig
	conns  *ConnectionRegistry
	quit   chan struct{}
	wg     sync.WaitGroup
}

func NewSweeper(cfg SweeperConfig, conns *ConnectionRegistry) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	if cfg.MaxIdle <= 0 {
		cfg.MaxIdle = DefaultMaxIdle
	}
	return &Sweeper{
		config: cfg,
		conns:  conns,
		quit:   make(chan struct{}),
	}
}

func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Sweeper) Stop() {
	close(s.quit)
	s.wg.Wait()
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.quit:
			return
		}
	}
}

// sweepOnce never lets a failure stop the loop.
func (s *Sweeper) sweepOnce() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Sweeper] panic recovered: %v\n%s", r, debug.Stack())
		}
	}()
	swept := s.conns.SweepStale(s.config.MaxIdle)
	log.Printf("[Sweeper] swept %d, active connections: %d", swept, s.conns.Len())
}

// Run blocks until ctx is done. It is Start/Stop for callers that own a context.
func (s *Sweeper) Run(ctx context.Context) {
	s.Start()
	<-ctx.Done()
	s.Stop()
}
