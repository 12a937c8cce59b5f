package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	mu        sync.Mutex
	checked   []string
	summaries int
	panicOn   string
	failOn    string
}

func (f *fakeChecker) CheckCamera(ctx context.Context, id string) error {
	f.mu.Lock()
	f.checked = append(f.checked, id)
	f.mu.Unlock()
	if id == f.panicOn {
		panic("boom")
	}
	if id == f.failOn {
		return errors.New("capture failed")
	}
	return nil
}

func (f *fakeChecker) LogSummary() {
	f.mu.Lock()
	f.summaries++
	f.mu.Unlock()
}

func (f *fakeChecker) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.checked...), f.summaries
}

func TestScheduler_CycleSurvivesPanicAndError(t *testing.T) {
	fc := &fakeChecker{panicOn: "camera1", failOn: "camera2"}
	s := NewScheduler(SchedulerConfig{SummaryEvery: 2}, fc, StaticIDs([]string{"camera1", "camera2", "camera3"}), quietLogger())

	s.RunCycle(context.Background())
	checked, summaries := fc.snapshot()
	assert.Equal(t, []string{"camera1", "camera2", "camera3"}, checked)
	assert.Equal(t, 0, summaries)

	s.RunCycle(context.Background())
	_, summaries = fc.snapshot()
	assert.Equal(t, 1, summaries)
}

func TestScheduler_StartRunsImmediatelyAndStops(t *testing.T) {
	fc := &fakeChecker{}
	s := NewScheduler(SchedulerConfig{Interval: 20 * time.Millisecond}, fc, StaticIDs([]string{"camera1"}), quietLogger())

	s.Start(context.Background())
	require.Eventually(t, func() bool {
		checked, _ := fc.snapshot()
		return len(checked) >= 2
	}, time.Second, 5*time.Millisecond)
	s.Stop()

	checked, _ := fc.snapshot()
	time.Sleep(50 * time.Millisecond)
	after, _ := fc.snapshot()
	assert.Equal(t, len(checked), len(after))
}

func TestScheduler_IDSourcePanicIsRetried(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	ids := func() []string {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("registry exploded")
		}
		return []string{"camera1"}
	}
	fc := &fakeChecker{}
	s := NewScheduler(SchedulerConfig{Interval: time.Hour, RetryDelay: 10 * time.Millisecond}, fc, ids, quietLogger())

	s.Start(context.Background())
	defer s.Stop()
	require.Eventually(t, func() bool {
		checked, _ := fc.snapshot()
		return len(checked) == 1
	}, time.Second, 5*time.Millisecond)
}
