package detection

import (
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// run folds readings spaced by step, marking saves as successful.
func run(readings []bool, step, minSave time.Duration) (State, []int) {
	var s State
	var saves []int
	for i, r := range readings {
		now := t0.Add(time.Duration(i) * step)
		d := Apply(s, r, now, minSave)
		s = d.Next
		if d.Save {
			at := now
			s.LastImageSaveTime = &at
			saves = append(saves, i+1)
		}
	}
	return s, saves
}

func TestApply_Transitions(t *testing.T) {
	d := Apply(State{}, false, t0, time.Minute)
	assert.Equal(t, StayedAbsent, d.Transition)
	assert.False(t, d.Save)
	assert.Equal(t, 1, d.Next.Checks)

	d = Apply(d.Next, true, t0.Add(time.Second), time.Minute)
	assert.Equal(t, Appeared, d.Transition)
	assert.True(t, d.Save)
	assert.True(t, d.Next.Present)
	require.NotNil(t, d.Next.SessionStart)
	assert.Equal(t, t0.Add(time.Second), *d.Next.SessionStart)
	assert.Equal(t, 1, d.Next.DetectionCount)
	assert.Nil(t, d.Next.LastImageSaveTime, "save time is the caller's to set")

	d = Apply(d.Next, false, t0.Add(31*time.Second), time.Minute)
	assert.Equal(t, Left, d.Transition)
	assert.False(t, d.Save)
	assert.False(t, d.Next.Present)
	assert.Nil(t, d.Next.SessionStart)
	assert.Equal(t, 30*time.Second, d.SessionDuration)
	assert.Equal(t, 30*time.Second, d.Next.TotalDetectionTime)
}

func TestApply_DebounceAtTenSecondSpacing(t *testing.T) {
	readings := []bool{true, true, true, true, true, true, true}
	_, saves := run(readings, 10*time.Second, 60*time.Second)
	assert.Equal(t, []int{1, 7}, saves)
}

func TestApply_PresentWithoutSaveRetriesSave(t *testing.T) {
	d := Apply(State{}, true, t0, time.Minute)
	// the evidence write failed, so no save time was recorded
	d = Apply(d.Next, true, t0.Add(5*time.Second), time.Minute)
	assert.Equal(t, StayedPresent, d.Transition)
	assert.True(t, d.Save)
}

func TestApply_SessionCountMatchesRisingEdges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		readings := make([]bool, 1+rng.Intn(40))
		for i := range readings {
			readings[i] = rng.Intn(2) == 1
		}

		rising := 0
		prev := false
		for _, r := range readings {
			if r && !prev {
				rising++
			}
			prev = r
		}

		s, _ := run(readings, 10*time.Second, time.Minute)
		assert.Equal(t, rising, s.DetectionCount, "readings %v", readings)
		assert.Equal(t, len(readings), s.Checks)
		assert.Equal(t, readings[len(readings)-1], s.Present)
		assert.Equal(t, s.Present, s.SessionStart != nil)
	}
}

func TestState_Totals(t *testing.T) {
	start := t0
	s := State{
		Present:            true,
		SessionStart:       &start,
		DetectionCount:     2,
		TotalDetectionTime: 40 * time.Second,
	}
	assert.Equal(t, 50*time.Second, s.TotalIncludingCurrent(t0.Add(10*time.Second)))
	assert.Equal(t, 20*time.Second, s.AverageSession())
	assert.Equal(t, time.Duration(0), State{}.AverageSession())
}

func TestLockTable_SameLockPerCamera(t *testing.T) {
	lt := NewLockTable()
	var wg sync.WaitGroup
	got := make([]*sync.Mutex, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = lt.Get("camera1")
		}(i)
	}
	wg.Wait()
	for _, l := range got {
		assert.Same(t, got[0], l)
	}
	assert.NotSame(t, got[0], lt.Get("camera2"))
}
