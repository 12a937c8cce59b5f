package detection

import "time"

const (
	DefaultMinSaveInterval = 60 * time.Second
	DefaultStatsEvery      = 10
)

// State is the per-camera presence record. It lives in memory only.
type State struct {
	Present            bool          `json:"present"`
	FirstDetection     time.Time     `json:"first_detection,omitempty"`
	LastDetection      time.Time     `json:"last_detection,omitempty"`
	SessionStart       *time.Time    `json:"session_start,omitempty"`
	DetectionCount     int           `json:"detection_count"`
	TotalDetectionTime time.Duration `json:"total_detection_time_ns"`
	LastCheckTime      time.Time     `json:"last_check_time,omitempty"`
	LastImageSaveTime  *time.Time    `json:"last_image_save_time,omitempty"`
	Checks             int           `json:"checks"`
}

// TotalIncludingCurrent adds the running session, if any, to the closed total.
func (s State) TotalIncludingCurrent(now time.Time) time.Duration {
	if s.SessionStart == nil {
		return s.TotalDetectionTime
	}
	return s.TotalDetectionTime + now.Sub(*s.SessionStart)
}

// AverageSession is the closed total divided by the session count.
func (s State) AverageSession() time.Duration {
	if s.DetectionCount == 0 {
		return 0
	}
	return s.TotalDetectionTime / time.Duration(s.DetectionCount)
}

type Transition int

const (
	StayedAbsent Transition = iota
	Appeared
	StayedPresent
	Left
)

func (t Transition) String() string {
	switch t {
	case Appeared:
		return "appeared"
	case StayedPresent:
		return "present"
	case Left:
		return "left"
	}
	return "absent"
}

// Decision is the outcome of applying one reading.
type Decision struct {
	Next       State
	Transition Transition
	Save       bool
	SaveReason string
	// SessionDuration is set when Transition is Left.
	SessionDuration time.Duration
}

// Apply folds one reading into prev. It is pure: LastImageSaveTime is left
// for the caller to set once the evidence write has succeeded.
func Apply(prev State, reading bool, now time.Time, minSaveInterval time.Duration) Decision {
	next := prev
	next.LastCheckTime = now
	next.Checks++

	switch {
	case reading && !prev.Present:
		start := now
		next.Present = true
		next.SessionStart = &start
		next.FirstDetection = now
		next.LastDetection = now
		next.DetectionCount++
		return Decision{Next: next, Transition: Appeared, Save: true, SaveReason: "person first detected"}

	case reading && prev.Present:
		next.LastDetection = now
		d := Decision{Next: next, Transition: StayedPresent}
		if prev.LastImageSaveTime == nil {
			d.Save = true
			d.SaveReason = "continuous presence, no image saved yet"
		} else if since := now.Sub(*prev.LastImageSaveTime); since >= minSaveInterval {
			d.Save = true
			d.SaveReason = "continuous presence, " + since.Round(time.Second).String() + " since last save"
		}
		return d

	case !reading && prev.Present:
		d := Decision{Next: next, Transition: Left}
		if prev.SessionStart != nil {
			d.SessionDuration = now.Sub(*prev.SessionStart)
			next.TotalDetectionTime += d.SessionDuration
		}
		next.Present = false
		next.SessionStart = nil
		d.Next = next
		return d
	}

	return Decision{Next: next, Transition: StayedAbsent}
}
