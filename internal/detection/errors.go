package detection

import (
	"errors"
	"fmt"
)

var ErrCaptureStatus = errors.New("capture returned non-2xx status")

const (
	StepLookup  = "lookup"
	StepCapture = "capture"
)

// StepError records which stage of a check failed. A check that fails this
// way leaves the camera's state untouched.
type StepError struct {
	CameraID string
	Step     string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Step, e.CameraID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
