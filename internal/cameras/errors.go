package cameras

import (
	"errors"
	"fmt"
)

var ErrCameraNotFound = errors.New("camera not found")

const (
	CodeInvalidID   = "invalid_id"
	CodePortsClosed = "ports_closed"
	CodeNotFound    = "not_found"
)

// LookupError says why a camera id could not be resolved.
type LookupError struct {
	CameraID string
	Code     string
	Err      error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("[lookup:%s] %s: %v", e.Code, e.CameraID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func NewLookupError(cameraID, code string, err error) *LookupError {
	return &LookupError{CameraID: cameraID, Code: code, Err: err}
}
