// Package detector answers one question about a JPEG: is a person visible.
package detector

import (
	"context"
	"errors"
	"strings"
)

// Prompt is sent verbatim to language-model backends.
const Prompt = "Is there a person clearly visible in this image? Answer with only 'yes' or 'no'."

const AnnotationText = "PERSON DETECTED"

var (
	// ErrDetectorUnavailable is returned when a backend is not configured
	// (for example a missing API key).
	ErrDetectorUnavailable = errors.New("detector unavailable")
	ErrEmptyResponse       = errors.New("detector returned an empty answer")
)

// Result of one detection. Annotated is the image to keep as evidence and
// RawText is the backend's answer as received.
type Result struct {
	Present   bool
	Annotated []byte
	RawText   string
}

type Detector interface {
	Detect(ctx context.Context, image []byte) (Result, error)
	Name() string
}

// Annotator marks an image that contains a person.
type Annotator interface {
	Annotate(data []byte, text string) ([]byte, error)
}

// ParseAnswer maps a free-text answer to presence. Only an answer containing
// "yes" is present; "no" and unexpected text are absent.
func ParseAnswer(text string) bool {
	return strings.Contains(strings.ToLower(text), "yes")
}

// buildResult applies ParseAnswer and annotates positives. If annotation
// fails the original image is kept.
func buildResult(image []byte, raw string, ann Annotator) Result {
	res := Result{Present: ParseAnswer(raw), Annotated: image, RawText: raw}
	if res.Present && ann != nil {
		if marked, err := ann.Annotate(image, AnnotationText); err == nil {
			res.Annotated = marked
		}
	}
	return res
}
