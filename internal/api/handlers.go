// Package api exposes the camera proxy and detection state over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/technosupport/camwatch/internal/cameras"
	"github.com/technosupport/camwatch/internal/detection"
	"github.com/technosupport/camwatch/internal/frames"
	"github.com/technosupport/camwatch/internal/streams"
)

const (
	UserHeader  = "X-User"
	DefaultUser = "anonymous"
)

// CameraDirectory is the read side of the camera registry.
type CameraDirectory interface {
	List() []cameras.Descriptor
	IsConnected(ctx context.Context, id string) bool
}

type RotationStore interface {
	SetRotation(cameraID string, rot frames.Rotation) error
}

type DetectionStatus interface {
	Snapshots() []detection.Snapshot
}

type EvidenceIndex interface {
	List(cameraID string) ([]detection.EvidenceEntry, error)
	Path(filename string) (string, error)
}

type Handler struct {
	proxy     *streams.Proxy
	cameras   CameraDirectory
	rotations RotationStore
	detection DetectionStatus
	evidence  EvidenceIndex
}

// NewHandler wires the HTTP surface. detection may be nil when the
// detection loop is disabled.
func NewHandler(proxy *streams.Proxy, dir CameraDirectory, rotations RotationStore, status DetectionStatus, evidence EvidenceIndex) *Handler {
	return &Handler{
		proxy:     proxy,
		cameras:   dir,
		rotations: rotations,
		detection: status,
		evidence:  evidence,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/stream/{cameraID}", h.Stream)
	r.Get("/snapshot/{cameraID}", h.Snapshot)
	r.Post("/stop-stream/{cameraID}", h.StopStream)
	r.Get("/check-camera/{cameraID}", h.CheckCamera)
	r.Get("/placeholder", h.Placeholder)

	r.Get("/api/cameras", h.ListCameras)
	r.Post("/api/cameras/{cameraID}/rotation", h.SetRotation)
	r.Get("/api/detection/state", h.DetectionState)
	r.Get("/api/detections/{cameraID}", h.ListDetections)
	r.Get("/detected-persons/image/{filename}", h.DetectionImage)
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func setNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

// userFrom identifies the viewer for stream bookkeeping.
func userFrom(r *http.Request) string {
	if u := r.Header.Get(UserHeader); u != "" {
		return u
	}
	return DefaultUser
}
