package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/technosupport/camwatch/internal/cameras"
	"github.com/technosupport/camwatch/internal/detection"
	"github.com/technosupport/camwatch/internal/frames"
)

type cameraView struct {
	cameras.Descriptor
	IsConnected bool `json:"is_connected"`
}

// connectWorkers bounds concurrent port probes per /api/cameras request.
const connectWorkers = 8

// GET /api/cameras
func (h *Handler) ListCameras(w http.ResponseWriter, r *http.Request) {
	list := h.cameras.List()
	out := make([]cameraView, len(list))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < min(connectWorkers, len(list)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				out[idx] = cameraView{
					Descriptor:  list[idx],
					IsConnected: h.cameras.IsConnected(r.Context(), list[idx].ID),
				}
			}
		}()
	}
	for idx := range list {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	respondJSON(w, http.StatusOK, map[string]any{"cameras": out})
}

// POST /api/cameras/{cameraID}/rotation
func (h *Handler) SetRotation(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	if _, ok := cameras.ParseID(cameraID); !ok {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	var req struct {
		Rotation string `json:"rotation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rot, err := frames.ParseRotation(req.Rotation)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.rotations.SetRotation(cameraID, rot); err != nil {
		log.Printf("[Settings] saving rotation for %s failed: %v", cameraID, err)
		respondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"camera_id": cameraID,
		"rotation":  string(rot),
	})
}

// GET /api/detection/state
func (h *Handler) DetectionState(w http.ResponseWriter, r *http.Request) {
	if h.detection == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"enabled": false,
			"cameras": []detection.Snapshot{},
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"enabled": true,
		"cameras": h.detection.Snapshots(),
	})
}

type evidenceView struct {
	detection.EvidenceEntry
	URL string `json:"url"`
}

// GET /api/detections/{cameraID}
func (h *Handler) ListDetections(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	if _, ok := cameras.ParseID(cameraID); !ok {
		respondError(w, http.StatusBadRequest, "invalid camera id")
		return
	}

	entries, err := h.evidence.List(cameraID)
	if err != nil {
		log.Printf("[Evidence] listing %s failed: %v", cameraID, err)
		respondError(w, http.StatusInternalServerError, "failed to list detections")
		return
	}
	out := make([]evidenceView, 0, len(entries))
	for _, e := range entries {
		out = append(out, evidenceView{EvidenceEntry: e, URL: "/detected-persons/image/" + e.Filename})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"camera_id": cameraID,
		"images":    out,
	})
}

// GET /detected-persons/image/{filename}
func (h *Handler) DetectionImage(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	p, err := h.evidence.Path(filename)
	if err != nil {
		if errors.Is(err, detection.ErrEvidenceNotFound) {
			respondError(w, http.StatusNotFound, "image not found")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid file name")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, p)
}
