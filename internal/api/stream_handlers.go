package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/technosupport/camwatch/internal/metrics"
)

// GET /stream/{cameraID}
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	user := userFrom(r)

	sess, err := h.proxy.Open(r.Context(), cameraID, user)
	if err != nil {
		log.Printf("[Proxy] %s for %s: %v", cameraID, user, err)
		metrics.RecordPlaceholder("stream")
		writePlaceholder(w)
		return
	}

	w.Header().Set("Content-Type", sess.ContentType())
	setNoCache(w)
	w.WriteHeader(http.StatusOK)
	if err := sess.Serve(r.Context(), w); err != nil {
		log.Printf("[Proxy] stream %s ended with error: %v", sess.ConnectionID(), err)
	}
}

// GET /snapshot/{cameraID}
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	img, err := h.proxy.Snapshot(r.Context(), cameraID)
	if err != nil {
		metrics.RecordPlaceholder("snapshot")
		writePlaceholder(w)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	setNoCache(w)
	w.WriteHeader(http.StatusOK)
	w.Write(img)
}

// POST /stop-stream/{cameraID}
func (h *Handler) StopStream(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	user := userFrom(r)

	closed := h.proxy.Connections().StopByCameraAndUser(cameraID, user)
	log.Printf("[Proxy] stream for %s stopped by user %s (%d closed)", cameraID, user, closed)
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "stream stopped",
		"closed": closed,
	})
}

// GET /check-camera/{cameraID}
func (h *Handler) CheckCamera(w http.ResponseWriter, r *http.Request) {
	cameraID := chi.URLParam(r, "cameraID")
	respondJSON(w, http.StatusOK, map[string]bool{
		"connected": h.cameras.IsConnected(r.Context(), cameraID),
	})
}
