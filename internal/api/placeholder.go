package api

import "net/http"

const placeholderSVG = `<svg width="320" height="240" xmlns="http://www.w3.org/2000/svg">
  <rect width="320" height="240" fill="#f0f0f0"/>
  <rect x="10" y="10" width="300" height="220" rx="8" fill="#e0e0e0" stroke="#ccc" stroke-width="2"/>
  <circle cx="160" cy="100" r="50" fill="#d0d0d0" stroke="#bbb" stroke-width="2"/>
  <circle cx="160" cy="100" r="25" fill="#c0c0c0" stroke="#aaa" stroke-width="2"/>
  <rect x="80" y="160" width="160" height="30" rx="5" fill="#d0d0d0" stroke="#bbb" stroke-width="2"/>
  <text x="160" y="180" font-family="Arial" font-size="16" text-anchor="middle" fill="#666">Camera Offline</text>
</svg>`

// GET /placeholder
func (h *Handler) Placeholder(w http.ResponseWriter, r *http.Request) {
	writePlaceholder(w)
}

// writePlaceholder answers 200 with the offline image. Clients swap it in
// for any camera they cannot watch.
func writePlaceholder(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/svg+xml")
	setNoCache(w)
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(placeholderSVG))
}
