package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"

	"github.com/technosupport/camwatch/internal/middleware"
)

func TestNewRouter_SingleRequestID(t *testing.T) {
	var logged, chiID string
	r := newRouter(func(r chi.Router) {
		r.Get("/whoami", func(w http.ResponseWriter, req *http.Request) {
			logged = middleware.RequestIDFrom(req.Context())
			chiID = chimiddleware.GetReqID(req.Context())
		})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/whoami", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, logged)
	assert.Empty(t, chiID)
	assert.Equal(t, []string{logged}, w.Header().Values(middleware.RequestIDHeader))
}

func TestNewRouter_Healthz(t *testing.T) {
	w := httptest.NewRecorder()
	newRouter().ServeHTTP(w, httptest.NewRequest("GET", "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}
