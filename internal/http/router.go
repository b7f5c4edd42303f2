// Package http exposes health, metrics, session administration and the
// websocket job ingress over HTTP.
package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/TinoTau/lingua-1-sub000/internal/app"
	"github.com/TinoTau/lingua-1-sub000/internal/models"
	"github.com/TinoTau/lingua-1-sub000/internal/service/aggregator"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Handle("/metrics", promhttp.Handler())

	h := &sessionHandlers{app: application}
	r.Route("/v1/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/last-committed", h.lastCommitted)
		r.Post("/flush", h.flush)
		r.Delete("/", h.end)
		r.Get("/stream", h.stream)
	})

	return r
}

type sessionHandlers struct {
	app *app.Application
}

func (h *sessionHandlers) lastCommitted(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	index, err := strconv.ParseInt(r.URL.Query().Get("index"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("index must be an integer"))
		return
	}
	text, found, err := h.app.Handler.LastCommitted(sessionID, index)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.LastCommittedResponse{Text: text, Found: found})
}

func (h *sessionHandlers) flush(w http.ResponseWriter, r *http.Request) {
	text, err := h.app.Handler.Flush(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.EndSessionResponse{FlushedText: text})
}

func (h *sessionHandlers) end(w http.ResponseWriter, r *http.Request) {
	text, err := h.app.Handler.EndSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, models.EndSessionResponse{FlushedText: text})
}

func statusFor(err error) int {
	if errors.Is(err, aggregator.ErrEmptySessionID) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
