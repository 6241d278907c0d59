package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/telnet2/eventrouter/internal/event"
	"github.com/telnet2/eventrouter/internal/router"
)

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
	Uptime string `json:"uptime"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Uptime: time.Since(s.started).Round(time.Second).String()}
	src := s.current()
	if src == nil {
		resp.Status = "idle"
		s.writeJSON(w, r, http.StatusOK, resp)
		return
	}
	state := src.Stats().State
	resp.State = state.String()
	if state != router.Running {
		resp.Status = "closing"
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	src := s.current()
	if src == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "no router attached")
		return
	}
	s.writeJSON(w, r, http.StatusOK, src.Stats())
}

func (s *Server) listTypes(w http.ResponseWriter, r *http.Request) {
	src := s.current()
	if src == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "no router attached")
		return
	}
	s.writeJSON(w, r, http.StatusOK, src.TypeInfos())
}

func (s *Server) getType(w http.ResponseWriter, r *http.Request) {
	src := s.current()
	if src == nil {
		s.writeError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "no router attached")
		return
	}
	name := chi.URLParam(r, "type")
	sc, err := src.ScopeOf(name)
	if errors.Is(err, event.ErrNotRegistered) {
		s.writeError(w, r, http.StatusNotFound, ErrCodeNotFound, err.Error())
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	s.writeJSON(w, r, http.StatusOK, router.TypeInfo{Type: name, Scope: sc, Subscribers: src.SubscriberCount(name)})
}
