package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kasb-api/internal/application/auth"
	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/transport/http/middleware"
)

// SessionHandler exposes the caller's own sessions.
type SessionHandler struct {
	svc auth.Service
}

func NewSessionHandler(svc auth.Service) *SessionHandler {
	return &SessionHandler{svc: svc}
}

// Current returns the session backing the presented access token.
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	sess, err := h.svc.GetSession(r.Context(), p.Claims.SessionID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SessionEnvelope{
		Session: sess.View(),
		User:    p.User.View(),
	})
}

// List returns every live session belonging to the caller.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	sessions, err := h.svc.ListSessions(r.Context(), p.User.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	views := make([]domain.SessionView, 0, len(sessions))
	for i := range sessions {
		views = append(views, *sessions[i].View())
	}
	writeJSON(w, http.StatusOK, SessionListEnvelope{Sessions: views})
}

// Delete revokes one of the caller's sessions by id.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.svc.DeleteSession(r.Context(), p.User.UserID, chi.URLParam(r, "id")); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "session revoked"})
}
