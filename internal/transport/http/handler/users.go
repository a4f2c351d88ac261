package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/transport/http/middleware"
)

// UserHandler exposes user profiles: the caller's own, plus admin lookup.
type UserHandler struct {
	svc user.Service
}

func NewUserHandler(svc user.Service) *UserHandler { return &UserHandler{svc: svc} }

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{User: p.User.View()})
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{User: u.View()})
}
