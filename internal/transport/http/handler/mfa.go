package handler

import (
	"net/http"

	"github.com/kasb-api/internal/application/mfa"
	"github.com/kasb-api/internal/transport/http/middleware"
)

// MFAHandler handles TOTP enrollment and the second login step.
type MFAHandler struct {
	svc     mfa.Service
	cookies CookieConfig
}

func NewMFAHandler(svc mfa.Service, cookies CookieConfig) *MFAHandler {
	return &MFAHandler{svc: svc, cookies: cookies}
}

func (h *MFAHandler) Setup(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	res, err := h.svc.GenerateSetup(r.Context(), p.User.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *MFAHandler) Verify(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var body struct {
		Code   string `json:"code" validate:"required"`
		Secret string `json:"secret" validate:"required"`
	}
	if err := decodeValid(r, &body); err != nil {
		httpError(w, err)
		return
	}
	u, err := h.svc.VerifySetup(r.Context(), p.User.UserID, body.Code, body.Secret)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Message: "MFA enabled", User: u.View()})
}

func (h *MFAHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	u, err := h.svc.Revoke(r.Context(), p.User.UserID)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{Message: "MFA disabled", User: u.View()})
}

// VerifyLogin completes a password login that was deferred pending an MFA
// code. It is unauthenticated: the caller holds no tokens yet.
func (h *MFAHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email" validate:"required,email"`
		Code  string `json:"code" validate:"required"`
	}
	if err := decodeValid(r, &body); err != nil {
		httpError(w, err)
		return
	}
	res, err := h.svc.VerifyForLogin(r.Context(), body.Code, body.Email, r.UserAgent())
	if err != nil {
		httpError(w, err)
		return
	}
	setAuthCookies(w, h.cookies, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Message: "logged in",
		User:    res.User.View(),
	})
}
