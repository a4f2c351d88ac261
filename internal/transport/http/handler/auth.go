package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kasb-api/internal/application/auth"
	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/pkg/validate"
	"github.com/kasb-api/internal/transport/http/middleware"
	"github.com/kasb-api/internal/transport/http/strategy"
)

// AuthHandler handles credential registration and the session lifecycle.
type AuthHandler struct {
	svc     auth.Service
	cookies CookieConfig
}

func NewAuthHandler(svc auth.Service, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{svc: svc, cookies: cookies}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req user.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.svc.Register(r.Context(), req)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthEnvelope{
		Message: "registered, check your inbox to verify your email",
		User:    u.View(),
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	cand, err := strategy.Password{}.Extract(r)
	if err != nil {
		httpError(w, err)
		return
	}
	res, err := h.svc.Login(r.Context(), auth.LoginRequest{
		Email:     cand.Email,
		Password:  cand.Password,
		UserAgent: cand.UserAgent,
	})
	if err != nil {
		httpError(w, err)
		return
	}
	if res.MFARequired {
		writeJSON(w, http.StatusOK, AuthEnvelope{
			Message:     "MFA code required",
			MFARequired: true,
		})
		return
	}
	setAuthCookies(w, h.cookies, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Message: "logged in",
		User:    res.User.View(),
	})
}

// Refresh reads the path-scoped refresh cookie and mints a fresh access
// token. A failed refresh clears both cookies so the client falls back to a
// full login.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshTokenCookie)
	if err != nil || c.Value == "" {
		clearAuthCookies(w, h.cookies)
		writeError(w, http.StatusUnauthorized, "missing refresh token")
		return
	}
	access, newRefresh, err := h.svc.Refresh(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, domain.ErrToken) {
			clearAuthCookies(w, h.cookies)
		}
		httpError(w, err)
		return
	}
	setAuthCookies(w, h.cookies, access, newRefresh)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "token refreshed"})
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code" validate:"required"`
	}
	if err := decodeValid(r, &body); err != nil {
		httpError(w, err)
		return
	}
	u, err := h.svc.VerifyEmail(r.Context(), body.Code)
	if err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Message: "email verified",
		User:    u.View(),
	})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email" validate:"required,email"`
	}
	if err := decodeValid(r, &body); err != nil {
		httpError(w, err)
		return
	}
	if err := h.svc.ForgotPassword(r.Context(), body.Email); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password reset email sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code     string `json:"code" validate:"required"`
		Password string `json:"password" validate:"required,min=8,max=72"`
	}
	if err := decodeValid(r, &body); err != nil {
		httpError(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), body.Code, body.Password); err != nil {
		httpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated, log in again"})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.svc.Logout(r.Context(), p.Claims.SessionID); err != nil {
		httpError(w, err)
		return
	}
	clearAuthCookies(w, h.cookies)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}

// UpdateRole transitions the caller out of the pending role. Every prior
// session is revoked, so a fresh token pair is set on the response.
func (h *AuthHandler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var body struct {
		Role string `json:"role" validate:"required"`
	}
	if err := decodeValid(r, &body); err != nil {
		httpError(w, err)
		return
	}
	res, err := h.svc.UpdateRole(r.Context(), p.User.UserID, body.Role, r.UserAgent())
	if err != nil {
		httpError(w, err)
		return
	}
	setAuthCookies(w, h.cookies, res.AccessToken, res.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		Message: "role updated",
		User:    res.User.View(),
	})
}

// decodeValid decodes a JSON body and runs struct validation, mapping both
// failure modes onto ErrValidation.
func decodeValid(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", domain.ErrValidation)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return nil
}
