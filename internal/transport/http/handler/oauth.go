package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kasb-api/internal/application/oauth"
	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/transport/http/strategy"
)

const oauthStateCookie = "oauthState"

// OAuthHandler drives the browser redirect flow. Outcomes land on the
// frontend: /auth/success with cookies set, or /auth/error with a reason.
type OAuthHandler struct {
	svc         oauth.Service
	cookies     CookieConfig
	frontendURL string
}

func NewOAuthHandler(svc oauth.Service, cookies CookieConfig, frontendURL string) *OAuthHandler {
	return &OAuthHandler{svc: svc, cookies: cookies, frontendURL: frontendURL}
}

// Start redirects to the provider's consent page with a fresh state value
// pinned in a short-lived cookie.
func (h *OAuthHandler) Start(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	state, err := randomState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	authURL, err := h.svc.AuthURL(provider, state)
	if err != nil {
		httpError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Secure:   h.cookies.Production,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, authURL, http.StatusFound)
}

// Callback finishes the flow. Failures never surface JSON to the browser;
// they redirect to the frontend error page instead.
func (h *OAuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	cand, err := (strategy.OAuthProvider{Name: provider}).Extract(r)
	if err != nil {
		h.redirectError(w, r, "invalid_callback")
		return
	}
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || cand.State == "" || stateCookie.Value != cand.State {
		h.redirectError(w, r, "state_mismatch")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	res, err := h.svc.HandleCallback(r.Context(), cand.Provider, cand.Code, cand.UserAgent)
	if err != nil {
		reason := "provider_error"
		if errors.Is(err, domain.ErrValidation) {
			reason = "no_email"
		}
		h.redirectError(w, r, reason)
		return
	}
	setAuthCookies(w, h.cookies, res.AccessToken, res.RefreshToken)
	http.Redirect(w, r, h.frontendURL+"/auth/success", http.StatusFound)
}

func (h *OAuthHandler) redirectError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, h.frontendURL+"/auth/error?reason="+url.QueryEscape(reason), http.StatusFound)
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
