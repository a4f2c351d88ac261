package handler

import (
	"net/http"
	"time"

	"github.com/kasb-api/internal/transport/http/strategy"
)

const (
	refreshTokenCookie = "refreshToken"
	// RefreshPath is the only path the refresh cookie is sent to.
	RefreshPath = "/v1/auth/refresh"
)

// CookieConfig carries the environment-dependent cookie attributes.
type CookieConfig struct {
	Production bool
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func (c CookieConfig) sameSite() http.SameSite {
	if c.Production {
		return http.SameSiteStrictMode
	}
	return http.SameSiteLaxMode
}

// setAuthCookies delivers the token pair: the access cookie on all paths, the
// refresh cookie scoped to the refresh endpoint only. An empty refresh token
// (non-rotating refresh) leaves the existing refresh cookie untouched.
func setAuthCookies(w http.ResponseWriter, cfg CookieConfig, accessToken, refreshToken string) {
	http.SetCookie(w, &http.Cookie{
		Name:     strategy.AccessTokenCookie,
		Value:    accessToken,
		Path:     "/",
		Expires:  time.Now().Add(cfg.AccessTTL),
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: cfg.sameSite(),
	})
	if refreshToken == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    refreshToken,
		Path:     RefreshPath,
		Expires:  time.Now().Add(cfg.RefreshTTL),
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: cfg.sameSite(),
	})
}

// clearAuthCookies forces full re-authentication client-side.
func clearAuthCookies(w http.ResponseWriter, cfg CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     strategy.AccessTokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: cfg.sameSite(),
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    "",
		Path:     RefreshPath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.Production,
		SameSite: cfg.sameSite(),
	})
}
