package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kasb-api/internal/domain"
	jwtinfra "github.com/kasb-api/internal/infrastructure/jwt"
)

func requestWithRole(role string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	p := &Principal{
		Claims: &jwtinfra.AccessClaims{UserID: "u1", SessionID: "s1", Role: role},
		User:   &domain.User{UserID: "u1", Role: role},
	}
	return req.WithContext(context.WithValue(req.Context(), principalKey, p))
}

func TestRequireRole_Allowed(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestWithRole(domain.RoleAdmin))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireRole_AnyOfSeveral(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleRecruiter, domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestWithRole(domain.RoleRecruiter))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRequireRole_Forbidden(t *testing.T) {
	rr := httptest.NewRecorder()
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, requestWithRole(domain.RolePending))
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRequireRole_NoPrincipal(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	RequireRole(domain.RoleAdmin)(http.HandlerFunc(okHandler)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
