package middleware

import (
	"context"
	"net/http"

	"github.com/kasb-api/internal/domain"
	jwtinfra "github.com/kasb-api/internal/infrastructure/jwt"
	"github.com/kasb-api/internal/transport/http/strategy"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller: the verified claims plus the fresh
// User record (one read per request confirms the user still exists and picks
// up the current role).
type Principal struct {
	Claims *jwtinfra.AccessClaims
	User   *domain.User
}

type userGetter interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type accessVerifier interface {
	VerifyAccess(token string) (*jwtinfra.AccessClaims, error)
}

// Auth validates the access token via the bearer strategy and injects the
// Principal into the request context.
func Auth(tokens accessVerifier, users userGetter) func(http.Handler) http.Handler {
	bearer := strategy.BearerToken{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cand, err := bearer.Extract(r)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "missing or invalid access token")
				return
			}
			claims, err := tokens.VerifyAccess(cand.Token)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			u, err := users.Get(r.Context(), claims.UserID)
			if err != nil {
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			ctx := context.WithValue(r.Context(), principalKey, &Principal{Claims: claims, User: u})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext extracts the authenticated principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey).(*Principal)
	return p, ok
}
