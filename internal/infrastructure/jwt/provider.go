package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/kasb-api/internal/config"
	"github.com/kasb-api/internal/domain"
)

// Token kinds are kept apart by separate signing secrets and audiences, so an
// access token can never be replayed as a refresh token or vice versa.
const (
	audienceAccess  = "kasb.access"
	audienceRefresh = "kasb.refresh"
)

// AccessClaims is the payload of an access token.
type AccessClaims struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims carries only the session id. Role changes cannot be smuggled
// through a stale refresh token because the role is re-read at refresh time.
type RefreshClaims struct {
	SessionID string `json:"session_id"`
	jwt.RegisteredClaims
}

// Provider signs and verifies HS256 access and refresh tokens.
type Provider struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewProvider(cfg *config.Config) *Provider {
	return &Provider{
		accessSecret:  []byte(cfg.JWTAccessSecret),
		refreshSecret: []byte(cfg.JWTRefreshSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
	}
}

// AccessTTL returns the configured access token lifetime.
func (p *Provider) AccessTTL() time.Duration { return p.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (p *Provider) RefreshTTL() time.Duration { return p.refreshTTL }

func (p *Provider) SignAccess(userID, sessionID, role string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID:    userID,
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audienceAccess},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.accessSecret)
}

func (p *Provider) SignRefresh(sessionID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audienceRefresh},
			ExpiresAt: jwt.NewNumericDate(now.Add(p.refreshTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.refreshSecret)
}

func (p *Provider) VerifyAccess(tokenStr string) (*AccessClaims, error) {
	var claims AccessClaims
	if err := p.verify(tokenStr, &claims, p.accessSecret, audienceAccess); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (p *Provider) VerifyRefresh(tokenStr string) (*RefreshClaims, error) {
	var claims RefreshClaims
	if err := p.verify(tokenStr, &claims, p.refreshSecret, audienceRefresh); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (p *Provider) verify(tokenStr string, claims jwt.Claims, secret []byte, audience string) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, jwt.WithAudience(audience))
	if err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrToken)
	}
	if !token.Valid {
		return fmt.Errorf("invalid token claims: %w", domain.ErrToken)
	}
	return nil
}
