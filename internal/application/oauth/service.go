package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kasb-api/internal/application/auth"
	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/domain"
	oauthinfra "github.com/kasb-api/internal/infrastructure/oauth"
	"github.com/kasb-api/internal/pkg/id"
)

// Service links external OAuth identities to local accounts and completes the
// login. Tokens are issued on every successful callback.
type Service interface {
	AuthURL(provider, state string) (string, error)
	HandleCallback(ctx context.Context, provider, code, userAgent string) (*auth.LoginResult, error)
	Resolve(ctx context.Context, provider, providerID, email, name string) (*domain.User, error)
}

type userStore interface {
	Put(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByProvider(ctx context.Context, provider, providerID string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type sessionIssuer interface {
	IssueSession(ctx context.Context, u *domain.User, userAgent string) (*auth.LoginResult, error)
}

type profileFetcher interface {
	Name() string
	AuthCodeURL(state string) string
	FetchProfile(ctx context.Context, code string) (*oauthinfra.Profile, error)
}

const (
	fieldProviders    = "providers"
	fieldProviderKeys = "provider_keys"
)

type service struct {
	providers map[string]profileFetcher
	users     userStore
	issuer    sessionIssuer
}

func NewService(users userStore, issuer sessionIssuer, providers ...profileFetcher) Service {
	m := make(map[string]profileFetcher, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	return &service{providers: m, users: users, issuer: issuer}
}

func (s *service) AuthURL(provider, state string) (string, error) {
	p, ok := s.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q: %w", provider, domain.ErrNotFound)
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback exchanges the code, resolves the local account and issues a
// session immediately. MFA enrollment is not consulted on this path.
func (s *service) HandleCallback(ctx context.Context, provider, code, userAgent string) (*auth.LoginResult, error) {
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q: %w", provider, domain.ErrNotFound)
	}
	profile, err := p.FetchProfile(ctx, code)
	if err != nil {
		return nil, err
	}
	if profile.Email == "" {
		return nil, fmt.Errorf("provider %s did not supply an email: %w", provider, domain.ErrValidation)
	}
	u, err := s.Resolve(ctx, provider, profile.ProviderID, profile.Email, profile.Name)
	if err != nil {
		return nil, err
	}
	return s.issuer.IssueSession(ctx, u, userAgent)
}

// Resolve merges or creates the local account for an external identity:
// exact (provider, providerId) match first, then email fallback (the
// provider's asserted email is trusted as proof of ownership), then creation.
func (s *service) Resolve(ctx context.Context, provider, providerID, email, name string) (*domain.User, error) {
	if u, err := s.users.GetByProvider(ctx, provider, providerID); err == nil {
		return u, nil
	}

	if u, err := s.users.GetByEmail(ctx, email); err == nil {
		if !u.HasProvider(provider, providerID) {
			u.Providers = append(u.Providers, domain.ProviderLink{Provider: provider, ProviderID: providerID})
			u.ProviderKeys = append(u.ProviderKeys, providerKey(provider, providerID))
			updates := map[string]interface{}{
				fieldProviders:    u.Providers,
				fieldProviderKeys: u.ProviderKeys,
			}
			if err := s.users.Update(ctx, u.UserID, updates); err != nil {
				return nil, err
			}
		}
		return u, nil
	}

	// first sight of this identity: create an account the password path can
	// never reach (the random password is never disclosed)
	randomPassword, err := randomSecret()
	if err != nil {
		return nil, err
	}
	hash, err := user.HashPassword(randomPassword)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = "Unnamed"
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:        id.New(),
		Name:          name,
		Email:         strings.ToLower(email),
		PasswordHash:  hash,
		Role:          domain.RolePending,
		EmailVerified: true, // trusted from provider
		Providers:     []domain.ProviderLink{{Provider: provider, ProviderID: providerID}},
		ProviderKeys:  []string{providerKey(provider, providerID)},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func providerKey(provider, providerID string) string {
	return provider + "#" + providerID
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate random secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
