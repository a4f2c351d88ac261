package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kasb-api/internal/config"
	"github.com/kasb-api/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// Provider names accepted by the callback routes.
const (
	ProviderGoogle   = "google"
	ProviderLinkedIn = "linkedin"
)

// Profile holds the identity claims a provider asserts about the user.
type Profile struct {
	ProviderID string
	Email      string
	Name       string
}

// Provider is one configured OAuth authorization-code client.
type Provider struct {
	name        string
	config      *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogle builds the Google sign-in client.
func NewGoogle(cfg *config.Config) *Provider {
	return &Provider{
		name: ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.OAuthRedirectBase + "/v1/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoints.Google,
		},
		userInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

// NewLinkedIn builds the LinkedIn sign-in client (OpenID Connect userinfo).
func NewLinkedIn(cfg *config.Config) *Provider {
	return &Provider{
		name: ProviderLinkedIn,
		config: &oauth2.Config{
			ClientID:     cfg.LinkedInClientID,
			ClientSecret: cfg.LinkedInClientSecret,
			RedirectURL:  cfg.OAuthRedirectBase + "/v1/auth/linkedin/callback",
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     endpoints.LinkedIn,
		},
		userInfoURL: "https://api.linkedin.com/v2/userinfo",
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Provider) Name() string { return p.name }

// AuthCodeURL returns the provider's consent page URL for the given state.
func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// FetchProfile exchanges the authorization code and reads the userinfo
// endpoint. Both providers return OIDC-shaped claims; google additionally
// exposes the legacy "id" field.
func (p *Provider) FetchProfile(ctx context.Context, code string) (*Profile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%s code exchange failed: %w", p.name, domain.ErrAuthentication)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s userinfo request: %w", p.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s userinfo returned %d: %w", p.name, resp.StatusCode, domain.ErrAuthentication)
	}

	var claims struct {
		Sub        string `json:"sub"`
		ID         string `json:"id"`
		Email      string `json:"email"`
		Name       string `json:"name"`
		GivenName  string `json:"given_name"`
		FamilyName string `json:"family_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("decode %s userinfo: %w", p.name, err)
	}

	providerID := claims.Sub
	if providerID == "" {
		providerID = claims.ID
	}
	name := claims.Name
	if name == "" {
		name = claims.GivenName + " " + claims.FamilyName
	}
	return &Profile{ProviderID: providerID, Email: claims.Email, Name: name}, nil
}
