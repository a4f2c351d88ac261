package strategy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/pkg/validate"
)

// Candidate is the raw credential material one strategy extracted from a
// request. Which fields are populated depends on the strategy.
type Candidate struct {
	// password
	Email    string
	Password string
	// bearer
	Token string
	// oauth
	Provider string
	Code     string
	State    string

	UserAgent string
}

// IdentityStrategy extracts credential material from an incoming request.
// Strategies are plain values dispatched explicitly by the router and
// middleware; there is no global registry.
type IdentityStrategy interface {
	Extract(r *http.Request) (*Candidate, error)
}

// Password reads an email/password pair from the JSON body.
type Password struct{}

func (Password) Extract(r *http.Request) (*Candidate, error) {
	var body struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", domain.ErrValidation)
	}
	if err := validate.Struct(&body); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	return &Candidate{
		Email:     body.Email,
		Password:  body.Password,
		UserAgent: r.UserAgent(),
	}, nil
}

// AccessTokenCookie is the cookie the access token travels in.
const AccessTokenCookie = "accessToken"

// BearerToken reads the access token from the accessToken cookie, falling
// back to the Authorization header for non-browser clients.
type BearerToken struct{}

func (BearerToken) Extract(r *http.Request) (*Candidate, error) {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return &Candidate{Token: c.Value, UserAgent: r.UserAgent()}, nil
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return &Candidate{Token: strings.TrimPrefix(h, "Bearer "), UserAgent: r.UserAgent()}, nil
	}
	return nil, fmt.Errorf("missing access token: %w", domain.ErrAuthentication)
}

// OAuthProvider reads the authorization code and state from a provider
// callback.
type OAuthProvider struct {
	Name string
}

func (p OAuthProvider) Extract(r *http.Request) (*Candidate, error) {
	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, fmt.Errorf("missing authorization code: %w", domain.ErrValidation)
	}
	return &Candidate{
		Provider:  p.Name,
		Code:      code,
		State:     r.URL.Query().Get("state"),
		UserAgent: r.UserAgent(),
	}, nil
}
