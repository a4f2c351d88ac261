package domain

import "time"

// User roles. Every account starts as RolePending and moves to jobseeker or
// recruiter exactly once, through the role-selection flow.
const (
	RolePending   = "pending"
	RoleJobseeker = "jobseeker"
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

// ProviderLink ties a local account to one external OAuth identity.
type ProviderLink struct {
	Provider   string `json:"provider" dynamodbav:"provider"`
	ProviderID string `json:"provider_id" dynamodbav:"provider_id"`
}

// User is the internal identity record. It is never serialized directly;
// handlers project it through View so password_hash and mfa_secret cannot leak.
type User struct {
	UserID        string         `dynamodbav:"user_id"`
	Name          string         `dynamodbav:"name"`
	Email         string         `dynamodbav:"email"`
	PasswordHash  string         `dynamodbav:"password_hash"`
	Role          string         `dynamodbav:"role"`
	EmailVerified bool           `dynamodbav:"email_verified"`
	MFAEnabled    bool           `dynamodbav:"mfa_enabled"`
	MFASecret     string         `dynamodbav:"mfa_secret"`
	Providers     []ProviderLink `dynamodbav:"providers"`
	// ProviderKeys mirrors Providers as "provider#id" strings so the users
	// table can be filtered with contains() on provider lookups.
	ProviderKeys []string  `dynamodbav:"provider_keys"`
	CreatedAt    time.Time `dynamodbav:"created_at"`
	UpdatedAt    time.Time `dynamodbav:"updated_at"`
}

// UserView is the externally visible projection of a User.
type UserView struct {
	UserID        string         `json:"id"`
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	Role          string         `json:"role"`
	EmailVerified bool           `json:"email_verified"`
	MFAEnabled    bool           `json:"mfa_enabled"`
	Providers     []ProviderLink `json:"providers,omitempty"`
	CreatedAt     time.Time      `json:"created"`
	UpdatedAt     time.Time      `json:"updated"`
}

// View projects the user into its public shape.
func (u *User) View() *UserView {
	if u == nil {
		return nil
	}
	return &UserView{
		UserID:        u.UserID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		EmailVerified: u.EmailVerified,
		MFAEnabled:    u.MFAEnabled,
		Providers:     u.Providers,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}
}

// HasProvider reports whether the exact (provider, providerId) pair is linked.
func (u *User) HasProvider(provider, providerID string) bool {
	for _, p := range u.Providers {
		if p.Provider == provider && p.ProviderID == providerID {
			return true
		}
	}
	return false
}

// ValidSelectableRole reports whether role is one a user may pick for
// themselves during role selection.
func ValidSelectableRole(role string) bool {
	return role == RoleJobseeker || role == RoleRecruiter
}
