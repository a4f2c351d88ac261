package mfa

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"

	"github.com/kasb-api/internal/application/auth"
	"github.com/kasb-api/internal/domain"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// SetupResult is returned by GenerateSetup. When the account is already
// enrolled only Message is populated.
type SetupResult struct {
	Message    string `json:"message"`
	Secret     string `json:"secret,omitempty"`
	QRImageURL string `json:"qrImageUrl,omitempty"`
}

// Service drives the TOTP enrollment state machine:
// NotEnrolled -> PendingSecret -> Enrolled, plus Enrolled -> NotEnrolled via
// Revoke.
type Service interface {
	GenerateSetup(ctx context.Context, userID string) (*SetupResult, error)
	VerifySetup(ctx context.Context, userID, code, secret string) (*domain.User, error)
	Revoke(ctx context.Context, userID string) (*domain.User, error)
	VerifyForLogin(ctx context.Context, code, email, userAgent string) (*auth.LoginResult, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type sessionIssuer interface {
	IssueSession(ctx context.Context, u *domain.User, userAgent string) (*auth.LoginResult, error)
}

const (
	fieldMFAEnabled = "mfa_enabled"
	fieldMFASecret  = "mfa_secret"
)

type service struct {
	users  userStore
	issuer sessionIssuer
	// issuerName labels the otpauth URI shown in authenticator apps.
	issuerName string
}

func NewService(users userStore, issuer sessionIssuer, issuerName string) Service {
	return &service{users: users, issuer: issuer, issuerName: issuerName}
}

// GenerateSetup returns the enrollment secret and a scannable QR data URL.
// Calling it again before confirmation returns the same secret; calling it
// when already enrolled is an informational no-op.
func (s *service) GenerateSetup(ctx context.Context, userID string) (*SetupResult, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return &SetupResult{Message: "MFA already enabled"}, nil
	}
	secret := u.MFASecret
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      s.issuerName,
			AccountName: u.Email,
		})
		if err != nil {
			return nil, fmt.Errorf("generate TOTP secret: %w", err)
		}
		secret = key.Secret()
		if err := s.users.Update(ctx, u.UserID, map[string]interface{}{fieldMFASecret: secret}); err != nil {
			return nil, err
		}
	}
	uri := otpauthURL(s.issuerName, u.Email, secret)
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("render QR code: %w", err)
	}
	return &SetupResult{
		Message:    "Scan the QR code or use the setup key.",
		Secret:     secret,
		QRImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
	}, nil
}

// VerifySetup confirms enrollment by proving possession of the secret. An
// already-enrolled account is a no-op; an invalid code leaves state unchanged.
func (s *service) VerifySetup(ctx context.Context, userID, code, secret string) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.MFAEnabled {
		return u, nil
	}
	if !totp.Validate(code, secret) {
		return nil, fmt.Errorf("invalid MFA code: %w", domain.ErrValidation)
	}
	updates := map[string]interface{}{fieldMFAEnabled: true, fieldMFASecret: secret}
	if err := s.users.Update(ctx, u.UserID, updates); err != nil {
		return nil, err
	}
	u.MFAEnabled = true
	u.MFASecret = secret
	return u, nil
}

// Revoke disables MFA and clears the secret. Not enabled is a no-op.
func (s *service) Revoke(ctx context.Context, userID string) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !u.MFAEnabled {
		return u, nil
	}
	updates := map[string]interface{}{fieldMFAEnabled: false, fieldMFASecret: ""}
	if err := s.users.Update(ctx, u.UserID, updates); err != nil {
		return nil, err
	}
	u.MFAEnabled = false
	u.MFASecret = ""
	return u, nil
}

// VerifyForLogin completes a deferred password login. The caller is not yet
// authenticated, so the account is looked up by email.
func (s *service) VerifyForLogin(ctx context.Context, code, email, userAgent string) (*auth.LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	if !u.MFAEnabled || u.MFASecret == "" {
		return nil, fmt.Errorf("MFA not enabled for this user: %w", domain.ErrAuthorization)
	}
	if !totp.Validate(code, u.MFASecret) {
		return nil, fmt.Errorf("invalid MFA code: %w", domain.ErrValidation)
	}
	return s.issuer.IssueSession(ctx, u, userAgent)
}

func otpauthURL(issuer, account, secret string) string {
	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	return fmt.Sprintf("otpauth://totp/%s:%s?%s",
		url.PathEscape(issuer), url.PathEscape(account), v.Encode())
}
