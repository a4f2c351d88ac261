package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/domain"
	jwtinfra "github.com/kasb-api/internal/infrastructure/jwt"
	"github.com/kasb-api/internal/pkg/id"
)

const (
	emailCodeTTL  = 45 * time.Minute
	resetCodeTTL  = time.Hour
	resetWindow   = 3 * time.Minute
	maxResetCodes = 2
)

type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	UserAgent string `json:"-"`
}

// LoginResult carries either a freshly issued token pair or the MFA deferral
// flag — never both.
type LoginResult struct {
	User         *domain.User
	Session      *domain.Session
	AccessToken  string
	RefreshToken string
	MFARequired  bool
}

type Service interface {
	Register(ctx context.Context, req user.RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (accessToken, newRefreshToken string, err error)
	VerifyEmail(ctx context.Context, code string) (*domain.User, error)
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, code, newPassword string) error
	Logout(ctx context.Context, sessionID string) error
	UpdateRole(ctx context.Context, userID, role, userAgent string) (*LoginResult, error)
	IssueSession(ctx context.Context, u *domain.User, userAgent string) (*LoginResult, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	ListSessions(ctx context.Context, userID string) ([]domain.Session, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteAllForUser(ctx context.Context, userID string) error
	ListByUser(ctx context.Context, userID string) ([]domain.Session, error)
	Extend(ctx context.Context, sessionID string, newExpiry int64) error
}

type verificationStore interface {
	Put(ctx context.Context, v *domain.VerificationCode) error
	GetByCode(ctx context.Context, code string) (*domain.VerificationCode, error)
	Delete(ctx context.Context, code string) error
	CountRecent(ctx context.Context, userID, codeType string, since int64) (int, error)
}

type tokenProvider interface {
	SignAccess(userID, sessionID, role string) (string, error)
	SignRefresh(sessionID string) (string, error)
	VerifyRefresh(token string) (*jwtinfra.RefreshClaims, error)
	RefreshTTL() time.Duration
}

type mailer interface {
	SendEmail(to, subject, body string) error
}

type service struct {
	users             user.Service
	sessionRepo       sessionStore
	verificationRepo  verificationStore
	tokens            tokenProvider
	mailer            mailer
	frontendURL       string
	rotationThreshold time.Duration
}

type ServiceDeps struct {
	Users             user.Service
	SessionRepo       sessionStore
	VerificationRepo  verificationStore
	Tokens            tokenProvider
	Mailer            mailer
	FrontendURL       string
	RotationThreshold time.Duration
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:             deps.Users,
		sessionRepo:       deps.SessionRepo,
		verificationRepo:  deps.VerificationRepo,
		tokens:            deps.Tokens,
		mailer:            deps.Mailer,
		frontendURL:       deps.FrontendURL,
		rotationThreshold: deps.RotationThreshold,
	}
}

func (s *service) Register(ctx context.Context, req user.RegisterRequest) (*domain.User, error) {
	u, err := s.users.Register(ctx, req)
	if err != nil {
		return nil, err
	}
	code, err := newCode()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	v := &domain.VerificationCode{
		Code:      code,
		UserID:    u.UserID,
		Type:      domain.VerificationEmail,
		CreatedAt: now.Unix(),
		ExpiresAt: now.Add(emailCodeTTL).Unix(),
	}
	if err := s.verificationRepo.Put(ctx, v); err != nil {
		return nil, err
	}
	link := fmt.Sprintf("%s/auth/confirm-account?code=%s", s.frontendURL, code)
	if err := s.mailer.SendEmail(u.Email, "Confirm your email", "Confirm your account: "+link); err != nil {
		return nil, fmt.Errorf("send verification email: %w", err)
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		// identical message for unknown email and wrong password
		return nil, fmt.Errorf("invalid email or password provided: %w", domain.ErrAuthentication)
	}
	if !s.users.VerifyPassword(u, req.Password) {
		return nil, fmt.Errorf("invalid email or password provided: %w", domain.ErrAuthentication)
	}
	if u.MFAEnabled {
		slog.Info("mfa required, deferring token issuance", "user_id", u.UserID)
		return &LoginResult{MFARequired: true}, nil
	}
	return s.IssueSession(ctx, u, req.UserAgent)
}

// IssueSession creates a new session and mints the token pair bound to it.
// It is the shared tail of every flow that completes an authentication.
func (s *service) IssueSession(ctx context.Context, u *domain.User, userAgent string) (*LoginResult, error) {
	now := time.Now().UTC()
	sess := &domain.Session{
		SessionID: id.New(),
		UserID:    u.UserID,
		UserAgent: userAgent,
		CreatedAt: now,
		ExpiresAt: now.Add(s.tokens.RefreshTTL()).Unix(),
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, err
	}
	access, err := s.tokens.SignAccess(u.UserID, sess.SessionID, u.Role)
	if err != nil {
		return nil, err
	}
	refresh, err := s.tokens.SignRefresh(sess.SessionID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:         u,
		Session:      sess,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// Refresh implements sliding-window rotation: the refresh token (and session
// expiry) is only re-issued once the session's remaining validity drops below
// the rotation threshold; otherwise only a new access token is minted and
// newRefreshToken is empty.
func (s *service) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", "", err
	}
	sess, err := s.sessionRepo.Get(ctx, claims.SessionID)
	if err != nil {
		return "", "", err
	}
	now := time.Now()
	if sess.Expired(now) {
		return "", "", fmt.Errorf("session expired: %w", domain.ErrToken)
	}

	newRefresh := ""
	if time.Unix(sess.ExpiresAt, 0).Sub(now) <= s.rotationThreshold {
		newExpiry := now.Add(s.tokens.RefreshTTL()).Unix()
		if err := s.sessionRepo.Extend(ctx, sess.SessionID, newExpiry); err != nil {
			return "", "", err
		}
		if newRefresh, err = s.tokens.SignRefresh(sess.SessionID); err != nil {
			return "", "", err
		}
	}

	// re-read the user so the access token carries the current role
	u, err := s.users.Get(ctx, sess.UserID)
	if err != nil {
		return "", "", err
	}
	access, err := s.tokens.SignAccess(u.UserID, sess.SessionID, u.Role)
	if err != nil {
		return "", "", err
	}
	return access, newRefresh, nil
}

func (s *service) VerifyEmail(ctx context.Context, code string) (*domain.User, error) {
	v, err := s.verificationRepo.GetByCode(ctx, code)
	if err != nil || v.Type != domain.VerificationEmail || v.ExpiresAt <= time.Now().Unix() {
		return nil, fmt.Errorf("invalid or expired verification code: %w", domain.ErrNotFound)
	}
	if err := s.users.MarkEmailVerified(ctx, v.UserID); err != nil {
		return nil, err
	}
	if err := s.verificationRepo.Delete(ctx, code); err != nil {
		slog.Warn("failed to delete consumed verification code", "user_id", v.UserID, "err", err)
	}
	return s.users.Get(ctx, v.UserID)
}

func (s *service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	since := time.Now().Add(-resetWindow).Unix()
	count, err := s.verificationRepo.CountRecent(ctx, u.UserID, domain.VerificationPasswordReset, since)
	if err != nil {
		return err
	}
	if count >= maxResetCodes {
		return fmt.Errorf("too many requests, try again later: %w", domain.ErrRateLimit)
	}
	code, err := newCode()
	if err != nil {
		return err
	}
	now := time.Now()
	expiresAt := now.Add(resetCodeTTL)
	v := &domain.VerificationCode{
		Code:      code,
		UserID:    u.UserID,
		Type:      domain.VerificationPasswordReset,
		CreatedAt: now.Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	if err := s.verificationRepo.Put(ctx, v); err != nil {
		return err
	}
	link := fmt.Sprintf("%s/auth/reset-password?code=%s&exp=%d", s.frontendURL, code, expiresAt.UnixMilli())
	return s.mailer.SendEmail(u.Email, "Reset your password", "Reset your password: "+link)
}

func (s *service) ResetPassword(ctx context.Context, code, newPassword string) error {
	v, err := s.verificationRepo.GetByCode(ctx, code)
	if err != nil || v.Type != domain.VerificationPasswordReset || v.ExpiresAt <= time.Now().Unix() {
		return fmt.Errorf("invalid or expired verification code: %w", domain.ErrNotFound)
	}
	if err := s.users.ResetPassword(ctx, v.UserID, newPassword); err != nil {
		return err
	}
	if err := s.verificationRepo.Delete(ctx, code); err != nil {
		slog.Warn("failed to delete consumed reset code", "user_id", v.UserID, "err", err)
	}
	// a password reset forces re-authentication everywhere
	return s.sessionRepo.DeleteAllForUser(ctx, v.UserID)
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Delete(ctx, sessionID)
}

// UpdateRole is the only place the pending role transitions away. All prior
// sessions are revoked and a fresh pair bound to the new role is issued.
func (s *service) UpdateRole(ctx context.Context, userID, role, userAgent string) (*LoginResult, error) {
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	if err := s.sessionRepo.DeleteAllForUser(ctx, userID); err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.IssueSession(ctx, u, userAgent)
}

func (s *service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Expired(time.Now()) {
		return nil, fmt.Errorf("session expired: %w", domain.ErrNotFound)
	}
	return sess, nil
}

func (s *service) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.sessionRepo.ListByUser(ctx, userID)
}

// DeleteSession removes one of the caller's own sessions.
func (s *service) DeleteSession(ctx context.Context, userID, sessionID string) error {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.UserID != userID {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return s.sessionRepo.Delete(ctx, sessionID)
}

// newCode generates a cryptographically random 64-character hex code.
func newCode() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return hex.EncodeToString(b), nil
}
