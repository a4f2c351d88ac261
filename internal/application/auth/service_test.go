package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/domain"
	jwtinfra "github.com/kasb-api/internal/infrastructure/jwt"
)

// --- mocks ---

type mockUserService struct{ mock.Mock }

func (m *mockUserService) Register(ctx context.Context, req user.RegisterRequest) (*domain.User, error) {
	args := m.Called(ctx, req)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserService) VerifyPassword(u *domain.User, plaintext string) bool {
	return m.Called(u, plaintext).Bool(0)
}
func (m *mockUserService) ResetPassword(ctx context.Context, userID, newPlaintext string) error {
	return m.Called(ctx, userID, newPlaintext).Error(0)
}
func (m *mockUserService) MarkEmailVerified(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockUserService) UpdateRole(ctx context.Context, userID, role string) error {
	return m.Called(ctx, userID, role).Error(0)
}
func (m *mockUserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSessionStore struct{ mock.Mock }

func (m *mockSessionStore) Put(ctx context.Context, s *domain.Session) error {
	return m.Called(ctx, s).Error(0)
}
func (m *mockSessionStore) Get(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) Delete(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}
func (m *mockSessionStore) DeleteAllForUser(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}
func (m *mockSessionStore) ListByUser(ctx context.Context, userID string) ([]domain.Session, error) {
	args := m.Called(ctx, userID)
	if s, _ := args.Get(0).([]domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionStore) Extend(ctx context.Context, sessionID string, newExpiry int64) error {
	return m.Called(ctx, sessionID, newExpiry).Error(0)
}

type mockVerificationStore struct{ mock.Mock }

func (m *mockVerificationStore) Put(ctx context.Context, v *domain.VerificationCode) error {
	return m.Called(ctx, v).Error(0)
}
func (m *mockVerificationStore) GetByCode(ctx context.Context, code string) (*domain.VerificationCode, error) {
	args := m.Called(ctx, code)
	if v, _ := args.Get(0).(*domain.VerificationCode); v != nil {
		return v, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockVerificationStore) Delete(ctx context.Context, code string) error {
	return m.Called(ctx, code).Error(0)
}
func (m *mockVerificationStore) CountRecent(ctx context.Context, userID, codeType string, since int64) (int, error) {
	args := m.Called(ctx, userID, codeType, since)
	return args.Int(0), args.Error(1)
}

type mockTokenProvider struct{ mock.Mock }

func (m *mockTokenProvider) SignAccess(userID, sessionID, role string) (string, error) {
	args := m.Called(userID, sessionID, role)
	return args.String(0), args.Error(1)
}
func (m *mockTokenProvider) SignRefresh(sessionID string) (string, error) {
	args := m.Called(sessionID)
	return args.String(0), args.Error(1)
}
func (m *mockTokenProvider) VerifyRefresh(token string) (*jwtinfra.RefreshClaims, error) {
	args := m.Called(token)
	if c, _ := args.Get(0).(*jwtinfra.RefreshClaims); c != nil {
		return c, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockTokenProvider) RefreshTTL() time.Duration {
	return m.Called().Get(0).(time.Duration)
}

type mockMailer struct{ mock.Mock }

func (m *mockMailer) SendEmail(to, subject, body string) error {
	return m.Called(to, subject, body).Error(0)
}

// --- builder ---

type deps struct {
	users    *mockUserService
	sessions *mockSessionStore
	codes    *mockVerificationStore
	tokens   *mockTokenProvider
	mail     *mockMailer
}

func newTestService() (Service, *deps) {
	d := &deps{
		users:    &mockUserService{},
		sessions: &mockSessionStore{},
		codes:    &mockVerificationStore{},
		tokens:   &mockTokenProvider{},
		mail:     &mockMailer{},
	}
	svc := NewService(ServiceDeps{
		Users:             d.users,
		SessionRepo:       d.sessions,
		VerificationRepo:  d.codes,
		Tokens:            d.tokens,
		Mailer:            d.mail,
		FrontendURL:       "http://front.test",
		RotationThreshold: 24 * time.Hour,
	})
	return svc, d
}

func activeUser() *domain.User {
	return &domain.User{UserID: "u1", Name: "Dana", Email: "dana@x.com", Role: domain.RolePending}
}

// --- Register ---

func TestRegister_SendsVerificationEmail(t *testing.T) {
	svc, d := newTestService()
	u := activeUser()
	d.users.On("Register", mock.Anything, mock.Anything).Return(u, nil)
	d.codes.On("Put", mock.Anything, mock.MatchedBy(func(v *domain.VerificationCode) bool {
		return v.UserID == "u1" && v.Type == domain.VerificationEmail && v.ExpiresAt > time.Now().Unix()
	})).Return(nil)
	d.mail.On("SendEmail", "dana@x.com", mock.Anything, mock.Anything).Return(nil)

	got, err := svc.Register(context.Background(), user.RegisterRequest{
		Name: "Dana", Email: "dana@x.com", Password: "secret123", ConfirmPassword: "secret123",
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	d.codes.AssertExpectations(t)
	d.mail.AssertExpectations(t)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, d := newTestService()
	d.users.On("Register", mock.Anything, mock.Anything).Return(nil, domain.ErrConflict)

	_, err := svc.Register(context.Background(), user.RegisterRequest{})
	assert.ErrorIs(t, err, domain.ErrConflict)
	d.codes.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

// --- Login ---

func TestLogin_UnknownEmailAndWrongPasswordAreIndistinguishable(t *testing.T) {
	svc, d := newTestService()
	u := activeUser()
	u.PasswordHash = "$2a$10$whatever"
	d.users.On("GetByEmail", mock.Anything, "nobody@x.com").Return(nil, domain.ErrNotFound)
	d.users.On("GetByEmail", mock.Anything, "dana@x.com").Return(u, nil)
	d.users.On("VerifyPassword", u, "wrong").Return(false)

	_, err1 := svc.Login(context.Background(), LoginRequest{Email: "nobody@x.com", Password: "x"})
	_, err2 := svc.Login(context.Background(), LoginRequest{Email: "dana@x.com", Password: "wrong"})

	require.Error(t, err1)
	require.Error(t, err2)
	assert.ErrorIs(t, err1, domain.ErrAuthentication)
	assert.ErrorIs(t, err2, domain.ErrAuthentication)
	assert.Equal(t, err1.Error(), err2.Error())
}

func TestLogin_MFADefersTokenIssuance(t *testing.T) {
	svc, d := newTestService()
	u := activeUser()
	u.MFAEnabled = true
	d.users.On("GetByEmail", mock.Anything, "dana@x.com").Return(u, nil)
	d.users.On("VerifyPassword", u, "secret123").Return(true)

	res, err := svc.Login(context.Background(), LoginRequest{Email: "dana@x.com", Password: "secret123"})
	require.NoError(t, err)
	assert.True(t, res.MFARequired)
	assert.Empty(t, res.AccessToken)
	assert.Empty(t, res.RefreshToken)
	d.sessions.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestLogin_Success(t *testing.T) {
	svc, d := newTestService()
	u := activeUser()
	d.users.On("GetByEmail", mock.Anything, "dana@x.com").Return(u, nil)
	d.users.On("VerifyPassword", u, "secret123").Return(true)
	d.tokens.On("RefreshTTL").Return(30 * 24 * time.Hour)
	d.sessions.On("Put", mock.Anything, mock.MatchedBy(func(s *domain.Session) bool {
		return s.UserID == "u1" && s.SessionID != "" && s.UserAgent == "cli/1.0"
	})).Return(nil)
	d.tokens.On("SignAccess", "u1", mock.Anything, domain.RolePending).Return("access", nil)
	d.tokens.On("SignRefresh", mock.Anything).Return("refresh", nil)

	res, err := svc.Login(context.Background(), LoginRequest{Email: "dana@x.com", Password: "secret123", UserAgent: "cli/1.0"})
	require.NoError(t, err)
	assert.False(t, res.MFARequired)
	assert.Equal(t, "access", res.AccessToken)
	assert.Equal(t, "refresh", res.RefreshToken)
	assert.NotEmpty(t, res.Session.SessionID)
	d.sessions.AssertExpectations(t)
}

// --- Refresh ---

func TestRefresh_NoRotationAboveThreshold(t *testing.T) {
	svc, d := newTestService()
	sess := &domain.Session{
		SessionID: "s1", UserID: "u1",
		ExpiresAt: time.Now().Add(10 * 24 * time.Hour).Unix(),
	}
	d.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.RefreshClaims{SessionID: "s1"}, nil)
	d.sessions.On("Get", mock.Anything, "s1").Return(sess, nil)
	d.users.On("Get", mock.Anything, "u1").Return(activeUser(), nil)
	d.tokens.On("SignAccess", "u1", "s1", domain.RolePending).Return("new-access", nil)

	access, newRefresh, err := svc.Refresh(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	assert.Empty(t, newRefresh)
	d.sessions.AssertNotCalled(t, "Extend", mock.Anything, mock.Anything, mock.Anything)
}

func TestRefresh_RotatesNearExpiry(t *testing.T) {
	svc, d := newTestService()
	sess := &domain.Session{
		SessionID: "s1", UserID: "u1",
		ExpiresAt: time.Now().Add(6 * time.Hour).Unix(), // inside the 24h threshold
	}
	d.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.RefreshClaims{SessionID: "s1"}, nil)
	d.sessions.On("Get", mock.Anything, "s1").Return(sess, nil)
	d.tokens.On("RefreshTTL").Return(30 * 24 * time.Hour)
	d.sessions.On("Extend", mock.Anything, "s1", mock.MatchedBy(func(exp int64) bool {
		return exp > time.Now().Add(29*24*time.Hour).Unix()
	})).Return(nil)
	d.tokens.On("SignRefresh", "s1").Return("rotated-refresh", nil)
	d.users.On("Get", mock.Anything, "u1").Return(activeUser(), nil)
	d.tokens.On("SignAccess", "u1", "s1", domain.RolePending).Return("new-access", nil)

	access, newRefresh, err := svc.Refresh(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "new-access", access)
	assert.Equal(t, "rotated-refresh", newRefresh)
	d.sessions.AssertExpectations(t)
}

func TestRefresh_ExpiredSession(t *testing.T) {
	svc, d := newTestService()
	sess := &domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Minute).Unix()}
	d.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.RefreshClaims{SessionID: "s1"}, nil)
	d.sessions.On("Get", mock.Anything, "s1").Return(sess, nil)

	_, _, err := svc.Refresh(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrToken)
}

func TestRefresh_RevokedSession(t *testing.T) {
	svc, d := newTestService()
	d.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.RefreshClaims{SessionID: "gone"}, nil)
	d.sessions.On("Get", mock.Anything, "gone").Return(nil, domain.ErrNotFound)

	_, _, err := svc.Refresh(context.Background(), "tok")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRefresh_CarriesCurrentRole(t *testing.T) {
	svc, d := newTestService()
	sess := &domain.Session{SessionID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(10 * 24 * time.Hour).Unix()}
	promoted := activeUser()
	promoted.Role = domain.RoleRecruiter
	d.tokens.On("VerifyRefresh", "tok").Return(&jwtinfra.RefreshClaims{SessionID: "s1"}, nil)
	d.sessions.On("Get", mock.Anything, "s1").Return(sess, nil)
	d.users.On("Get", mock.Anything, "u1").Return(promoted, nil)
	d.tokens.On("SignAccess", "u1", "s1", domain.RoleRecruiter).Return("access", nil)

	_, _, err := svc.Refresh(context.Background(), "tok")
	require.NoError(t, err)
	d.tokens.AssertExpectations(t)
}

// --- VerifyEmail ---

func TestVerifyEmail_Success(t *testing.T) {
	svc, d := newTestService()
	v := &domain.VerificationCode{
		Code: "c1", UserID: "u1", Type: domain.VerificationEmail,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	verified := activeUser()
	verified.EmailVerified = true
	d.codes.On("GetByCode", mock.Anything, "c1").Return(v, nil)
	d.users.On("MarkEmailVerified", mock.Anything, "u1").Return(nil)
	d.codes.On("Delete", mock.Anything, "c1").Return(nil)
	d.users.On("Get", mock.Anything, "u1").Return(verified, nil)

	u, err := svc.VerifyEmail(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestVerifyEmail_ExpiredCode(t *testing.T) {
	svc, d := newTestService()
	v := &domain.VerificationCode{
		Code: "c1", UserID: "u1", Type: domain.VerificationEmail,
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	}
	d.codes.On("GetByCode", mock.Anything, "c1").Return(v, nil)

	_, err := svc.VerifyEmail(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	d.users.AssertNotCalled(t, "MarkEmailVerified", mock.Anything, mock.Anything)
}

func TestVerifyEmail_WrongCodeType(t *testing.T) {
	svc, d := newTestService()
	v := &domain.VerificationCode{
		Code: "c1", UserID: "u1", Type: domain.VerificationPasswordReset,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	d.codes.On("GetByCode", mock.Anything, "c1").Return(v, nil)

	_, err := svc.VerifyEmail(context.Background(), "c1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- ForgotPassword ---

func TestForgotPassword_RateLimited(t *testing.T) {
	svc, d := newTestService()
	d.users.On("GetByEmail", mock.Anything, "dana@x.com").Return(activeUser(), nil)
	d.codes.On("CountRecent", mock.Anything, "u1", domain.VerificationPasswordReset, mock.Anything).Return(2, nil)

	err := svc.ForgotPassword(context.Background(), "dana@x.com")
	assert.ErrorIs(t, err, domain.ErrRateLimit)
	d.codes.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestForgotPassword_SendsResetEmail(t *testing.T) {
	svc, d := newTestService()
	d.users.On("GetByEmail", mock.Anything, "dana@x.com").Return(activeUser(), nil)
	d.codes.On("CountRecent", mock.Anything, "u1", domain.VerificationPasswordReset, mock.Anything).Return(0, nil)
	d.codes.On("Put", mock.Anything, mock.MatchedBy(func(v *domain.VerificationCode) bool {
		return v.Type == domain.VerificationPasswordReset && v.UserID == "u1"
	})).Return(nil)
	d.mail.On("SendEmail", "dana@x.com", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, svc.ForgotPassword(context.Background(), "dana@x.com"))
	d.mail.AssertExpectations(t)
}

// --- ResetPassword ---

func TestResetPassword_RevokesAllSessions(t *testing.T) {
	svc, d := newTestService()
	v := &domain.VerificationCode{
		Code: "c1", UserID: "u1", Type: domain.VerificationPasswordReset,
		ExpiresAt: time.Now().Add(time.Hour).Unix(),
	}
	d.codes.On("GetByCode", mock.Anything, "c1").Return(v, nil)
	d.users.On("ResetPassword", mock.Anything, "u1", "newsecret1").Return(nil)
	d.codes.On("Delete", mock.Anything, "c1").Return(nil)
	d.sessions.On("DeleteAllForUser", mock.Anything, "u1").Return(nil)

	require.NoError(t, svc.ResetPassword(context.Background(), "c1", "newsecret1"))
	d.sessions.AssertExpectations(t)
}

func TestResetPassword_UnknownCode(t *testing.T) {
	svc, d := newTestService()
	d.codes.On("GetByCode", mock.Anything, "nope").Return(nil, domain.ErrNotFound)

	err := svc.ResetPassword(context.Background(), "nope", "newsecret1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	d.users.AssertNotCalled(t, "ResetPassword", mock.Anything, mock.Anything, mock.Anything)
}

// --- UpdateRole ---

func TestUpdateRole_RevokesSessionsAndIssuesFreshPair(t *testing.T) {
	svc, d := newTestService()
	promoted := activeUser()
	promoted.Role = domain.RoleJobseeker
	d.users.On("UpdateRole", mock.Anything, "u1", domain.RoleJobseeker).Return(nil)
	d.sessions.On("DeleteAllForUser", mock.Anything, "u1").Return(nil)
	d.users.On("Get", mock.Anything, "u1").Return(promoted, nil)
	d.tokens.On("RefreshTTL").Return(30 * 24 * time.Hour)
	d.sessions.On("Put", mock.Anything, mock.Anything).Return(nil)
	d.tokens.On("SignAccess", "u1", mock.Anything, domain.RoleJobseeker).Return("access", nil)
	d.tokens.On("SignRefresh", mock.Anything).Return("refresh", nil)

	res, err := svc.UpdateRole(context.Background(), "u1", domain.RoleJobseeker, "cli/1.0")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleJobseeker, res.User.Role)
	assert.NotEmpty(t, res.AccessToken)
	d.sessions.AssertExpectations(t)
}

func TestUpdateRole_InvalidRole(t *testing.T) {
	svc, d := newTestService()
	d.users.On("UpdateRole", mock.Anything, "u1", "admin").Return(domain.ErrValidation)

	_, err := svc.UpdateRole(context.Background(), "u1", "admin", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
	d.sessions.AssertNotCalled(t, "DeleteAllForUser", mock.Anything, mock.Anything)
}

// --- sessions ---

func TestDeleteSession_OtherUsersSessionLooksMissing(t *testing.T) {
	svc, d := newTestService()
	d.sessions.On("Get", mock.Anything, "s9").Return(&domain.Session{SessionID: "s9", UserID: "someone-else"}, nil)

	err := svc.DeleteSession(context.Background(), "u1", "s9")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	d.sessions.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestGetSession_Expired(t *testing.T) {
	svc, d := newTestService()
	d.sessions.On("Get", mock.Anything, "s1").Return(&domain.Session{
		SessionID: "s1", UserID: "u1", ExpiresAt: time.Now().Add(-time.Hour).Unix(),
	}, nil)

	_, err := svc.GetSession(context.Background(), "s1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLogout_DeletesSession(t *testing.T) {
	svc, d := newTestService()
	d.sessions.On("Delete", mock.Anything, "s1").Return(nil)

	require.NoError(t, svc.Logout(context.Background(), "s1"))
	d.sessions.AssertExpectations(t)
}

func TestRegister_MailFailureSurfaces(t *testing.T) {
	svc, d := newTestService()
	d.users.On("Register", mock.Anything, mock.Anything).Return(activeUser(), nil)
	d.codes.On("Put", mock.Anything, mock.Anything).Return(nil)
	d.mail.On("SendEmail", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	_, err := svc.Register(context.Background(), user.RegisterRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send verification email")
}
