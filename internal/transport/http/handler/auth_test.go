package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kasb-api/internal/application/auth"
	"github.com/kasb-api/internal/application/user"
	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/transport/http/strategy"
)

type mockAuthService struct{ mock.Mock }

func (m *mockAuthService) Register(ctx context.Context, req user.RegisterRequest) (*domain.User, error) {
	args := m.Called(ctx, req)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*auth.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (string, string, error) {
	args := m.Called(ctx, refreshToken)
	return args.String(0), args.String(1), args.Error(2)
}
func (m *mockAuthService) VerifyEmail(ctx context.Context, code string) (*domain.User, error) {
	args := m.Called(ctx, code)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) ForgotPassword(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}
func (m *mockAuthService) ResetPassword(ctx context.Context, code, newPassword string) error {
	return m.Called(ctx, code, newPassword).Error(0)
}
func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}
func (m *mockAuthService) UpdateRole(ctx context.Context, userID, role, userAgent string) (*auth.LoginResult, error) {
	args := m.Called(ctx, userID, role, userAgent)
	if r, _ := args.Get(0).(*auth.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) IssueSession(ctx context.Context, u *domain.User, userAgent string) (*auth.LoginResult, error) {
	args := m.Called(ctx, u, userAgent)
	if r, _ := args.Get(0).(*auth.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	args := m.Called(ctx, sessionID)
	if s, _ := args.Get(0).(*domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	args := m.Called(ctx, userID)
	if s, _ := args.Get(0).([]domain.Session); s != nil {
		return s, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockAuthService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	return m.Called(ctx, userID, sessionID).Error(0)
}

var testCookies = CookieConfig{
	Production: false,
	AccessTTL:  time.Hour,
	RefreshTTL: 24 * time.Hour,
}

func cookieByName(t *testing.T, rr *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

// --- Login ---

func TestLogin_SetsBothCookies(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Login", mock.Anything, mock.Anything).Return(&auth.LoginResult{
		User:         &domain.User{UserID: "u1", Email: "dana@x.com"},
		Session:      &domain.Session{SessionID: "s1"},
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
	}, nil)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		jsonBody(t, map[string]string{"email": "dana@x.com", "password": "secret123"}))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	access := cookieByName(t, rr, strategy.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Equal(t, "access-token", access.Value)
	assert.Equal(t, "/", access.Path)
	assert.True(t, access.HttpOnly)

	refresh := cookieByName(t, rr, "refreshToken")
	require.NotNil(t, refresh)
	assert.Equal(t, "refresh-token", refresh.Value)
	assert.Equal(t, RefreshPath, refresh.Path)
	assert.True(t, refresh.HttpOnly)
}

func TestLogin_MFARequiredSetsNoCookies(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Login", mock.Anything, mock.Anything).Return(&auth.LoginResult{MFARequired: true}, nil)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		jsonBody(t, map[string]string{"email": "dana@x.com", "password": "secret123"}))
	rr := httptest.NewRecorder()
	h.Login(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Result().Cookies())

	var body AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.True(t, body.MFARequired)
	assert.Nil(t, body.User)
}

func TestLogin_BadCredentials(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Login", mock.Anything, mock.Anything).Return(nil, domain.ErrAuthentication)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login",
		jsonBody(t, map[string]string{"email": "dana@x.com", "password": "wrong1234"}))
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestLogin_MalformedBody(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testCookies)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewBufferString("{"))
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- Refresh ---

func TestRefresh_NoRotationKeepsRefreshCookie(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Refresh", mock.Anything, "old-refresh").Return("new-access", "", nil)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, RefreshPath, nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "old-refresh"})
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.NotNil(t, cookieByName(t, rr, strategy.AccessTokenCookie))
	assert.Nil(t, cookieByName(t, rr, "refreshToken"))
}

func TestRefresh_RotationReplacesRefreshCookie(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Refresh", mock.Anything, "old-refresh").Return("new-access", "rotated", nil)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, RefreshPath, nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "old-refresh"})
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	refresh := cookieByName(t, rr, "refreshToken")
	require.NotNil(t, refresh)
	assert.Equal(t, "rotated", refresh.Value)
	assert.Equal(t, RefreshPath, refresh.Path)
}

func TestRefresh_InvalidTokenClearsCookies(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Refresh", mock.Anything, "bad").Return("", "", domain.ErrToken)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, RefreshPath, nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "bad"})
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	access := cookieByName(t, rr, strategy.AccessTokenCookie)
	require.NotNil(t, access)
	assert.Empty(t, access.Value)
	assert.Equal(t, -1, access.MaxAge)
	refresh := cookieByName(t, rr, "refreshToken")
	require.NotNil(t, refresh)
	assert.Empty(t, refresh.Value)
}

func TestRefresh_MissingCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testCookies)
	req := httptest.NewRequest(http.MethodPost, RefreshPath, nil)
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

// --- Register ---

func TestRegister_Created(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Register", mock.Anything, mock.MatchedBy(func(req user.RegisterRequest) bool {
		return req.Email == "dana@x.com"
	})).Return(&domain.User{UserID: "u1", Email: "dana@x.com", Role: domain.RolePending}, nil)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", jsonBody(t, map[string]string{
		"name": "Dana", "email": "dana@x.com",
		"password": "secret123", "confirmPassword": "secret123",
	}))
	rr := httptest.NewRecorder()
	h.Register(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code)
	// registration never issues tokens
	assert.Empty(t, rr.Result().Cookies())
	var body AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotNil(t, body.User)
	assert.Equal(t, "u1", body.User.UserID)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("Register", mock.Anything, mock.Anything).Return(nil, domain.ErrConflict)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", jsonBody(t, map[string]string{
		"name": "Dana", "email": "dana@x.com",
		"password": "secret123", "confirmPassword": "secret123",
	}))
	rr := httptest.NewRecorder()
	h.Register(rr, req)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRegister_InvalidEmail(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, testCookies)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", jsonBody(t, map[string]string{
		"name": "Dana", "email": "not-an-email",
		"password": "secret123", "confirmPassword": "secret123",
	}))
	rr := httptest.NewRecorder()
	h.Register(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

// --- ForgotPassword ---

func TestForgotPassword_RateLimited(t *testing.T) {
	svc := &mockAuthService{}
	svc.On("ForgotPassword", mock.Anything, "dana@x.com").Return(domain.ErrRateLimit)
	h := NewAuthHandler(svc, testCookies)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/forgot-password",
		jsonBody(t, map[string]string{"email": "dana@x.com"}))
	rr := httptest.NewRecorder()
	h.ForgotPassword(rr, req)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}
