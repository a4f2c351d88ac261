package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kasb-api/internal/domain"
	"github.com/kasb-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRequest is the credential registration payload.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	Role            string `json:"role" validate:"omitempty,oneof=pending jobseeker recruiter"`
}

// Service owns the User identity record: registration, password verification
// and replacement, role updates. Hashing happens only here, through
// HashPassword, never as a save-time side effect.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*domain.User, error)
	VerifyPassword(u *domain.User, plaintext string) bool
	ResetPassword(ctx context.Context, userID, newPlaintext string) error
	MarkEmailVerified(ctx context.Context, userID string) error
	UpdateRole(ctx context.Context, userID, role string) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type userStore interface {
	Put(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// DynamoDB attribute names used in partial update maps.
const (
	fieldPasswordHash  = "password_hash"
	fieldEmailVerified = "email_verified"
	fieldRole          = "role"
)

type service struct {
	repo userStore
}

func NewService(repo userStore) Service {
	return &service{repo: repo}
}

// HashPassword hashes a plaintext password with bcrypt. The result is one-way
// and never equal to the plaintext.
func HashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	if req.Password != req.ConfirmPassword {
		return nil, fmt.Errorf("passwords do not match: %w", domain.ErrValidation)
	}
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("user already exists with this email: %w", domain.ErrConflict)
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RolePending
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Name:         req.Name,
		Email:        strings.ToLower(req.Email),
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) VerifyPassword(u *domain.User, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(plaintext)) == nil
}

func (s *service) ResetPassword(ctx context.Context, userID, newPlaintext string) error {
	hash, err := HashPassword(newPlaintext)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldPasswordHash: hash})
}

func (s *service) MarkEmailVerified(ctx context.Context, userID string) error {
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldEmailVerified: true})
}

func (s *service) UpdateRole(ctx context.Context, userID, role string) error {
	if !domain.ValidSelectableRole(role) {
		return fmt.Errorf("invalid role %q: %w", role, domain.ErrValidation)
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{fieldRole: role})
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.GetByEmail(ctx, email)
}
