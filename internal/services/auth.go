package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lifelog/apiserver/internal/auth"
	"github.com/lifelog/apiserver/internal/logger"
	"github.com/lifelog/apiserver/internal/metrics"
	"github.com/lifelog/apiserver/internal/store"
	"github.com/lifelog/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt cost used for new password hashes.
const PasswordCost = 10

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// TokenIssuer signs session tokens for an identity.
type TokenIssuer interface {
	Issue(identity auth.Identity) (string, error)
}

// AuthResult is returned by a successful registration or login.
type AuthResult struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}

// AuthService encapsulates registration, login and profile lookup.
type AuthService struct {
	repo   UserRepository
	tokens TokenIssuer
}

func NewAuthService(repo UserRepository, tokens TokenIssuer) *AuthService {
	return &AuthService{repo: repo, tokens: tokens}
}

func (s *AuthService) Register(ctx context.Context, name, email, password string) (AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return AuthResult{}, invalid("name, email and password are required")
	}

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return AuthResult{}, ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return AuthResult{}, fmt.Errorf("check email: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	if err != nil {
		return AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return AuthResult{}, ErrEmailTaken
		}
		return AuthResult{}, fmt.Errorf("create user: %w", err)
	}

	metrics.RecordAuthAttempt("register", true)
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResult{}, invalid("email and password are required")
	}

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.loginFailed(email)
			return AuthResult{}, ErrInvalidCredentials
		}
		return AuthResult{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.loginFailed(email)
		return AuthResult{}, ErrInvalidCredentials
	}

	metrics.RecordAuthAttempt("login", true)
	return s.issue(user)
}

// Profile returns the stored account behind an authenticated identity.
func (s *AuthService) Profile(ctx context.Context, identity auth.Identity) (types.User, error) {
	user, err := s.repo.GetByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.User{}, auth.ErrInvalidToken
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}

func (s *AuthService) issue(user types.User) (AuthResult, error) {
	token, err := s.tokens.Issue(auth.Identity{ID: user.ID, Email: user.Email})
	if err != nil {
		return AuthResult{}, fmt.Errorf("issue token: %w", err)
	}
	return AuthResult{Token: token, User: user}, nil
}

func (s *AuthService) loginFailed(email string) {
	metrics.RecordAuthAttempt("login", false)
	logger.Warn("login.failed", "email", email)
}

// normalizeEmail makes addresses compare case-insensitively.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
