package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo   Repository
	tokens *Tokens
}

// NewService constructs a new Service.
func NewService(repo Repository, tokens *Tokens) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return Session{}, err
	}
	token, expiresAt, err := s.tokens.Issue(*user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expiresAt, User: *user}, nil
}

// Current returns the user behind an authenticated actor.
func (s *Service) Current(ctx context.Context, actor shared.Actor) (*User, error) {
	return s.repo.FindByID(ctx, actor.ID)
}

// EnsureUser creates or resets an account. Provisioning uses it to keep the
// bootstrap admin in place.
func (s *Service) EnsureUser(ctx context.Context, username, email, password, role string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", shared.ErrValidation)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must have at least 8 characters", shared.ErrValidation)
	}
	if role != shared.RoleAdmin && role != shared.RoleSeller {
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	return s.repo.UpsertUser(ctx, User{Username: username, Email: email, PasswordHash: hash, Role: role, IsActive: true})
}

// HashPassword hashes password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", shared.ErrValidation)
		}
		return "", err
	}
	return string(hash), nil
}
