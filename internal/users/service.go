package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-pos/internal/auth"
	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]auth.User, error)
	FindByID(ctx context.Context, id int64) (*auth.User, error)
	// CreateUser returns ErrDuplicateUsername when the username is taken.
	CreateUser(ctx context.Context, user auth.User) (*auth.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
	UpdatePassword(ctx context.Context, id int64, hash string) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	logger *slog.Logger
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]auth.User, error) {
	return s.repo.ListUsers(ctx)
}

// CreateUser registers a staff account.
func (s *Service) CreateUser(ctx context.Context, actorID int64, req CreateUserRequest) (*auth.User, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", shared.ErrValidation)
	}
	if req.Role != shared.RoleAdmin && req.Role != shared.RoleSeller {
		return nil, fmt.Errorf("%w: unknown role %q", shared.ErrValidation, req.Role)
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.CreateUser(ctx, auth.User{
		Username:     username,
		Email:        strings.TrimSpace(req.Email),
		PasswordHash: hash,
		Role:         req.Role,
		IsActive:     true,
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actorID, "user.create", user.ID, map[string]any{"username": user.Username, "role": user.Role})
	return user, nil
}

// SetActive enables or disables login for id.
func (s *Service) SetActive(ctx context.Context, actorID, id int64, active bool) error {
	if !active && actorID == id {
		return ErrSelfDeactivation
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return err
	}
	action := "user.deactivate"
	if active {
		action = "user.activate"
	}
	s.record(ctx, actorID, action, id, nil)
	return nil
}

// ChangePassword replaces the actor's password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, actorID int64, req ChangePasswordRequest) error {
	user, err := s.repo.FindByID(ctx, actorID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Current)); err != nil {
		return ErrWrongPassword
	}
	hash, err := auth.HashPassword(req.New)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, actorID, hash); err != nil {
		return err
	}
	s.record(ctx, actorID, "user.password_change", actorID, nil)
	return nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: actorID, Action: action, Entity: "user", EntityID: strconv.FormatInt(id, 10), Meta: meta})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
