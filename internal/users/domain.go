package users

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-pos/internal/shared"
)

var (
	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = fmt.Errorf("users: username already exists: %w", shared.ErrConflict)
	// ErrSelfDeactivation prevents an admin from locking themselves out.
	ErrSelfDeactivation = fmt.Errorf("users: cannot deactivate own account: %w", shared.ErrValidation)
	// ErrWrongPassword is returned when the current password does not match.
	ErrWrongPassword = fmt.Errorf("users: current password does not match: %w", shared.ErrValidation)
)

// CreateUserRequest carries a new staff account.
type CreateUserRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin seller"`
}

// ChangePasswordRequest updates the caller's own password.
type ChangePasswordRequest struct {
	Current string `json:"current_password" validate:"required"`
	New     string `json:"new_password" validate:"required,min=8,max=72"`
}
