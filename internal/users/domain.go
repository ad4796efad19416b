// Package users manages staff accounts.
package users

import (
	"strings"
	"time"

	"github.com/kasirku/kasir/internal/platform/httpx"
	"github.com/kasirku/kasir/internal/shared"
)

var (
	ErrUserNotFound  = httpx.NewError(httpx.ErrNotFound, "users: user not found")
	ErrUsernameTaken = httpx.NewError(httpx.ErrConflict, "users: username already in use")
	ErrEmailTaken    = httpx.NewError(httpx.ErrConflict, "users: email already in use")
	ErrInvalidRole   = httpx.NewError(httpx.ErrValidation, "users: role must be admin or cashier")
	ErrNoChanges     = httpx.NewError(httpx.ErrValidation, "users: nothing to update")
	ErrDeleteSelf    = httpx.NewError(httpx.ErrValidation, "users: cannot delete your own account")
	ErrWrongPassword = httpx.NewError(httpx.ErrValidation, "users: current password is incorrect")
)

// User is a staff account. PasswordHash never leaves the server.
type User struct {
	ID           int64       `json:"id"`
	Username     string      `json:"username"`
	Email        string      `json:"email"`
	PasswordHash string      `json:"-"`
	Role         shared.Role `json:"role"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// CreateInput is the POST /users body.
type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=50"`
	Email    string `json:"email" validate:"required,email,max=100"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Role     string `json:"role" validate:"required"`
}

// UpdateInput is the PUT /users/{id} body. Absent fields are left alone.
type UpdateInput struct {
	Username *string `json:"username" validate:"omitempty,min=3,max=50"`
	Email    *string `json:"email" validate:"omitempty,email,max=100"`
	Password *string `json:"password" validate:"omitempty,min=6,max=72"`
	Role     *string `json:"role"`
}

// ChangePasswordInput is the POST /users/change-password body.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=72"`
}

// Patch is a validated UpdateInput ready for storage.
type Patch struct {
	Username     *string
	Email        *string
	PasswordHash *string
	Role         *shared.Role
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Username == nil && p.Email == nil && p.PasswordHash == nil && p.Role == nil
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
