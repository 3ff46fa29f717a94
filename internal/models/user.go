package models

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account. OrgID is nil only for system owners, who
// supervise all tenants and belong to none.
type User struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	PasswordHash  string     `json:"-"`
	IsAdmin       bool       `json:"is_admin"`
	IsSystemOwner bool       `json:"is_system_owner"`
	OrgID         *uuid.UUID `json:"org_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewUser creates a new User with the given details.
func NewUser(username, email, passwordHash string, orgID *uuid.UUID) *User {
	return &User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		OrgID:        orgID,
		CreatedAt:    time.Now(),
	}
}

// InOrg returns true if the user belongs to the given organization.
func (u *User) InOrg(orgID uuid.UUID) bool {
	return u.OrgID != nil && *u.OrgID == orgID
}

// SignupRequest is the payload for self-service signup.
type SignupRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	OrgID    string `json:"organization,omitempty"`
}

// LoginRequest is the payload for password login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// CreateUserRequest is the payload for admin user creation.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	IsAdmin  bool   `json:"is_admin"`
	OrgID    string `json:"organization,omitempty"`
}

// UpdateUserRequest is the payload for updating a user. Pointer fields
// distinguish "unset" from zero values on partial updates.
type UpdateUserRequest struct {
	Email    *string `json:"email,omitempty"`
	Password *string `json:"password,omitempty"`
	IsAdmin  *bool   `json:"is_admin,omitempty"`
}
