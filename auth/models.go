package auth

import "time"

type Role string

const (
	// RoleNone is the implicit student role: a registered account with no
	// elevated privileges. Stored as an empty role column.
	RoleNone       Role = ""
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// User is the domain representation of a registered account.
// It mirrors the users table and should not include JSON annotations so it
// can be reused by different presentation layers.
type User struct {
	ID           string
	Email        string
	Name         string
	PhotoURL     *string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the principal established by a verified credential. Email is
// the only claim ever trusted from a token; role is always re-fetched from
// the store.
type Identity struct {
	Email string
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Name     string  `json:"name" validate:"required"`
	PhotoURL *string `json:"photo_url,omitempty"`
	Password string  `json:"password" validate:"required,min=8"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func isValidRole(role Role) bool {
	switch role {
	case RoleNone, RoleInstructor, RoleAdmin:
		return true
	default:
		return false
	}
}
