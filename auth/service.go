package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials signals wrong email or password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrWeakPassword signals password doesn't meet requirements.
	ErrWeakPassword = errors.New("auth: password must be at least 8 characters")
	// ErrDirectoryUnavailable signals the user store could not be reached.
	// Distinct from a forbidden outcome: the role could not be determined.
	ErrDirectoryUnavailable = errors.New("auth: role directory unavailable")
)

// Service handles accounts, login, and role lookups.
type Service struct {
	repo   Repository
	tokens *TokenService
}

// LoginResult bundles the token and domain user returned after a successful login.
type LoginResult struct {
	Token string
	User  User
}

// NewService creates a new account service.
func NewService(repo Repository, tokens *TokenService) *Service {
	return &Service{
		repo:   repo,
		tokens: tokens,
	}
}

// Register creates a new user account. Registration is idempotent: an
// existing email yields ErrAlreadyExists and the stored record is unchanged.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if len(req.Password) < 8 {
		return nil, ErrWeakPassword
	}
	if req.Email == "" || req.Name == "" {
		return nil, fmt.Errorf("auth: email and name are required")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}

	user, err := s.repo.CreateUser(ctx, CreateUserParams{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         req.Name,
		PhotoURL:     req.PhotoURL,
		PasswordHash: string(passwordHash),
	})
	if err != nil {
		return nil, err
	}

	return &user, nil
}

// Login authenticates a user and returns a signed session token.
func (s *Service) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	user, err := s.repo.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(Identity{Email: user.Email})
	if err != nil {
		return LoginResult{}, fmt.Errorf("auth: issue token: %w", err)
	}

	return LoginResult{
		Token: token,
		User:  user,
	}, nil
}

// RoleOf resolves the current role for an email with a fresh store lookup.
// It is the authoritative answer for every authorization decision: callers
// must never cache the result across requests because an admin promotion can
// land between any two of them. An absent user is RoleNone.
func (s *Service) RoleOf(ctx context.Context, email string) (Role, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return RoleNone, nil
		}
		return RoleNone, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, err)
	}
	return user.Role, nil
}

// SetRole stores a new role for the email. The admin-only restriction is
// enforced by the access guard at the boundary.
func (s *Service) SetRole(ctx context.Context, email string, role Role) (*User, error) {
	if !isValidRole(role) {
		return nil, fmt.Errorf("auth: invalid role %q", role)
	}

	user, err := s.repo.UpdateRole(ctx, email, role)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IsAdmin reports whether the email currently holds the admin role.
func (s *Service) IsAdmin(ctx context.Context, email string) (bool, error) {
	role, err := s.RoleOf(ctx, email)
	if err != nil {
		return false, err
	}
	return role == RoleAdmin, nil
}

// IsInstructor reports whether the email currently holds the instructor role.
func (s *Service) IsInstructor(ctx context.Context, email string) (bool, error) {
	role, err := s.RoleOf(ctx, email)
	if err != nil {
		return false, err
	}
	return role == RoleInstructor, nil
}
