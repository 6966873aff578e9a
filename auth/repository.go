package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrUserNotFound signals that the user does not exist.
	ErrUserNotFound = errors.New("auth: user not found")
	// ErrAlreadyExists signals that the email is already registered. It is a
	// soft conflict: the stored record is untouched and the caller simply
	// learns registration was a no-op.
	ErrAlreadyExists = errors.New("auth: user already exists")
)

// Repository handles data access for accounts and roles.
type Repository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	UpdateRole(ctx context.Context, email string, role Role) (User, error)
}

// CreateUserParams contains write parameters for creating users.
type CreateUserParams struct {
	Email        string
	Name         string
	PhotoURL     *string
	PasswordHash string
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed account repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// CreateUser inserts a new user. Re-registering an existing email is a
// no-op reported as ErrAlreadyExists; the stored row is never touched.
func (r *PGRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	const insertSQL = `
		INSERT INTO users (email, name, photo_url, password_hash, role)
		VALUES ($1, $2, $3, $4, '')
		ON CONFLICT (email) DO NOTHING
		RETURNING id, email, name, photo_url, password_hash, role, created_at, updated_at
	`

	user, err := scanUser(r.pool.QueryRow(ctx, insertSQL, params.Email, params.Name, params.PhotoURL, params.PasswordHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrAlreadyExists
		}
		return User{}, fmt.Errorf("auth: create user: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *PGRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const selectSQL = `
		SELECT id, email, name, photo_url, password_hash, role, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	user, err := scanUser(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: get user by email: %w", err)
	}

	return user, nil
}

// UpdateRole stores a new role for the email. Authorization is enforced by
// the caller; this is the bare mutation.
func (r *PGRepository) UpdateRole(ctx context.Context, email string, role Role) (User, error) {
	const updateSQL = `
		UPDATE users
		SET role = $2, updated_at = now()
		WHERE email = $1
		RETURNING id, email, name, photo_url, password_hash, role, created_at, updated_at
	`

	user, err := scanUser(r.pool.QueryRow(ctx, updateSQL, email, role))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("auth: update role: %w", err)
	}

	return user, nil
}

func scanUser(row pgx.Row) (User, error) {
	var (
		user     User
		photoURL *string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&photoURL,
		&user.PasswordHash,
		&user.Role,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	user.PhotoURL = photoURL
	return user, nil
}
