package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound signals the requested offering does not exist.
	ErrNotFound = errors.New("catalog: offering not found")
	// ErrInvalidTransition signals an attempt to move an offering out of a
	// settled approval state.
	ErrInvalidTransition = errors.New("catalog: invalid status transition")
)

// Repository provides access to class offerings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const offeringColumns = `id, name, instructor_email, price, status, enrolled, available_seats, created_at, updated_at`

// GetByID fetches an offering by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Offering, error) {
	query := fmt.Sprintf(`SELECT %s FROM class_offerings WHERE id = $1`, offeringColumns)

	offering, err := scanOffering(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Offering{}, ErrNotFound
		}
		return Offering{}, fmt.Errorf("catalog: query by id: %w", err)
	}

	return offering, nil
}

// ListApproved fetches up to limit approved offerings ordered by name.
func (r *Repository) ListApproved(ctx context.Context, limit int) ([]Offering, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM class_offerings
		WHERE status = 'approved'
		ORDER BY name ASC
		LIMIT $1
	`, offeringColumns)

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list approved: %w", err)
	}
	defer rows.Close()

	offerings := make([]Offering, 0, limit)
	for rows.Next() {
		offering, err := scanOffering(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan offering: %w", err)
		}
		offerings = append(offerings, offering)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate offerings: %w", err)
	}

	return offerings, nil
}

// SetStatus applies an approval transition. The predicate only matches rows
// still pending or already in the requested state, which makes re-applying
// the same decision a no-op rather than an error.
func (r *Repository) SetStatus(ctx context.Context, id string, status Status) (Offering, error) {
	query := fmt.Sprintf(`
		UPDATE class_offerings
		SET status = $2, updated_at = now()
		WHERE id = $1 AND (status = 'pending' OR status = $2)
		RETURNING %s
	`, offeringColumns)

	offering, err := scanOffering(r.pool.QueryRow(ctx, query, id, status))
	if err == nil {
		return offering, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Offering{}, fmt.Errorf("catalog: set status: %w", err)
	}

	// Distinguish a missing row from a settled one.
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM class_offerings WHERE id = $1)`, id).Scan(&exists); err != nil {
		return Offering{}, fmt.Errorf("catalog: check offering: %w", err)
	}
	if !exists {
		return Offering{}, ErrNotFound
	}
	return Offering{}, ErrInvalidTransition
}

func scanOffering(row pgx.Row) (Offering, error) {
	var offering Offering
	err := row.Scan(
		&offering.ID,
		&offering.Name,
		&offering.InstructorEmail,
		&offering.Price,
		&offering.Status,
		&offering.Enrolled,
		&offering.AvailableSeats,
		&offering.CreatedAt,
		&offering.UpdatedAt,
	)
	if err != nil {
		return Offering{}, err
	}
	return offering, nil
}
