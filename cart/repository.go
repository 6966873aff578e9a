package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrItemNotFound signals the cart item does not exist for this owner.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrClassUnavailable signals the class does not exist or is not approved.
	ErrClassUnavailable = errors.New("cart: class unavailable")
	// ErrDuplicateItem signals the class is already in the owner's cart.
	ErrDuplicateItem = errors.New("cart: class already in cart")
)

// Repository handles data access for cart items.
type Repository interface {
	Add(ctx context.Context, params AddParams) (Item, error)
	ListByOwner(ctx context.Context, ownerEmail string) ([]Item, error)
	Remove(ctx context.Context, ownerEmail, itemID string) error
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed cart repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// Add inserts a cart item for an approved class, snapshotting its name and
// price at add time.
func (r *PGRepository) Add(ctx context.Context, params AddParams) (Item, error) {
	const insertSQL = `
		INSERT INTO cart_items (owner_email, class_id, class_name, price)
		SELECT $1, c.id, c.name, c.price
		FROM class_offerings c
		WHERE c.id = $2 AND c.status = 'approved'
		RETURNING id, owner_email, class_id, class_name, price, created_at
	`

	item, err := scanItem(r.pool.QueryRow(ctx, insertSQL, params.OwnerEmail, params.ClassID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrClassUnavailable
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Item{}, ErrDuplicateItem
		}
		return Item{}, fmt.Errorf("cart: add item: %w", err)
	}

	return item, nil
}

// ListByOwner returns the owner's cart items. Items settled by a purchase
// are deleted by the settlement transaction and never reappear here.
func (r *PGRepository) ListByOwner(ctx context.Context, ownerEmail string) ([]Item, error) {
	const query = `
		SELECT id, owner_email, class_id, class_name, price, created_at
		FROM cart_items
		WHERE owner_email = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, ownerEmail)
	if err != nil {
		return nil, fmt.Errorf("cart: list items: %w", err)
	}
	defer rows.Close()

	items := make([]Item, 0, 8)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("cart: scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cart: iterate items: %w", err)
	}
	return items, nil
}

// Remove deletes one item. The predicate includes the owner email so one
// identity can never delete another's item by guessing ids.
func (r *PGRepository) Remove(ctx context.Context, ownerEmail, itemID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE id = $1 AND owner_email = $2`, itemID, ownerEmail)
	if err != nil {
		return fmt.Errorf("cart: remove item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (Item, error) {
	var item Item
	err := row.Scan(
		&item.ID,
		&item.OwnerEmail,
		&item.ClassID,
		&item.ClassName,
		&item.Price,
		&item.CreatedAt,
	)
	if err != nil {
		return Item{}, err
	}
	return item, nil
}
