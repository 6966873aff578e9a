package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrItemsMissing signals that one or more referenced cart items do not
	// exist for the paying identity. Nothing has been written yet.
	ErrItemsMissing = errors.New("payments: cart items missing")
	// ErrSeatsExhausted signals that at least one class had no seat left.
	ErrSeatsExhausted = errors.New("payments: no seats available")
)

// Repository defines the data access required by the settlement service.
type Repository interface {
	ItemsForSettlement(ctx context.Context, email string, itemIDs []string) ([]SettleItem, error)
	InsertRecord(ctx context.Context, params RecordParams) (Record, error)
	RemoveCartItems(ctx context.Context, tx pgx.Tx, email string, itemIDs []string) (int64, error)
	AdjustSeats(ctx context.Context, tx pgx.Tx, classIDs []string) (int64, error)
	HistoryByEmail(ctx context.Context, email string) ([]Record, error)
	EnrolledByEmail(ctx context.Context, email string) ([]EnrolledClass, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a PostgreSQL-backed settlement repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ItemsForSettlement loads the referenced cart items scoped to the paying
// identity. Any id that is absent, or owned by someone else, makes the whole
// lookup fail with ErrItemsMissing.
func (r *PGRepository) ItemsForSettlement(ctx context.Context, email string, itemIDs []string) ([]SettleItem, error) {
	const query = `
		SELECT id, class_id, price
		FROM cart_items
		WHERE owner_email = $1 AND id = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, email, itemIDs)
	if err != nil {
		return nil, fmt.Errorf("payments: load cart items: %w", err)
	}
	defer rows.Close()

	items := make([]SettleItem, 0, len(itemIDs))
	for rows.Next() {
		var item SettleItem
		if err := rows.Scan(&item.ID, &item.ClassID, &item.Price); err != nil {
			return nil, fmt.Errorf("payments: scan cart item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: iterate cart items: %w", err)
	}

	if len(items) != len(itemIDs) {
		return nil, ErrItemsMissing
	}
	return items, nil
}

// InsertRecord writes the immutable payment record in its own transaction.
// Once this returns, the purchase is financially settled regardless of what
// happens to the remaining settlement steps.
func (r *PGRepository) InsertRecord(ctx context.Context, params RecordParams) (Record, error) {
	const insertSQL = `
		INSERT INTO payment_records (email, amount, cart_item_ids, class_ids)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, amount, cart_item_ids, class_ids, created_at
	`

	record, err := scanRecord(r.pool.QueryRow(ctx, insertSQL, params.Email, params.Amount, params.CartItemIDs, params.ClassIDs))
	if err != nil {
		return Record{}, fmt.Errorf("payments: insert record: %w", err)
	}
	return record, nil
}

// RemoveCartItems deletes the settled items inside the active transaction.
// The predicate includes the owner email, not just the id set, so injected
// foreign ids can never free another account's cart.
func (r *PGRepository) RemoveCartItems(ctx context.Context, tx pgx.Tx, email string, itemIDs []string) (int64, error) {
	tag, err := tx.Exec(ctx, `DELETE FROM cart_items WHERE owner_email = $1 AND id = ANY($2)`, email, itemIDs)
	if err != nil {
		return 0, fmt.Errorf("payments: remove cart items: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AdjustSeats applies one batched relative update across every affected
// class: enrolled up one, available_seats down one. The available_seats > 0
// predicate is what floors seat counts at zero under concurrent purchases;
// the returned row count tells the caller whether every class had a seat.
func (r *PGRepository) AdjustSeats(ctx context.Context, tx pgx.Tx, classIDs []string) (int64, error) {
	const updateSQL = `
		UPDATE class_offerings
		SET enrolled = enrolled + 1,
		    available_seats = available_seats - 1,
		    updated_at = now()
		WHERE id = ANY($1) AND available_seats > 0
	`

	tag, err := tx.Exec(ctx, updateSQL, classIDs)
	if err != nil {
		return 0, fmt.Errorf("payments: adjust seats: %w", err)
	}
	return tag.RowsAffected(), nil
}

// HistoryByEmail returns the owner's payment records, newest first.
func (r *PGRepository) HistoryByEmail(ctx context.Context, email string) ([]Record, error) {
	const query = `
		SELECT id, email, amount, cart_item_ids, class_ids, created_at
		FROM payment_records
		WHERE email = $1
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("payments: list records: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, 8)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("payments: scan record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: iterate records: %w", err)
	}
	return records, nil
}

// EnrolledByEmail answers the enrolled-classes view from the payment records,
// the single durable source for that query.
func (r *PGRepository) EnrolledByEmail(ctx context.Context, email string) ([]EnrolledClass, error) {
	const query = `
		SELECT c.id, c.name, c.price, p.created_at
		FROM payment_records p
		JOIN class_offerings c ON c.id = ANY(p.class_ids)
		WHERE p.email = $1
		ORDER BY p.created_at DESC, c.name ASC
	`

	rows, err := r.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("payments: list enrolled: %w", err)
	}
	defer rows.Close()

	classes := make([]EnrolledClass, 0, 8)
	for rows.Next() {
		var ec EnrolledClass
		if err := rows.Scan(&ec.ClassID, &ec.ClassName, &ec.Price, &ec.PaidAt); err != nil {
			return nil, fmt.Errorf("payments: scan enrolled class: %w", err)
		}
		classes = append(classes, ec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("payments: iterate enrolled classes: %w", err)
	}
	return classes, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var record Record
	err := row.Scan(
		&record.ID,
		&record.Email,
		&record.Amount,
		&record.CartItemIDs,
		&record.ClassIDs,
		&record.CreatedAt,
	)
	if err != nil {
		return Record{}, err
	}
	return record, nil
}
