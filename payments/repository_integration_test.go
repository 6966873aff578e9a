package payments

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TestSettle_Integration connects to a real PostgreSQL via DATABASE_URL and
// verifies the end-to-end repository + service behavior including the seat
// floor and the owner-scoped cart cleanup.
func TestSettle_Integration(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is empty; set it to a live PostgreSQL to run integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	defer pool.Close()

	if !tableExists(ctx, t, pool, "users") || !tableExists(ctx, t, pool, "class_offerings") ||
		!tableExists(ctx, t, pool, "cart_items") || !tableExists(ctx, t, pool, "payment_records") {
		t.Skip("database schema missing; apply migrations/001_init.sql first")
	}

	email := fmt.Sprintf("buyer+%d@example.com", time.Now().UnixNano())

	mustQueryRow := func(query string, args ...any) pgx.Row {
		return pool.QueryRow(ctx, query, args...)
	}

	if _, err := pool.Exec(ctx, `INSERT INTO users (email, name, password_hash, role) VALUES ($1, 'Buyer', 'x', '')`, email); err != nil {
		t.Fatalf("seed user: %v", err)
	}

	var classA, classB string
	if err := mustQueryRow(`
		INSERT INTO class_offerings (name, instructor_email, price, status, enrolled, available_seats)
		VALUES ($1, $2, 20, 'approved', 0, 5) RETURNING id
	`, fmt.Sprintf("Pottery %d", time.Now().UnixNano()), email).Scan(&classA); err != nil {
		t.Fatalf("seed class A: %v", err)
	}
	if err := mustQueryRow(`
		INSERT INTO class_offerings (name, instructor_email, price, status, enrolled, available_seats)
		VALUES ($1, $2, 30, 'approved', 2, 1) RETURNING id
	`, fmt.Sprintf("Archery %d", time.Now().UnixNano()), email).Scan(&classB); err != nil {
		t.Fatalf("seed class B: %v", err)
	}

	var itemA, itemB string
	if err := mustQueryRow(`
		INSERT INTO cart_items (owner_email, class_id, class_name, price)
		SELECT $1, id, name, price FROM class_offerings WHERE id = $2 RETURNING id
	`, email, classA).Scan(&itemA); err != nil {
		t.Fatalf("seed cart item A: %v", err)
	}
	if err := mustQueryRow(`
		INSERT INTO cart_items (owner_email, class_id, class_name, price)
		SELECT $1, id, name, price FROM class_offerings WHERE id = $2 RETURNING id
	`, email, classB).Scan(&itemB); err != nil {
		t.Fatalf("seed cart item B: %v", err)
	}

	t.Cleanup(func() {
		ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel2()
		pool.Exec(ctx2, `DELETE FROM payment_records WHERE email = $1`, email)
		pool.Exec(ctx2, `DELETE FROM cart_items WHERE owner_email = $1`, email)
		pool.Exec(ctx2, `DELETE FROM class_offerings WHERE id IN ($1, $2)`, classA, classB)
		pool.Exec(ctx2, `DELETE FROM users WHERE email = $1`, email)
	})

	repo := NewRepository(pool)
	svc := NewService(pool, repo, nil, nil)

	result, err := svc.Settle(ctx, SettleRequest{
		Email:       email,
		Amount:      decimal.NewFromInt(50),
		CartItemIDs: []string{itemA, itemB},
	})
	if err != nil {
		t.Fatalf("settle: %v", err)
	}

	// Cart is emptied for the owner.
	var remaining int
	if err := mustQueryRow(`SELECT count(*) FROM cart_items WHERE owner_email = $1`, email).Scan(&remaining); err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected empty cart, %d items remain", remaining)
	}

	// Seats moved by exactly one in lockstep.
	var enrolled, seats int
	if err := mustQueryRow(`SELECT enrolled, available_seats FROM class_offerings WHERE id = $1`, classA).Scan(&enrolled, &seats); err != nil {
		t.Fatalf("read class A: %v", err)
	}
	if enrolled != 1 || seats != 4 {
		t.Fatalf("class A: expected enrolled=1 seats=4, got %d/%d", enrolled, seats)
	}
	if err := mustQueryRow(`SELECT enrolled, available_seats FROM class_offerings WHERE id = $1`, classB).Scan(&enrolled, &seats); err != nil {
		t.Fatalf("read class B: %v", err)
	}
	if enrolled != 3 || seats != 0 {
		t.Fatalf("class B: expected enrolled=3 seats=0, got %d/%d", enrolled, seats)
	}

	// Exactly one record referencing both item ids.
	records, err := svc.HistoryByEmail(ctx, email)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 payment record, got %d", len(records))
	}
	if records[0].ID != result.Payment.ID || len(records[0].CartItemIDs) != 2 {
		t.Fatalf("unexpected record: %+v", records[0])
	}

	enrolledClasses, err := svc.EnrolledByEmail(ctx, email)
	if err != nil {
		t.Fatalf("enrolled: %v", err)
	}
	if len(enrolledClasses) != 2 {
		t.Fatalf("expected 2 enrolled classes, got %d", len(enrolledClasses))
	}

	// A second settlement against class B must fail: zero seats left. The
	// cart item is seeded again to make the request well formed.
	var itemB2 string
	if err := mustQueryRow(`
		INSERT INTO cart_items (owner_email, class_id, class_name, price)
		SELECT $1, id, name, price FROM class_offerings WHERE id = $2 RETURNING id
	`, email, classB).Scan(&itemB2); err != nil {
		t.Fatalf("seed cart item B2: %v", err)
	}

	_, err = svc.Settle(ctx, SettleRequest{
		Email:       email,
		Amount:      decimal.NewFromInt(30),
		CartItemIDs: []string{itemB2},
	})
	var partial *PartialError
	if !errors.As(err, &partial) {
		t.Fatalf("expected *PartialError on exhausted seats, got %v", err)
	}
	if !errors.Is(err, ErrSeatsExhausted) {
		t.Fatalf("expected seat exhaustion cause, got %v", err)
	}

	// The floor held and the losing cart item survived the rollback.
	if err := mustQueryRow(`SELECT available_seats FROM class_offerings WHERE id = $1`, classB).Scan(&seats); err != nil {
		t.Fatalf("read class B seats: %v", err)
	}
	if seats != 0 {
		t.Fatalf("expected seats floored at 0, got %d", seats)
	}
	if err := mustQueryRow(`SELECT count(*) FROM cart_items WHERE owner_email = $1`, email).Scan(&remaining); err != nil {
		t.Fatalf("count cart items: %v", err)
	}
	if remaining != 1 {
		t.Fatalf("expected losing cart item to survive rollback, got %d items", remaining)
	}
}

func tableExists(ctx context.Context, t *testing.T, pool *pgxpool.Pool, name string) bool {
	t.Helper()
	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, name).Scan(&exists); err != nil {
		t.Fatalf("check table %s: %v", name, err)
	}
	return exists
}
