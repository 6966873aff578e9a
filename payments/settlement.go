package payments

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// TxBeginner abstracts pgxpool.Pool for testability.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Service runs the settlement protocol that converts a paid cart into
// enrollment state. The protocol is a fixed three-step sequence: record the
// payment (durable checkpoint), free the cart, adjust seats. A failure after
// the checkpoint is reported as *PartialError, never swallowed.
type Service struct {
	pool    TxBeginner
	repo    Repository
	intents IntentCreator
	logger  *slog.Logger
}

// NewService creates a settlement service.
func NewService(pool TxBeginner, repo Repository, intents IntentCreator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		pool:    pool,
		repo:    repo,
		intents: intents,
		logger:  logger,
	}
}

// CreateIntent asks the payment processor for a new payment intent and
// returns its opaque client secret.
func (s *Service) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	if s.intents == nil {
		return "", fmt.Errorf("payments: no intent creator configured")
	}
	if req.Amount.Sign() <= 0 {
		return "", fmt.Errorf("payments: intent amount must be positive")
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}
	return s.intents.CreateIntent(ctx, req)
}

// Settle applies the post-confirmation settlement for a paid cart.
//
// Steps run in a fixed order:
//  1. Load the referenced cart items scoped to the paying identity and
//     derive the class set from them. Nothing written on failure.
//  2. Insert the immutable payment record in its own transaction. From here
//     on the purchase is financially settled.
//  3. In one store transaction, delete the cart items and apply the batched
//     seat adjustment. If either write misses a row the transaction rolls
//     back and the outcome is *PartialError carrying the payment id.
func (s *Service) Settle(ctx context.Context, req SettleRequest) (SettleResult, error) {
	if req.Email == "" {
		return SettleResult{}, fmt.Errorf("payments: missing email")
	}
	if len(req.CartItemIDs) == 0 {
		return SettleResult{}, fmt.Errorf("payments: missing cart item ids")
	}

	items, err := s.repo.ItemsForSettlement(ctx, req.Email, req.CartItemIDs)
	if err != nil {
		return SettleResult{}, err
	}

	classIDs := dedupClassIDs(items)

	record, err := s.repo.InsertRecord(ctx, RecordParams{
		Email:       req.Email,
		Amount:      req.Amount,
		CartItemIDs: req.CartItemIDs,
		ClassIDs:    classIDs,
	})
	if err != nil {
		return SettleResult{}, err
	}

	if err := s.completeEnrollment(ctx, record, req); err != nil {
		s.logger.ErrorContext(ctx, "settlement left incomplete",
			"payment_id", record.ID,
			"email", req.Email,
			"error", err,
		)
		return SettleResult{}, &PartialError{PaymentID: record.ID, Err: err}
	}

	s.logger.InfoContext(ctx, "settlement complete",
		"payment_id", record.ID,
		"email", req.Email,
		"items", len(req.CartItemIDs),
		"classes", len(classIDs),
	)

	return SettleResult{Payment: record, EnrolledClassIDs: classIDs}, nil
}

func (s *Service) completeEnrollment(ctx context.Context, record Record, req SettleRequest) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("payments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	removed, err := s.repo.RemoveCartItems(ctx, tx, req.Email, req.CartItemIDs)
	if err != nil {
		return err
	}
	if removed != int64(len(req.CartItemIDs)) {
		return fmt.Errorf("payments: removed %d of %d cart items", removed, len(req.CartItemIDs))
	}

	adjusted, err := s.repo.AdjustSeats(ctx, tx, record.ClassIDs)
	if err != nil {
		return err
	}
	if adjusted != int64(len(record.ClassIDs)) {
		return ErrSeatsExhausted
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("payments: commit tx: %w", err)
	}
	return nil
}

// HistoryByEmail returns the owner's payment history.
func (s *Service) HistoryByEmail(ctx context.Context, email string) ([]Record, error) {
	return s.repo.HistoryByEmail(ctx, email)
}

// EnrolledByEmail returns the classes the owner holds settled payments for.
func (s *Service) EnrolledByEmail(ctx context.Context, email string) ([]EnrolledClass, error) {
	return s.repo.EnrolledByEmail(ctx, email)
}

// dedupClassIDs collapses cart items mapping to the same class so a class is
// never adjusted twice within one settlement.
func dedupClassIDs(items []SettleItem) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ClassID]; ok {
			continue
		}
		seen[item.ClassID] = struct{}{}
		out = append(out, item.ClassID)
	}
	return out
}
