package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the durable receipt for a settled purchase. It is immutable once
// inserted and serves as the idempotency key for external reconciliation of
// any settlement that stopped partway.
type Record struct {
	ID          string
	Email       string
	Amount      decimal.Decimal
	CartItemIDs []string
	ClassIDs    []string
	CreatedAt   time.Time
}

// RecordParams enumerates the fields written for a new payment record.
type RecordParams struct {
	Email       string
	Amount      decimal.Decimal
	CartItemIDs []string
	ClassIDs    []string
}

// SettleRequest captures a confirmed charge normalized for the settlement
// service. Class ids are intentionally absent: they are derived from the
// referenced cart items, never trusted from the client.
type SettleRequest struct {
	Email       string
	Amount      decimal.Decimal
	CartItemIDs []string
}

// SettleResult reports a fully completed settlement.
type SettleResult struct {
	Payment          Record
	EnrolledClassIDs []string
}

// SettleItem is the slice of a cart item the settlement needs.
type SettleItem struct {
	ID      string
	ClassID string
	Price   decimal.Decimal
}

// EnrolledClass is one class a user holds a settled payment for.
type EnrolledClass struct {
	ClassID   string
	ClassName string
	Price     decimal.Decimal
	PaidAt    time.Time
}

// PartialError reports a settlement where the payment record committed but
// cart cleanup or seat updates did not. The payment id gives reconciliation
// tooling its retry key; clients must not resubmit the purchase.
type PartialError struct {
	PaymentID string
	Err       error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("payments: payment %s settled but enrollment incomplete: %v", e.PaymentID, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }
