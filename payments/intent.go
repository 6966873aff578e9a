package payments

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// IntentRequest asks the processor to prepare a charge.
type IntentRequest struct {
	Amount   decimal.Decimal
	Currency string
}

// IntentCreator is the payment-processor collaborator: given an amount and
// currency it returns an opaque client secret. The settlement service treats
// the processor as a black box.
type IntentCreator interface {
	CreateIntent(ctx context.Context, req IntentRequest) (string, error)
}

// StripeIntents implements IntentCreator against the Stripe API.
type StripeIntents struct {
	api *client.API
}

// NewStripeIntents builds a Stripe-backed intent creator from a secret key.
func NewStripeIntents(secretKey string) *StripeIntents {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeIntents{api: api}
}

// CreateIntent creates a payment intent and returns its client secret.
// Stripe amounts are integral minor units, so the decimal amount is shifted
// two places and must land on a whole cent.
func (s *StripeIntents) CreateIntent(ctx context.Context, req IntentRequest) (string, error) {
	cents := req.Amount.Shift(2)
	if !cents.IsInteger() {
		return "", fmt.Errorf("payments: amount %s is not a whole cent value", req.Amount)
	}

	params := &stripe.PaymentIntentParams{
		Params:   stripe.Params{Context: ctx},
		Amount:   stripe.Int64(cents.IntPart()),
		Currency: stripe.String(req.Currency),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
	}

	intent, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("payments: create payment intent: %w", err)
	}
	return intent.ClientSecret, nil
}
