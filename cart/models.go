package cart

import (
	"time"

	"github.com/shopspring/decimal"
)

// Item represents one class held in a user's cart. An item belongs to
// exactly one owner email and is never visible to another identity. It is
// destroyed by explicit removal or implicitly when its purchase settles.
type Item struct {
	ID         string
	OwnerEmail string
	ClassID    string
	ClassName  string
	Price      decimal.Decimal
	CreatedAt  time.Time
}

// AddParams enumerates the required fields to insert a new cart item.
type AddParams struct {
	OwnerEmail string
	ClassID    string
}
