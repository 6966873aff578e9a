package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status represents the approval lifecycle of a class offering.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

// Offering mirrors the class_offerings table. The enrolled and
// available_seats counters move in lockstep and only through the settlement
// transaction, never through this package.
type Offering struct {
	ID              string
	Name            string
	InstructorEmail string
	Price           decimal.Decimal
	Status          Status
	Enrolled        int
	AvailableSeats  int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
