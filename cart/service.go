package cart

import (
	"context"
	"fmt"
)

// Service exposes business-level cart operations. Every operation is scoped
// to the authenticated owner email resolved by the access guard; the service
// itself never widens that scope.
type Service struct {
	repo Repository
}

// NewService builds a Service using the provided repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Add puts an approved class into the owner's cart.
func (s *Service) Add(ctx context.Context, ownerEmail, classID string) (Item, error) {
	if ownerEmail == "" || classID == "" {
		return Item{}, fmt.Errorf("cart: owner email and class id required")
	}
	return s.repo.Add(ctx, AddParams{OwnerEmail: ownerEmail, ClassID: classID})
}

// ListByOwner returns the owner's current cart.
func (s *Service) ListByOwner(ctx context.Context, ownerEmail string) ([]Item, error) {
	return s.repo.ListByOwner(ctx, ownerEmail)
}

// Remove deletes one of the owner's items.
func (s *Service) Remove(ctx context.Context, ownerEmail, itemID string) error {
	return s.repo.Remove(ctx, ownerEmail, itemID)
}
