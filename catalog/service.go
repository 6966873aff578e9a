package catalog

import "context"

// OfferingStore abstracts repository operations for the service.
type OfferingStore interface {
	GetByID(ctx context.Context, id string) (Offering, error)
	ListApproved(ctx context.Context, limit int) ([]Offering, error)
	SetStatus(ctx context.Context, id string, status Status) (Offering, error)
}

// Service exposes business-level catalog operations.
type Service struct {
	repo OfferingStore
}

// NewService builds a Service using the provided repository.
func NewService(repo OfferingStore) *Service {
	return &Service{repo: repo}
}

// GetByID returns the offering for the given identifier.
func (s *Service) GetByID(ctx context.Context, id string) (Offering, error) {
	return s.repo.GetByID(ctx, id)
}

// ListApproved returns up to limit approved offerings.
func (s *Service) ListApproved(ctx context.Context, limit int) ([]Offering, error) {
	return s.repo.ListApproved(ctx, limit)
}

// Approve moves a pending offering to approved. Idempotent on re-application.
func (s *Service) Approve(ctx context.Context, id string) (Offering, error) {
	return s.repo.SetStatus(ctx, id, StatusApproved)
}

// Deny moves a pending offering to denied. Idempotent on re-application.
func (s *Service) Deny(ctx context.Context, id string) (Offering, error) {
	return s.repo.SetStatus(ctx, id, StatusDenied)
}
