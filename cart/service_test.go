package cart

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type fakeRepository struct {
	items  map[string]Item
	nextID int
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{items: make(map[string]Item), nextID: 1}
}

func (f *fakeRepository) Add(_ context.Context, params AddParams) (Item, error) {
	for _, it := range f.items {
		if it.OwnerEmail == params.OwnerEmail && it.ClassID == params.ClassID {
			return Item{}, ErrDuplicateItem
		}
	}
	item := Item{
		ID:         fmt.Sprintf("item-%d", f.nextID),
		OwnerEmail: params.OwnerEmail,
		ClassID:    params.ClassID,
		Price:      decimal.NewFromInt(25),
		CreatedAt:  time.Now().UTC(),
	}
	f.nextID++
	f.items[item.ID] = item
	return item, nil
}

func (f *fakeRepository) ListByOwner(_ context.Context, ownerEmail string) ([]Item, error) {
	out := make([]Item, 0, len(f.items))
	for _, it := range f.items {
		if it.OwnerEmail == ownerEmail {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeRepository) Remove(_ context.Context, ownerEmail, itemID string) error {
	it, ok := f.items[itemID]
	if !ok || it.OwnerEmail != ownerEmail {
		return ErrItemNotFound
	}
	delete(f.items, itemID)
	return nil
}

func TestService_AddAndList(t *testing.T) {
	svc := NewService(newFakeRepository())
	ctx := context.Background()

	item, err := svc.Add(ctx, "alice@example.com", "class-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if item.OwnerEmail != "alice@example.com" {
		t.Fatalf("expected owner alice, got %q", item.OwnerEmail)
	}

	items, err := svc.ListByOwner(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("unexpected items: %+v", items)
	}
}

func TestService_ListNeverLeaksAcrossOwners(t *testing.T) {
	svc := NewService(newFakeRepository())
	ctx := context.Background()

	if _, err := svc.Add(ctx, "alice@example.com", "class-1"); err != nil {
		t.Fatalf("add alice: %v", err)
	}
	if _, err := svc.Add(ctx, "bob@example.com", "class-2"); err != nil {
		t.Fatalf("add bob: %v", err)
	}

	items, err := svc.ListByOwner(ctx, "bob@example.com")
	if err != nil {
		t.Fatalf("list bob: %v", err)
	}
	for _, it := range items {
		if it.OwnerEmail != "bob@example.com" {
			t.Fatalf("bob's listing leaked item owned by %q", it.OwnerEmail)
		}
	}
	if len(items) != 1 {
		t.Fatalf("expected exactly bob's item, got %d", len(items))
	}
}

func TestService_RemoveScopedToOwner(t *testing.T) {
	svc := NewService(newFakeRepository())
	ctx := context.Background()

	item, err := svc.Add(ctx, "alice@example.com", "class-1")
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	// Bob cannot remove Alice's item even with a valid id.
	if err := svc.Remove(ctx, "bob@example.com", item.ID); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound for cross-owner removal, got %v", err)
	}

	if err := svc.Remove(ctx, "alice@example.com", item.ID); err != nil {
		t.Fatalf("owner removal failed: %v", err)
	}

	items, err := svc.ListByOwner(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty cart, got %d items", len(items))
	}
}

func TestService_AddValidation(t *testing.T) {
	svc := NewService(newFakeRepository())

	if _, err := svc.Add(context.Background(), "", "class-1"); err == nil {
		t.Fatal("expected error for missing owner email")
	}
	if _, err := svc.Add(context.Background(), "alice@example.com", ""); err == nil {
		t.Fatal("expected error for missing class id")
	}
}

func TestService_AddDuplicate(t *testing.T) {
	svc := NewService(newFakeRepository())
	ctx := context.Background()

	if _, err := svc.Add(ctx, "alice@example.com", "class-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := svc.Add(ctx, "alice@example.com", "class-1"); !errors.Is(err, ErrDuplicateItem) {
		t.Fatalf("expected ErrDuplicateItem, got %v", err)
	}
}
