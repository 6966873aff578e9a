package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestService_RegisterAndLogin(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, NewTokenService("test-secret"))

	req := RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice Appleseed",
		Password: "supersafe",
	}

	ctx := context.Background()
	user, err := svc.Register(ctx, req)
	if err != nil {
		t.Fatalf("register: unexpected error: %v", err)
	}

	if user.Email != req.Email {
		t.Fatalf("expected email %q got %q", req.Email, user.Email)
	}
	if user.Role != RoleNone {
		t.Fatalf("register: expected implicit student role, got %q", user.Role)
	}

	resp, err := svc.Login(ctx, LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		t.Fatalf("login: unexpected error: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("login: expected token, got empty string")
	}
	if resp.User.Email != user.Email {
		t.Fatalf("login: expected email %q got %q", user.Email, resp.User.Email)
	}
}

func TestService_RegisterValidation(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, NewTokenService("test-secret"))

	_, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice Appleseed",
		Password: "short",
	})
	if !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}

	if _, err := svc.Register(context.Background(), RegisterRequest{
		Email:    "",
		Name:     "",
		Password: "strongpassword",
	}); err == nil {
		t.Fatal("expected validation error for missing fields")
	}
}

func TestService_RegisterIdempotent(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, NewTokenService("test-secret"))

	req := RegisterRequest{
		Email:    "alice@example.com",
		Name:     "Alice Appleseed",
		Password: "strongpassword",
	}
	first, err := svc.Register(context.Background(), req)
	if err != nil {
		t.Fatalf("first register failed: %v", err)
	}

	// An admin elevates the account between the two registrations; the
	// second call must not clobber the stored role.
	if _, err := svc.SetRole(context.Background(), first.Email, RoleInstructor); err != nil {
		t.Fatalf("set role: %v", err)
	}

	if _, err := svc.Register(context.Background(), req); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}

	stored, err := repo.GetUserByEmail(context.Background(), first.Email)
	if err != nil {
		t.Fatalf("get stored user: %v", err)
	}
	if stored.ID != first.ID {
		t.Fatalf("expected single stored row, got id %q then %q", first.ID, stored.ID)
	}
	if stored.Role != RoleInstructor {
		t.Fatalf("expected role untouched by re-register, got %q", stored.Role)
	}
	if repo.createCalls != 2 {
		t.Fatalf("expected 2 create attempts, got %d", repo.createCalls)
	}
}

func TestService_LoginInvalidCredentials(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, NewTokenService("test-secret"))

	_, err := svc.Login(context.Background(), LoginRequest{
		Email:    "unknown@example.com",
		Password: "irrelevant",
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestService_RoleOfIsFresh(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, NewTokenService("test-secret"))

	ctx := context.Background()
	if _, err := svc.Register(ctx, RegisterRequest{
		Email:    "user@example.com",
		Name:     "User",
		Password: "strongpassword",
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	role, err := svc.RoleOf(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("role of: %v", err)
	}
	if role != RoleNone {
		t.Fatalf("expected no role before promotion, got %q", role)
	}

	if _, err := svc.SetRole(ctx, "user@example.com", RoleInstructor); err != nil {
		t.Fatalf("set role: %v", err)
	}

	// No token re-issuance needed: the next lookup sees the promotion.
	role, err = svc.RoleOf(ctx, "user@example.com")
	if err != nil {
		t.Fatalf("role of after promotion: %v", err)
	}
	if role != RoleInstructor {
		t.Fatalf("expected instructor after promotion, got %q", role)
	}

	ok, err := svc.IsInstructor(ctx, "user@example.com")
	if err != nil || !ok {
		t.Fatalf("expected IsInstructor true, got %v %v", ok, err)
	}
	ok, err = svc.IsAdmin(ctx, "user@example.com")
	if err != nil || ok {
		t.Fatalf("expected IsAdmin false, got %v %v", ok, err)
	}
}

func TestService_RoleOfAbsentUser(t *testing.T) {
	repo := newFakeRepository()
	svc := NewService(repo, NewTokenService("test-secret"))

	role, err := svc.RoleOf(context.Background(), "ghost@example.com")
	if err != nil {
		t.Fatalf("expected absent user to resolve, got %v", err)
	}
	if role != RoleNone {
		t.Fatalf("expected RoleNone for absent user, got %q", role)
	}
}

func TestService_RoleOfStoreOutage(t *testing.T) {
	repo := newFakeRepository()
	repo.getErr = errors.New("connection refused")
	svc := NewService(repo, NewTokenService("test-secret"))

	_, err := svc.RoleOf(context.Background(), "user@example.com")
	if !errors.Is(err, ErrDirectoryUnavailable) {
		t.Fatalf("expected ErrDirectoryUnavailable, got %v", err)
	}
}

type fakeRepository struct {
	usersByEmail map[string]User
	nextID       int
	createCalls  int
	getErr       error
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		usersByEmail: make(map[string]User),
		nextID:       1,
	}
}

func (f *fakeRepository) CreateUser(ctx context.Context, params CreateUserParams) (User, error) {
	f.createCalls++
	if _, exists := f.usersByEmail[strings.ToLower(params.Email)]; exists {
		return User{}, ErrAlreadyExists
	}

	id := fmt.Sprintf("user-%d", f.nextID)
	f.nextID++

	user := User{
		ID:           id,
		Email:        params.Email,
		Name:         params.Name,
		PhotoURL:     params.PhotoURL,
		PasswordHash: params.PasswordHash,
		Role:         RoleNone,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}

	f.usersByEmail[strings.ToLower(user.Email)] = user
	return user, nil
}

func (f *fakeRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	if f.getErr != nil {
		return User{}, f.getErr
	}
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (f *fakeRepository) UpdateRole(ctx context.Context, email string, role Role) (User, error) {
	user, ok := f.usersByEmail[strings.ToLower(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	user.Role = role
	user.UpdatedAt = time.Now().UTC()
	f.usersByEmail[strings.ToLower(email)] = user
	return user, nil
}
