package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"billdesk/internal/domain"
	"billdesk/internal/store"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func (s *userStoreStub) DeleteUser(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, username)
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	ctx := context.Background()
	users := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager(ctx, "test-secret", time.Hour, users)
	_, err := manager.Login(ctx, domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	stored, err := users.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("expected 1 user, got %d", len(stored))
	}
	if stored[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !isPasswordHash(stored[0].Password) {
		t.Fatalf("expected bcrypt hash, got %q", stored[0].Password)
	}
}

func TestCreateUserStoresPasswordHash(t *testing.T) {
	ctx := context.Background()
	users := &userStoreStub{}
	manager := NewAuthManager(ctx, "test-secret", time.Hour, users)

	created, err := manager.CreateUser(ctx, domain.UserCreateRequest{
		Username: " Cashier1 ",
		Password: "secret123",
	})
	if err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if created.Username != "cashier1" || created.Role != RoleCashier {
		t.Fatalf("unexpected account: %+v", created)
	}

	stored := users.users["cashier1"]
	if stored.Password == "secret123" || !isPasswordHash(stored.Password) {
		t.Fatalf("expected stored bcrypt hash, got %q", stored.Password)
	}

	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "CASHIER1", Password: "secret123"}); err != nil {
		t.Fatalf("login as new user failed: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	ctx := context.Background()
	manager := NewAuthManager(ctx, "test-secret", time.Hour, &userStoreStub{})

	cases := []struct {
		name string
		req  domain.UserCreateRequest
	}{
		{"short username", domain.UserCreateRequest{Username: "abc", Password: "secret123"}},
		{"spaces", domain.UserCreateRequest{Username: "cash ier", Password: "secret123"}},
		{"short password", domain.UserCreateRequest{Username: "cashier", Password: "123"}},
		{"unknown role", domain.UserCreateRequest{Username: "cashier", Password: "secret123", Role: "owner"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := manager.CreateUser(ctx, tc.req)
			if !errors.Is(err, store.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}

	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "cashier", Password: "secret123"}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "cashier", Password: "secret123"}); !errors.Is(err, store.ErrConsistency) {
		t.Fatalf("expected duplicate to be a consistency error, got %v", err)
	}
}

func TestDeleteUserRefusesSelfAndDropsCredentials(t *testing.T) {
	ctx := context.Background()
	users := &userStoreStub{}
	manager := NewAuthManager(ctx, "test-secret", time.Hour, users)
	if _, err := manager.CreateUser(ctx, domain.UserCreateRequest{Username: "cashier", Password: "secret123"}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	self := domain.Actor{Username: "cashier", Role: RoleAdmin}
	if err := manager.DeleteUser(ctx, self, "cashier"); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected self-delete to be rejected, got %v", err)
	}

	admin := domain.Actor{Username: "admin", Role: RoleAdmin}
	if err := manager.DeleteUser(ctx, admin, "cashier"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := manager.Login(ctx, domain.LoginRequest{Username: "cashier", Password: "secret123"}); err == nil {
		t.Fatalf("expected login to fail after delete")
	}
	if err := manager.DeleteUser(ctx, admin, "cashier"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	ctx := context.Background()
	users := &userStoreStub{}
	issuer := NewAuthManager(ctx, "first-secret", time.Hour, users)
	if _, err := issuer.CreateUser(ctx, domain.UserCreateRequest{Username: "admin", Password: "secret123", Role: RoleAdmin}); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	resp, err := issuer.Login(ctx, domain.LoginRequest{Username: "admin", Password: "secret123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := issuer.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "admin" || actor.Role != RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}

	other := NewAuthManager(ctx, "second-secret", time.Hour, users)
	if _, err := other.ParseToken(resp.AccessToken); err == nil || !strings.Contains(err.Error(), "invalid") {
		t.Fatalf("expected token from another secret to be rejected, got %v", err)
	}
}
