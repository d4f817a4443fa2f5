package store

import (
	"context"
	"errors"
	"testing"
)

func setupUserTestDB(t *testing.T) *UserStore {
	t.Helper()
	return NewUserStore(openTestDB(t))
}

func TestUserCreate(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	u, err := us.Create(ctx, " Alice@Example.com ", "hunter22", "Alice")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.Email != "alice@example.com" {
		t.Errorf("email = %q, want %q", u.Email, "alice@example.com")
	}
	if u.Name != "Alice" {
		t.Errorf("name = %q, want %q", u.Name, "Alice")
	}
	if u.ID == "" {
		t.Error("expected non-empty ID")
	}
	if u.IsPremium {
		t.Error("new user should not be premium")
	}
	if u.PasswordHash == "hunter22" {
		t.Error("password stored in plain text")
	}
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	if _, err := us.Create(ctx, "alice@example.com", "hunter22", "Alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	_, err := us.Create(ctx, "ALICE@example.com", "hunter23", "Alice2")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestUserGetByEmailNotFound(t *testing.T) {
	us := setupUserTestDB(t)

	u, err := us.GetByEmail(context.Background(), "nobody@example.com")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if u != nil {
		t.Error("expected nil for unknown email")
	}
}

func TestUserAuthenticate(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	created, _ := us.Create(ctx, "alice@example.com", "hunter22", "Alice")

	u, err := us.Authenticate(ctx, "alice@example.com", "hunter22")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if u == nil || u.ID != created.ID {
		t.Fatalf("authenticate returned %+v, want user %s", u, created.ID)
	}

	u, err = us.Authenticate(ctx, "alice@example.com", "wrong")
	if err != nil {
		t.Fatalf("authenticate wrong password: %v", err)
	}
	if u != nil {
		t.Error("expected nil user for wrong password")
	}
}

func TestUserSetPremium(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	created, _ := us.Create(ctx, "alice@example.com", "hunter22", "Alice")
	if err := us.SetPremium(ctx, created.ID, true); err != nil {
		t.Fatalf("set premium: %v", err)
	}
	u, _ := us.GetByID(ctx, created.ID)
	if !u.IsPremium {
		t.Error("expected premium after SetPremium")
	}

	if err := us.SetPremium(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUserSetStripeCustomerID(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	created, _ := us.Create(ctx, "alice@example.com", "hunter22", "Alice")
	if created.StripeCustomerID != nil {
		t.Fatal("expected nil stripe customer id")
	}
	if err := us.SetStripeCustomerID(ctx, created.ID, "cus_123"); err != nil {
		t.Fatalf("set stripe customer id: %v", err)
	}
	u, _ := us.GetByID(ctx, created.ID)
	if u.StripeCustomerID == nil || *u.StripeCustomerID != "cus_123" {
		t.Errorf("stripe customer id = %v, want cus_123", u.StripeCustomerID)
	}
}

func TestUserSetAdminAndList(t *testing.T) {
	us := setupUserTestDB(t)
	ctx := context.Background()

	alice, _ := us.Create(ctx, "alice@example.com", "hunter22", "Alice")
	bob, _ := us.Create(ctx, "bob@example.com", "hunter22", "Bob")
	if alice.IsAdmin {
		t.Fatal("new users must not be admins")
	}
	if err := us.SetAdmin(ctx, bob.ID, true); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if err := us.SetAdmin(ctx, "missing", true); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	users, err := us.List(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}
	admins := map[string]bool{}
	for _, u := range users {
		admins[u.Email] = u.IsAdmin
	}
	if admins["alice@example.com"] || !admins["bob@example.com"] {
		t.Errorf("admin flags = %v", admins)
	}
}
