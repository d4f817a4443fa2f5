package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/themeshop/internal/model"
)

func strPtr(s string) *string { return &s }

func TestLicenseCreate(t *testing.T) {
	db := openTestDB(t)
	ls := NewLicenseStore(db)
	u := createTestUser(t, db, "alice@example.com")

	l, err := ls.Create(context.Background(), &model.License{
		UserID:          u.ID,
		Key:             "TF-ABCD-EFGH-JKLM-NPQR",
		StripeSessionID: strPtr("cs_1"),
		AmountPaid:      4999,
		Currency:        "USD",
	})
	if err != nil {
		t.Fatalf("create license: %v", err)
	}
	if l.Currency != "usd" {
		t.Errorf("currency = %q, want usd", l.Currency)
	}
	if l.StripeSessionID == nil || *l.StripeSessionID != "cs_1" {
		t.Errorf("session id = %v, want cs_1", l.StripeSessionID)
	}
	if l.StripePaymentIntentID != nil {
		t.Errorf("payment intent = %v, want nil", *l.StripePaymentIntentID)
	}
	if l.PurchasedAt.IsZero() {
		t.Error("expected purchased_at to be set")
	}
}

func TestLicenseCreateDuplicateKey(t *testing.T) {
	db := openTestDB(t)
	ls := NewLicenseStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")

	ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-AAAA-AAAA-AAAA-AAAA", StripeSessionID: strPtr("cs_1")})
	_, err := ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-AAAA-AAAA-AAAA-AAAA", StripeSessionID: strPtr("cs_2")})

	var kc *KeyConflictError
	if !errors.As(err, &kc) {
		t.Fatalf("err = %v, want *KeyConflictError", err)
	}
	if kc.Column != "license_key" {
		t.Errorf("column = %q, want license_key", kc.Column)
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("expected KeyConflictError to unwrap to ErrConflict")
	}
}

func TestLicenseCreateDuplicateSession(t *testing.T) {
	db := openTestDB(t)
	ls := NewLicenseStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")

	ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-AAAA-AAAA-AAAA-AAAA", StripeSessionID: strPtr("cs_1")})
	_, err := ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-BBBB-BBBB-BBBB-BBBB", StripeSessionID: strPtr("cs_1")})

	var kc *KeyConflictError
	if !errors.As(err, &kc) {
		t.Fatalf("err = %v, want *KeyConflictError", err)
	}
	if kc.Column != "stripe_session_id" {
		t.Errorf("column = %q, want stripe_session_id", kc.Column)
	}
}

func TestLicenseGetByKey(t *testing.T) {
	db := openTestDB(t)
	ls := NewLicenseStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")

	created, _ := ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-ABCD-EFGH-JKLM-NPQR"})

	l, err := ls.GetByKey(ctx, " tf-abcd-efgh-jklm-npqr ")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if l == nil || l.ID != created.ID {
		t.Fatalf("get by key = %+v, want %s", l, created.ID)
	}

	l, err = ls.GetByKey(ctx, "TF-ZZZZ-ZZZZ-ZZZZ-ZZZZ")
	if err != nil {
		t.Fatalf("get by key: %v", err)
	}
	if l != nil {
		t.Error("expected nil for unknown key")
	}
}

func TestLicenseLatestForUser(t *testing.T) {
	db := openTestDB(t)
	ls := NewLicenseStore(db)
	ctx := context.Background()
	u := createTestUser(t, db, "alice@example.com")

	now := time.Now().UTC()
	ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-AAAA-AAAA-AAAA-AAAA", PurchasedAt: now.Add(-time.Hour)})
	newest, _ := ls.Create(ctx, &model.License{UserID: u.ID, Key: "TF-BBBB-BBBB-BBBB-BBBB", PurchasedAt: now})

	l, err := ls.LatestForUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("latest for user: %v", err)
	}
	if l == nil || l.ID != newest.ID {
		t.Fatalf("latest = %+v, want %s", l, newest.ID)
	}

	n, _ := ls.CountByUser(ctx, u.ID)
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}
