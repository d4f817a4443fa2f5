package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *sql.DB, email string) *model.User {
	t.Helper()
	u, err := NewUserStore(db).Create(context.Background(), email, "correct horse", "Test User")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}
