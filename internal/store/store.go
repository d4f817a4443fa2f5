package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrConflict is returned when a write violates a UNIQUE constraint.
	ErrConflict = errors.New("already exists")
	// ErrNotFound is returned when a mutation targets a row that does not exist.
	ErrNotFound = errors.New("not found")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func newID() string {
	return uuid.NewString()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
