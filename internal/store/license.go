package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
)

type LicenseStore struct {
	db DBTX
}

func NewLicenseStore(db DBTX) *LicenseStore {
	return &LicenseStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *LicenseStore) WithTx(tx *sql.Tx) *LicenseStore {
	return &LicenseStore{db: tx}
}

func scanLicense(scanner interface{ Scan(...any) error }) (*model.License, error) {
	var l model.License
	var sessionID, intentID sql.NullString
	err := scanner.Scan(
		&l.ID, &l.UserID, &l.Key, &sessionID, &intentID,
		&l.AmountPaid, &l.Currency, &l.PurchasedAt, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	l.StripeSessionID = stringPtr(sessionID)
	l.StripePaymentIntentID = stringPtr(intentID)
	return &l, nil
}

const licenseCols = `id, user_id, license_key, stripe_session_id, stripe_payment_intent_id, amount_paid, currency, purchased_at, created_at`

// KeyConflictError reports which unique column an insert collided on.
type KeyConflictError struct {
	Column string
}

func (e *KeyConflictError) Error() string {
	return "license " + e.Column + " already exists"
}

func (e *KeyConflictError) Unwrap() error {
	return ErrConflict
}

// Create inserts l, filling in its ID and timestamps. A collision on the
// license key or the payment session returns a *KeyConflictError.
func (s *LicenseStore) Create(ctx context.Context, l *model.License) (*model.License, error) {
	id := newID()
	now := time.Now().UTC()
	purchasedAt := l.PurchasedAt.UTC()
	if l.PurchasedAt.IsZero() {
		purchasedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO licenses (id, user_id, license_key, stripe_session_id, stripe_payment_intent_id, amount_paid, currency, purchased_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, l.UserID, l.Key, nullString(l.StripeSessionID), nullString(l.StripePaymentIntentID),
		l.AmountPaid, strings.ToLower(l.Currency), purchasedAt, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			col := "license_key"
			if strings.Contains(err.Error(), "stripe_session_id") {
				col = "stripe_session_id"
			}
			return nil, &KeyConflictError{Column: col}
		}
		return nil, fmt.Errorf("insert license: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *LicenseStore) GetByID(ctx context.Context, id string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE id = ?`, id)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license: %w", err)
	}
	return l, nil
}

func (s *LicenseStore) GetByKey(ctx context.Context, key string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseCols+` FROM licenses WHERE license_key = ?`,
		strings.ToUpper(strings.TrimSpace(key)),
	)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license by key: %w", err)
	}
	return l, nil
}

func (s *LicenseStore) GetBySessionID(ctx context.Context, sessionID string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+licenseCols+` FROM licenses WHERE stripe_session_id = ?`, sessionID)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get license by session: %w", err)
	}
	return l, nil
}

// LatestForUser returns the user's most recent license, or nil.
func (s *LicenseStore) LatestForUser(ctx context.Context, userID string) (*model.License, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+licenseCols+` FROM licenses WHERE user_id = ? ORDER BY purchased_at DESC, created_at DESC LIMIT 1`,
		userID,
	)
	l, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest license: %w", err)
	}
	return l, nil
}

func (s *LicenseStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM licenses WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count licenses: %w", err)
	}
	return n, nil
}
