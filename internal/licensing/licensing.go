// Package licensing issues premium license keys after a completed purchase.
package licensing

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/store"
)

const (
	KeyPrefix = "TF"

	// Alphabet leaves out 0, O, 1 and I.
	Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	segments    = 4
	segmentLen  = 4
	keyAttempts = 3
	mailTimeout = 15 * time.Second
)

var ErrUserNotFound = errors.New("user not found")

// GenerateKey returns a key of the form TF-XXXX-XXXX-XXXX-XXXX.
func GenerateKey() (string, error) {
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.WriteString(KeyPrefix)
	for i := 0; i < segments; i++ {
		b.WriteByte('-')
		for j := 0; j < segmentLen; j++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("generate key: %w", err)
			}
			b.WriteByte(Alphabet[n.Int64()])
		}
	}
	return b.String(), nil
}

// Mailer delivers the key to the buyer.
type Mailer interface {
	SendLicenseKey(ctx context.Context, toEmail, licenseKey, userName string) error
}

type Purchase struct {
	UserID          string
	SessionID       string
	PaymentIntentID string
	Amount          int64
	Currency        string
}

type Result struct {
	License *model.License
	// Created is false when a license already existed for the session.
	Created  bool
	Notified bool
}

type Issuer struct {
	db       *sql.DB
	users    *store.UserStore
	licenses *store.LicenseStore
	mailer   Mailer
	logger   *slog.Logger
	newKey   func() (string, error)
}

func NewIssuer(db *sql.DB, mailer Mailer, logger *slog.Logger) *Issuer {
	return &Issuer{
		db:       db,
		users:    store.NewUserStore(db),
		licenses: store.NewLicenseStore(db),
		mailer:   mailer,
		logger:   logger.With("component", "licensing"),
		newKey:   GenerateKey,
	}
}

// Issue grants a license for p and marks the user premium in one
// transaction. Repeating a purchase session returns the existing license.
// The key email is sent after commit and its failure is only logged.
func (i *Issuer) Issue(ctx context.Context, p Purchase) (*Result, error) {
	if p.SessionID != "" {
		existing, err := i.licenses.GetBySessionID(ctx, p.SessionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			i.logger.Info("license already issued", "user_id", p.UserID, "session_id", p.SessionID)
			return &Result{License: existing}, nil
		}
	}

	user, err := i.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	var lic *model.License
	for attempt := 1; ; attempt++ {
		lic, err = i.create(ctx, p)
		var conflict *store.KeyConflictError
		if err == nil || !errors.As(err, &conflict) {
			break
		}
		if conflict.Column == "stripe_session_id" {
			existing, gerr := i.licenses.GetBySessionID(ctx, p.SessionID)
			if gerr != nil {
				return nil, gerr
			}
			return &Result{License: existing}, nil
		}
		if attempt == keyAttempts {
			return nil, fmt.Errorf("issue license: %d key collisions: %w", attempt, err)
		}
		i.logger.Warn("license key collision, regenerating", "attempt", attempt)
	}
	if err != nil {
		return nil, fmt.Errorf("issue license: %w", err)
	}

	i.logger.Info("license issued", "user_id", p.UserID, "license_id", lic.ID, "session_id", p.SessionID)

	res := &Result{License: lic, Created: true}
	res.Notified = i.notify(ctx, user, lic)
	return res, nil
}

func (i *Issuer) create(ctx context.Context, p Purchase) (*model.License, error) {
	key, err := i.newKey()
	if err != nil {
		return nil, err
	}

	var sessionID, intentID *string
	if p.SessionID != "" {
		sessionID = &p.SessionID
	}
	if p.PaymentIntentID != "" {
		intentID = &p.PaymentIntentID
	}

	var lic *model.License
	err = database.Retry(ctx, func(ctx context.Context) error {
		return database.WithTx(ctx, i.db, func(tx *sql.Tx) error {
			l, err := i.licenses.WithTx(tx).Create(ctx, &model.License{
				UserID:                p.UserID,
				Key:                   key,
				StripeSessionID:       sessionID,
				StripePaymentIntentID: intentID,
				AmountPaid:            p.Amount,
				Currency:              p.Currency,
			})
			if err != nil {
				return err
			}
			if err := i.users.WithTx(tx).SetPremium(ctx, p.UserID, true); err != nil {
				return err
			}
			lic = l
			return nil
		})
	})
	return lic, err
}

func (i *Issuer) notify(ctx context.Context, user *model.User, lic *model.License) bool {
	if i.mailer == nil {
		i.logger.Warn("no mailer configured, license email skipped", "user_id", user.ID)
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
	defer cancel()

	if err := i.mailer.SendLicenseKey(ctx, user.Email, lic.Key, user.Name); err != nil {
		i.logger.Error("send license email", "user_id", user.ID, "license_id", lic.ID, "error", err)
		return false
	}
	return true
}
