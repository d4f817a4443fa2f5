// Package voting records A/B test votes and keeps the per-variant counters
// equal to the recorded votes.
package voting

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

var (
	ErrInvalidVariant = errors.New("variant must be a or b")
	ErrTestNotFound   = errors.New("test not found")
	ErrTestPrivate    = errors.New("test is not accepting votes")
	ErrTestEnded      = errors.New("test has ended")
	ErrAlreadyVoted   = errors.New("already voted")
)

const (
	shareCodeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	shareCodeLen      = 8
	shareCodeAttempts = 5
)

// Publisher receives the counters after each accepted vote.
type Publisher interface {
	PublishTally(shareCode string, votesA, votesB int64)
}

type Ledger struct {
	db        *sql.DB
	tests     *store.ABTestStore
	votes     *store.VoteStore
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	newCode   func() (string, error)
}

func NewLedger(db *sql.DB, publisher Publisher, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:        db,
		tests:     store.NewABTestStore(db),
		votes:     store.NewVoteStore(db),
		publisher: publisher,
		logger:    logger.With("component", "voting"),
		now:       time.Now,
		newCode:   NewShareCode,
	}
}

// Vote records visitorID's vote for variant on the test behind shareCode and
// returns the counters after the increment.
func (l *Ledger) Vote(ctx context.Context, shareCode, visitorID, variant string) (model.Tally, error) {
	variant = strings.ToLower(strings.TrimSpace(variant))
	if variant != model.VariantA && variant != model.VariantB {
		return model.Tally{}, ErrInvalidVariant
	}

	test, err := l.tests.GetByShareCode(ctx, shareCode)
	if err != nil {
		return model.Tally{}, err
	}
	if test == nil {
		return model.Tally{}, ErrTestNotFound
	}
	if !test.IsPublic {
		return model.Tally{}, ErrTestPrivate
	}
	if test.Ended(l.now()) {
		return model.Tally{}, ErrTestEnded
	}

	var tally model.Tally
	err = database.Retry(ctx, func(ctx context.Context) error {
		return database.WithTx(ctx, l.db, func(tx *sql.Tx) error {
			votes := l.votes.WithTx(tx)
			exists, err := votes.Exists(ctx, test.ID, visitorID)
			if err != nil {
				return err
			}
			if exists {
				return ErrAlreadyVoted
			}
			if _, err := votes.Create(ctx, test.ID, visitorID, variant); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return ErrAlreadyVoted
				}
				return err
			}
			tally, err = l.tests.WithTx(tx).Increment(ctx, test.ID, variant)
			return err
		})
	})
	if errors.Is(err, store.ErrNotFound) {
		return model.Tally{}, ErrTestNotFound
	}
	if err != nil {
		return model.Tally{}, err
	}

	l.logger.Debug("vote recorded", "share_code", shareCode, "variant", variant, "votes_a", tally.VotesA, "votes_b", tally.VotesB)
	if l.publisher != nil {
		l.publisher.PublishTally(shareCode, tally.VotesA, tally.VotesB)
	}
	return tally, nil
}

// Tally returns the test behind shareCode, or ErrTestNotFound.
func (l *Ledger) Tally(ctx context.Context, shareCode string) (*model.ABTest, error) {
	test, err := l.tests.GetByShareCode(ctx, shareCode)
	if err != nil {
		return nil, err
	}
	if test == nil {
		return nil, ErrTestNotFound
	}
	return test, nil
}

// NewShareCode returns an 8 character lowercase alphanumeric code.
func NewShareCode() (string, error) {
	max := big.NewInt(int64(len(shareCodeAlphabet)))
	b := make([]byte, shareCodeLen)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate share code: %w", err)
		}
		b[i] = shareCodeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// ValidationError is a user-facing problem with a new test.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// CreateTest validates t and stores it under a fresh share code,
// regenerating the code on collision.
func (l *Ledger) CreateTest(ctx context.Context, t *model.ABTest) (*model.ABTest, error) {
	if err := validateTest(t, l.now()); err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		code, err := l.newCode()
		if err != nil {
			return nil, err
		}
		t.ShareCode = code
		created, err := l.tests.Create(ctx, t)
		if err == nil {
			l.logger.Info("ab test created", "test_id", created.ID, "user_id", created.UserID, "share_code", code)
			return created, nil
		}
		if !errors.Is(err, store.ErrConflict) || attempt == shareCodeAttempts {
			return nil, err
		}
		l.logger.Warn("share code collision, regenerating", "attempt", attempt)
	}
}

func validateTest(t *model.ABTest, now time.Time) error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return &ValidationError{Field: "name", Message: "is required"}
	}
	for _, v := range []struct {
		field   string
		variant *model.Variant
	}{
		{"variantA", &t.VariantA},
		{"variantB", &t.VariantB},
	} {
		v.variant.Name = strings.TrimSpace(v.variant.Name)
		v.variant.Palette = strings.TrimSpace(v.variant.Palette)
		if v.variant.Name == "" {
			return &ValidationError{Field: v.field + ".name", Message: "is required"}
		}
		if v.variant.Palette == "" {
			return &ValidationError{Field: v.field + ".palette", Message: "is required"}
		}
		if v.variant.Font != nil && strings.TrimSpace(*v.variant.Font) == "" {
			v.variant.Font = nil
		}
	}
	if t.EndsAt != nil && !t.EndsAt.After(now) {
		return &ValidationError{Field: "endsAt", Message: "must be in the future"}
	}
	return nil
}
