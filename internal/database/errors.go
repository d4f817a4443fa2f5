package database

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	retryBase  = 25 * time.Millisecond
	maxRetries = 3
)

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY constraint failure.
func IsUniqueViolation(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// IsTransient reports whether err is a lock contention failure worth retrying.
func IsTransient(err error) bool {
	code, ok := sqliteCode(err)
	if !ok {
		return false
	}
	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// Retry runs fn, retrying lock contention failures with jittered exponential
// backoff. Any other error is returned immediately.
func Retry(ctx context.Context, fn func(ctx context.Context) error) error {
	b := retry.NewExponential(retryBase)
	b = retry.WithJitterPercent(25, b)
	b = retry.WithMaxRetries(maxRetries, b)

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}
