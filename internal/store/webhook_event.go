package store

import (
	"context"
	"fmt"
	"time"
)

// WebhookEventStore records provider event ids that have been handled.
type WebhookEventStore struct {
	db DBTX
}

func NewWebhookEventStore(db DBTX) *WebhookEventStore {
	return &WebhookEventStore{db: db}
}

func (s *WebhookEventStore) Seen(ctx context.Context, eventID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_events WHERE id = ?`, eventID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}
	return n > 0, nil
}

// Record marks eventID processed. It reports false if it was already recorded.
func (s *WebhookEventStore) Record(ctx context.Context, eventID, eventType string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO webhook_events (id, type, processed_at) VALUES (?, ?, ?)`,
		eventID, eventType, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	return affected(result)
}

// DeleteOlderThan prunes entries processed before cutoff.
func (s *WebhookEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM webhook_events WHERE processed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete webhook events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
