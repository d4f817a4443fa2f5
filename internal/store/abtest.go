package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
)

type ABTestStore struct {
	db DBTX
}

func NewABTestStore(db DBTX) *ABTestStore {
	return &ABTestStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *ABTestStore) WithTx(tx *sql.Tx) *ABTestStore {
	return &ABTestStore{db: tx}
}

func scanABTest(scanner interface{ Scan(...any) error }) (*model.ABTest, error) {
	var t model.ABTest
	var fontA, fontB sql.NullString
	var endsAt sql.NullTime
	err := scanner.Scan(
		&t.ID, &t.UserID, &t.Name, &t.Description,
		&t.VariantA.Name, &t.VariantA.Palette, &fontA,
		&t.VariantB.Name, &t.VariantB.Palette, &fontB,
		&t.IsPublic, &t.ShareCode, &t.VotesA, &t.VotesB, &endsAt,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.VariantA.Font = stringPtr(fontA)
	t.VariantB.Font = stringPtr(fontB)
	if endsAt.Valid {
		t.EndsAt = &endsAt.Time
	}
	return &t, nil
}

const abTestCols = `id, user_id, name, description,
	variant_a_name, variant_a_palette, variant_a_font,
	variant_b_name, variant_b_palette, variant_b_font,
	is_public, share_code, votes_a, votes_b, ends_at, created_at, updated_at`

// Create inserts t with zeroed counters. A share code collision returns ErrConflict.
func (s *ABTestStore) Create(ctx context.Context, t *model.ABTest) (*model.ABTest, error) {
	id := newID()
	now := time.Now().UTC()
	var endsAt any
	if t.EndsAt != nil {
		endsAt = t.EndsAt.UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ab_tests (id, user_id, name, description,
			variant_a_name, variant_a_palette, variant_a_font,
			variant_b_name, variant_b_palette, variant_b_font,
			is_public, share_code, ends_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, t.UserID, t.Name, t.Description,
		t.VariantA.Name, t.VariantA.Palette, nullString(t.VariantA.Font),
		t.VariantB.Name, t.VariantB.Palette, nullString(t.VariantB.Font),
		t.IsPublic, t.ShareCode, endsAt, now, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert ab test: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *ABTestStore) GetByID(ctx context.Context, id string) (*model.ABTest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+abTestCols+` FROM ab_tests WHERE id = ?`, id)
	t, err := scanABTest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ab test: %w", err)
	}
	return t, nil
}

func (s *ABTestStore) GetByShareCode(ctx context.Context, code string) (*model.ABTest, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+abTestCols+` FROM ab_tests WHERE share_code = ?`, code)
	t, err := scanABTest(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ab test by share code: %w", err)
	}
	return t, nil
}

func (s *ABTestStore) ListByUser(ctx context.Context, userID string) ([]model.ABTest, error) {
	return s.list(ctx, `WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

func (s *ABTestStore) ListAll(ctx context.Context) ([]model.ABTest, error) {
	return s.list(ctx, `ORDER BY created_at, id`)
}

func (s *ABTestStore) list(ctx context.Context, where string, args ...any) ([]model.ABTest, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+abTestCols+` FROM ab_tests `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list ab tests: %w", err)
	}
	defer rows.Close()

	var tests []model.ABTest
	for rows.Next() {
		t, err := scanABTest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ab test: %w", err)
		}
		tests = append(tests, *t)
	}
	return tests, rows.Err()
}

// Delete removes a test owned by userID. It reports false when no such test exists.
func (s *ABTestStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM ab_tests WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, fmt.Errorf("delete ab test: %w", err)
	}
	return affected(result)
}

// Increment adds one to the counter for variant in place and returns both
// counters as they are after the update.
func (s *ABTestStore) Increment(ctx context.Context, id, variant string) (model.Tally, error) {
	var query string
	switch variant {
	case model.VariantA:
		query = `UPDATE ab_tests SET votes_a = votes_a + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? RETURNING votes_a, votes_b`
	case model.VariantB:
		query = `UPDATE ab_tests SET votes_b = votes_b + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? RETURNING votes_a, votes_b`
	default:
		return model.Tally{}, fmt.Errorf("increment: unknown variant %q", variant)
	}

	var t model.Tally
	err := s.db.QueryRowContext(ctx, query, id).Scan(&t.VotesA, &t.VotesB)
	if err == sql.ErrNoRows {
		return model.Tally{}, ErrNotFound
	}
	if err != nil {
		return model.Tally{}, fmt.Errorf("increment votes: %w", err)
	}
	return t, nil
}

// CounterMismatch is a test whose stored counters disagree with its vote rows.
type CounterMismatch struct {
	TestID    string
	ShareCode string
	Stored    model.Tally
	Counted   model.Tally
}

// CounterMismatches recomputes counters from ab_test_votes and returns every
// test where they differ from the stored columns.
func (s *ABTestStore) CounterMismatches(ctx context.Context) ([]CounterMismatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.share_code, t.votes_a, t.votes_b,
			COALESCE(SUM(CASE WHEN v.variant = 'a' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN v.variant = 'b' THEN 1 ELSE 0 END), 0)
		 FROM ab_tests t LEFT JOIN ab_test_votes v ON v.test_id = t.id
		 GROUP BY t.id
		 HAVING t.votes_a != COALESCE(SUM(CASE WHEN v.variant = 'a' THEN 1 ELSE 0 END), 0)
			OR t.votes_b != COALESCE(SUM(CASE WHEN v.variant = 'b' THEN 1 ELSE 0 END), 0)
		 ORDER BY t.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("count votes: %w", err)
	}
	defer rows.Close()

	var out []CounterMismatch
	for rows.Next() {
		var m CounterMismatch
		if err := rows.Scan(&m.TestID, &m.ShareCode, &m.Stored.VotesA, &m.Stored.VotesB,
			&m.Counted.VotesA, &m.Counted.VotesB); err != nil {
			return nil, fmt.Errorf("scan vote counts: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
