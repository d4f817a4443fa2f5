package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
)

type VoteStore struct {
	db DBTX
}

func NewVoteStore(db DBTX) *VoteStore {
	return &VoteStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *VoteStore) WithTx(tx *sql.Tx) *VoteStore {
	return &VoteStore{db: tx}
}

// Exists reports whether visitorID has already voted on testID.
func (s *VoteStore) Exists(ctx context.Context, testID, visitorID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ab_test_votes WHERE test_id = ? AND visitor_id = ?`,
		testID, visitorID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check vote: %w", err)
	}
	return n > 0, nil
}

// Create records a vote. A second vote for the same (test, visitor) pair
// returns ErrConflict.
func (s *VoteStore) Create(ctx context.Context, testID, visitorID, variant string) (*model.Vote, error) {
	v := &model.Vote{
		ID:        newID(),
		TestID:    testID,
		VisitorID: visitorID,
		Variant:   variant,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ab_test_votes (id, test_id, visitor_id, variant, created_at) VALUES (?, ?, ?, ?, ?)`,
		v.ID, testID, visitorID, variant, v.CreatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert vote: %w", err)
	}
	return v, nil
}

func (s *VoteStore) CountByTest(ctx context.Context, testID string) (model.Tally, error) {
	var t model.Tally
	err := s.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(CASE WHEN variant = 'a' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN variant = 'b' THEN 1 ELSE 0 END), 0)
		 FROM ab_test_votes WHERE test_id = ?`,
		testID,
	).Scan(&t.VotesA, &t.VotesB)
	if err != nil {
		return model.Tally{}, fmt.Errorf("count votes: %w", err)
	}
	return t, nil
}
