package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
)

// favoriteTables maps each kind to its table and name column.
var favoriteTables = map[model.FavoriteKind]struct{ table, nameCol string }{
	model.FavoritePalette:     {"saved_palettes", "palette_name"},
	model.FavoriteFontPairing: {"saved_font_pairings", "pairing_name"},
}

// FavoriteStore keeps premium users' saved palettes and font pairings.
type FavoriteStore struct {
	db DBTX
}

func NewFavoriteStore(db DBTX) *FavoriteStore {
	return &FavoriteStore{db: db}
}

func (s *FavoriteStore) WithTx(tx *sql.Tx) *FavoriteStore {
	return &FavoriteStore{db: tx}
}

func favoriteTable(kind model.FavoriteKind) (string, string, error) {
	t, ok := favoriteTables[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown favorite kind %q", kind)
	}
	return t.table, t.nameCol, nil
}

// List returns the user's favorites of kind, newest first.
func (s *FavoriteStore) List(ctx context.Context, userID string, kind model.FavoriteKind) ([]model.Favorite, error) {
	table, nameCol, err := favoriteTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, `+nameCol+`, notes, created_at FROM `+table+`
		 WHERE user_id = ? ORDER BY created_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []model.Favorite
	for rows.Next() {
		f := model.Favorite{Kind: kind}
		var notes sql.NullString
		if err := rows.Scan(&f.ID, &f.UserID, &f.Name, &notes, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		f.Notes = stringPtr(notes)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Save records a favorite. Saving the same name twice for one user returns
// ErrConflict.
func (s *FavoriteStore) Save(ctx context.Context, userID string, kind model.FavoriteKind, name string, notes *string) (*model.Favorite, error) {
	table, nameCol, err := favoriteTable(kind)
	if err != nil {
		return nil, err
	}
	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, user_id, `+nameCol+`, notes) VALUES (?, ?, ?, ?)`,
		id, userID, strings.TrimSpace(name), nullString(notes),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert %s: %w", table, err)
	}

	f := model.Favorite{Kind: kind}
	var stored sql.NullString
	err = s.db.QueryRowContext(ctx,
		`SELECT id, user_id, `+nameCol+`, notes, created_at FROM `+table+` WHERE id = ?`, id,
	).Scan(&f.ID, &f.UserID, &f.Name, &stored, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("reload %s: %w", table, err)
	}
	f.Notes = stringPtr(stored)
	return &f, nil
}

// Delete removes the user's favorite by name. It reports false when the
// user had not saved it.
func (s *FavoriteStore) Delete(ctx context.Context, userID string, kind model.FavoriteKind, name string) (bool, error) {
	table, nameCol, err := favoriteTable(kind)
	if err != nil {
		return false, err
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE user_id = ? AND `+nameCol+` = ?`,
		userID, strings.TrimSpace(name),
	)
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", table, err)
	}
	return affected(result)
}
