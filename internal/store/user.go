package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
	"golang.org/x/crypto/bcrypt"
)

type UserStore struct {
	db DBTX
}

func NewUserStore(db DBTX) *UserStore {
	return &UserStore{db: db}
}

// WithTx returns a store bound to tx.
func (s *UserStore) WithTx(tx *sql.Tx) *UserStore {
	return &UserStore{db: tx}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var stripeID sql.NullString
	err := scanner.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.IsPremium, &u.IsAdmin,
		&stripeID, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.StripeCustomerID = stringPtr(stripeID)
	return &u, nil
}

const userCols = `id, email, password_hash, name, is_premium, is_admin, stripe_customer_id, created_at, updated_at`

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create hashes password with bcrypt and inserts the user.
// A duplicate email returns ErrConflict.
func (s *UserStore) Create(ctx context.Context, email, password, name string) (*model.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, name) VALUES (?, ?, ?, ?)`,
		id, normalizeEmail(email), string(hash), strings.TrimSpace(name),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, normalizeEmail(email))
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// Authenticate returns the user when email and password match, or nil otherwise.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u, err := s.GetByEmail(ctx, email)
	if err != nil || u == nil {
		return nil, err
	}
	err = bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("compare password: %w", err)
	}
	return u, nil
}

func (s *UserStore) SetPremium(ctx context.Context, id string, premium bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_premium = ? WHERE id = ?`, premium, id)
	if err != nil {
		return fmt.Errorf("set premium: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UserStore) SetAdmin(ctx context.Context, id string, admin bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET is_admin = ? WHERE id = ?`, admin, id)
	if err != nil {
		return fmt.Errorf("set admin: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns every user, oldest first.
func (s *UserStore) List(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userCols+` FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *UserStore) SetStripeCustomerID(ctx context.Context, id, customerID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE users SET stripe_customer_id = ? WHERE id = ?`,
		customerID, id,
	)
	if err != nil {
		return fmt.Errorf("set stripe customer id: %w", err)
	}
	return nil
}

func (s *UserStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
