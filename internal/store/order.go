package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/themeshop/internal/database"
	"github.com/dukerupert/themeshop/internal/model"
)

type OrderStore struct {
	db DBTX
}

func NewOrderStore(db DBTX) *OrderStore {
	return &OrderStore{db: db}
}

func scanOrder(scanner interface{ Scan(...any) error }) (*model.Order, error) {
	var o model.Order
	var userID, sessionID, intentID, partnerID sql.NullString
	var address sql.NullString
	var items string
	var carrier, number, url sql.NullString
	err := scanner.Scan(
		&o.ID, &o.Email, &userID, &sessionID, &intentID, &partnerID, &o.Status,
		&address, &items, &o.Subtotal, &o.Shipping, &o.Total,
		&carrier, &number, &url, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.UserID = stringPtr(userID)
	o.StripeSessionID = stringPtr(sessionID)
	o.StripePaymentIntentID = stringPtr(intentID)
	o.PartnerOrderID = stringPtr(partnerID)
	if address.Valid && address.String != "" {
		var a model.Address
		if err := json.Unmarshal([]byte(address.String), &a); err != nil {
			return nil, fmt.Errorf("decode shipping address: %w", err)
		}
		o.ShippingAddress = &a
	}
	if err := json.Unmarshal([]byte(items), &o.Items); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	if number.Valid {
		o.Tracking = &model.Tracking{Carrier: carrier.String, Number: number.String, URL: url.String}
	}
	return &o, nil
}

const orderCols = `id, email, user_id, stripe_session_id, stripe_payment_intent_id, partner_order_id, status,
	shipping_address, items, subtotal, shipping, total,
	tracking_carrier, tracking_number, tracking_url, created_at, updated_at`

// NewOrderID returns a collision-resistant, URL-safe order id.
func NewOrderID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate order id: %w", err)
	}
	return "ord_" + base64.RawURLEncoding.EncodeToString(b), nil
}

// Create inserts a pending order. Subtotal is computed from the items and
// total is always subtotal plus shipping.
func (s *OrderStore) Create(ctx context.Context, o *model.Order) (*model.Order, error) {
	if o.ID == "" {
		id, err := NewOrderID()
		if err != nil {
			return nil, err
		}
		o.ID = id
	}
	items, err := json.Marshal(o.Items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	subtotal := model.Subtotal(o.Items)
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (id, email, user_id, status, items, subtotal, shipping, total, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.Email, nullString(o.UserID), model.OrderPending, string(items),
		subtotal, o.Shipping, subtotal+o.Shipping, now, now,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	return s.GetByID(ctx, o.ID)
}

func (s *OrderStore) GetByID(ctx context.Context, id string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *OrderStore) GetByStripeSessionID(ctx context.Context, sessionID string) (*model.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderCols+` FROM orders WHERE stripe_session_id = ?`, sessionID)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get order by session: %w", err)
	}
	return o, nil
}

// SetStripeSession records the checkout session created for a pending order.
func (s *OrderStore) SetStripeSession(ctx context.Context, id, sessionID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET stripe_session_id = ? WHERE id = ? AND status = ?`,
		sessionID, id, model.OrderPending,
	)
	if err != nil {
		return fmt.Errorf("set stripe session: %w", err)
	}
	return requireRow(result)
}

// Payment carries the fields a completed checkout contributes to an order.
type Payment struct {
	Email           string
	Address         *model.Address
	Shipping        int64
	PaymentIntentID string
}

// MarkPaid moves a pending order to paid. It reports false, leaving the row
// untouched, when the order is not pending.
func (s *OrderStore) MarkPaid(ctx context.Context, id string, p Payment) (bool, error) {
	var address sql.NullString
	if p.Address != nil {
		b, err := json.Marshal(p.Address)
		if err != nil {
			return false, fmt.Errorf("encode shipping address: %w", err)
		}
		address = sql.NullString{String: string(b), Valid: true}
	}
	var intent sql.NullString
	if p.PaymentIntentID != "" {
		intent = sql.NullString{String: p.PaymentIntentID, Valid: true}
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET
			status = ?,
			email = CASE WHEN ? = '' THEN email ELSE ? END,
			shipping_address = ?,
			shipping = ?,
			total = subtotal + ?,
			stripe_payment_intent_id = ?
		 WHERE id = ? AND status = ?`,
		model.OrderPaid, p.Email, p.Email, address, p.Shipping, p.Shipping, intent,
		id, model.OrderPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark order paid: %w", err)
	}
	return affected(result)
}

// MarkProcessing records the accepted partner job on a paid order.
func (s *OrderStore) MarkProcessing(ctx context.Context, id, partnerOrderID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, partner_order_id = ? WHERE id = ? AND status = ?`,
		model.OrderProcessing, partnerOrderID, id, model.OrderPaid,
	)
	if err != nil {
		return false, fmt.Errorf("mark order processing: %w", err)
	}
	return affected(result)
}

// MarkShipped moves a processing order to shipped with its tracking details.
func (s *OrderStore) MarkShipped(ctx context.Context, id string, t model.Tracking) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, tracking_carrier = ?, tracking_number = ?, tracking_url = ?
		 WHERE id = ? AND status = ?`,
		model.OrderShipped, t.Carrier, t.Number, t.URL, id, model.OrderProcessing,
	)
	if err != nil {
		return false, fmt.Errorf("mark order shipped: %w", err)
	}
	return affected(result)
}

func (s *OrderStore) MarkDelivered(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		model.OrderDelivered, id, model.OrderShipped,
	)
	if err != nil {
		return false, fmt.Errorf("mark order delivered: %w", err)
	}
	return affected(result)
}

// Cancel cancels an order that has not been handed to the partner yet.
func (s *OrderStore) Cancel(ctx context.Context, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status IN (?, ?)`,
		model.OrderCancelled, id, model.OrderPending, model.OrderPaid,
	)
	if err != nil {
		return false, fmt.Errorf("cancel order: %w", err)
	}
	return affected(result)
}

func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return s.list(ctx, `WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
}

func (s *OrderStore) ListByStatus(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error) {
	return s.list(ctx, `WHERE status = ? ORDER BY created_at DESC, id LIMIT ?`, status, limit)
}

func (s *OrderStore) List(ctx context.Context, limit int) ([]model.Order, error) {
	return s.list(ctx, `ORDER BY created_at DESC, id LIMIT ?`, limit)
}

func (s *OrderStore) list(ctx context.Context, where string, args ...any) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+orderCols+` FROM orders `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func affected(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func requireRow(result sql.Result) error {
	ok, err := affected(result)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}
