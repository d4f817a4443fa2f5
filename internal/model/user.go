package model

import "time"

type User struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	PasswordHash     string    `json:"-"`
	Name             string    `json:"name"`
	IsPremium        bool      `json:"is_premium"`
	IsAdmin          bool      `json:"is_admin"`
	StripeCustomerID *string   `json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type License struct {
	ID                    string    `json:"id"`
	UserID                string    `json:"user_id"`
	Key                   string    `json:"license_key"`
	StripeSessionID       *string   `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string   `json:"stripe_payment_intent_id,omitempty"`
	AmountPaid            int64     `json:"amount_paid"`
	Currency              string    `json:"currency"`
	PurchasedAt           time.Time `json:"purchased_at"`
	CreatedAt             time.Time `json:"created_at"`
}
