package model

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderPaid       OrderStatus = "paid"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

// LineItem is one catalog variant locked into an order at checkout.
// PartnerVariantID is the fulfillment partner's sync variant id, kept opaque.
type LineItem struct {
	ProductID        string `json:"productId"`
	VariantID        string `json:"variantId"`
	PartnerVariantID string `json:"partnerVariantId"`
	Name             string `json:"name"`
	Size             string `json:"size,omitempty"`
	Color            string `json:"color,omitempty"`
	Quantity         int    `json:"quantity"`
	UnitPrice        int64  `json:"price"`
}

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type Tracking struct {
	Carrier string `json:"carrier"`
	Number  string `json:"number"`
	URL     string `json:"url"`
}

type Order struct {
	ID                    string      `json:"id"`
	Email                 string      `json:"email"`
	UserID                *string     `json:"user_id,omitempty"`
	StripeSessionID       *string     `json:"stripe_session_id,omitempty"`
	StripePaymentIntentID *string     `json:"stripe_payment_intent_id,omitempty"`
	PartnerOrderID        *string     `json:"partner_order_id,omitempty"`
	Status                OrderStatus `json:"status"`
	ShippingAddress       *Address    `json:"shipping_address"`
	Items                 []LineItem  `json:"items"`
	Subtotal              int64       `json:"subtotal"`
	Shipping              int64       `json:"shipping"`
	Total                 int64       `json:"total"`
	Tracking              *Tracking   `json:"tracking,omitempty"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// Subtotal sums quantity times unit price over items.
func Subtotal(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += int64(it.Quantity) * it.UnitPrice
	}
	return total
}
