package reconcile

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v82"

	"github.com/dukerupert/themeshop/internal/model"
)

// Event is a verified provider event narrowed to what the reconciler acts on.
// It is one of CheckoutCompleted, PaymentFailed or Unhandled.
type Event interface {
	eventID() string
	eventType() string
}

type header struct {
	ID   string
	Type string
}

func (h header) eventID() string   { return h.ID }
func (h header) eventType() string { return h.Type }

// CheckoutCompleted is a finished checkout session.
type CheckoutCompleted struct {
	header
	SessionID       string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        map[string]string
	CustomerEmail   string
	Address         *model.Address
	ShippingCost    int64
	AmountTotal     int64
	Currency        string
}

// Paid reports whether the provider collected the payment.
func (c *CheckoutCompleted) Paid() bool {
	return c.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

type PaymentFailed struct {
	header
	PaymentIntentID string
	Message         string
}

type Unhandled struct {
	header
}

type wireAddress struct {
	City       string `json:"city"`
	Country    string `json:"country"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	PostalCode string `json:"postal_code"`
	State      string `json:"state"`
}

type wireShipping struct {
	Name    string       `json:"name"`
	Address *wireAddress `json:"address"`
}

type wireSession struct {
	ID              string            `json:"id"`
	PaymentStatus   string            `json:"payment_status"`
	PaymentIntent   json.RawMessage   `json:"payment_intent"`
	Metadata        map[string]string `json:"metadata"`
	CustomerEmail   string            `json:"customer_email"`
	AmountTotal     int64             `json:"amount_total"`
	Currency        string            `json:"currency"`
	CustomerDetails *struct {
		Email string `json:"email"`
		Name  string `json:"name"`
		Phone string `json:"phone"`
	} `json:"customer_details"`
	CollectedInformation *struct {
		ShippingDetails *wireShipping `json:"shipping_details"`
	} `json:"collected_information"`
	ShippingDetails *wireShipping `json:"shipping_details"`
	ShippingCost    *struct {
		AmountTotal int64 `json:"amount_total"`
	} `json:"shipping_cost"`
}

type wirePaymentIntent struct {
	ID               string `json:"id"`
	LastPaymentError *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

// Decode narrows a verified event to the reconciler's event types.
func Decode(ev stripe.Event) (Event, error) {
	h := header{ID: ev.ID, Type: string(ev.Type)}
	var raw json.RawMessage
	if ev.Data != nil {
		raw = ev.Data.Raw
	}

	switch ev.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var ws wireSession
		if err := json.Unmarshal(raw, &ws); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		return checkoutFromWire(h, &ws), nil

	case stripe.EventTypePaymentIntentPaymentFailed:
		var pi wirePaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		pf := &PaymentFailed{header: h, PaymentIntentID: pi.ID}
		if pi.LastPaymentError != nil {
			pf.Message = pi.LastPaymentError.Message
		}
		return pf, nil

	default:
		return &Unhandled{header: h}, nil
	}
}

func checkoutFromWire(h header, ws *wireSession) *CheckoutCompleted {
	c := &CheckoutCompleted{
		header:          h,
		SessionID:       ws.ID,
		PaymentStatus:   ws.PaymentStatus,
		PaymentIntentID: expandableID(ws.PaymentIntent),
		Metadata:        ws.Metadata,
		CustomerEmail:   ws.CustomerEmail,
		AmountTotal:     ws.AmountTotal,
		Currency:        ws.Currency,
	}
	if c.Metadata == nil {
		c.Metadata = map[string]string{}
	}
	var phone string
	if ws.CustomerDetails != nil {
		if c.CustomerEmail == "" {
			c.CustomerEmail = ws.CustomerDetails.Email
		}
		phone = ws.CustomerDetails.Phone
	}
	if ws.ShippingCost != nil {
		c.ShippingCost = ws.ShippingCost.AmountTotal
	}

	shipping := ws.ShippingDetails
	if ws.CollectedInformation != nil && ws.CollectedInformation.ShippingDetails != nil {
		shipping = ws.CollectedInformation.ShippingDetails
	}
	if shipping != nil && shipping.Address != nil {
		a := shipping.Address
		c.Address = &model.Address{
			Name:       shipping.Name,
			Line1:      a.Line1,
			Line2:      a.Line2,
			City:       a.City,
			State:      a.State,
			PostalCode: a.PostalCode,
			Country:    a.Country,
			Phone:      phone,
		}
	}
	return c
}

// expandableID reads an expandable field that is either an id string or an
// object with an id.
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}
