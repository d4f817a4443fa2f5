package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/checkout"
	"github.com/dukerupert/themeshop/internal/licensing"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/reconcile"
	"github.com/dukerupert/themeshop/internal/store"
	"github.com/dukerupert/themeshop/internal/stripe"
)

type fakePayments struct {
	sessions map[string]*stripe.SessionStatus
	err      error
}

func (f *fakePayments) CreateCustomer(email, userID string) (string, error) {
	return "cus_test", f.err
}

func (f *fakePayments) CreatePremiumCheckout(customerID, userID string) (*stripe.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Session{ID: "cs_premium", URL: "https://checkout.test/premium"}, nil
}

func (f *fakePayments) CreateStoreCheckout(sc stripe.StoreCheckout) (*stripe.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.Session{ID: "cs_store_" + sc.OrderID, URL: "https://checkout.test/store"}, nil
}

func (f *fakePayments) GetCheckoutSession(id string) (*stripe.SessionStatus, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("no such checkout session")
	}
	return s, nil
}

func setupCheckout(t *testing.T, payments checkout.Payments) (*CheckoutHandler, *store.OrderStore, *store.UserStore) {
	t.Helper()
	db := setupDB(t)
	orders := store.NewOrderStore(db)
	users := store.NewUserStore(db)
	svc := checkout.NewService(checkout.Deps{
		Catalog:  catalog.Default(),
		Orders:   orders,
		Users:    users,
		Payments: payments,
		Logger:   slog.Default(),
	})
	return NewCheckoutHandler(svc, catalog.Default(), slog.Default()), orders, users
}

var mugCart = map[string]any{
	"items": []map[string]any{{"productId": "palette-mug", "variantId": "palette-mug-11oz", "quantity": 2}},
}

func TestStoreCheckout(t *testing.T) {
	h, orders, _ := setupCheckout(t, &fakePayments{})

	rec := httptest.NewRecorder()
	h.Store(rec, jsonRequest(t, "POST", "/api/store/checkout", mugCart))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["url"] != "https://checkout.test/store" {
		t.Errorf("url = %q", resp["url"])
	}

	o, err := orders.GetByID(context.Background(), resp["orderId"])
	if err != nil || o == nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != model.OrderPending || o.Total != 3000 {
		t.Errorf("order = status %s total %d, want pending 3000", o.Status, o.Total)
	}
	if o.StripeSessionID == nil || *o.StripeSessionID != "cs_store_"+o.ID {
		t.Errorf("session id = %v", o.StripeSessionID)
	}
}

func TestStoreCheckoutErrors(t *testing.T) {
	tests := []struct {
		name     string
		payments checkout.Payments
		body     any
		want     int
	}{
		{"empty cart", &fakePayments{}, map[string]any{"items": []any{}}, http.StatusBadRequest},
		{"out of stock", &fakePayments{}, map[string]any{
			"items": []map[string]any{{"productId": "palette-mug", "variantId": "palette-mug-15oz", "quantity": 1}},
		}, http.StatusBadRequest},
		{"too many", &fakePayments{}, map[string]any{
			"items": []map[string]any{{"productId": "palette-mug", "variantId": "palette-mug-11oz", "quantity": 11}},
		}, http.StatusBadRequest},
		{"provider down", &fakePayments{err: errors.New("boom")}, mugCart, http.StatusBadGateway},
		{"not configured", nil, mugCart, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := setupCheckout(t, tt.payments)
			rec := httptest.NewRecorder()
			h.Store(rec, jsonRequest(t, "POST", "/api/store/checkout", tt.body))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPremiumCheckout(t *testing.T) {
	h, _, users := setupCheckout(t, &fakePayments{})
	ctx := context.Background()
	u, err := users.Create(ctx, "buyer@example.com", "password123", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	rec := httptest.NewRecorder()
	h.Premium(rec, httptest.NewRequest("POST", "/api/premium/checkout", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("anonymous: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	rec = httptest.NewRecorder()
	h.Premium(rec, asUser(httptest.NewRequest("POST", "/api/premium/checkout", nil), u))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]string
	decodeBody(t, rec, &resp)
	if resp["url"] != "https://checkout.test/premium" {
		t.Errorf("url = %q", resp["url"])
	}

	u.IsPremium = true
	rec = httptest.NewRecorder()
	h.Premium(rec, asUser(httptest.NewRequest("POST", "/api/premium/checkout", nil), u))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("already premium: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestConfirmation(t *testing.T) {
	payments := &fakePayments{sessions: map[string]*stripe.SessionStatus{}}
	h, orders, _ := setupCheckout(t, payments)
	ctx := context.Background()

	o, err := orders.Create(ctx, &model.Order{
		Email: "buyer@example.com",
		Items: []model.LineItem{{ProductID: "palette-mug", VariantID: "palette-mug-11oz", Name: "Palette Mug", Quantity: 1, UnitPrice: 1500}},
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	payments.sessions["cs_paid"] = &stripe.SessionStatus{ID: "cs_paid", PaymentStatus: "paid", Metadata: map[string]string{"orderId": o.ID}}
	payments.sessions["cs_unpaid"] = &stripe.SessionStatus{ID: "cs_unpaid", PaymentStatus: "unpaid", Metadata: map[string]string{"orderId": o.ID}}

	rec := httptest.NewRecorder()
	h.Confirmation(rec, httptest.NewRequest("GET", "/api/store/orders/confirmation?session_id=cs_paid", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp confirmationResponse
	decodeBody(t, rec, &resp)
	if resp.OrderNumber != o.ID || resp.Total != 1500 || len(resp.Items) != 1 {
		t.Errorf("confirmation = %+v", resp)
	}

	for target, want := range map[string]int{
		"/api/store/orders/confirmation":                      http.StatusBadRequest,
		"/api/store/orders/confirmation?session_id=cs_unpaid": http.StatusPaymentRequired,
		"/api/store/orders/confirmation?session_id=cs_nope":   http.StatusBadGateway,
	} {
		rec := httptest.NewRecorder()
		h.Confirmation(rec, httptest.NewRequest("GET", target, nil))
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", target, rec.Code, want)
		}
	}
}

func TestShippingRatesUnavailable(t *testing.T) {
	h, _, _ := setupCheckout(t, &fakePayments{})

	rec := httptest.NewRecorder()
	h.ShippingRates(rec, jsonRequest(t, "POST", "/api/store/shipping-rates", map[string]any{
		"country": "US",
		"items":   mugCart["items"],
	}))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestProducts(t *testing.T) {
	h, _, _ := setupCheckout(t, nil)

	rec := httptest.NewRecorder()
	h.Products(rec, httptest.NewRequest("GET", "/api/store/products", nil))
	var resp struct {
		Products []catalog.Product `json:"products"`
	}
	decodeBody(t, rec, &resp)
	if len(resp.Products) != len(catalog.Default().Products()) {
		t.Errorf("products = %d, want %d", len(resp.Products), len(catalog.Default().Products()))
	}
}

const webhookSecret = "whsec_handler_test"

func TestStripeWebhook(t *testing.T) {
	db := setupDB(t)
	r := reconcile.New(reconcile.Deps{
		WebhookSecret: webhookSecret,
		Events:        store.NewWebhookEventStore(db),
		Orders:        store.NewOrderStore(db),
		Logger:        slog.Default(),
	})
	h := NewWebhookHandler(r, slog.Default())

	body, _ := json.Marshal(map[string]any{
		"id":          "evt_unknown",
		"object":      "event",
		"type":        "customer.created",
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data":        map[string]any{"object": map[string]any{"id": "cus_1", "object": "customer"}},
	})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["outcome"] != string(reconcile.OutcomeIgnored) {
		t.Errorf("outcome = %v, want ignored", resp["outcome"])
	}

	req = httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec = httptest.NewRecorder()
	h.Stripe(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad signature: status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

type brokenIssuer struct{}

func (brokenIssuer) Issue(ctx context.Context, p licensing.Purchase) (*licensing.Result, error) {
	return nil, errors.New("database is locked")
}

func TestStripeWebhookFailureAnswers200Unrecorded(t *testing.T) {
	db := setupDB(t)
	events := store.NewWebhookEventStore(db)
	r := reconcile.New(reconcile.Deps{
		WebhookSecret: webhookSecret,
		Events:        events,
		Orders:        store.NewOrderStore(db),
		Issuer:        brokenIssuer{},
		Logger:        slog.Default(),
	})
	h := NewWebhookHandler(r, slog.Default())

	body, _ := json.Marshal(map[string]any{
		"id":          "evt_fail",
		"object":      "event",
		"type":        "checkout.session.completed",
		"api_version": "2025-03-31.basil",
		"created":     time.Now().Unix(),
		"data": map[string]any{"object": map[string]any{
			"id":             "cs_1",
			"object":         "checkout.session",
			"payment_status": "paid",
			"metadata":       map[string]any{"userId": "u1"},
		}},
	})
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   body,
		Secret:    webhookSecret,
		Timestamp: time.Now(),
	})

	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	rec := httptest.NewRecorder()
	h.Stripe(rec, req)

	// The provider sees success and will not redeliver on its own.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]any
	decodeBody(t, rec, &resp)
	if resp["outcome"] != string(reconcile.OutcomeFailed) {
		t.Errorf("outcome = %v, want failed", resp["outcome"])
	}
	seen, err := events.Seen(context.Background(), "evt_fail")
	if err != nil {
		t.Fatalf("seen: %v", err)
	}
	if seen {
		t.Error("failed event must stay unrecorded so a manual resend is processed")
	}
}
