// Package checkout turns carts and premium upgrades into payment sessions
// and reports on completed checkouts.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukerupert/themeshop/internal/catalog"
	"github.com/dukerupert/themeshop/internal/model"
	"github.com/dukerupert/themeshop/internal/printful"
	"github.com/dukerupert/themeshop/internal/store"
	"github.com/dukerupert/themeshop/internal/stripe"
)

const (
	MaxQuantity  = 10
	maxCartLines = 25
)

var (
	ErrEmptyCart           = errors.New("cart is empty")
	ErrInvalidItem         = errors.New("invalid cart item")
	ErrAlreadyPremium      = errors.New("already premium")
	ErrPaymentsUnavailable = errors.New("payments are not configured")
	ErrPaymentProvider     = errors.New("payment provider error")
	ErrNotPaid             = errors.New("payment not completed")
	ErrOrderNotFound       = errors.New("order not found")
	ErrRatesUnavailable    = errors.New("shipping rates are not available")
)

// ItemError describes which cart line was rejected.
type ItemError struct {
	Index  int
	Reason string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

func (e *ItemError) Unwrap() error {
	return ErrInvalidItem
}

// Payments is the payment provider surface checkout needs.
type Payments interface {
	CreateCustomer(email, userID string) (string, error)
	CreatePremiumCheckout(customerID, userID string) (*stripe.Session, error)
	CreateStoreCheckout(sc stripe.StoreCheckout) (*stripe.Session, error)
	GetCheckoutSession(id string) (*stripe.SessionStatus, error)
}

type RateQuoter interface {
	Configured() bool
	ShippingRates(ctx context.Context, req printful.RateRequest) ([]printful.ShippingRate, error)
}

type Service struct {
	catalog  *catalog.Catalog
	orders   *store.OrderStore
	users    *store.UserStore
	payments Payments
	rates    RateQuoter
	logger   *slog.Logger
}

type Deps struct {
	Catalog  *catalog.Catalog
	Orders   *store.OrderStore
	Users    *store.UserStore
	Payments Payments
	Rates    RateQuoter
	Logger   *slog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		catalog:  d.Catalog,
		orders:   d.Orders,
		users:    d.Users,
		payments: d.Payments,
		rates:    d.Rates,
		logger:   d.Logger.With("component", "checkout"),
	}
}

type CartItem struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

// LineItems resolves a cart against the catalog, locking in prices.
func (s *Service) LineItems(items []CartItem) ([]model.LineItem, []stripe.LineItem, error) {
	if len(items) == 0 {
		return nil, nil, ErrEmptyCart
	}
	if len(items) > maxCartLines {
		return nil, nil, &ItemError{Index: maxCartLines, Reason: "too many items"}
	}

	lines := make([]model.LineItem, 0, len(items))
	stripeLines := make([]stripe.LineItem, 0, len(items))
	for i, it := range items {
		if it.Quantity < 1 || it.Quantity > MaxQuantity {
			return nil, nil, &ItemError{Index: i, Reason: fmt.Sprintf("quantity must be between 1 and %d", MaxQuantity)}
		}
		p, v, ok := s.catalog.Variant(it.ProductID, it.VariantID)
		if p == nil {
			return nil, nil, &ItemError{Index: i, Reason: "unknown product"}
		}
		if !ok {
			return nil, nil, &ItemError{Index: i, Reason: "unknown variant"}
		}
		if !v.InStock {
			return nil, nil, &ItemError{Index: i, Reason: "variant out of stock"}
		}

		lines = append(lines, model.LineItem{
			ProductID:        p.ID,
			VariantID:        v.ID,
			PartnerVariantID: v.PartnerVariantID,
			Name:             p.Name,
			Size:             v.Size,
			Color:            v.Color,
			Quantity:         it.Quantity,
			UnitPrice:        p.Price,
		})

		desc := strings.TrimSpace(strings.Join([]string{v.Size, v.Color}, " "))
		var image string
		if len(p.Images) > 0 {
			image = p.Images[0]
		}
		stripeLines = append(stripeLines, stripe.LineItem{
			Name:        p.Name,
			Description: desc,
			Image:       image,
			UnitAmount:  p.Price,
			Quantity:    int64(it.Quantity),
		})
	}
	return lines, stripeLines, nil
}

type StoreRequest struct {
	User       *model.User
	Email      string
	Items      []CartItem
	CancelPath string
}

// StoreCheckout creates a pending order with prices locked in, then a
// payment session for it. If the session cannot be created the order is
// left pending and ErrPaymentProvider is returned.
func (s *Service) StoreCheckout(ctx context.Context, req StoreRequest) (*stripe.Session, *model.Order, error) {
	if s.payments == nil {
		return nil, nil, ErrPaymentsUnavailable
	}
	lines, stripeLines, err := s.LineItems(req.Items)
	if err != nil {
		return nil, nil, err
	}

	o := &model.Order{Email: strings.TrimSpace(req.Email), Items: lines}
	if req.User != nil {
		o.UserID = &req.User.ID
		if o.Email == "" {
			o.Email = req.User.Email
		}
	}
	o, err = s.orders.Create(ctx, o)
	if err != nil {
		return nil, nil, fmt.Errorf("create order: %w", err)
	}

	sess, err := s.payments.CreateStoreCheckout(stripe.StoreCheckout{
		OrderID:       o.ID,
		CustomerEmail: o.Email,
		Items:         stripeLines,
		CancelPath:    req.CancelPath,
	})
	if err != nil {
		s.logger.Error("create store checkout session", "order_id", o.ID, "error", err)
		return nil, o, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}

	if err := s.orders.SetStripeSession(ctx, o.ID, sess.ID); err != nil {
		s.logger.Error("record checkout session on order", "order_id", o.ID, "session_id", sess.ID, "error", err)
	}
	s.logger.Info("store checkout started", "order_id", o.ID, "session_id", sess.ID, "subtotal", o.Subtotal)
	return sess, o, nil
}

// PremiumCheckout starts a premium license purchase for user, creating and
// saving a provider customer on first use.
func (s *Service) PremiumCheckout(ctx context.Context, user *model.User) (*stripe.Session, error) {
	if s.payments == nil {
		return nil, ErrPaymentsUnavailable
	}
	if user.IsPremium {
		return nil, ErrAlreadyPremium
	}

	var customerID string
	if user.StripeCustomerID != nil {
		customerID = *user.StripeCustomerID
	}
	if customerID == "" {
		id, err := s.payments.CreateCustomer(user.Email, user.ID)
		if err != nil {
			s.logger.Error("create customer", "user_id", user.ID, "error", err)
			return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
		}
		if err := s.users.SetStripeCustomerID(ctx, user.ID, id); err != nil {
			return nil, fmt.Errorf("save customer id: %w", err)
		}
		customerID = id
	}

	sess, err := s.payments.CreatePremiumCheckout(customerID, user.ID)
	if err != nil {
		s.logger.Error("create premium checkout session", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	s.logger.Info("premium checkout started", "user_id", user.ID, "session_id", sess.ID)
	return sess, nil
}

// Confirmation returns the local order for a paid checkout session.
func (s *Service) Confirmation(ctx context.Context, sessionID string) (*model.Order, error) {
	if s.payments == nil {
		return nil, ErrPaymentsUnavailable
	}
	sess, err := s.payments.GetCheckoutSession(sessionID)
	if err != nil {
		s.logger.Warn("retrieve checkout session", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPaymentProvider, err)
	}
	if !sess.Paid() {
		return nil, ErrNotPaid
	}

	var o *model.Order
	if id := sess.Metadata["orderId"]; id != "" {
		o, err = s.orders.GetByID(ctx, id)
	} else {
		o, err = s.orders.GetByStripeSessionID(ctx, sessionID)
	}
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

type RateQuery struct {
	Country string     `json:"country"`
	State   string     `json:"state"`
	Zip     string     `json:"zip"`
	Items   []CartItem `json:"items"`
}

// ShippingRates asks the fulfillment partner for live rates for a cart.
func (s *Service) ShippingRates(ctx context.Context, q RateQuery) ([]printful.ShippingRate, error) {
	if s.rates == nil || !s.rates.Configured() {
		return nil, ErrRatesUnavailable
	}
	if strings.TrimSpace(q.Country) == "" {
		return nil, &ItemError{Index: -1, Reason: "country is required"}
	}
	lines, _, err := s.LineItems(q.Items)
	if err != nil {
		return nil, err
	}

	req := printful.RateRequest{
		Recipient: printful.Recipient{
			CountryCode: strings.ToUpper(strings.TrimSpace(q.Country)),
			StateCode:   strings.TrimSpace(q.State),
			Zip:         strings.TrimSpace(q.Zip),
		},
	}
	for _, l := range lines {
		req.Items = append(req.Items, printful.Item{SyncVariantID: l.PartnerVariantID, Quantity: l.Quantity})
	}
	rates, err := s.rates.ShippingRates(ctx, req)
	if err != nil {
		s.logger.Error("partner shipping rates", "country", req.Recipient.CountryCode, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrRatesUnavailable, err)
	}
	return rates, nil
}
