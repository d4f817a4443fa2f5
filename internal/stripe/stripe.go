package stripe

import (
	"fmt"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// AllowedShippingCountries are the destinations the fulfillment partner ships to.
var AllowedShippingCountries = []string{
	"US", "CA", "GB", "AU", "DE", "FR", "ES", "IT", "NL", "BE",
	"AT", "CH", "SE", "NO", "DK", "FI", "IE", "PT", "PL", "CZ",
}

// ShippingRate is a fixed-price shipping tier offered at checkout.
type ShippingRate struct {
	Name    string
	Amount  int64
	MinDays int64
	MaxDays int64
}

var ShippingRates = []ShippingRate{
	{Name: "Standard Shipping", Amount: 500, MinDays: 5, MaxDays: 10},
	{Name: "Express Shipping", Amount: 1500, MinDays: 2, MaxDays: 5},
}

// PurchaseTypeStoreOrder tags checkout metadata for merchandise orders.
const PurchaseTypeStoreOrder = "store_order"

type Config struct {
	SecretKey      string
	WebhookSecret  string
	PremiumPriceID string
	BaseURL        string
	Currency       string
}

type Client struct {
	cfg Config
	api *client.API
}

type Option func(*options)

type options struct {
	backends *stripe.Backends
}

// WithBackend routes API calls through b instead of api.stripe.com.
func WithBackend(b stripe.Backend) Option {
	return func(o *options) {
		o.backends = &stripe.Backends{API: b, Connect: b, Uploads: b}
	}
}

func NewClient(cfg Config, opts ...Option) *Client {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	sc := &client.API{}
	sc.Init(cfg.SecretKey, o.backends)
	return &Client{cfg: cfg, api: sc}
}

// CreateCustomer creates a Stripe customer and returns the customer ID.
func (c *Client) CreateCustomer(email, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.AddMetadata("userId", userID)
	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("create stripe customer: %w", err)
	}
	return cust.ID, nil
}

// Session is the part of a created checkout session the caller needs.
type Session struct {
	ID  string
	URL string
}

// CreatePremiumCheckout creates a one-time payment session for the premium
// license. The user id travels in metadata for the webhook.
func (c *Client) CreatePremiumCheckout(customerID, userID string) (*Session, error) {
	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(customerID),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.PremiumPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(c.cfg.BaseURL + "/account?payment=success"),
		CancelURL:  stripe.String(c.cfg.BaseURL + "/pricing?payment=cancelled"),
	}
	params.AddMetadata("userId", userID)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

type LineItem struct {
	Name        string
	Description string
	Image       string
	UnitAmount  int64
	Quantity    int64
}

type StoreCheckout struct {
	OrderID       string
	CustomerEmail string
	Items         []LineItem
	CancelPath    string
}

// CreateStoreCheckout creates a payment session that collects a shipping
// address and offers the fixed shipping tiers.
func (c *Client) CreateStoreCheckout(sc StoreCheckout) (*Session, error) {
	cancelPath := sc.CancelPath
	if cancelPath == "" {
		cancelPath = "/store"
	}
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice(AllowedShippingCountries),
		},
		SuccessURL: stripe.String(c.cfg.BaseURL + "/store/order-confirmation?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(c.cfg.BaseURL + cancelPath + "?cancelled=true"),
	}
	if sc.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(sc.CustomerEmail)
	}
	for _, it := range sc.Items {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(it.Name),
		}
		if it.Description != "" {
			product.Description = stripe.String(it.Description)
		}
		if it.Image != "" {
			product.Images = stripe.StringSlice([]string{it.Image})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(c.cfg.Currency),
				ProductData: product,
				UnitAmount:  stripe.Int64(it.UnitAmount),
			},
			Quantity: stripe.Int64(it.Quantity),
		})
	}
	for _, rate := range ShippingRates {
		params.ShippingOptions = append(params.ShippingOptions, &stripe.CheckoutSessionShippingOptionParams{
			ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
				Type:        stripe.String("fixed_amount"),
				DisplayName: stripe.String(rate.Name),
				FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
					Amount:   stripe.Int64(rate.Amount),
					Currency: stripe.String(c.cfg.Currency),
				},
				DeliveryEstimate: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateParams{
					Minimum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMinimumParams{
						Unit:  stripe.String("business_day"),
						Value: stripe.Int64(rate.MinDays),
					},
					Maximum: &stripe.CheckoutSessionShippingOptionShippingRateDataDeliveryEstimateMaximumParams{
						Unit:  stripe.String("business_day"),
						Value: stripe.Int64(rate.MaxDays),
					},
				},
			},
		})
	}
	params.AddMetadata("orderId", sc.OrderID)
	params.AddMetadata("type", PurchaseTypeStoreOrder)

	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

// SessionStatus is a retrieved checkout session.
type SessionStatus struct {
	ID            string
	PaymentStatus string
	Metadata      map[string]string
	CustomerEmail string
	AmountTotal   int64
}

// Paid reports whether the session's payment has been collected.
func (s *SessionStatus) Paid() bool {
	return s.PaymentStatus == string(stripe.CheckoutSessionPaymentStatusPaid)
}

func (c *Client) GetCheckoutSession(id string) (*SessionStatus, error) {
	sess, err := c.api.CheckoutSessions.Get(id, nil)
	if err != nil {
		return nil, fmt.Errorf("get checkout session: %w", err)
	}
	st := &SessionStatus{
		ID:            sess.ID,
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
		CustomerEmail: sess.CustomerEmail,
		AmountTotal:   sess.AmountTotal,
	}
	if st.CustomerEmail == "" && sess.CustomerDetails != nil {
		st.CustomerEmail = sess.CustomerDetails.Email
	}
	return st, nil
}

// ConstructWebhookEvent verifies the signature and returns the parsed event.
func (c *Client) ConstructWebhookEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	return VerifyEvent(payload, sigHeader, c.cfg.WebhookSecret)
}

// VerifyEvent checks sigHeader against secret. The event's API version is
// not enforced because payloads are decoded into local types.
func VerifyEvent(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
