// Package printful is a client for the Printful print-on-demand REST API.
package printful

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.printful.com"

type Client struct {
	apiKey     string
	storeID    string
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithBaseURL(u string) Option {
	return func(cl *Client) {
		cl.baseURL = u
	}
}

func NewClient(apiKey, storeID string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		storeID:    storeID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

type Recipient struct {
	Name        string `json:"name"`
	Address1    string `json:"address1"`
	Address2    string `json:"address2,omitempty"`
	City        string `json:"city"`
	StateCode   string `json:"state_code,omitempty"`
	CountryCode string `json:"country_code"`
	Zip         string `json:"zip"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

type Item struct {
	SyncVariantID string `json:"sync_variant_id"`
	Quantity      int    `json:"quantity"`
}

type RetailCosts struct {
	Subtotal string `json:"subtotal"`
	Shipping string `json:"shipping"`
	Total    string `json:"total"`
}

type OrderRequest struct {
	ExternalID  string       `json:"external_id"`
	Recipient   Recipient    `json:"recipient"`
	Items       []Item       `json:"items"`
	RetailCosts *RetailCosts `json:"retail_costs,omitempty"`
}

type Shipment struct {
	Carrier        string `json:"carrier"`
	Service        string `json:"service"`
	TrackingNumber string `json:"tracking_number"`
	TrackingURL    string `json:"tracking_url"`
	ShipDate       string `json:"ship_date"`
}

type Order struct {
	ID         json.Number `json:"id"`
	ExternalID string      `json:"external_id"`
	Status     string      `json:"status"`
	Shipping   string      `json:"shipping"`
	Created    int64       `json:"created"`
	Recipient  Recipient   `json:"recipient"`
	Shipments  []Shipment  `json:"shipments"`
}

// Order statuses reported by the partner.
const (
	StatusDraft     = "draft"
	StatusPending   = "pending"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
	StatusInProcess = "inprocess"
	StatusOnHold    = "onhold"
	StatusPartial   = "partial"
	StatusFulfilled = "fulfilled"
)

type RateRequest struct {
	Recipient Recipient `json:"recipient"`
	Items     []Item    `json:"items"`
}

type ShippingRate struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rate     string `json:"rate"`
	Currency string `json:"currency"`
}

// APIError is an error envelope returned by the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("printful API error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("printful API error: status %d: %s", e.StatusCode, e.Message)
}

type envelope struct {
	Code   int             `json:"code"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Reason  string `json:"reason"`
		Message string `json:"message"`
	} `json:"error"`
}

// FormatAmount renders minor units as a decimal string, e.g. 2650 -> "26.50".
func FormatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

// CreateOrder creates a draft order keyed by the caller's external id.
func (c *Client) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodPost, "/orders", req, &o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &o, nil
}

// ConfirmOrder moves a draft order into production.
func (c *Client) ConfirmOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodPost, "/orders/"+url.PathEscape(id)+"/confirm", nil, &o); err != nil {
		return nil, fmt.Errorf("confirm order %s: %w", id, err)
	}
	return &o, nil
}

func (c *Client) GetOrder(ctx context.Context, id string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &o); err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return &o, nil
}

// GetOrderByExternalID fetches an order by the id we assigned it.
func (c *Client) GetOrderByExternalID(ctx context.Context, externalID string) (*Order, error) {
	var o Order
	if err := c.do(ctx, http.MethodGet, "/orders/@"+url.PathEscape(externalID), nil, &o); err != nil {
		return nil, fmt.Errorf("get order @%s: %w", externalID, err)
	}
	return &o, nil
}

// ShippingRates quotes the partner's live shipping rates.
func (c *Client) ShippingRates(ctx context.Context, req RateRequest) ([]ShippingRate, error) {
	var rates []ShippingRate
	if err := c.do(ctx, http.MethodPost, "/shipping/rates", req, &rates); err != nil {
		return nil, fmt.Errorf("shipping rates: %w", err)
	}
	return rates, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.Configured() {
		return fmt.Errorf("printful client not configured: missing API key")
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.storeID != "" {
		req.Header.Set("X-PF-Store-Id", c.storeID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var env envelope
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env)

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if decodeErr == nil && env.Error != nil {
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if decodeErr != nil {
		return fmt.Errorf("decode response: %w", decodeErr)
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}
