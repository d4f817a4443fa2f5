package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
	"sync"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	mu          sync.RWMutex
	serverToken string
	fromEmail   string
	baseURL     string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func NewClient(serverToken, fromEmail, baseURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		baseURL:     baseURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverToken != ""
}

// UpdateConfig swaps credentials at runtime.
func (c *Client) UpdateConfig(serverToken, fromEmail, baseURL string) {
	c.mu.Lock()
	c.serverToken = serverToken
	c.fromEmail = fromEmail
	c.baseURL = baseURL
	c.mu.Unlock()
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
	Tag      string `json:"Tag,omitempty"`
}

type postmarkError struct {
	ErrorCode int    `json:"ErrorCode"`
	Message   string `json:"Message"`
}

func greeting(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "Hi there"
	}
	return "Hi " + name
}

// SendLicenseKey delivers a newly issued premium license key.
func (c *Client) SendLicenseKey(ctx context.Context, toEmail, licenseKey, userName string) error {
	c.mu.RLock()
	baseURL := c.baseURL
	c.mu.RUnlock()

	hello := greeting(userName)
	accountURL := baseURL + "/account"
	textBody := fmt.Sprintf(
		"%s,\n\nThank you for purchasing ThemeShop Premium!\n\nYour License Key: %s\n\n"+
			"This is a one-time purchase. No subscriptions, no renewals.\n\nView your account: %s\n",
		hello, licenseKey, accountURL,
	)
	htmlBody := fmt.Sprintf(
		`<p>%s,</p><p>Thank you for purchasing ThemeShop Premium!</p>`+
			`<p>Your License Key</p><p><code style="font-size:24px;letter-spacing:2px">%s</code></p>`+
			`<p>This is a one-time purchase. No subscriptions, no renewals.</p>`+
			`<p><a href="%s">View Your Account</a></p>`,
		html.EscapeString(hello), licenseKey, accountURL,
	)

	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Subject:  "Your ThemeShop Premium License Key",
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "license",
	})
}

// OrderSummary is what the buyer sees in an order confirmation.
type OrderSummary struct {
	OrderID string
	Lines   []string
	Total   string
}

// SendOrderConfirmation tells the buyer their payment went through.
func (c *Client) SendOrderConfirmation(ctx context.Context, toEmail string, o OrderSummary) error {
	var text, htmlLines strings.Builder
	for _, line := range o.Lines {
		fmt.Fprintf(&text, "- %s\n", line)
		fmt.Fprintf(&htmlLines, "<li>%s</li>", html.EscapeString(line))
	}
	textBody := fmt.Sprintf(
		"Thanks for your order!\n\nOrder: %s\n%s\nTotal: %s\n\nWe'll email you again when it ships.\n",
		o.OrderID, text.String(), o.Total,
	)
	htmlBody := fmt.Sprintf(
		`<p>Thanks for your order!</p><p>Order: <strong>%s</strong></p><ul>%s</ul><p>Total: %s</p>`+
			`<p>We'll email you again when it ships.</p>`,
		html.EscapeString(o.OrderID), htmlLines.String(), o.Total,
	)

	return c.send(ctx, postmarkEmail{
		To:       toEmail,
		Subject:  "Your ThemeShop order " + o.OrderID,
		HtmlBody: htmlBody,
		TextBody: textBody,
		Tag:      "order",
	})
}

func (c *Client) send(ctx context.Context, payload postmarkEmail) error {
	c.mu.RLock()
	token := c.serverToken
	payload.From = c.fromEmail
	c.mu.RUnlock()

	if token == "" {
		return fmt.Errorf("email client not configured: missing server token")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var pe postmarkError
		if json.NewDecoder(resp.Body).Decode(&pe) == nil && pe.Message != "" {
			return fmt.Errorf("postmark API error: status %d: %s", resp.StatusCode, pe.Message)
		}
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
