// Package razorpay wraps the Razorpay Orders API for token purchases.
// The flow is synchronous: the server opens an order, the client completes
// payment in the provider's checkout and comes back with
// {order_id, payment_id, signature}, which the server verifies.
package razorpay

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"agencyhub/pkg/logging"
)

const defaultBaseURL = "https://api.razorpay.com/v1"

// Config for creating a new Razorpay client. The client is constructed once
// in main and injected; it holds no process-global state.
type Config struct {
	KeyID     string // public key id, also handed to the browser checkout
	KeySecret string // server-held secret, signs order|payment digests
	BaseURL   string // overridable for tests
	Logger    logging.Logger
}

// Client wraps Razorpay order operations.
type Client struct {
	http      *resty.Client
	keyID     string
	keySecret string
	logger    logging.Logger
}

// NewClient creates a new Razorpay client
func NewClient(cfg Config) (*Client, error) {
	if cfg.KeyID == "" || cfg.KeySecret == "" {
		return nil, fmt.Errorf("razorpay key id and secret are required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetBasicAuth(cfg.KeyID, cfg.KeySecret).
		SetTimeout(15 * time.Second).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:      httpClient,
		keyID:     cfg.KeyID,
		keySecret: cfg.KeySecret,
		logger:    cfg.Logger,
	}, nil
}

// KeyID returns the public key id clients need to open the provider checkout.
func (c *Client) KeyID() string {
	return c.keyID
}

// Order is a provider-side payment order.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // minor currency units
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type createOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

// CreateOrder opens a provider-side order for the given amount. Notes carry
// tenant/tier/quantity metadata for later reconciliation.
func (c *Client) CreateOrder(ctx context.Context, amountCents int64, currency, receipt string, notes map[string]string) (*Order, error) {
	var order Order
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(createOrderRequest{
			Amount:   amountCents,
			Currency: currency,
			Receipt:  receipt,
			Notes:    notes,
		}).
		SetResult(&order).
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("failed to create provider order: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("provider order API error (status %d): %s", resp.StatusCode(), resp.String())
	}
	if order.ID == "" {
		return nil, fmt.Errorf("provider order response missing order id")
	}

	if c.logger != nil {
		c.logger.WithFields(logging.Fields{
			"order_id": order.ID,
			"amount":   amountCents,
			"currency": currency,
			"receipt":  receipt,
		}).Info("Created provider order")
	}

	return &order, nil
}

// Sign computes the payment proof for an order/payment pair: a hex-encoded
// HMAC-SHA256 over "orderID|paymentID" keyed with the key secret.
func (c *Client) Sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(c.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a supplied payment proof against the recomputed one.
// Comparison is constant-time; a timing oracle here would let an attacker
// forge proofs byte by byte.
func (c *Client) VerifySignature(orderID, paymentID, signature string) bool {
	expected := c.Sign(orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}
