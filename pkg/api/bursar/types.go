// Package bursar defines the request/response contracts of the Bursar
// (token purchase) API, shared with clients of the service.
package bursar

import "time"

// CreateOrderRequest is the body of POST /payments/orders.
type CreateOrderRequest struct {
	TenantID string `json:"tenantId"`
	Tier     string `json:"tier"`
	Quantity int64  `json:"quantity"`
}

// CreateOrderResponse is returned once a provider order and a pending
// purchase intent have been recorded.
type CreateOrderResponse struct {
	OrderID           string `json:"orderId"`
	Amount            int64  `json:"amount"` // minor currency units
	Currency          string `json:"currency"`
	IntentID          string `json:"intentId"`
	ProviderPublicKey string `json:"providerPublicKey"`
}

// VerifyPaymentRequest is the body of POST /payments/verify.
type VerifyPaymentRequest struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
	IntentID  string `json:"intentId"`
}

// VerifyPaymentResponse is returned when a payment proof checked out and the
// tenant balance was credited.
type VerifyPaymentResponse struct {
	PurchaseType string `json:"purchaseType"`
	TokensAdded  int64  `json:"tokensAdded"`
	NewBalance   int64  `json:"newBalance"`
}

// BalanceResponse reports a tenant's current token pools.
type BalanceResponse struct {
	TenantID      string `json:"tenantId"`
	BasicTokens   int64  `json:"basicTokens"`
	PremiumTokens int64  `json:"premiumTokens"`
}

// PurchaseIntent is the API view of one purchase attempt and its lifecycle.
type PurchaseIntent struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	OrderID     string     `json:"orderId"`
	Tier        string     `json:"tier"`
	Quantity    int64      `json:"quantity"`
	AmountCents int64      `json:"amountCents"`
	Currency    string     `json:"currency"`
	Status      string     `json:"status"`
	PaymentID   *string    `json:"paymentId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ListPurchasesResponse is a page of a tenant's purchase history.
type ListPurchasesResponse struct {
	Purchases []PurchaseIntent `json:"purchases"`
	Count     int              `json:"count"`
}
