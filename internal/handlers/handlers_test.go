package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"agencyhub/internal/razorpay"
	"agencyhub/pkg/billing"
	"agencyhub/pkg/logging"
)

const (
	testTenantID = "c1a7e2a0-0000-4000-8000-000000000001"
	testUserID   = "c1a7e2a0-0000-4000-8000-000000000002"
	testSecret   = "unit-test-provider-secret"
)

var errDB = errors.New("database unavailable")

// fakeProvider implements PaymentProvider with a real HMAC so signature
// round-trips behave like the live provider.
type fakeProvider struct {
	nextOrderID string
	failCreate  bool

	createdAmount   int64
	createdCurrency string
	createdReceipt  string
	createdNotes    map[string]string
	createCalls     int
}

func (f *fakeProvider) CreateOrder(_ context.Context, amountCents int64, currency, receipt string, notes map[string]string) (*razorpay.Order, error) {
	f.createCalls++
	if f.failCreate {
		return nil, fmt.Errorf("provider unavailable")
	}
	f.createdAmount = amountCents
	f.createdCurrency = currency
	f.createdReceipt = receipt
	f.createdNotes = notes
	orderID := f.nextOrderID
	if orderID == "" {
		orderID = "order_fake_1"
	}
	return &razorpay.Order{
		ID:       orderID,
		Amount:   amountCents,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (f *fakeProvider) VerifySignature(orderID, paymentID, signature string) bool {
	return hmac.Equal([]byte(signPayment(orderID, paymentID)), []byte(signature))
}

func (f *fakeProvider) KeyID() string {
	return "rzp_test_key"
}

func signPayment(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func testPricing() billing.PriceTable {
	return billing.PriceTable{
		UnitPriceCents: map[billing.Tier]int64{
			billing.TierBasic:   50,
			billing.TierPremium: 7500,
		},
		Currency:    "INR",
		MaxQuantity: 100000,
	}
}

func newTestPayments(t *testing.T) (*Payments, sqlmock.Sqlmock, *fakeProvider, *sql.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	provider := &fakeProvider{}
	payments := NewPayments(mockDB, logging.NewLogger(), provider, testPricing(), nil)
	return payments, mock, provider, mockDB
}

// newTestRouter wires the payment routes behind a stub identity, standing in
// for the JWT middleware covered in pkg/auth.
func newTestRouter(payments *Payments, tenantID, role string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("tenant_id", tenantID)
		c.Set("user_id", testUserID)
		c.Set("role", role)
	})
	router.POST("/payments/orders", payments.CreateTokenOrder)
	router.POST("/payments/verify", payments.VerifyTokenPayment)
	router.GET("/payments/balance", payments.GetBalance)
	router.GET("/payments/purchases", payments.ListPurchases)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}
