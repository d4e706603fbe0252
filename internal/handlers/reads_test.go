package handlers

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	bursarapi "agencyhub/pkg/api/bursar"
)

func TestGetBalance(t *testing.T) {
	payments, mock, _, _ := newTestPayments(t)
	router := newTestRouter(payments, testTenantID, "member")

	mock.ExpectQuery("SELECT basic_tokens, premium_tokens FROM bursar.tenant_balances").
		WithArgs(testTenantID).
		WillReturnRows(sqlmock.NewRows([]string{"basic_tokens", "premium_tokens"}).AddRow(120, 5))

	w := doJSON(t, router, "GET", "/payments/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var resp bursarapi.BalanceResponse
	decodeJSON(t, w, &resp)
	if resp.TenantID != testTenantID {
		t.Fatalf("expected tenant %s, got %s", testTenantID, resp.TenantID)
	}
	if resp.BasicTokens != 120 || resp.PremiumTokens != 5 {
		t.Fatalf("unexpected balance: %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetBalanceNoRowReadsAsZero(t *testing.T) {
	payments, mock, _, _ := newTestPayments(t)
	router := newTestRouter(payments, testTenantID, "member")

	mock.ExpectQuery("SELECT basic_tokens, premium_tokens FROM bursar.tenant_balances").
		WithArgs(testTenantID).
		WillReturnError(sql.ErrNoRows)

	w := doJSON(t, router, "GET", "/payments/balance", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var resp bursarapi.BalanceResponse
	decodeJSON(t, w, &resp)
	if resp.BasicTokens != 0 || resp.PremiumTokens != 0 {
		t.Fatalf("expected zero balances, got %+v", resp)
	}
}

func TestGetBalanceQueryFailure(t *testing.T) {
	payments, mock, _, _ := newTestPayments(t)
	router := newTestRouter(payments, testTenantID, "member")

	mock.ExpectQuery("SELECT basic_tokens, premium_tokens FROM bursar.tenant_balances").
		WithArgs(testTenantID).
		WillReturnError(errDB)

	w := doJSON(t, router, "GET", "/payments/balance", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestListPurchases(t *testing.T) {
	payments, mock, _, _ := newTestPayments(t)
	router := newTestRouter(payments, testTenantID, "member")

	completedID := uuid.New().String()
	pendingID := uuid.New().String()
	now := time.Now()

	columns := []string{
		"id", "tenant_id", "order_id", "tier", "quantity", "amount_cents",
		"currency", "status", "payment_id", "created_at", "completed_at",
	}
	mock.ExpectQuery("SELECT id, tenant_id, order_id, tier, quantity, amount_cents, currency").
		WithArgs(testTenantID, 50, 0).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(completedID, testTenantID, "order_2", "premium", int64(5), int64(37500), "INR", StatusCompleted, "pay_2", now, now).
			AddRow(pendingID, testTenantID, "order_1", "basic", int64(10), int64(500), "INR", StatusPending, nil, now.Add(-time.Hour), nil))

	w := doJSON(t, router, "GET", "/payments/purchases", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var resp bursarapi.ListPurchasesResponse
	decodeJSON(t, w, &resp)
	if resp.Count != 2 || len(resp.Purchases) != 2 {
		t.Fatalf("expected 2 purchases, got %+v", resp)
	}

	first := resp.Purchases[0]
	if first.ID != completedID || first.Status != StatusCompleted {
		t.Fatalf("unexpected first purchase: %+v", first)
	}
	if first.PaymentID == nil || *first.PaymentID != "pay_2" {
		t.Fatalf("expected payment id on completed purchase, got %+v", first.PaymentID)
	}
	if first.CompletedAt == nil {
		t.Fatal("expected completed_at on completed purchase")
	}

	second := resp.Purchases[1]
	if second.Status != StatusPending {
		t.Fatalf("unexpected second purchase: %+v", second)
	}
	if second.PaymentID != nil || second.CompletedAt != nil {
		t.Fatal("pending purchase should have no payment id or completion time")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListPurchasesClampsPaging(t *testing.T) {
	payments, mock, _, _ := newTestPayments(t)
	router := newTestRouter(payments, testTenantID, "member")

	columns := []string{
		"id", "tenant_id", "order_id", "tier", "quantity", "amount_cents",
		"currency", "status", "payment_id", "created_at", "completed_at",
	}
	// Out-of-range values fall back to the defaults.
	mock.ExpectQuery("SELECT id, tenant_id, order_id, tier, quantity, amount_cents, currency").
		WithArgs(testTenantID, 50, 0).
		WillReturnRows(sqlmock.NewRows(columns))

	w := doJSON(t, router, "GET", "/payments/purchases?limit=9999&offset=-3", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", w.Code, w.Body.String())
	}

	var resp bursarapi.ListPurchasesResponse
	decodeJSON(t, w, &resp)
	if resp.Count != 0 || len(resp.Purchases) != 0 {
		t.Fatalf("expected empty list, got %+v", resp)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
