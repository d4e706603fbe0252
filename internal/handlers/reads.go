package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	bursarapi "agencyhub/pkg/api/bursar"
	commonapi "agencyhub/pkg/api/common"
)

// GetBalance returns the caller tenant's token pools. Tenants without a
// balance row simply have not purchased yet and read as zero.
func (s *Payments) GetBalance(c *gin.Context) {
	tenantID := s.callerTenantID(c)

	var basic, premium int64
	err := s.db.QueryRowContext(c.Request.Context(), `
		SELECT basic_tokens, premium_tokens FROM bursar.tenant_balances WHERE tenant_id = $1
	`, tenantID).Scan(&basic, &premium)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to fetch tenant balance")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Failed to fetch balance")
		return
	}

	c.JSON(http.StatusOK, bursarapi.BalanceResponse{
		TenantID:      tenantID,
		BasicTokens:   basic,
		PremiumTokens: premium,
	})
}

// ListPurchases returns the caller tenant's purchase history, newest first.
// The intent table is append-only, so this doubles as the audit trail.
func (s *Payments) ListPurchases(c *gin.Context) {
	tenantID := s.callerTenantID(c)

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(c.Request.Context(), `
		SELECT id, tenant_id, order_id, tier, quantity, amount_cents, currency,
		       status, payment_id, created_at, completed_at
		FROM bursar.purchase_intents
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, tenantID, limit, offset)
	if err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).Error("Failed to fetch purchases")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Failed to fetch purchases")
		return
	}
	defer rows.Close()

	purchases := []bursarapi.PurchaseIntent{}
	for rows.Next() {
		var intent purchaseIntent
		if err := rows.Scan(
			&intent.ID, &intent.TenantID, &intent.OrderID, &intent.Tier,
			&intent.Quantity, &intent.AmountCents, &intent.Currency, &intent.Status,
			&intent.PaymentID, &intent.CreatedAt, &intent.CompletedAt,
		); err != nil {
			s.logger.WithError(err).Error("Error scanning purchase intent")
			continue
		}

		view := bursarapi.PurchaseIntent{
			ID:          intent.ID,
			TenantID:    intent.TenantID,
			OrderID:     intent.OrderID,
			Tier:        intent.Tier,
			Quantity:    intent.Quantity,
			AmountCents: intent.AmountCents,
			Currency:    intent.Currency,
			Status:      intent.Status,
			CreatedAt:   intent.CreatedAt,
		}
		if intent.PaymentID.Valid {
			view.PaymentID = &intent.PaymentID.String
		}
		if intent.CompletedAt.Valid {
			view.CompletedAt = &intent.CompletedAt.Time
		}
		purchases = append(purchases, view)
	}

	c.JSON(http.StatusOK, bursarapi.ListPurchasesResponse{
		Purchases: purchases,
		Count:     len(purchases),
	})
}
