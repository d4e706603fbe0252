package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	bursarapi "agencyhub/pkg/api/bursar"
	commonapi "agencyhub/pkg/api/common"
	"agencyhub/pkg/auth"
	"agencyhub/pkg/billing"
	"agencyhub/pkg/logging"
)

// CreateTokenOrder opens a provider-side payment order and records a pending
// purchase intent. No balance is touched here; tokens are only credited once
// the payment proof has been verified.
func (s *Payments) CreateTokenOrder(c *gin.Context) {
	var req bursarapi.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument, "Invalid request body")
		return
	}

	tenantID := strings.TrimSpace(req.TenantID)
	if tenantID == "" {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument, "tenantId is required")
		return
	}

	if !auth.IsTenantAdmin(c, tenantID) {
		respondError(c, http.StatusForbidden, commonapi.CodeForbidden, "Admin role required for this tenant")
		return
	}

	tier, ok := billing.ParseTier(req.Tier)
	if !ok {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument, "Unknown purchase tier")
		return
	}

	if req.Quantity <= 0 || req.Quantity > s.pricing.MaxQuantity {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument,
			"quantity must be between 1 and "+strconv.FormatInt(s.pricing.MaxQuantity, 10))
		return
	}

	amount, err := s.pricing.Amount(tier, req.Quantity)
	if err != nil {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument, err.Error())
		return
	}

	ctx := c.Request.Context()
	intentID := uuid.New()
	receipt := "tok_" + intentID.String()

	order, err := s.provider.CreateOrder(ctx, amount, s.pricing.Currency, receipt, map[string]string{
		"tenant_id": tenantID,
		"tier":      string(tier),
		"quantity":  strconv.FormatInt(req.Quantity, 10),
	})
	if err != nil {
		// Nothing persisted yet, the caller can safely retry.
		s.logger.WithError(err).WithFields(logging.Fields{
			"tenant_id": tenantID,
			"tier":      tier,
			"quantity":  req.Quantity,
		}).Error("Provider order creation failed")
		s.countOrder(tier, "provider_error")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Payment provider unavailable")
		return
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bursar.purchase_intents (
			id, tenant_id, order_id, tier, quantity, amount_cents, currency,
			status, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, NOW())
	`, intentID, tenantID, order.ID, string(tier), req.Quantity, amount, s.pricing.Currency, s.callerUserID(c))
	if err != nil {
		// The provider order exists but we lost the linkage. Log the order id
		// so the reconciliation sweep or an operator can pick it up.
		s.logger.WithError(err).WithFields(logging.Fields{
			"tenant_id": tenantID,
			"order_id":  order.ID,
			"intent_id": intentID,
		}).Error("Failed to record purchase intent; provider order orphaned")
		s.countOrder(tier, "intent_error")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Failed to record purchase intent")
		return
	}

	s.logger.WithFields(logging.Fields{
		"tenant_id": tenantID,
		"intent_id": intentID,
		"order_id":  order.ID,
		"tier":      tier,
		"quantity":  req.Quantity,
		"amount":    amount,
	}).Info("Created token purchase order")
	s.countOrder(tier, "created")

	c.JSON(http.StatusOK, bursarapi.CreateOrderResponse{
		OrderID:           order.ID,
		Amount:            amount,
		Currency:          s.pricing.Currency,
		IntentID:          intentID.String(),
		ProviderPublicKey: s.provider.KeyID(),
	})
}

func (s *Payments) countOrder(tier billing.Tier, status string) {
	if s.metrics != nil && s.metrics.OrdersCreated != nil {
		s.metrics.OrdersCreated.WithLabelValues(string(tier), status).Inc()
	}
}
