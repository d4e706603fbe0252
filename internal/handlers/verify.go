package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	bursarapi "agencyhub/pkg/api/bursar"
	commonapi "agencyhub/pkg/api/common"
	"agencyhub/pkg/logging"
)

// VerifyTokenPayment checks a payment proof against the pending intent and
// credits the tenant balance exactly once.
//
// Gates run in a fixed order: signature first (an invalid proof poisons the
// intent), then intent lookup, then a single conditional pending→completed
// transition whose affected-row count is the sole arbiter between concurrent
// verifiers. Losers observe the terminal state and get a 409.
func (s *Payments) VerifyTokenPayment(c *gin.Context) {
	var req bursarapi.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument, "Invalid request body")
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" || req.IntentID == "" {
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidArgument, "orderId, paymentId, signature and intentId are required")
		return
	}

	ctx := c.Request.Context()
	intentID, idErr := uuid.Parse(req.IntentID)

	if !s.provider.VerifySignature(req.OrderID, req.PaymentID, req.Signature) {
		if idErr == nil {
			s.failIntent(ctx, intentID.String())
		}
		s.logger.WithFields(logging.Fields{
			"intent_id": req.IntentID,
			"order_id":  req.OrderID,
		}).Warn("Payment signature verification failed")
		s.countVerification("invalid_signature")
		respondError(c, http.StatusBadRequest, commonapi.CodeInvalidSignature, "Payment signature verification failed")
		return
	}

	if idErr != nil {
		s.countVerification("not_found")
		respondError(c, http.StatusNotFound, commonapi.CodeNotFound, "Purchase intent not found")
		return
	}

	intent, err := s.loadIntent(ctx, intentID.String(), s.callerTenantID(c))
	if errors.Is(err, sql.ErrNoRows) || (err == nil && intent.OrderID != req.OrderID) {
		s.countVerification("not_found")
		respondError(c, http.StatusNotFound, commonapi.CodeNotFound, "Purchase intent not found")
		return
	}
	if err != nil {
		s.logger.WithError(err).WithField("intent_id", req.IntentID).Error("Failed to load purchase intent")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Failed to load purchase intent")
		return
	}

	// The anti-double-credit guard: one conditional write decides the winner.
	res, err := s.db.ExecContext(ctx, `
		UPDATE bursar.purchase_intents
		SET status = 'completed', payment_id = $2, signature = $3, completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, intent.ID, req.PaymentID, req.Signature)
	if err != nil {
		s.logger.WithError(err).WithField("intent_id", intent.ID).Error("Failed to transition purchase intent")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Failed to update purchase intent")
		return
	}
	if rows, raErr := res.RowsAffected(); raErr == nil && rows == 0 {
		status, stErr := s.intentStatus(ctx, intent.ID)
		if stErr != nil {
			status = "unknown"
		}
		s.logger.WithFields(logging.Fields{
			"intent_id": intent.ID,
			"status":    status,
		}).Info("Purchase intent already in a terminal state")
		s.countVerification("conflict")
		respondConflict(c, status)
		return
	}

	newBalance, applied, err := s.creditPurchase(ctx, intent)
	if err != nil {
		// The intent is already completed; the reconciliation sweep will
		// re-apply this credit, keyed on the intent id.
		s.logger.WithError(err).WithFields(logging.Fields{
			"intent_id": intent.ID,
			"tenant_id": intent.TenantID,
		}).Error("Balance credit failed after intent completion")
		respondError(c, http.StatusInternalServerError, commonapi.CodeInternal, "Balance credit pending; retry or await reconciliation")
		return
	}

	s.logger.WithFields(logging.Fields{
		"intent_id":    intent.ID,
		"tenant_id":    intent.TenantID,
		"tier":         intent.Tier,
		"tokens_added": intent.Quantity,
		"new_balance":  newBalance,
		"applied":      applied,
	}).Info("Token purchase verified and credited")
	s.countVerification("completed")
	if applied {
		s.countCredit(intent.Tier, intent.Quantity)
	}

	c.JSON(http.StatusOK, bursarapi.VerifyPaymentResponse{
		PurchaseType: intent.Tier,
		TokensAdded:  intent.Quantity,
		NewBalance:   newBalance,
	})
}

// failIntent marks a still-pending intent failed after an invalid proof.
// Terminal intents are left untouched.
func (s *Payments) failIntent(ctx context.Context, intentID string) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bursar.purchase_intents
		SET status = 'failed', completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, intentID)
	if err != nil {
		s.logger.WithError(err).WithField("intent_id", intentID).Error("Failed to mark purchase intent failed")
		return
	}
	if rows, raErr := res.RowsAffected(); raErr == nil && rows > 0 {
		s.logger.WithField("intent_id", intentID).Info("Marked purchase intent failed after invalid signature")
	}
}

func (s *Payments) loadIntent(ctx context.Context, intentID, tenantID string) (*purchaseIntent, error) {
	var intent purchaseIntent
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, order_id, tier, quantity, amount_cents, currency, status
		FROM bursar.purchase_intents
		WHERE id = $1 AND tenant_id = $2
	`, intentID, tenantID).Scan(
		&intent.ID, &intent.TenantID, &intent.OrderID, &intent.Tier,
		&intent.Quantity, &intent.AmountCents, &intent.Currency, &intent.Status,
	)
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (s *Payments) intentStatus(ctx context.Context, intentID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM bursar.purchase_intents WHERE id = $1
	`, intentID).Scan(&status)
	return status, err
}

func (s *Payments) countVerification(result string) {
	if s.metrics != nil && s.metrics.Verifications != nil {
		s.metrics.Verifications.WithLabelValues(result).Inc()
	}
}

func (s *Payments) countCredit(tier string, quantity int64) {
	if s.metrics != nil && s.metrics.TokensCredited != nil {
		s.metrics.TokensCredited.WithLabelValues(tier).Add(float64(quantity))
	}
}
