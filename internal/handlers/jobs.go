package handlers

import (
	"context"
	"database/sql"
	"time"

	"agencyhub/pkg/config"
	"agencyhub/pkg/logging"
)

// JobManager runs background reconciliation for the payments pipeline:
// re-applying balance credits for completed intents whose credit was lost in
// the window between the intent transition and the ledger update, and failing
// pending intents whose checkout was abandoned.
type JobManager struct {
	db         *sql.DB
	payments   *Payments
	logger     logging.Logger
	interval   time.Duration
	pendingTTL time.Duration
	stopCh     chan struct{}
}

// NewJobManager creates a new job manager
func NewJobManager(database *sql.DB, payments *Payments, log logging.Logger) *JobManager {
	return &JobManager{
		db:         database,
		payments:   payments,
		logger:     log,
		interval:   config.GetEnvDuration("RECONCILE_INTERVAL", 5*time.Minute),
		pendingTTL: config.GetEnvDuration("PENDING_INTENT_TTL", 24*time.Hour),
		stopCh:     make(chan struct{}),
	}
}

// Start begins all background jobs
func (jm *JobManager) Start(ctx context.Context) {
	jm.logger.Info("Starting payments job manager")
	go jm.runReconciliation(ctx)
}

// Stop stops all background jobs
func (jm *JobManager) Stop() {
	jm.logger.Info("Stopping payments job manager")
	close(jm.stopCh)
}

func (jm *JobManager) runReconciliation(ctx context.Context) {
	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	jm.logger.WithField("interval", jm.interval).Info("Starting reconciliation job")

	for {
		select {
		case <-ctx.Done():
			return
		case <-jm.stopCh:
			return
		case <-ticker.C:
			jm.reconcileMissedCredits(ctx)
			jm.expireStalePendingIntents(ctx)
		}
	}
}

// reconcileMissedCredits re-credits completed intents that have no balance
// entry. The credit path is idempotent on intent id, so racing a live verify
// request is harmless.
func (jm *JobManager) reconcileMissedCredits(ctx context.Context) {
	rows, err := jm.db.QueryContext(ctx, `
		SELECT i.id, i.tenant_id, i.order_id, i.tier, i.quantity, i.amount_cents, i.currency, i.status
		FROM bursar.purchase_intents i
		LEFT JOIN bursar.balance_entries e ON e.intent_id = i.id
		WHERE i.status = 'completed' AND e.intent_id IS NULL
		ORDER BY i.completed_at ASC
		LIMIT 100
	`)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to query uncredited intents")
		return
	}
	defer rows.Close()

	var intents []purchaseIntent
	for rows.Next() {
		var intent purchaseIntent
		if err := rows.Scan(
			&intent.ID, &intent.TenantID, &intent.OrderID, &intent.Tier,
			&intent.Quantity, &intent.AmountCents, &intent.Currency, &intent.Status,
		); err != nil {
			jm.logger.WithError(err).Error("Error scanning uncredited intent")
			continue
		}
		intents = append(intents, intent)
	}

	for i := range intents {
		intent := &intents[i]
		balance, applied, err := jm.payments.creditPurchase(ctx, intent)
		if err != nil {
			jm.logger.WithError(err).WithField("intent_id", intent.ID).Error("Reconciliation credit failed")
			continue
		}
		if applied {
			jm.logger.WithFields(logging.Fields{
				"intent_id":    intent.ID,
				"tenant_id":    intent.TenantID,
				"tier":         intent.Tier,
				"tokens_added": intent.Quantity,
				"new_balance":  balance,
			}).Warn("Reconciled missed balance credit")
		}
	}
}

// expireStalePendingIntents fails pending intents older than the TTL. The
// conditional write keeps a concurrent successful verify from being clobbered.
func (jm *JobManager) expireStalePendingIntents(ctx context.Context) {
	cutoff := time.Now().Add(-jm.pendingTTL)
	res, err := jm.db.ExecContext(ctx, `
		UPDATE bursar.purchase_intents
		SET status = 'failed', completed_at = NOW()
		WHERE status = 'pending' AND created_at < $1
	`, cutoff)
	if err != nil {
		jm.logger.WithError(err).Error("Failed to expire stale pending intents")
		return
	}
	if rows, raErr := res.RowsAffected(); raErr == nil && rows > 0 {
		jm.logger.WithField("count", rows).Info("Expired stale pending intents")
	}
}
