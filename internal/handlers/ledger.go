package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"agencyhub/pkg/billing"
)

// creditPurchase applies a completed intent's token delta to the tenant
// balance. It is idempotent: the balance entry insert is keyed on the intent
// id, and the increment only runs when that insert actually lands. Both the
// verify path and the reconciliation sweep funnel through here, so a retry
// after a partial failure can never double-credit.
//
// Returns the balance of the credited pool and whether this call applied the
// delta (false when a previous call already had).
func (s *Payments) creditPurchase(ctx context.Context, intent *purchaseIntent) (int64, bool, error) {
	var basicDelta, premiumDelta int64
	switch billing.Tier(intent.Tier) {
	case billing.TierBasic:
		basicDelta = intent.Quantity
	case billing.TierPremium:
		premiumDelta = intent.Quantity
	default:
		return 0, false, fmt.Errorf("intent %s has unknown tier %q", intent.ID, intent.Tier)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is best-effort

	entryID := uuid.New()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bursar.balance_entries (id, intent_id, tenant_id, tier, tokens_added, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (intent_id) DO NOTHING
	`, entryID, intent.ID, intent.TenantID, intent.Tier, intent.Quantity)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record balance entry: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to read balance entry result: %w", err)
	}
	if rows == 0 {
		// Already credited by a concurrent verifier or the sweep.
		balance, err := readPoolBalance(ctx, tx, intent.TenantID, billing.Tier(intent.Tier))
		if err != nil {
			return 0, false, err
		}
		if err := tx.Commit(); err != nil {
			return 0, false, fmt.Errorf("failed to commit transaction: %w", err)
		}
		return balance, false, nil
	}

	// Atomic increment via upsert; never a read-then-write round trip.
	var basic, premium int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO bursar.tenant_balances (tenant_id, basic_tokens, premium_tokens, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id) DO UPDATE SET
			basic_tokens = bursar.tenant_balances.basic_tokens + EXCLUDED.basic_tokens,
			premium_tokens = bursar.tenant_balances.premium_tokens + EXCLUDED.premium_tokens,
			updated_at = NOW()
		RETURNING basic_tokens, premium_tokens
	`, intent.TenantID, basicDelta, premiumDelta).Scan(&basic, &premium)
	if err != nil {
		return 0, false, fmt.Errorf("failed to credit tenant balance: %w", err)
	}

	balance := basic
	if billing.Tier(intent.Tier) == billing.TierPremium {
		balance = premium
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE bursar.balance_entries SET balance_after = $2 WHERE id = $1
	`, entryID, balance)
	if err != nil {
		return 0, false, fmt.Errorf("failed to finalize balance entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return balance, true, nil
}

// queryer lets balance reads run against either the pool or a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// readPoolBalance returns the current balance of one pool; a missing row
// reads as zero.
func readPoolBalance(ctx context.Context, q queryer, tenantID string, tier billing.Tier) (int64, error) {
	var basic, premium int64
	err := q.QueryRowContext(ctx, `
		SELECT basic_tokens, premium_tokens FROM bursar.tenant_balances WHERE tenant_id = $1
	`, tenantID).Scan(&basic, &premium)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read tenant balance: %w", err)
	}
	if tier == billing.TierPremium {
		return premium, nil
	}
	return basic, nil
}
