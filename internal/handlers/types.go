package handlers

import (
	"database/sql"
	"time"
)

// Intent lifecycle states. An intent is created pending and moves exactly
// once to completed or failed; terminal states never transition again.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// purchaseIntent is the storage view of one purchase attempt.
type purchaseIntent struct {
	ID          string
	TenantID    string
	OrderID     string
	Tier        string
	Quantity    int64
	AmountCents int64
	Currency    string
	Status      string
	PaymentID   sql.NullString
	CreatedAt   time.Time
	CompletedAt sql.NullTime
}
