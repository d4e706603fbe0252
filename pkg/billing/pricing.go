package billing

import (
	"fmt"

	"agencyhub/pkg/config"
)

const (
	defaultCurrencyEnv      = "BILLING_CURRENCY"
	defaultCurrencyFallback = "INR"

	basicPriceEnv   = "TOKEN_PRICE_BASIC_CENTS"
	premiumPriceEnv = "TOKEN_PRICE_PREMIUM_CENTS"
	maxQuantityEnv  = "MAX_TOKEN_QUANTITY"

	defaultBasicPriceCents   = 50
	defaultPremiumPriceCents = 7500
	defaultMaxQuantity       = 100000
)

// Tier identifies a purchasable token tier.
type Tier string

const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
)

// ParseTier validates a raw tier value.
func ParseTier(raw string) (Tier, bool) {
	switch Tier(raw) {
	case TierBasic:
		return TierBasic, true
	case TierPremium:
		return TierPremium, true
	default:
		return "", false
	}
}

// DefaultCurrency returns the billing ledger currency used when no currency is specified.
func DefaultCurrency() string {
	return config.GetEnv(defaultCurrencyEnv, defaultCurrencyFallback)
}

// PriceTable holds per-tier unit prices in minor currency units. Prices are
// integers end to end so order amounts never pick up rounding drift.
type PriceTable struct {
	UnitPriceCents map[Tier]int64
	Currency       string
	MaxQuantity    int64
}

// LoadPriceTable builds the price table from the environment. Loaded once in
// main and passed into constructors.
func LoadPriceTable() PriceTable {
	return PriceTable{
		UnitPriceCents: map[Tier]int64{
			TierBasic:   config.GetEnvInt64(basicPriceEnv, defaultBasicPriceCents),
			TierPremium: config.GetEnvInt64(premiumPriceEnv, defaultPremiumPriceCents),
		},
		Currency:    DefaultCurrency(),
		MaxQuantity: config.GetEnvInt64(maxQuantityEnv, defaultMaxQuantity),
	}
}

// Amount computes the order amount for a tier and quantity. The amount is
// computed exactly once, at order creation.
func (pt PriceTable) Amount(tier Tier, quantity int64) (int64, error) {
	unitPrice, ok := pt.UnitPriceCents[tier]
	if !ok {
		return 0, fmt.Errorf("no unit price configured for tier %q", tier)
	}
	if quantity <= 0 {
		return 0, fmt.Errorf("quantity must be positive, got %d", quantity)
	}
	if quantity > pt.MaxQuantity {
		return 0, fmt.Errorf("quantity %d exceeds maximum of %d", quantity, pt.MaxQuantity)
	}
	return unitPrice * quantity, nil
}
