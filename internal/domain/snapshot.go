package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceSnapshot is a point-in-time view of a token's market data, assembled
// from several node queries.
type PriceSnapshot struct {
	Mint     string
	PriceSol decimal.Decimal
	// LiquiditySol estimated pool liquidity, derived from price and supply.
	LiquiditySol decimal.Decimal
	MarketCap    decimal.Decimal
	// Supply circulating supply in whole tokens.
	Supply decimal.Decimal
	// TopHolderPct share of supply held by the largest account, in percent.
	TopHolderPct decimal.Decimal
	// IsToken2022 true when the mint is owned by a non-standard token program.
	IsToken2022 bool
	UpdatedAt   time.Time
}
