package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side marks the direction of a recorded trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeRecord is an append-only audit entry for an executed trade.
// Never mutated after creation.
type TradeRecord struct {
	ID           string          `json:"id"`
	Mint         string          `json:"mint"`
	Side         Side            `json:"side"`
	PriceSol     decimal.Decimal `json:"price_sol"`
	AmountTokens decimal.Decimal `json:"amount_tokens"`
	Timestamp    time.Time       `json:"timestamp"`
	Reason       string          `json:"reason,omitempty"`
}
