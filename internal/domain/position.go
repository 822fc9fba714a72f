package domain

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Position represents an open sniper position. Created by the intake gate on
// a successful entry and mutated only by the sweep loop afterwards.
type Position struct {
	ID        string
	Mint      string
	QuoteMint string
	// EntryPriceSol price paid per token at entry.
	EntryPriceSol decimal.Decimal
	// AmountTokens remaining token quantity.
	AmountTokens decimal.Decimal
	OpenedAt     time.Time
	// TP1Taken one-shot flag, set after the first partial take-profit fired.
	TP1Taken bool
	// HighestPriceSol peak price observed since entry, never decreases.
	HighestPriceSol decimal.Decimal
	ClosedAt        *time.Time
}

// NewPosition constructs a position opened at the given snapshot price.
// Peak price starts at the entry price.
func NewPosition(id, mint, quoteMint string, entryPrice, amount decimal.Decimal, openedAt time.Time) (*Position, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("position amount must be greater than zero")
	}
	if entryPrice.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("entry price must be greater than zero")
	}

	return &Position{
		ID:              id,
		Mint:            mint,
		QuoteMint:       quoteMint,
		EntryPriceSol:   entryPrice,
		AmountTokens:    amount,
		OpenedAt:        openedAt,
		HighestPriceSol: entryPrice,
	}, nil
}

// PnLPercent returns the unrealized profit in percent relative to the entry price.
func (p *Position) PnLPercent(currentPrice decimal.Decimal) decimal.Decimal {
	if p == nil || p.EntryPriceSol.IsZero() {
		return decimal.Zero
	}
	return currentPrice.Sub(p.EntryPriceSol).Div(p.EntryPriceSol).Mul(hundred)
}

// UpdatePeak lifts the recorded peak to the current price when it is higher.
// Returns true when the peak changed.
func (p *Position) UpdatePeak(currentPrice decimal.Decimal) bool {
	if p == nil || currentPrice.LessThanOrEqual(p.HighestPriceSol) {
		return false
	}
	p.HighestPriceSol = currentPrice
	return true
}

// Age returns how long the position has been open.
func (p *Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// Closed reports whether the position was fully exited.
func (p *Position) Closed() bool {
	return p != nil && p.ClosedAt != nil
}
