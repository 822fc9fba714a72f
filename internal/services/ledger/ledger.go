// Package ledger tracks available capital and the rolling daily loss baseline.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/solsniper/internal/storage/state"
)

var hundred = decimal.NewFromInt(100)

// Ledger applies balance rules to the shared state document. It does not load
// or persist anything itself: the caller owns the document for the duration of
// its critical section and decides when to write it back, so a reservation and
// the position it funds land in one atomic document replace. Time-sensitive
// operations take the current time from the caller, so one clock governs the
// whole critical section.
type Ledger struct{}

// NewLedger creates a ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Reserve checks and decrements the balance. Returns false and leaves the
// document unchanged when the balance is insufficient. This is the sole gate
// preventing over-allocation of capital across concurrently opened positions.
func (l *Ledger) Reserve(doc *state.Document, amount decimal.Decimal) bool {
	if doc.BalanceSol.LessThan(amount) {
		return false
	}
	doc.BalanceSol = doc.BalanceSol.Sub(amount)
	return true
}

// Release unconditionally returns the amount to the balance. Used on exits
// and on entry failures after a successful reservation.
func (l *Ledger) Release(doc *state.Document, amount decimal.Decimal) {
	doc.BalanceSol = doc.BalanceSol.Add(amount)
}

// SetBalance overwrites the available balance. The daily baseline is seeded
// from it when not yet anchored.
func (l *Ledger) SetBalance(doc *state.Document, amount decimal.Decimal, now time.Time) {
	doc.BalanceSol = amount
	if doc.DailyStartBalance.LessThanOrEqual(decimal.Zero) {
		doc.DailyStartBalance = amount
		doc.DailyStartTime = now.UTC()
	}
}

// EnsureDailyStart re-anchors the daily baseline the first time it is checked
// after a UTC midnight crossing. Returns true when the document changed.
func (l *Ledger) EnsureDailyStart(doc *state.Document, now time.Time) bool {
	now = now.UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !doc.DailyStartTime.Before(startOfDay) {
		return false
	}

	doc.DailyStartTime = now
	doc.DailyStartBalance = doc.BalanceSol
	return true
}

// IsDailyLossExceeded reports whether the loss since the daily baseline
// reached maxLossPct percent. A non-positive baseline never trips the
// breaker. The caller is responsible for running EnsureDailyStart first and
// persisting any re-anchor it produced.
func (l *Ledger) IsDailyLossExceeded(doc *state.Document, maxLossPct decimal.Decimal) bool {
	if doc.DailyStartBalance.LessThanOrEqual(decimal.Zero) {
		return false
	}

	lossPct := doc.DailyStartBalance.Sub(doc.BalanceSol).Div(doc.DailyStartBalance).Mul(hundred)
	return lossPct.GreaterThanOrEqual(maxLossPct)
}
