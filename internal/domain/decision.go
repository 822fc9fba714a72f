package domain

import "github.com/shopspring/decimal"

// Exit reasons attached to decisions and trade records.
const (
	ReasonStopLoss     = "Stop loss"
	ReasonTakeProfit1  = "Take profit 1"
	ReasonTrailingStop = "Trailing stop"
	ReasonTimeStop     = "Time stop"
	ReasonHold         = "Hold"
)

// ExitDecision is the pure outcome of evaluating an open position against a
// price snapshot. SellPortion is the fraction of the remaining amount to
// liquidate, between 0 and 1.
type ExitDecision struct {
	ShouldExit  bool
	Reason      string
	SellPortion decimal.Decimal
}

// Hold is the neutral decision.
func Hold() ExitDecision {
	return ExitDecision{Reason: ReasonHold, SellPortion: decimal.Zero}
}

// FullExit builds a decision liquidating the whole remaining amount.
func FullExit(reason string) ExitDecision {
	return ExitDecision{ShouldExit: true, Reason: reason, SellPortion: decimal.NewFromInt(1)}
}

// PartialExit builds a decision liquidating the given fraction of the remaining amount.
func PartialExit(reason string, portion decimal.Decimal) ExitDecision {
	return ExitDecision{ShouldExit: true, Reason: reason, SellPortion: portion}
}
