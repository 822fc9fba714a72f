// Package trader contains the execution backends that turn buy and sell
// intents into fills. The backend is chosen once at startup; orchestration
// code only sees the Trader interface.
package trader

import (
	"context"

	"github.com/shopspring/decimal"
)

// ExecutionResult reports the fill of an executed trade.
type ExecutionResult struct {
	// Signature transaction id, or a synthetic id in simulate mode.
	Signature string
	// AmountTokens realized token quantity.
	AmountTokens decimal.Decimal
}

// Trader executes swaps between a token and the quote mint.
type Trader interface {
	// Buy swaps amountSol of the quote asset into the token.
	Buy(ctx context.Context, mint, quoteMint string, amountSol decimal.Decimal) (ExecutionResult, error)
	// Sell swaps amountTokens of the token back into the quote asset.
	Sell(ctx context.Context, mint, quoteMint string, amountTokens decimal.Decimal) (ExecutionResult, error)
}
