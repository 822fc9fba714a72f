package trader

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// simulated fill rate: one SOL buys a thousand tokens
var simulateFillRate = decimal.NewFromInt(1000)

// SimulateTrader fills orders in-process without touching the chain.
type SimulateTrader struct {
	logger *zap.Logger
}

// NewSimulateTrader creates a paper-trading executor.
func NewSimulateTrader(logger *zap.Logger) *SimulateTrader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimulateTrader{logger: logger}
}

// Buy fills the order at the fixed simulated rate.
func (t *SimulateTrader) Buy(ctx context.Context, mint, quoteMint string, amountSol decimal.Decimal) (ExecutionResult, error) {
	result := ExecutionResult{
		Signature:    fmt.Sprintf("sim-buy-%s-%d", mint, time.Now().UnixNano()),
		AmountTokens: amountSol.Mul(simulateFillRate),
	}

	t.logger.Info("simulated buy",
		zap.String("mint", mint),
		zap.String("amount_sol", amountSol.String()),
		zap.String("tokens", result.AmountTokens.String()))

	return result, nil
}

// Sell fills the order echoing the requested amount.
func (t *SimulateTrader) Sell(ctx context.Context, mint, quoteMint string, amountTokens decimal.Decimal) (ExecutionResult, error) {
	result := ExecutionResult{
		Signature:    fmt.Sprintf("sim-sell-%s-%d", mint, time.Now().UnixNano()),
		AmountTokens: amountTokens,
	}

	t.logger.Info("simulated sell",
		zap.String("mint", mint),
		zap.String("tokens", amountTokens.String()))

	return result, nil
}
