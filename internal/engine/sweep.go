package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

var one = decimal.NewFromInt(1)

// RunSweep re-evaluates open positions on a fixed interval until the context
// is cancelled. A failing pass is logged and the next tick tries again.
func (e *Engine) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.SweepOnce(ctx); err != nil {
				e.logger.Error("sweep pass failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce runs a single sweep pass: load the state once, walk every open
// position in document order, apply exit decisions, then persist once. A
// failure on one position (price lookup or sell) skips that position only; it
// stays open and the next pass retries it.
func (e *Engine) SweepOnce(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.store.Load()
	if err != nil {
		return errors.Wrap(err, "load state")
	}

	now := e.now()

	for _, position := range doc.Positions {
		if position.Closed() {
			continue
		}

		snapshot, err := e.pricer.GetPrice(ctx, position.Mint)
		if err != nil {
			e.logger.Warn("price lookup failed, keeping position",
				zap.String("mint", position.Mint), zap.Error(err))
			continue
		}

		// peak must reflect the current price before the trailing rule runs
		position.UpdatePeak(snapshot.PriceSol)

		decision := e.exits.Evaluate(position, snapshot, now)
		if !decision.ShouldExit {
			continue
		}

		sellAmount := position.AmountTokens.Mul(decision.SellPortion)
		execution, err := e.trader.Sell(ctx, position.Mint, position.QuoteMint, sellAmount)
		if err != nil {
			e.logger.Error("sell failed, keeping position",
				zap.String("mint", position.Mint),
				zap.String("reason", decision.Reason), zap.Error(err))
			continue
		}

		position.AmountTokens = position.AmountTokens.Sub(sellAmount)
		if decision.Reason == domain.ReasonTakeProfit1 {
			position.TP1Taken = true
		}

		fullExit := decision.SellPortion.GreaterThanOrEqual(one) ||
			position.AmountTokens.LessThanOrEqual(decimal.Zero)
		if fullExit {
			closedAt := now
			position.ClosedAt = &closedAt
			e.ledger.Release(doc, e.cfg.Trade.BuySizeSol)
		}

		if err := e.trades.Save(domain.TradeRecord{
			ID:           position.ID,
			Mint:         position.Mint,
			Side:         domain.SideSell,
			PriceSol:     snapshot.PriceSol,
			AmountTokens: execution.AmountTokens,
			Timestamp:    now,
			Reason:       decision.Reason,
		}); err != nil {
			e.logger.Error("trade journal write failed",
				zap.String("mint", position.Mint), zap.Error(err))
		}

		e.logger.Info("position exit",
			zap.String("mint", position.Mint),
			zap.String("reason", decision.Reason),
			zap.String("price_sol", snapshot.PriceSol.String()),
			zap.Bool("full_exit", fullExit),
			zap.String("signature", execution.Signature))

		if fullExit {
			e.notifyBestEffort(ctx, fmt.Sprintf("Closed trade for %s at %s SOL (%s)",
				position.Mint, snapshot.PriceSol.StringFixed(6), decision.Reason))
		} else {
			e.notifyBestEffort(ctx, fmt.Sprintf("Partial exit for %s at %s SOL (%s)",
				position.Mint, snapshot.PriceSol.StringFixed(6), decision.Reason))
		}
	}

	remaining := doc.Positions[:0]
	for _, position := range doc.Positions {
		if !position.Closed() {
			remaining = append(remaining, position)
		}
	}
	doc.Positions = remaining

	return errors.Wrap(e.store.Save(doc), "persist swept state")
}
