package engine

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/internal/domain"
)

// RunIntake consumes detected pool candidates until the context is cancelled
// or the channel closes. Candidates are processed one at a time; a failure on
// one candidate never stops the loop.
func (e *Engine) RunIntake(ctx context.Context, candidates <-chan domain.PoolCandidate) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case candidate, ok := <-candidates:
			if !ok {
				return nil
			}
			if err := e.HandleCandidate(ctx, candidate); err != nil {
				e.logger.Error("candidate processing failed",
					zap.String("mint", candidate.BaseMint), zap.Error(err))
			}
		}
	}
}

// HandleCandidate runs a detected pool through the entry gates and opens a
// position when all of them pass. Gates are checked cheapest first, so price
// lookups only happen for candidates that survive the local checks. A nil
// return with no position means the candidate was rejected, which is the
// normal outcome for most pools.
func (e *Engine) HandleCandidate(ctx context.Context, candidate domain.PoolCandidate) error {
	if candidate.QuoteMint != domain.WSOLMint {
		e.logger.Debug("skipping non-WSOL pool",
			zap.String("mint", candidate.BaseMint), zap.String("quote", candidate.QuoteMint))
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()

	doc, err := e.store.Load()
	if err != nil {
		return errors.Wrap(err, "load state")
	}

	if e.ledger.EnsureDailyStart(doc, now) {
		if err := e.store.Save(doc); err != nil {
			return errors.Wrap(err, "persist daily baseline")
		}
	}

	if e.ledger.IsDailyLossExceeded(doc, e.cfg.Risk.MaxDailyLossPct) {
		e.logger.Warn("daily loss limit reached, skipping candidate",
			zap.String("mint", candidate.BaseMint))
		return nil
	}

	if until, ok := e.cooldowns[candidate.BaseMint]; ok && now.Before(until) {
		e.logger.Debug("mint on cooldown", zap.String("mint", candidate.BaseMint))
		return nil
	}

	if openPositions(doc) >= e.cfg.Trade.MaxOpenPositions {
		e.logger.Debug("max open positions reached", zap.String("mint", candidate.BaseMint))
		return nil
	}

	snapshot, err := e.pricer.GetPrice(ctx, candidate.BaseMint)
	if err != nil {
		return errors.Wrapf(err, "fetch price for %s", candidate.BaseMint)
	}

	if result := e.filters.Passes(snapshot); !result.OK {
		e.logger.Info("candidate rejected",
			zap.String("mint", candidate.BaseMint), zap.String("reason", result.Reason))
		return nil
	}

	buySize := e.cfg.Trade.BuySizeSol
	if !e.ledger.Reserve(doc, buySize) {
		e.logger.Warn("insufficient balance for entry",
			zap.String("mint", candidate.BaseMint),
			zap.String("balance", doc.BalanceSol.String()))
		return nil
	}

	execution, err := e.trader.Buy(ctx, candidate.BaseMint, candidate.QuoteMint, buySize)
	if err != nil {
		// the reservation never left the in-memory document, dropping it
		// leaves the persisted balance untouched
		e.ledger.Release(doc, buySize)
		return errors.Wrapf(err, "buy %s", candidate.BaseMint)
	}

	position, err := domain.NewPosition(e.newID(), candidate.BaseMint, candidate.QuoteMint,
		snapshot.PriceSol, execution.AmountTokens, now)
	if err != nil {
		e.ledger.Release(doc, buySize)
		return errors.Wrapf(err, "open position for %s", candidate.BaseMint)
	}

	doc.Positions = append(doc.Positions, position)
	if err := e.store.Save(doc); err != nil {
		return errors.Wrap(err, "persist opened position")
	}

	e.cooldowns[candidate.BaseMint] = now.Add(CooldownWindow)

	if err := e.trades.Save(domain.TradeRecord{
		ID:           position.ID,
		Mint:         position.Mint,
		Side:         domain.SideBuy,
		PriceSol:     position.EntryPriceSol,
		AmountTokens: position.AmountTokens,
		Timestamp:    now,
	}); err != nil {
		e.logger.Error("trade journal write failed",
			zap.String("mint", position.Mint), zap.Error(err))
	}

	e.logger.Info("position opened",
		zap.String("mint", position.Mint),
		zap.String("entry_price_sol", position.EntryPriceSol.String()),
		zap.String("amount_tokens", position.AmountTokens.String()),
		zap.String("signature", execution.Signature))

	e.notifyBestEffort(ctx, fmt.Sprintf("Opened trade for %s at %s SOL",
		position.Mint, position.EntryPriceSol.StringFixed(6)))

	return nil
}
