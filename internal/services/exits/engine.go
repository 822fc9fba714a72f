// Package exits decides when and how much of an open position to liquidate.
package exits

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/solsniper/config"
	"github.com/vadiminshakov/solsniper/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Engine is a pure exit rule evaluator. Rules are checked in a fixed priority
// order and the first match wins: capital preservation (stop loss) outranks
// profit taking, which outranks trend following, which outranks time boxing.
type Engine struct {
	risk config.RiskConfig
}

// NewEngine builds an exit engine from the configured risk thresholds.
func NewEngine(risk config.RiskConfig) *Engine {
	return &Engine{risk: risk}
}

// Evaluate maps a position and a snapshot to an exit decision. The caller
// must have updated the position peak to the current price beforehand, so the
// trailing drawdown is always measured against the freshest peak.
func (e *Engine) Evaluate(position *domain.Position, snapshot domain.PriceSnapshot, now time.Time) domain.ExitDecision {
	pnlPct := position.PnLPercent(snapshot.PriceSol)

	if pnlPct.LessThanOrEqual(e.risk.StopLossPct.Neg()) {
		return domain.FullExit(domain.ReasonStopLoss)
	}

	if !position.TP1Taken && pnlPct.GreaterThanOrEqual(e.risk.TP1Pct) {
		portion := e.risk.TP1PartialPct.Div(hundred)
		return domain.PartialExit(domain.ReasonTakeProfit1, portion)
	}

	if pnlPct.GreaterThanOrEqual(e.risk.TrailActivatePct) && position.HighestPriceSol.IsPositive() {
		drawdownPct := position.HighestPriceSol.Sub(snapshot.PriceSol).
			Div(position.HighestPriceSol).Mul(hundred)
		if drawdownPct.GreaterThanOrEqual(e.risk.TrailDrawDownPct) {
			return domain.FullExit(domain.ReasonTrailingStop)
		}
	}

	heldMinutes := position.Age(now).Minutes()
	if heldMinutes >= float64(e.risk.TimeStopMinutes) {
		return domain.FullExit(domain.ReasonTimeStop)
	}

	return domain.Hold()
}
