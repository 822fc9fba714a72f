// Package filter implements the ordered candidate acceptance rules applied to
// a price snapshot before entry.
package filter

import (
	"github.com/shopspring/decimal"

	"github.com/vadiminshakov/solsniper/config"
	"github.com/vadiminshakov/solsniper/internal/domain"
)

// Rejection reasons, reported for the first failing rule only.
const (
	ReasonLowLiquidity   = "Liquidity below minimum"
	ReasonHighMarketCap  = "Market cap too high"
	ReasonHighSupply     = "Supply too high"
	ReasonToken2022      = "Token-2022 not allowed"
	ReasonTopHolderShare = "Top holder concentration too high"
)

// maxSupply caps the circulating supply at one billion units. Not configurable.
var maxSupply = decimal.NewFromInt(1_000_000_000)

// allowToken2022 gates non-standard token programs. Fixed off.
const allowToken2022 = false

// defaultTopHolderLimit applies when no smart wallet score is configured.
var defaultTopHolderLimit = decimal.NewFromInt(20)

var hundred = decimal.NewFromInt(100)

// Chain evaluates acceptance rules in priority order, short-circuiting on the
// first failure.
type Chain struct {
	cfg config.FilterConfig
}

// NewChain builds a filter chain from the configured thresholds.
func NewChain(cfg config.FilterConfig) *Chain {
	return &Chain{cfg: cfg}
}

// Result is the outcome of running a snapshot through the chain.
type Result struct {
	OK     bool
	Reason string
}

// Passes runs the snapshot through all rules. Reason names the first rule
// that failed.
func (c *Chain) Passes(snapshot domain.PriceSnapshot) Result {
	if snapshot.LiquiditySol.LessThan(c.cfg.MinLiquiditySol) {
		return Result{Reason: ReasonLowLiquidity}
	}
	if snapshot.MarketCap.GreaterThan(c.cfg.MaxMarketCapAtLaunch) {
		return Result{Reason: ReasonHighMarketCap}
	}
	if snapshot.Supply.GreaterThan(maxSupply) {
		return Result{Reason: ReasonHighSupply}
	}
	if !allowToken2022 && snapshot.IsToken2022 {
		return Result{Reason: ReasonToken2022}
	}

	holderLimit := defaultTopHolderLimit
	if c.cfg.SmartWalletScoreMin.IsPositive() {
		holderLimit = decimal.Max(decimal.Zero, hundred.Sub(c.cfg.SmartWalletScoreMin))
	}
	if snapshot.TopHolderPct.GreaterThan(holderLimit) {
		return Result{Reason: ReasonTopHolderShare}
	}

	return Result{OK: true}
}
