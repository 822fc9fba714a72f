// Package engine orchestrates entries and exits over the shared trading
// state. Two independent drivers feed it: the pool listener (via the intake
// gate) and a periodic sweep timer. A single mutex serializes every
// read-modify-write of the state document across both drivers, so a
// reservation, a release, a position insertion and a position removal are
// each atomic with respect to one another.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/config"
	"github.com/vadiminshakov/solsniper/internal/domain"
	"github.com/vadiminshakov/solsniper/internal/notify"
	"github.com/vadiminshakov/solsniper/internal/services/exits"
	"github.com/vadiminshakov/solsniper/internal/services/filter"
	"github.com/vadiminshakov/solsniper/internal/services/ledger"
	"github.com/vadiminshakov/solsniper/internal/services/pricer"
	"github.com/vadiminshakov/solsniper/internal/services/trader"
	"github.com/vadiminshakov/solsniper/internal/storage/state"
)

// CooldownWindow is the minimum time between successive entries on the same mint.
const CooldownWindow = 10 * time.Minute

// tradeLog is the append-only audit sink for executed trades.
type tradeLog interface {
	Save(record domain.TradeRecord) error
}

// Engine holds the collaborators shared by the intake gate and the sweep loop.
type Engine struct {
	cfg      *config.Config
	store    *state.Store
	ledger   *ledger.Ledger
	trades   tradeLog
	pricer   pricer.Pricer
	filters  *filter.Chain
	exits    *exits.Engine
	trader   trader.Trader
	notifier notify.Notifier
	logger   *zap.Logger

	mu        sync.Mutex
	cooldowns map[string]time.Time
	now       func() time.Time
	newID     func() string
}

// New wires an engine from its collaborators.
func New(
	cfg *config.Config,
	store *state.Store,
	balances *ledger.Ledger,
	trades tradeLog,
	priceOracle pricer.Pricer,
	filters *filter.Chain,
	exitEngine *exits.Engine,
	executor trader.Trader,
	notifier notify.Notifier,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}

	return &Engine{
		cfg:       cfg,
		store:     store,
		ledger:    balances,
		trades:    trades,
		pricer:    priceOracle,
		filters:   filters,
		exits:     exitEngine,
		trader:    executor,
		notifier:  notifier,
		logger:    logger,
		cooldowns: make(map[string]time.Time),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// notifyBestEffort sends a notification and only logs delivery failures:
// a broken channel must never abort trading logic.
func (e *Engine) notifyBestEffort(ctx context.Context, message string) {
	if err := e.notifier.Send(ctx, message); err != nil {
		e.logger.Warn("notification failed", zap.Error(err))
	}
}

func openPositions(doc *state.Document) int {
	count := 0
	for _, pos := range doc.Positions {
		if !pos.Closed() {
			count++
		}
	}
	return count
}
