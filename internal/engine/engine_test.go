package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/config"
	"github.com/vadiminshakov/solsniper/internal/domain"
	"github.com/vadiminshakov/solsniper/internal/services/exits"
	"github.com/vadiminshakov/solsniper/internal/services/filter"
	"github.com/vadiminshakov/solsniper/internal/services/ledger"
	"github.com/vadiminshakov/solsniper/internal/services/trader"
	"github.com/vadiminshakov/solsniper/internal/storage/state"
)

type mockPricer struct {
	mu        sync.Mutex
	snapshots map[string]domain.PriceSnapshot
	err       error
	calls     int
}

func (m *mockPricer) GetPrice(_ context.Context, mint string) (domain.PriceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return domain.PriceSnapshot{}, m.err
	}
	snap, ok := m.snapshots[mint]
	if !ok {
		return domain.PriceSnapshot{}, errors.Errorf("no snapshot for %s", mint)
	}
	return snap, nil
}

type mockTrader struct {
	buyErr    error
	sellErr   error
	buyCalls  int
	sellCalls int
	lastSell  decimal.Decimal
}

func (m *mockTrader) Buy(_ context.Context, mint, _ string, amountSol decimal.Decimal) (trader.ExecutionResult, error) {
	m.buyCalls++
	if m.buyErr != nil {
		return trader.ExecutionResult{}, m.buyErr
	}
	return trader.ExecutionResult{
		Signature:    "sig-buy-" + mint,
		AmountTokens: amountSol.Mul(decimal.NewFromInt(1000)),
	}, nil
}

func (m *mockTrader) Sell(_ context.Context, mint, _ string, amountTokens decimal.Decimal) (trader.ExecutionResult, error) {
	m.sellCalls++
	m.lastSell = amountTokens
	if m.sellErr != nil {
		return trader.ExecutionResult{}, m.sellErr
	}
	return trader.ExecutionResult{Signature: "sig-sell-" + mint, AmountTokens: amountTokens}, nil
}

type mockTradeLog struct {
	records []domain.TradeRecord
	err     error
}

func (m *mockTradeLog) Save(record domain.TradeRecord) error {
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, record)
	return nil
}

type mockNotifier struct {
	messages []string
	err      error
}

func (m *mockNotifier) Send(_ context.Context, message string) error {
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Mode: config.ModeSimulate,
		Trade: config.TradeConfig{
			BuySizeSol:       decimal.NewFromInt(1),
			MaxOpenPositions: 2,
		},
		Filters: config.FilterConfig{
			MinLiquiditySol:      decimal.NewFromInt(10),
			MaxMarketCapAtLaunch: decimal.NewFromInt(100_000),
		},
		Risk: config.RiskConfig{
			TP1Pct:           decimal.NewFromInt(50),
			TP1PartialPct:    decimal.NewFromInt(50),
			StopLossPct:      decimal.NewFromInt(20),
			TimeStopMinutes:  60,
			TrailActivatePct: decimal.NewFromInt(30),
			TrailDrawDownPct: decimal.NewFromInt(10),
			MaxDailyLossPct:  decimal.NewFromInt(50),
		},
		SweepInterval: 15 * time.Second,
		PriceTTL:      20 * time.Second,
	}
}

type fixture struct {
	engine   *Engine
	store    *state.Store
	pricer   *mockPricer
	trader   *mockTrader
	trades   *mockTradeLog
	notifier *mockNotifier
	now      time.Time
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()

	store, err := state.NewStore(t.TempDir())
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		pricer:   &mockPricer{snapshots: make(map[string]domain.PriceSnapshot)},
		trader:   &mockTrader{},
		trades:   &mockTradeLog{},
		notifier: &mockNotifier{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	f.engine = New(cfg, store, ledger.NewLedger(), f.trades, f.pricer,
		filter.NewChain(cfg.Filters), exits.NewEngine(cfg.Risk), f.trader, f.notifier, zap.NewNop())
	f.engine.now = func() time.Time { return f.now }
	f.engine.newID = func() string { return "test-id" }

	return f
}

func (f *fixture) seedBalance(t *testing.T, balance int64) {
	t.Helper()
	doc, err := f.store.Load()
	require.NoError(t, err)
	doc.BalanceSol = decimal.NewFromInt(balance)
	doc.DailyStartBalance = decimal.NewFromInt(balance)
	doc.DailyStartTime = f.now
	require.NoError(t, f.store.Save(doc))
}

func (f *fixture) setSnapshot(mint string, priceSol float64) {
	f.pricer.snapshots[mint] = domain.PriceSnapshot{
		Mint:         mint,
		PriceSol:     decimal.NewFromFloat(priceSol),
		LiquiditySol: decimal.NewFromInt(2000),
		MarketCap:    decimal.NewFromInt(2000),
		Supply:       decimal.NewFromInt(1_000_000),
		TopHolderPct: decimal.NewFromInt(5),
		UpdatedAt:    f.now,
	}
}

func wsolCandidate(mint string) domain.PoolCandidate {
	return domain.PoolCandidate{BaseMint: mint, QuoteMint: domain.WSOLMint}
}

func TestHandleCandidate_OpensPosition(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)
	f.setSnapshot("mint-1", 0.002)

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))

	doc, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Positions, 1)

	pos := doc.Positions[0]
	assert.Equal(t, "test-id", pos.ID)
	assert.Equal(t, "mint-1", pos.Mint)
	assert.True(t, pos.EntryPriceSol.Equal(decimal.NewFromFloat(0.002)))
	assert.True(t, pos.AmountTokens.Equal(decimal.NewFromInt(1000)), "1 SOL buy fills 1000 tokens")
	assert.True(t, pos.HighestPriceSol.Equal(pos.EntryPriceSol))

	// buy size deducted and persisted together with the position
	assert.True(t, doc.BalanceSol.Equal(decimal.NewFromInt(9)))

	require.Len(t, f.trades.records, 1)
	assert.Equal(t, domain.SideBuy, f.trades.records[0].Side)

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Opened trade for mint-1")
}

func TestHandleCandidate_RejectsNonWSOLQuote(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)

	candidate := domain.PoolCandidate{BaseMint: "mint-1", QuoteMint: "USDCmint111111111111111111111111111111111111"}
	require.NoError(t, f.engine.HandleCandidate(context.Background(), candidate))

	assert.Zero(t, f.pricer.calls, "non-WSOL pools are dropped before any price lookup")
	assert.Zero(t, f.trader.buyCalls)
}

func TestHandleCandidate_FilterRejection(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)

	snap := domain.PriceSnapshot{
		Mint:         "mint-1",
		PriceSol:     decimal.NewFromFloat(0.002),
		LiquiditySol: decimal.NewFromInt(5), // below the 10 SOL minimum
		Supply:       decimal.NewFromInt(1_000_000),
	}
	f.pricer.snapshots["mint-1"] = snap

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))

	assert.Zero(t, f.trader.buyCalls)
	doc, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Positions)
	assert.True(t, doc.BalanceSol.Equal(decimal.NewFromInt(10)))
}

func TestHandleCandidate_BuyFailureReleasesReservation(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)
	f.setSnapshot("mint-1", 0.002)
	f.trader.buyErr = errors.New("swap reverted")

	err := f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1"))
	require.Error(t, err)

	doc, loadErr := f.store.Load()
	require.NoError(t, loadErr)
	assert.Empty(t, doc.Positions)
	assert.True(t, doc.BalanceSol.Equal(decimal.NewFromInt(10)), "failed buy must not leak the reservation")
	assert.Empty(t, f.trades.records)
}

func TestHandleCandidate_InsufficientBalance(t *testing.T) {
	cfg := testConfig()
	f := newFixture(t, cfg)
	f.seedBalance(t, 10)
	doc, err := f.store.Load()
	require.NoError(t, err)
	doc.BalanceSol = decimal.NewFromFloat(0.5)
	require.NoError(t, f.store.Save(doc))

	f.setSnapshot("mint-1", 0.002)

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	assert.Zero(t, f.trader.buyCalls)
}

func TestHandleCandidate_CooldownBlocksReentry(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)
	f.setSnapshot("mint-1", 0.002)

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	require.Equal(t, 1, f.trader.buyCalls)

	// still inside the window
	f.now = f.now.Add(CooldownWindow - time.Second)
	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	assert.Equal(t, 1, f.trader.buyCalls)

	// window elapsed
	f.now = f.now.Add(2 * time.Second)
	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	assert.Equal(t, 2, f.trader.buyCalls)
}

func TestHandleCandidate_MaxOpenPositions(t *testing.T) {
	cfg := testConfig()
	cfg.Trade.MaxOpenPositions = 1
	f := newFixture(t, cfg)
	f.seedBalance(t, 10)
	f.setSnapshot("mint-1", 0.002)
	f.setSnapshot("mint-2", 0.003)

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-2")))

	assert.Equal(t, 1, f.trader.buyCalls)
	assert.Equal(t, 1, f.pricer.calls, "capacity check runs before the price lookup")
}

func TestHandleCandidate_DailyLossBreaker(t *testing.T) {
	f := newFixture(t, testConfig())
	doc, err := f.store.Load()
	require.NoError(t, err)
	doc.BalanceSol = decimal.NewFromInt(4)
	doc.DailyStartBalance = decimal.NewFromInt(10) // 60% down, limit is 50%
	doc.DailyStartTime = f.now
	require.NoError(t, f.store.Save(doc))

	f.setSnapshot("mint-1", 0.002)

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	assert.Zero(t, f.pricer.calls)
	assert.Zero(t, f.trader.buyCalls)
}

func TestHandleCandidate_DailyBaselineFollowsEngineClock(t *testing.T) {
	f := newFixture(t, testConfig())
	doc, err := f.store.Load()
	require.NoError(t, err)
	doc.BalanceSol = decimal.NewFromInt(4)
	doc.DailyStartBalance = decimal.NewFromInt(10) // 60% down on the previous day
	doc.DailyStartTime = f.now.AddDate(0, 0, -1)
	require.NoError(t, f.store.Save(doc))

	f.setSnapshot("mint-1", 0.002)

	// the engine clock crossed UTC midnight since the baseline was anchored,
	// so the baseline re-anchors to the current balance and the breaker no
	// longer trips
	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))
	assert.Equal(t, 1, f.trader.buyCalls)

	doc, err = f.store.Load()
	require.NoError(t, err)
	assert.True(t, doc.DailyStartBalance.Equal(decimal.NewFromInt(4)))
	assert.True(t, doc.DailyStartTime.Equal(f.now), "re-anchor timestamp comes from the engine clock")
}

func TestHandleCandidate_NotifierFailureDoesNotAbort(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)
	f.setSnapshot("mint-1", 0.002)
	f.notifier.err = errors.New("telegram down")

	require.NoError(t, f.engine.HandleCandidate(context.Background(), wsolCandidate("mint-1")))

	doc, err := f.store.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Positions, 1)
}

func (f *fixture) seedPosition(t *testing.T, mint string, entryPrice float64, amount int64, openedAt time.Time) {
	t.Helper()
	doc, err := f.store.Load()
	require.NoError(t, err)
	pos, err := domain.NewPosition("pos-"+mint, mint, domain.WSOLMint,
		decimal.NewFromFloat(entryPrice), decimal.NewFromInt(amount), openedAt)
	require.NoError(t, err)
	doc.Positions = append(doc.Positions, pos)
	require.NoError(t, f.store.Save(doc))
}

func TestSweepOnce_StopLossClosesPosition(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 9)
	f.seedPosition(t, "mint-1", 1.0, 1000, f.now.Add(-time.Minute))
	f.setSnapshot("mint-1", 0.79)

	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Positions, "fully closed positions are dropped from the document")
	assert.True(t, doc.BalanceSol.Equal(decimal.NewFromInt(10)), "full close releases the trade size")

	require.Len(t, f.trades.records, 1)
	assert.Equal(t, domain.SideSell, f.trades.records[0].Side)
	assert.Equal(t, domain.ReasonStopLoss, f.trades.records[0].Reason)

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Closed trade for mint-1")
}

func TestSweepOnce_PartialTakeProfit(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 9)
	f.seedPosition(t, "mint-1", 1.0, 1000, f.now.Add(-time.Minute))
	f.setSnapshot("mint-1", 1.6)

	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Positions, 1)

	pos := doc.Positions[0]
	assert.True(t, pos.TP1Taken)
	assert.True(t, pos.AmountTokens.Equal(decimal.NewFromInt(500)))
	assert.True(t, f.trader.lastSell.Equal(decimal.NewFromInt(500)), "sells half of the remaining amount")

	// partial exit keeps the capital reserved
	assert.True(t, doc.BalanceSol.Equal(decimal.NewFromInt(9)))

	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Partial exit for mint-1")
}

func TestSweepOnce_TimeStop(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 9)
	f.seedPosition(t, "mint-1", 1.0, 1000, f.now.Add(-61*time.Minute))
	f.setSnapshot("mint-1", 1.05)

	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err := f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Positions)
	require.Len(t, f.trades.records, 1)
	assert.Equal(t, domain.ReasonTimeStop, f.trades.records[0].Reason)
}

func TestSweepOnce_PriceFailureKeepsPosition(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 9)
	f.seedPosition(t, "mint-1", 1.0, 1000, f.now.Add(-time.Minute))
	f.pricer.err = errors.New("rpc timeout")

	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err := f.store.Load()
	require.NoError(t, err)
	assert.Len(t, doc.Positions, 1)
	assert.Zero(t, f.trader.sellCalls)
}

func TestSweepOnce_SellFailureKeepsPosition(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 9)
	f.seedPosition(t, "mint-1", 1.0, 1000, f.now.Add(-time.Minute))
	f.setSnapshot("mint-1", 0.5)
	f.trader.sellErr = errors.New("swap failed")

	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err := f.store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Positions, 1)
	assert.True(t, doc.Positions[0].AmountTokens.Equal(decimal.NewFromInt(1000)),
		"amount unchanged when the sell does not fill")
	assert.True(t, doc.BalanceSol.Equal(decimal.NewFromInt(9)))
	assert.Empty(t, f.trades.records)
}

func TestSweepOnce_PeakPersistsAcrossPasses(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 9)
	f.seedPosition(t, "mint-1", 1.0, 1000, f.now.Add(-time.Minute))

	doc, err := f.store.Load()
	require.NoError(t, err)
	doc.Positions[0].TP1Taken = true // keep the profit rule out of the way
	require.NoError(t, f.store.Save(doc))

	f.setSnapshot("mint-1", 2.0)
	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err = f.store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Positions, 1)
	assert.True(t, doc.Positions[0].HighestPriceSol.Equal(decimal.NewFromInt(2)))

	// drop below the peak far enough to trip the trailing stop on the next pass
	f.setSnapshot("mint-1", 1.7)
	require.NoError(t, f.engine.SweepOnce(context.Background()))

	doc, err = f.store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.Positions)
	require.Len(t, f.trades.records, 1)
	assert.Equal(t, domain.ReasonTrailingStop, f.trades.records[0].Reason)
}

func TestRunIntake_StopsOnContextCancel(t *testing.T) {
	f := newFixture(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.engine.RunIntake(ctx, make(chan domain.PoolCandidate))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunIntake_DrainsClosedChannel(t *testing.T) {
	f := newFixture(t, testConfig())
	f.seedBalance(t, 10)
	f.setSnapshot("mint-1", 0.002)

	candidates := make(chan domain.PoolCandidate, 1)
	candidates <- wsolCandidate("mint-1")
	close(candidates)

	require.NoError(t, f.engine.RunIntake(context.Background(), candidates))
	assert.Equal(t, 1, f.trader.buyCalls)
}
