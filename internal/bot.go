// Package internal assembles the sniper bot from its services and runs the
// two drivers: the pool listener feeding the intake gate and the periodic
// position sweep.
package internal

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/solsniper/config"
	"github.com/vadiminshakov/solsniper/internal/clients"
	"github.com/vadiminshakov/solsniper/internal/engine"
	"github.com/vadiminshakov/solsniper/internal/listener"
	"github.com/vadiminshakov/solsniper/internal/notify"
	"github.com/vadiminshakov/solsniper/internal/services/exits"
	"github.com/vadiminshakov/solsniper/internal/services/filter"
	"github.com/vadiminshakov/solsniper/internal/services/ledger"
	"github.com/vadiminshakov/solsniper/internal/services/pricer"
	"github.com/vadiminshakov/solsniper/internal/services/trader"
	"github.com/vadiminshakov/solsniper/internal/storage/state"
	"github.com/vadiminshakov/solsniper/internal/storage/trades"
	"github.com/vadiminshakov/solsniper/internal/web"
)

var lamportsPerSol = decimal.NewFromInt(1_000_000_000)

// Bot is a fully wired sniper instance.
type Bot struct {
	cfg       *config.Config
	logger    *zap.Logger
	rpc       *clients.RPCClient
	store     *state.Store
	balances  *ledger.Ledger
	trades    *trades.WALStore
	engine    *engine.Engine
	listener  *listener.Listener
	dashboard *web.Server
	// wallet is the base58 wallet address, empty in simulate mode.
	wallet string
}

// NewBot wires all services according to the configuration.
func NewBot(cfg *config.Config, logger *zap.Logger) (*Bot, error) {
	rpc := clients.NewRPCClient(cfg.RPC.RPCURL)

	store, err := state.NewStore(cfg.StateDir)
	if err != nil {
		return nil, errors.Wrap(err, "init state store")
	}

	tradeLog, err := trades.NewWALStore(cfg.WalDir)
	if err != nil {
		return nil, errors.Wrap(err, "init trade journal")
	}

	executor, wallet, err := newExecutor(cfg, rpc, logger)
	if err != nil {
		return nil, errors.Wrap(err, "create executor")
	}

	balances := ledger.NewLedger()
	eng := engine.New(
		cfg,
		store,
		balances,
		tradeLog,
		pricer.NewRPCPricer(rpc, cfg.PriceTTL),
		filter.NewChain(cfg.Filters),
		exits.NewEngine(cfg.Risk),
		executor,
		newNotifier(cfg, logger),
		logger,
	)

	b := &Bot{
		cfg:      cfg,
		logger:   logger,
		rpc:      rpc,
		store:    store,
		balances: balances,
		trades:   tradeLog,
		engine:   eng,
		listener: listener.New(cfg.RPC.WSURL, rpc, logger),
		wallet:   wallet,
	}
	if cfg.DashboardAddr != "" {
		b.dashboard = web.NewServer(cfg.DashboardAddr, store, tradeLog, logger)
	}
	return b, nil
}

func newExecutor(cfg *config.Config, rpc *clients.RPCClient, logger *zap.Logger) (trader.Trader, string, error) {
	switch cfg.Mode {
	case config.ModeLive:
		t, err := trader.NewJupiterTrader(rpc, cfg.Wallet.SecretKey, logger)
		if err != nil {
			return nil, "", err
		}
		return t, t.PublicKey(), nil
	case config.ModeSimulate:
		return trader.NewSimulateTrader(logger), "", nil
	default:
		return nil, "", errors.Errorf("unknown mode %q", cfg.Mode)
	}
}

func newNotifier(cfg *config.Config, logger *zap.Logger) notify.Notifier {
	if cfg.Telegram.BotToken == "" || cfg.Telegram.ChatID == "" {
		logger.Info("telegram not configured, notifications disabled")
		return notify.Nop{}
	}
	return notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}

// Close releases resources held by the bot.
func (b *Bot) Close() error {
	return b.trades.Close()
}

// Run seeds the balance and drives the listener, the intake gate and the
// sweep loop until the context is cancelled or one of them fails.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.initBalance(ctx); err != nil {
		return errors.Wrap(err, "init balance")
	}

	b.logger.Info("bot started",
		zap.String("mode", string(b.cfg.Mode)),
		zap.Duration("sweep_interval", b.cfg.SweepInterval))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.listener.Run(ctx)
	})
	g.Go(func() error {
		return b.engine.RunIntake(ctx, b.listener.Candidates())
	})
	g.Go(func() error {
		return b.engine.RunSweep(ctx)
	})
	if b.dashboard != nil {
		g.Go(func() error {
			return b.dashboard.Start(ctx)
		})
	}

	return g.Wait()
}

// initBalance seeds the working balance. Simulate mode starts from a paper
// bankroll sized to the configured limits; live mode takes the wallet balance
// from the chain.
func (b *Bot) initBalance(ctx context.Context) error {
	doc, err := b.store.Load()
	if err != nil {
		return errors.Wrap(err, "load state")
	}

	switch b.cfg.Mode {
	case config.ModeSimulate:
		if doc.BalanceSol.IsPositive() {
			return nil
		}
		bankroll := b.cfg.Trade.BuySizeSol.Mul(decimal.NewFromInt(int64(b.cfg.Trade.MaxOpenPositions)))
		b.balances.SetBalance(doc, bankroll, time.Now())
		b.logger.Info("seeded paper balance", zap.String("balance_sol", bankroll.String()))
	case config.ModeLive:
		lamports, err := b.rpc.GetBalance(ctx, b.wallet)
		if err != nil {
			return errors.Wrap(err, "fetch wallet balance")
		}
		balance := decimal.NewFromUint64(lamports).Div(lamportsPerSol)
		b.balances.SetBalance(doc, balance, time.Now())
		b.logger.Info("wallet balance loaded",
			zap.String("wallet", b.wallet), zap.String("balance_sol", balance.String()))
	}

	return errors.Wrap(b.store.Save(doc), "persist balance")
}
