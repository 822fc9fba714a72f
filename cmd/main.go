// Command solsniper runs the Solana pool sniper bot. It watches for new
// Raydium liquidity pools, opens positions on candidates that pass the
// acceptance filters and manages exits with stop loss, take profit, trailing
// stop and time stop rules.
//
// Usage:
//
//	solsniper --config config.yaml
package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/solsniper/config"
	"github.com/vadiminshakov/solsniper/internal"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Get()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	bot, err := internal.NewBot(cfg, logger)
	if err != nil {
		logger.Fatal("failed to assemble bot", zap.Error(err))
	}
	defer bot.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := bot.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("bot stopped with error", zap.Error(err))
	}

	logger.Info("shutdown complete")
}
