// Package config loads and validates the sniper bot configuration from YAML.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Mode selects the execution backend.
type Mode string

const (
	// ModeSimulate fills orders in-process without touching the chain.
	ModeSimulate Mode = "simulate"
	// ModeLive signs and submits real swap transactions.
	ModeLive Mode = "live"
)

const (
	defaultSweepInterval = 15 * time.Second
	defaultPriceTTL      = 20 * time.Second
	defaultStateDir      = "./data"
	defaultWalDir        = "./wal/trades"
)

// RPCConfig holds node endpoints.
type RPCConfig struct {
	RPCURL string `yaml:"rpc_url"`
	WSURL  string `yaml:"ws_url"`
}

// WalletConfig holds the signing credential for live mode.
type WalletConfig struct {
	SecretKey string `yaml:"secret_key"`
}

// TelegramConfig holds notification credentials. Empty values disable notifications.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// TradeConfig holds position sizing limits.
type TradeConfig struct {
	BuySizeSol       decimal.Decimal
	MaxOpenPositions int
}

// FilterConfig holds candidate acceptance thresholds.
type FilterConfig struct {
	MinLiquiditySol      decimal.Decimal
	MaxMarketCapAtLaunch decimal.Decimal
	SmartWalletScoreMin  decimal.Decimal
}

// RiskConfig holds exit rule thresholds, all in percent.
type RiskConfig struct {
	TP1Pct           decimal.Decimal
	TP1PartialPct    decimal.Decimal
	StopLossPct      decimal.Decimal
	TimeStopMinutes  int
	TrailActivatePct decimal.Decimal
	TrailDrawDownPct decimal.Decimal
	MaxDailyLossPct  decimal.Decimal
}

// Config is the fully parsed bot configuration.
type Config struct {
	RPC           RPCConfig
	Mode          Mode
	Wallet        WalletConfig
	Telegram      TelegramConfig
	Trade         TradeConfig
	Filters       FilterConfig
	Risk          RiskConfig
	SweepInterval time.Duration
	PriceTTL      time.Duration
	StateDir      string
	WalDir        string
	// DashboardAddr listen address for the status dashboard, empty disables it.
	DashboardAddr string
}

type configTmp struct {
	RPC      RPCConfig      `yaml:"rpc"`
	Mode     string         `yaml:"mode"`
	Wallet   WalletConfig   `yaml:"wallet"`
	Telegram TelegramConfig `yaml:"telegram"`
	Trade    struct {
		BuySizeSol       string `yaml:"buy_size_sol"`
		MaxOpenPositions int    `yaml:"max_open_positions"`
	} `yaml:"trade"`
	Filters struct {
		MinLiquiditySol      string `yaml:"min_liquidity_sol"`
		MaxMarketCapAtLaunch string `yaml:"max_market_cap_at_launch"`
		SmartWalletScoreMin  string `yaml:"smart_wallet_score_min"`
	} `yaml:"filters"`
	Risk struct {
		TP1Pct           string `yaml:"tp1_pct"`
		TP1PartialPct    string `yaml:"tp1_partial_pct"`
		StopLossPct      string `yaml:"stop_loss_pct"`
		TimeStopMinutes  int    `yaml:"time_stop_minutes"`
		TrailActivatePct string `yaml:"trail_activate_pct"`
		TrailDrawDownPct string `yaml:"trail_draw_down_pct"`
		MaxDailyLossPct  string `yaml:"max_daily_loss_pct"`
	} `yaml:"risk"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	PriceTTL      time.Duration `yaml:"price_ttl"`
	StateDir      string        `yaml:"state_dir"`
	WalDir        string        `yaml:"wal_dir"`
	DashboardAddr string        `yaml:"dashboard_addr"`
}

// Get parses the --config flag and loads the configuration file.
func Get() (*Config, error) {
	path := flag.String("config", "config.yaml", "path to yaml config")
	flag.Parse()

	return FromFile(*path)
}

// FromFile loads and validates a configuration file.
func FromFile(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return parse(raw)
}

func parse(raw []byte) (*Config, error) {
	var tmp configTmp
	if err := yaml.Unmarshal(raw, &tmp); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg := &Config{
		RPC:           tmp.RPC,
		Mode:          Mode(tmp.Mode),
		Wallet:        tmp.Wallet,
		Telegram:      tmp.Telegram,
		SweepInterval: tmp.SweepInterval,
		PriceTTL:      tmp.PriceTTL,
		StateDir:      tmp.StateDir,
		WalDir:        tmp.WalDir,
		DashboardAddr: tmp.DashboardAddr,
	}

	var err error
	if cfg.Trade.BuySizeSol, err = parseDecimal("trade.buy_size_sol", tmp.Trade.BuySizeSol); err != nil {
		return nil, err
	}
	cfg.Trade.MaxOpenPositions = tmp.Trade.MaxOpenPositions

	if cfg.Filters.MinLiquiditySol, err = parseDecimal("filters.min_liquidity_sol", tmp.Filters.MinLiquiditySol); err != nil {
		return nil, err
	}
	if cfg.Filters.MaxMarketCapAtLaunch, err = parseDecimal("filters.max_market_cap_at_launch", tmp.Filters.MaxMarketCapAtLaunch); err != nil {
		return nil, err
	}
	if cfg.Filters.SmartWalletScoreMin, err = parseDecimal("filters.smart_wallet_score_min", tmp.Filters.SmartWalletScoreMin); err != nil {
		return nil, err
	}

	if cfg.Risk.TP1Pct, err = parseDecimal("risk.tp1_pct", tmp.Risk.TP1Pct); err != nil {
		return nil, err
	}
	if cfg.Risk.TP1PartialPct, err = parseDecimal("risk.tp1_partial_pct", tmp.Risk.TP1PartialPct); err != nil {
		return nil, err
	}
	if cfg.Risk.StopLossPct, err = parseDecimal("risk.stop_loss_pct", tmp.Risk.StopLossPct); err != nil {
		return nil, err
	}
	if cfg.Risk.TrailActivatePct, err = parseDecimal("risk.trail_activate_pct", tmp.Risk.TrailActivatePct); err != nil {
		return nil, err
	}
	if cfg.Risk.TrailDrawDownPct, err = parseDecimal("risk.trail_draw_down_pct", tmp.Risk.TrailDrawDownPct); err != nil {
		return nil, err
	}
	if cfg.Risk.MaxDailyLossPct, err = parseDecimal("risk.max_daily_loss_pct", tmp.Risk.MaxDailyLossPct); err != nil {
		return nil, err
	}
	cfg.Risk.TimeStopMinutes = tmp.Risk.TimeStopMinutes

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	if c.PriceTTL <= 0 {
		c.PriceTTL = defaultPriceTTL
	}
	if c.StateDir == "" {
		c.StateDir = defaultStateDir
	}
	if c.WalDir == "" {
		c.WalDir = defaultWalDir
	}
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeSimulate, ModeLive:
	default:
		return fmt.Errorf("invalid mode %q, expected %q or %q", c.Mode, ModeSimulate, ModeLive)
	}

	if c.Mode == ModeLive && c.Wallet.SecretKey == "" {
		return fmt.Errorf("live mode requires wallet.secret_key")
	}
	if c.RPC.RPCURL == "" {
		return fmt.Errorf("rpc.rpc_url is required")
	}
	if c.RPC.WSURL == "" {
		return fmt.Errorf("rpc.ws_url is required")
	}
	if c.Trade.BuySizeSol.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("trade.buy_size_sol must be positive")
	}
	if c.Trade.MaxOpenPositions <= 0 {
		return fmt.Errorf("trade.max_open_positions must be positive")
	}
	if c.Risk.TimeStopMinutes <= 0 {
		return fmt.Errorf("risk.time_stop_minutes must be positive")
	}

	return nil
}

func parseDecimal(field, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid %s: %q", field, value)
	}
	return d, nil
}
