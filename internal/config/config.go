package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Chain    Chain    `mapstructure:"chain"`
	Tokens   Tokens   `mapstructure:"tokens"`
	Trading  Trading  `mapstructure:"trading"`
	Risk     Risk     `mapstructure:"risk"`
	Ledger   Ledger   `mapstructure:"ledger"`
	Binance  Binance  `mapstructure:"binance"`
	Redis    Redis    `mapstructure:"redis"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Database Database `mapstructure:"database"`
}

// Chain holds RPC endpoint, wallet and venue contract settings.
type Chain struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	PrivateKey     string        `mapstructure:"private_key"`
	Router         string        `mapstructure:"router"`
	Factory        string        `mapstructure:"factory"`
	GasLimit       uint64        `mapstructure:"gas_limit"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
}

// Tokens holds the addresses of the assets on the round-trip path.
type Tokens struct {
	WBNB string `mapstructure:"wbnb"`
	BUSD string `mapstructure:"busd"`
	USDT string `mapstructure:"usdt"`
}

// Trading holds the decision loop settings.
type Trading struct {
	DryRun         bool          `mapstructure:"dry_run"`
	AutoStart      bool          `mapstructure:"auto_start"`
	InitialCash    float64       `mapstructure:"initial_cash"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	HeartbeatEvery int           `mapstructure:"heartbeat_every"`
	Arbitrage      Arbitrage     `mapstructure:"arbitrage"`
	CopyTrade      CopyTrade     `mapstructure:"copy_trade"`
	Sniper         Sniper        `mapstructure:"sniper"`
}

// Arbitrage configures the round-trip scan.
type Arbitrage struct {
	Enabled     bool          `mapstructure:"enabled"`
	ProbeAmount float64       `mapstructure:"probe_amount"`
	Sizing      string        `mapstructure:"sizing"`
	Deadline    time.Duration `mapstructure:"deadline"`
}

// CopyTrade configures mirroring of watched wallets.
type CopyTrade struct {
	Enabled       bool          `mapstructure:"enabled"`
	WatchList     []string      `mapstructure:"watch_list"`
	EntryFraction float64       `mapstructure:"entry_fraction"`
	MinTradeUSD   float64       `mapstructure:"min_trade_usd"`
	Deadline      time.Duration `mapstructure:"deadline"`
}

// Sniper configures the new pair listener.
type Sniper struct {
	Enabled bool `mapstructure:"enabled"`
}

// Risk holds the limits applied to every trade before submission.
type Risk struct {
	MinGasReserve        float64  `mapstructure:"min_gas_reserve"`
	SafeGasReserve       float64  `mapstructure:"safe_gas_reserve"`
	MaxTradeUSD          float64  `mapstructure:"max_trade_usd"`
	MinProfitPercent     float64  `mapstructure:"min_profit_percent"`
	BuySlippagePercent   float64  `mapstructure:"buy_slippage_percent"`
	SellSlippagePercent  float64  `mapstructure:"sell_slippage_percent"`
	ArbSlippagePercent   float64  `mapstructure:"arb_slippage_percent"`
	TaxedSlippagePercent float64  `mapstructure:"taxed_slippage_percent"`
	FeeOnTransferTokens  []string `mapstructure:"fee_on_transfer_tokens"`
}

// Ledger holds the paper accounting fee schedule and persistence cadence.
type Ledger struct {
	GasFeeUSD        float64 `mapstructure:"gas_fee_usd"`
	SwapFeePercent   float64 `mapstructure:"swap_fee_percent"`
	PersistSchedule  string  `mapstructure:"persist_schedule"`
	SnapshotSchedule string  `mapstructure:"snapshot_schedule"`
}

// Binance holds the configuration for the Binance price API.
type Binance struct {
	Enabled        bool    `mapstructure:"enabled"`
	Testnet        bool    `mapstructure:"testnet"`
	PriceSymbol    string  `mapstructure:"price_symbol"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Redis holds the optional event stream settings. An empty Addr disables it.
type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// Server holds the configuration for the web server.
type Server struct {
	Port   int `mapstructure:"port"`
	UIPort int `mapstructure:"ui_port"`
}

// Metrics holds the prometheus listener address. Empty disables it.
type Metrics struct {
	Addr string `mapstructure:"addr"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	TailSize int    `mapstructure:"tail_size"`
}

var defaults = map[string]interface{}{
	"chain.rpc_url":         "https://bsc-dataseed.binance.org/",
	"chain.private_key":     "",
	"chain.router":          "0x10ED43C718714eb63d5aA57B78B54704E256024E",
	"chain.factory":         "0xcA143Ce32Fe78f1f7019d7d551a607b003182036",
	"chain.gas_limit":       500000,
	"chain.confirm_timeout": "3m",
	"chain.poll_interval":   "3s",

	"tokens.wbnb": "0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c",
	"tokens.busd": "0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56",
	"tokens.usdt": "0x55d398326f99059fF775485246999027B3197955",

	"trading.dry_run":                   true,
	"trading.auto_start":                true,
	"trading.initial_cash":              1000.0,
	"trading.poll_interval":             "5s",
	"trading.heartbeat_every":           10,
	"trading.arbitrage.enabled":         true,
	"trading.arbitrage.probe_amount":    0.01,
	"trading.arbitrage.sizing":          SizingFixed,
	"trading.arbitrage.deadline":        "1m",
	"trading.copy_trade.enabled":        true,
	"trading.copy_trade.watch_list":     DefaultWatchList,
	"trading.copy_trade.entry_fraction": 0.20,
	"trading.copy_trade.min_trade_usd":  10.0,
	"trading.copy_trade.deadline":       "10m",
	"trading.sniper.enabled":            false,

	"risk.min_gas_reserve":        0.001,
	"risk.safe_gas_reserve":       0.003,
	"risk.max_trade_usd":          0.0,
	"risk.min_profit_percent":     0.5,
	"risk.buy_slippage_percent":   5.0,
	"risk.sell_slippage_percent":  10.0,
	"risk.arb_slippage_percent":   2.0,
	"risk.taxed_slippage_percent": 15.0,
	"risk.fee_on_transfer_tokens": []string{},

	"ledger.gas_fee_usd":       0.50,
	"ledger.swap_fee_percent":  0.25,
	"ledger.persist_schedule":  "@every 30s",
	"ledger.snapshot_schedule": "@every 5m",

	"binance.enabled":          true,
	"binance.testnet":          false,
	"binance.price_symbol":     "BNBUSDT",
	"binance.rate_limit":       20, // requests per second
	"binance.rate_limit_burst": 5,

	"redis.addr":     "",
	"redis.password": "",
	"redis.db":       0,
	"redis.stream":   "bot:events",
	"redis.max_len":  10000,

	"server.port":    3000,
	"server.ui_port": 8080,
	"metrics.addr":   ":9100",
	"database.dsn":   "data/portfolio.db",

	"logger.level":     "info",
	"logger.format":    "console",
	"logger.tail_size": 100,
}

// Arbitrage sizing policies.
const (
	SizingFixed   = "fixed"
	SizingBalance = "balance"
)

// DefaultWatchList is the set of wallets mirrored when none is configured.
var DefaultWatchList = []string{
	"0xB828DBa1250956123599F7753080202b2114C15F",
	"0x4D87e3993cbDd65ee899DA3a77Fd0e3C043471b8",
	"0x6B582301c5dcF172B529D9e1F113a2742ab68F99",
}

// legacyEnv maps short environment names onto config keys.
var legacyEnv = map[string]string{
	"chain.rpc_url":                  "RPC_URL",
	"chain.private_key":              "PRIVATE_KEY",
	"trading.dry_run":                "SIMULATION_MODE",
	"trading.copy_trade.enabled":     "COPY_MODE",
	"trading.copy_trade.watch_list":  "TARGET_WALLETS",
	"risk.min_profit_percent":        "MIN_PROFIT",
	"trading.arbitrage.probe_amount": "INVESTMENT",
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory is loaded first when present.
func LoadConfig(path string) (config Config, err error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config") // name of config file (without extension)
	v.SetConfigType("yml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for key, env := range legacyEnv {
		if err = v.BindEnv(key, strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode config: %w", err)
	}

	err = config.Validate()
	return
}

// Validate reports every problem that must stop the bot before trading begins.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Chain.RPCURL) == "" {
		errs = append(errs, errors.New("chain.rpc_url is required"))
	}
	if !c.Trading.DryRun && strings.TrimSpace(c.Chain.PrivateKey) == "" {
		errs = append(errs, errors.New("chain.private_key is required when dry_run is disabled"))
	}

	addrs := map[string]string{
		"chain.router":  c.Chain.Router,
		"chain.factory": c.Chain.Factory,
		"tokens.wbnb":   c.Tokens.WBNB,
		"tokens.busd":   c.Tokens.BUSD,
		"tokens.usdt":   c.Tokens.USDT,
	}
	for key, addr := range addrs {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("%s is not a valid address: %q", key, addr))
		}
	}
	for _, addr := range c.Trading.CopyTrade.WatchList {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("trading.copy_trade.watch_list contains invalid address %q", addr))
		}
	}
	for _, addr := range c.Risk.FeeOnTransferTokens {
		if !common.IsHexAddress(addr) {
			errs = append(errs, fmt.Errorf("risk.fee_on_transfer_tokens contains invalid address %q", addr))
		}
	}

	if c.Trading.CopyTrade.Enabled && len(c.Trading.CopyTrade.WatchList) == 0 {
		errs = append(errs, errors.New("trading.copy_trade.watch_list must not be empty when copy trading is enabled"))
	}
	if f := c.Trading.CopyTrade.EntryFraction; f <= 0 || f > 1 {
		errs = append(errs, fmt.Errorf("trading.copy_trade.entry_fraction must be in (0, 1], got %v", f))
	}
	if c.Trading.CopyTrade.MinTradeUSD < 0 {
		errs = append(errs, errors.New("trading.copy_trade.min_trade_usd must not be negative"))
	}
	if c.Trading.InitialCash < 0 {
		errs = append(errs, errors.New("trading.initial_cash must not be negative"))
	}
	if c.Trading.PollInterval <= 0 {
		errs = append(errs, errors.New("trading.poll_interval must be positive"))
	}
	if c.Trading.Arbitrage.Enabled && c.Trading.Arbitrage.ProbeAmount <= 0 {
		errs = append(errs, errors.New("trading.arbitrage.probe_amount must be positive"))
	}
	switch c.Trading.Arbitrage.Sizing {
	case SizingFixed, SizingBalance:
	default:
		errs = append(errs, fmt.Errorf("trading.arbitrage.sizing must be %q or %q", SizingFixed, SizingBalance))
	}

	if c.Risk.MinGasReserve < 0 || c.Risk.SafeGasReserve < c.Risk.MinGasReserve {
		errs = append(errs, errors.New("risk.safe_gas_reserve must be at least risk.min_gas_reserve, both non-negative"))
	}
	if c.Risk.MaxTradeUSD < 0 {
		errs = append(errs, errors.New("risk.max_trade_usd must not be negative"))
	}
	slippages := map[string]float64{
		"risk.buy_slippage_percent":   c.Risk.BuySlippagePercent,
		"risk.sell_slippage_percent":  c.Risk.SellSlippagePercent,
		"risk.arb_slippage_percent":   c.Risk.ArbSlippagePercent,
		"risk.taxed_slippage_percent": c.Risk.TaxedSlippagePercent,
	}
	for key, pct := range slippages {
		if pct < 0 || pct >= 100 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 100), got %v", key, pct))
		}
	}

	if c.Ledger.GasFeeUSD < 0 || c.Ledger.SwapFeePercent < 0 || c.Ledger.SwapFeePercent >= 100 {
		errs = append(errs, errors.New("ledger fees must be non-negative and swap_fee_percent below 100"))
	}

	return errors.Join(errs...)
}
