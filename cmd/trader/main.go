package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"pancake-trade-bot-go/internal/binance"
	"pancake-trade-bot-go/internal/chain"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/database"
	"pancake-trade-bot-go/internal/dex"
	"pancake-trade-bot-go/internal/execution"
	"pancake-trade-bot-go/internal/feed"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/logger"
	"pancake-trade-bot-go/internal/metrics"
	"pancake-trade-bot-go/internal/risk"
	"pancake-trade-bot-go/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger with the in-memory tail behind the dashboard
	tail := logger.NewTail(cfg.Logger.TailSize)
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, tail)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	log.Info("Configuration loaded", zap.Bool("dry_run", cfg.Trading.DryRun))

	// Setup context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, &cfg, tail, log); err != nil {
		log.Fatal("Bot stopped with error", zap.Error(err))
	}
	log.Info("Bot has been shut down.")
}

func run(ctx context.Context, cfg *config.Config, tail *logger.Tail, log *zap.Logger) error {
	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	store := database.NewStore(db, cfg.Trading.DryRun)
	log.Info("Database connection successful and schema migrated.")

	// Connect to the chain
	client, err := chain.Dial(ctx, &cfg.Chain, log)
	if err != nil {
		return err
	}
	defer client.Close()

	book := loadLedger(ctx, cfg, store, log)
	quoter := dex.NewQuoter(client, log)
	route := trader.RouteFromConfig(cfg.Tokens)

	var ticker trader.Ticker
	if cfg.Binance.Enabled {
		rc := binance.NewRestClient(&cfg.Binance, log)
		if _, err := rc.GetServerTime(ctx); err != nil {
			log.Warn("Binance API unreachable, pricing BNB from the venue", zap.Error(err))
		} else {
			log.Info("Successfully connected to Binance API.")
		}
		ticker = rc
	}

	var publisher trader.Publisher
	if cfg.Redis.Addr != "" {
		pub := feed.NewPublisher(&cfg.Redis)
		defer func() { _ = pub.Close() }()
		if err := pub.Ping(ctx); err != nil {
			log.Warn("Redis unreachable, events will not be published", zap.Error(err))
		} else {
			publisher = pub
			log.Info("Publishing events", zap.String("stream", cfg.Redis.Stream))
		}
	}

	strategies := trader.BuildStrategies(cfg, client, quoter, book.Holdings, log)
	engine := trader.NewEngine(cfg, trader.Dependencies{
		Client:    client,
		Quoter:    quoter,
		Gate:      risk.NewGate(risk.LimitsFromConfig(cfg.Risk)),
		Executor:  execution.NewEngine(client, common.HexToAddress(cfg.Chain.Router), log),
		Ledger:    book,
		Prices:    trader.NewPriceSource(ticker, cfg.Binance.PriceSymbol, quoter, route, log),
		Store:     store,
		Publisher: publisher,
	}, strategies, log)

	api := trader.NewAPIServer(fmt.Sprintf(":%d", cfg.Server.Port), engine, tail, log)
	api.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return metrics.Serve(gctx, cfg.Metrics.Addr, nil, log) })
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return api.Stop(shutdownCtx)
	})
	return g.Wait()
}

// loadLedger restores the saved portfolio or starts a fresh one.
func loadLedger(ctx context.Context, cfg *config.Config, store ledger.Store, log *zap.Logger) *ledger.Ledger {
	fees := ledger.Fees{
		GasFeeUSD:   decimal.NewFromFloat(cfg.Ledger.GasFeeUSD),
		SwapFeeRate: decimal.NewFromFloat(cfg.Ledger.SwapFeePercent).Div(decimal.NewFromInt(100)),
	}

	st, err := store.Load(ctx)
	switch {
	case err == nil:
		log.Info("Restored portfolio",
			zap.String("cash", st.CashBalance.StringFixed(2)),
			zap.Int("positions", len(st.Positions)),
			zap.Int("trades", len(st.History)))
		return ledger.Restore(st, fees)
	case errors.Is(err, ledger.ErrNoState):
		log.Info("No saved portfolio, starting fresh")
	default:
		log.Warn("Saved portfolio unreadable, starting fresh", zap.Error(err))
	}
	return ledger.New(decimal.NewFromFloat(cfg.Trading.InitialCash), fees)
}
