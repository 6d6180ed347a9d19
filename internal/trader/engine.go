package trader

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"pancake-trade-bot-go/internal/chain"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/dex"
	"pancake-trade-bot-go/internal/execution"
	"pancake-trade-bot-go/internal/feed"
	"pancake-trade-bot-go/internal/ledger"
	"pancake-trade-bot-go/internal/logger"
	"pancake-trade-bot-go/internal/metrics"
	"pancake-trade-bot-go/internal/risk"
)

var (
	// ErrNotReady is returned by Start before Run has been called or after it returned.
	ErrNotReady = errors.New("engine is not running")

	usdOne = decimal.NewFromInt(1)
)

const (
	modeSimulation = "SIMULATION"
	modeLive       = "LIVE"
	saveTimeout    = 10 * time.Second
	publishTimeout = 2 * time.Second
)

// Executor submits approved orders.
type Executor interface {
	Execute(ctx context.Context, o execution.Order) (execution.Outcome, error)
}

// NativePricer values BNB in USD.
type NativePricer interface {
	NativeUSD(ctx context.Context) (decimal.Decimal, error)
}

// Publisher receives trade events.
type Publisher interface {
	Publish(ctx context.Context, ev feed.Event) error
}

// Dependencies are the engine's collaborators. Store and Publisher are optional.
type Dependencies struct {
	Client    chain.Client
	Quoter    Quoter
	Gate      *risk.Gate
	Executor  Executor
	Ledger    *ledger.Ledger
	Prices    NativePricer
	Store     ledger.Store
	Publisher Publisher
}

// Engine is the decision loop. Triggers run concurrently; executions go through
// a single lane and intents arriving while it is busy are dropped.
type Engine struct {
	UUID      string
	Name      string
	StartTime time.Time

	cfg        *config.Config
	deps       Dependencies
	logger     *zap.Logger
	route      Route
	sizer      *Sizer
	taxed      map[common.Address]struct{}
	strategies []Strategy
	scanner    *ArbitrageScanner

	lane     *semaphore.Weighted
	running  atomic.Bool
	triggers sync.WaitGroup
	inflight sync.WaitGroup

	mu      sync.Mutex
	ctx     context.Context
	stopped bool
}

// NewEngine creates a new trading engine.
func NewEngine(cfg *config.Config, deps Dependencies, strategies []Strategy, logger *zap.Logger) *Engine {
	route := RouteFromConfig(cfg.Tokens)
	e := &Engine{
		UUID:       uuid.NewString(),
		Name:       "pancake-trade-bot",
		StartTime:  time.Now(),
		cfg:        cfg,
		deps:       deps,
		logger:     logger.Named("engine"),
		route:      route,
		sizer:      NewSizer(cfg.Trading, cfg.Risk, route),
		taxed:      make(map[common.Address]struct{}),
		strategies: strategies,
		lane:       semaphore.NewWeighted(1),
	}
	for _, addr := range cfg.Risk.FeeOnTransferTokens {
		e.taxed[common.HexToAddress(addr)] = struct{}{}
	}
	for _, s := range strategies {
		if sc, ok := s.(*ArbitrageScanner); ok {
			e.scanner = sc
		}
	}
	return e
}

// BuildStrategies creates the triggers enabled in configuration.
func BuildStrategies(cfg *config.Config, client chain.Client, quoter Quoter, holdings Holdings, logger *zap.Logger) []Strategy {
	route := RouteFromConfig(cfg.Tokens)
	var out []Strategy

	if cfg.Trading.Arbitrage.Enabled {
		probe := dex.ToWei(decimal.NewFromFloat(cfg.Trading.Arbitrage.ProbeAmount), dex.Decimals)
		evaluator := NewOpportunityEvaluator(quoter, route.NativeLoop(), probe, decimal.NewFromFloat(cfg.Risk.MinProfitPercent))
		out = append(out, NewArbitrageScanner(evaluator, cfg.Trading.PollInterval, cfg.Trading.HeartbeatEvery, logger))
	}
	if cfg.Trading.CopyTrade.Enabled {
		watch := make([]common.Address, 0, len(cfg.Trading.CopyTrade.WatchList))
		for _, addr := range cfg.Trading.CopyTrade.WatchList {
			watch = append(watch, common.HexToAddress(addr))
		}
		decoder := NewSignalDecoder(common.HexToAddress(cfg.Chain.Router), watch, nil)
		out = append(out, NewCopyTrader(client, decoder, holdings, logger))
	}
	if cfg.Trading.Sniper.Enabled {
		out = append(out, NewSniper(client, route.WBNB, logger))
	}
	return out
}

// Run starts the scheduler, auto-starts the triggers if configured and blocks
// until ctx is done. On shutdown it waits for in-flight executions and saves
// the ledger.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()

	e.logger.Info("Initializing trading engine...",
		zap.String("uuid", e.UUID),
		zap.String("mode", e.mode()),
		zap.Int("strategies", len(e.strategies)))

	scheduler, err := e.schedule(ctx)
	if err != nil {
		return err
	}
	scheduler.Start()

	if e.cfg.Trading.AutoStart {
		if _, err := e.Start(); err != nil {
			e.logger.Error("Auto-start failed", zap.Error(err))
		}
	}

	<-ctx.Done()
	e.logger.Info("Stopping trading engine...")

	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	<-scheduler.Stop().Done()
	e.triggers.Wait()
	e.inflight.Wait()
	e.running.Store(false)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), saveTimeout)
	defer cancel()
	if err := e.persist(saveCtx); err != nil {
		return fmt.Errorf("final save: %w", err)
	}
	e.logger.Info("Engine stopped")
	return nil
}

// Start launches the triggers. Calling it while already running is a no-op
// that returns false.
func (e *Engine) Start() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := e.ctx
	if ctx == nil || e.stopped || ctx.Err() != nil {
		return false, ErrNotReady
	}
	if !e.running.CompareAndSwap(false, true) {
		return false, nil
	}

	e.logger.Info("Starting bot", zap.String("mode", e.mode()))
	if err := e.syncBalances(ctx); err != nil {
		e.running.Store(false)
		return false, err
	}

	for _, s := range e.strategies {
		e.triggers.Add(1)
		go func(s Strategy) {
			defer e.triggers.Done()
			if err := s.Run(ctx, func(in Intent) { e.dispatch(ctx, in) }); err != nil {
				e.logger.Error("Strategy stopped", zap.String("strategy", s.Name()), zap.Error(err))
			}
		}(s)
	}
	return true, nil
}

// Running reports whether the triggers have been started.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Portfolio returns the ledger view.
func (e *Engine) Portfolio() ledger.Portfolio {
	return e.deps.Ledger.Portfolio()
}

// Status describes the engine for the API.
type Status struct {
	UUID       string    `json:"uuid"`
	Name       string    `json:"name"`
	Mode       string    `json:"mode"`
	Running    bool      `json:"running"`
	Strategies []string  `json:"strategies"`
	StartTime  string    `json:"start_time"`
	Uptime     string    `json:"uptime"`
	Stats      ScanStats `json:"stats"`
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	names := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		names = append(names, s.Name())
	}
	st := Status{
		UUID:       e.UUID,
		Name:       e.Name,
		Mode:       e.mode(),
		Running:    e.running.Load(),
		Strategies: names,
		StartTime:  e.StartTime.Format(time.RFC3339),
		Uptime:     time.Since(e.StartTime).Truncate(time.Second).String(),
	}
	if e.scanner != nil {
		st.Stats = e.scanner.Stats()
	}
	return st
}

func (e *Engine) mode() string {
	if e.cfg.Trading.DryRun {
		return modeSimulation
	}
	return modeLive
}

// syncBalances aligns ledger cash with the wallet's USDT in live mode.
func (e *Engine) syncBalances(ctx context.Context) error {
	if e.cfg.Trading.DryRun {
		return nil
	}
	c := e.deps.Client
	addr := c.Address()
	e.logger.Info("Using wallet", zap.String("address", addr.Hex()), zap.String("chain_id", c.ChainID().String()))

	native, err := c.NativeBalance(ctx, addr)
	if err != nil {
		return fmt.Errorf("read native balance: %w", err)
	}
	usdt, err := c.TokenBalance(ctx, addr, e.route.USDT)
	if err != nil {
		return fmt.Errorf("read USDT balance: %w", err)
	}

	cash := dex.FromWei(usdt, dex.Decimals)
	e.deps.Ledger.SetCashBalance(cash)
	e.logger.Info("Synced portfolio cash", logger.Success(), zap.String("cash", cash.StringFixed(2)))
	e.logger.Info("Wallet balance",
		zap.String("bnb", dex.FromWei(native, dex.Decimals).String()),
		zap.String("usdt", cash.String()))
	if native.Sign() == 0 {
		e.logger.Error("Wallet has 0 BNB for gas")
	}
	return nil
}

func (e *Engine) dispatch(ctx context.Context, in Intent) {
	if !e.lane.TryAcquire(1) {
		metrics.IntentsDropped.Inc()
		e.logger.Info("Execution lane busy, dropping intent",
			zap.String("source", string(in.Source)),
			zap.String("kind", string(in.Kind)),
			zap.String("token", in.Token.Hex()))
		return
	}

	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		defer e.lane.Release(1)
		e.handle(ctx, in)
	}()
}

func (e *Engine) handle(ctx context.Context, in Intent) {
	switch {
	case in.Source == SourceArbitrage:
		e.handleArbitrage(ctx, in)
	case in.Kind == KindEntry:
		e.handleEntry(ctx, in)
	case in.Kind == KindExit:
		e.handleExit(ctx, in)
	}
	e.updateGauges()
}

func (e *Engine) handleArbitrage(ctx context.Context, in Intent) {
	l := e.logger.With(zap.String("source", string(in.Source)))

	// Simulation has no wallet balances and always trades the probe.
	plan := e.sizer.ProbeLoop()
	var native, usdt *big.Int
	var err error
	if !e.cfg.Trading.DryRun {
		addr := e.deps.Client.Address()
		if native, err = e.deps.Client.NativeBalance(ctx, addr); err != nil {
			l.Error("Failed to read BNB balance", zap.Error(err))
			return
		}
		if usdt, err = e.deps.Client.TokenBalance(ctx, addr, e.route.USDT); err != nil {
			l.Error("Failed to read USDT balance", zap.Error(err))
			return
		}
		if plan, err = e.sizer.Loop(native, usdt); err != nil {
			l.Error("Insufficient capital for arbitrage", zap.Error(err))
			return
		}
	}

	label := "USDT loop"
	price := usdOne
	if plan.Native {
		label = "BNB loop"
		if price, err = e.deps.Prices.NativeUSD(ctx); err != nil {
			l.Debug("BNB price unavailable, trade size is not capped", zap.Error(err))
			price = decimal.Zero
		}
	}
	l = l.With(zap.String("loop", label))

	var quotedOut *big.Int
	if in.Opportunity != nil && plan.Native && in.Opportunity.AmountIn.Cmp(plan.AmountIn) == 0 {
		quotedOut = in.Opportunity.AmountOut
	} else {
		q, err := e.deps.Quoter.Quote(ctx, plan.Path, plan.AmountIn)
		if err != nil {
			l.Info("Opportunity vanished before execution", zap.Error(err))
			return
		}
		quotedOut = q.AmountOut
	}

	d, p, err := e.evaluate(ctx, risk.Proposal{
		Side:          risk.SideArbitrage,
		AmountIn:      plan.AmountIn,
		AmountOut:     quotedOut,
		InputDecimals: dex.Decimals,
		InputUSDPrice: price,
		InputIsNative: plan.Native,
		NativeBalance: native,
		RoundTrip:     true,
	}, plan.Path)
	if err != nil {
		l.Info("Opportunity vanished after capping", zap.Error(err))
		return
	}
	if d.Verdict == risk.Reject {
		l.Info("Arbitrage rejected", zap.Error(d.Reason), zap.String("profit_percent", d.ProfitPercent.StringFixed(4)))
		return
	}

	if e.cfg.Trading.DryRun {
		l.Info("Simulation mode: trade would be executed here",
			zap.String("amount_in", dex.FromWei(d.AmountIn, dex.Decimals).String()),
			zap.String("profit_percent", d.ProfitPercent.StringFixed(4)))
		return
	}

	l.Info("Executing arbitrage", zap.String("amount_in", dex.FromWei(d.AmountIn, dex.Decimals).String()))
	out, err := e.deps.Executor.Execute(context.WithoutCancel(ctx), execution.Order{
		Path:         plan.Path,
		AmountIn:     d.AmountIn,
		AmountOutMin: d.AmountOutMin,
		QuotedOut:    p.AmountOut,
		Deadline:     time.Now().Add(e.cfg.Trading.Arbitrage.Deadline),
		NativeIn:     plan.Native,
		GasLimit:     e.cfg.Chain.GasLimit,
	})
	if err != nil {
		l.Error("Arbitrage execution failed", zap.String("tx", out.TxRef), zap.Error(err))
		return
	}

	profit := dex.FromWei(new(big.Int).Sub(out.SettledAmountOut, d.AmountIn), dex.Decimals)
	pnl := profit.Mul(price)
	e.deps.Ledger.RecordAtomicTrade(label, pnl, out.TxRef)
	l.Info("Arbitrage confirmed",
		logger.Success(),
		zap.String("tx", out.TxRef),
		zap.String("profit", profit.String()),
		zap.String("pnl_usd", pnl.StringFixed(2)))
	e.publish(ctx, feed.Event{Type: feed.EventArbitrage, Strategy: StrategyArbitrage, Token: label, PnL: pnl, TxRef: out.TxRef})
}

func (e *Engine) handleEntry(ctx context.Context, in Intent) {
	token := in.Token
	l := e.logger.With(zap.String("alias", in.Alias), zap.String("token", token.Hex()))

	if token == e.route.USDT {
		l.Info("Signal buys the quote asset, skipping entry")
		return
	}
	if _, held := e.deps.Ledger.Position(token.Hex()); held {
		l.Info("Already holding token, skipping entry")
		return
	}

	size := e.sizer.EntrySize(e.deps.Ledger.Cash())
	if err := e.deps.Ledger.CanAfford(size); err != nil {
		l.Info("Skipping entry", zap.String("size_usd", size.StringFixed(2)), zap.Error(err))
		return
	}

	path := e.route.BuyPath(token)
	amountIn := dex.ToWei(size, dex.Decimals)
	q, err := e.deps.Quoter.Quote(ctx, path, amountIn)
	if err != nil {
		l.Info("Skipping entry: no quote", zap.Error(err))
		return
	}

	native, err := e.nativeBalance(ctx)
	if err != nil {
		l.Error("Failed to read BNB balance", zap.Error(err))
		return
	}
	d, p, err := e.evaluate(ctx, risk.Proposal{
		Side:          risk.SideBuy,
		AmountIn:      amountIn,
		AmountOut:     q.AmountOut,
		InputDecimals: dex.Decimals,
		InputUSDPrice: usdOne,
		NativeBalance: native,
		FeeOnTransfer: e.isTaxed(token),
	}, path)
	if err != nil {
		l.Info("Skipping entry: no quote at capped size", zap.Error(err))
		return
	}
	if d.Verdict == risk.Reject {
		l.Info("Entry rejected", zap.Error(d.Reason))
		return
	}

	size = dex.FromWei(d.AmountIn, dex.Decimals)
	tokenAmount := p.AmountOut
	var txRef string
	if !e.cfg.Trading.DryRun {
		l.Info("Attempting buy", zap.String("size_usd", size.StringFixed(2)))
		out, err := e.deps.Executor.Execute(context.WithoutCancel(ctx), execution.Order{
			Path:         path,
			AmountIn:     d.AmountIn,
			AmountOutMin: d.AmountOutMin,
			QuotedOut:    p.AmountOut,
			Deadline:     time.Now().Add(e.cfg.Trading.CopyTrade.Deadline),
			GasLimit:     e.cfg.Chain.GasLimit,
		})
		if err != nil {
			l.Error("Buy failed", zap.String("tx", out.TxRef), zap.Error(err))
			return
		}
		tokenAmount = out.SettledAmountOut
		txRef = out.TxRef
	}

	res, err := e.deps.Ledger.OpenPosition(StrategyCopyTrading, token.Hex(), size, ledger.WithTokenAmount(tokenAmount))
	if err != nil {
		l.Error("Failed to record entry", zap.String("tx", txRef), zap.Error(err))
		return
	}
	l.Info(fmt.Sprintf("%s BUY %s", in.Alias, shortAddr(token)),
		logger.Success(),
		zap.String("bet_usd", res.Position.AmountUSD.StringFixed(2)),
		zap.String("tx", txRef))
	e.publish(ctx, feed.Event{
		Type:      feed.EventOpen,
		Strategy:  StrategyCopyTrading,
		Token:     token.Hex(),
		AmountUSD: size,
		TxRef:     txRef,
		Simulated: e.cfg.Trading.DryRun,
	})
}

func (e *Engine) handleExit(ctx context.Context, in Intent) {
	token := in.Token
	l := e.logger.With(zap.String("alias", in.Alias), zap.String("token", token.Hex()))

	pos, ok := e.deps.Ledger.Position(token.Hex())
	if !ok {
		l.Info("Exit signal for token not held", zap.Error(ledger.ErrPositionNotFound))
		return
	}

	amount := pos.TokenAmount.BigInt()
	if !e.cfg.Trading.DryRun {
		bal, err := e.deps.Client.TokenBalance(ctx, e.deps.Client.Address(), token)
		if err != nil {
			l.Error("Failed to read token balance", zap.Error(err))
			return
		}
		amount = bal
	}

	var exitValue decimal.Decimal
	var txRef string
	switch {
	case amount.Sign() <= 0 && e.cfg.Trading.DryRun:
		// Unknown token amount on a paper position; exit flat.
		exitValue = pos.AmountUSD
	case amount.Sign() <= 0:
		l.Error("No token balance to sell")
		return
	default:
		path := e.route.SellPath(token)
		q, err := e.deps.Quoter.Quote(ctx, path, amount)
		if err != nil {
			l.Info("Skipping exit: no quote", zap.Error(err))
			return
		}
		native, err := e.nativeBalance(ctx)
		if err != nil {
			l.Error("Failed to read BNB balance", zap.Error(err))
			return
		}
		// Exits sell the full position, so the size cap does not apply.
		d, p, err := e.evaluate(ctx, risk.Proposal{
			Side:          risk.SideSell,
			AmountIn:      amount,
			AmountOut:     q.AmountOut,
			InputDecimals: dex.Decimals,
			NativeBalance: native,
			FeeOnTransfer: e.isTaxed(token),
		}, path)
		if err != nil {
			l.Info("Skipping exit", zap.Error(err))
			return
		}
		if d.Verdict == risk.Reject {
			l.Info("Exit rejected", zap.Error(d.Reason))
			return
		}
		exitValue = dex.FromWei(p.AmountOut, dex.Decimals)

		if !e.cfg.Trading.DryRun {
			l.Info("Attempting sell", zap.String("amount", dex.FromWei(amount, dex.Decimals).String()))
			out, err := e.deps.Executor.Execute(context.WithoutCancel(ctx), execution.Order{
				Path:         path,
				AmountIn:     d.AmountIn,
				AmountOutMin: d.AmountOutMin,
				QuotedOut:    p.AmountOut,
				Deadline:     time.Now().Add(e.cfg.Trading.CopyTrade.Deadline),
				GasLimit:     e.cfg.Chain.GasLimit,
			})
			if err != nil {
				l.Error("Sell failed", zap.String("tx", out.TxRef), zap.Error(err))
				return
			}
			exitValue = dex.FromWei(out.SettledAmountOut, dex.Decimals)
			txRef = out.TxRef
		}
	}

	res, err := e.deps.Ledger.ClosePosition(token.Hex(), exitValue)
	if err != nil {
		l.Error("Failed to record exit", zap.String("tx", txRef), zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("pnl_usd", res.Record.PnL.StringFixed(2)),
		zap.String("pnl_percent", res.Record.PnLPercent.StringFixed(1)),
		zap.String("tx", txRef),
	}
	if res.Record.Outcome == ledger.OutcomeWin {
		fields = append(fields, logger.Success())
	}
	l.Info(fmt.Sprintf("%s SELL %s", in.Alias, shortAddr(token)), fields...)
	e.publish(ctx, feed.Event{
		Type:      feed.EventClose,
		Strategy:  pos.Strategy,
		Token:     token.Hex(),
		AmountUSD: exitValue,
		PnL:       res.Record.PnL,
		TxRef:     txRef,
		Simulated: e.cfg.Trading.DryRun,
	})
}

// evaluate runs the gate, quoting again once when it caps the size.
func (e *Engine) evaluate(ctx context.Context, p risk.Proposal, path []common.Address) (risk.Decision, risk.Proposal, error) {
	d := e.deps.Gate.Evaluate(p)
	if d.Verdict == risk.Cap && d.Requote {
		q, err := e.deps.Quoter.Quote(ctx, path, d.AmountIn)
		if err != nil {
			metrics.Decisions.WithLabelValues(risk.Reject.String()).Inc()
			return d, p, err
		}
		p.AmountIn = d.AmountIn
		p.AmountOut = q.AmountOut
		p.Capped = true
		d = e.deps.Gate.Evaluate(p)
	}
	metrics.Decisions.WithLabelValues(d.Verdict.String()).Inc()
	return d, p, nil
}

// nativeBalance returns nil in simulation, which skips the gas rule.
func (e *Engine) nativeBalance(ctx context.Context) (*big.Int, error) {
	if e.cfg.Trading.DryRun {
		return nil, nil
	}
	return e.deps.Client.NativeBalance(ctx, e.deps.Client.Address())
}

func (e *Engine) isTaxed(token common.Address) bool {
	_, ok := e.taxed[token]
	return ok
}

func (e *Engine) publish(ctx context.Context, ev feed.Event) {
	if e.deps.Publisher == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := e.deps.Publisher.Publish(pctx, ev); err != nil {
		e.logger.Warn("Failed to publish event", zap.String("type", ev.Type), zap.Error(err))
	}
}

func (e *Engine) schedule(ctx context.Context) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(e.cfg.Ledger.PersistSchedule, func() {
		if err := e.persist(ctx); err != nil {
			e.logger.Error("Failed to save portfolio", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid ledger.persist_schedule %q: %w", e.cfg.Ledger.PersistSchedule, err)
	}
	if _, err := c.AddFunc(e.cfg.Ledger.SnapshotSchedule, e.snapshot); err != nil {
		return nil, fmt.Errorf("invalid ledger.snapshot_schedule %q: %w", e.cfg.Ledger.SnapshotSchedule, err)
	}
	return c, nil
}

func (e *Engine) persist(ctx context.Context) error {
	if e.deps.Store == nil {
		return nil
	}
	return e.deps.Store.Save(ctx, e.deps.Ledger.State())
}

func (e *Engine) snapshot() {
	s := e.deps.Ledger.TakeSnapshot()
	e.logger.Debug("Equity snapshot", zap.String("equity", s.Equity.StringFixed(2)))
	e.updateGauges()
}

func (e *Engine) updateGauges() {
	p := e.deps.Ledger.Portfolio()
	metrics.Equity.Set(p.TotalValue.InexactFloat64())
	metrics.OpenPositions.Set(float64(len(p.Positions)))
}

func shortAddr(a common.Address) string {
	h := a.Hex()
	return strings.ToLower(h[:8]) + "..."
}
