package trader

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/dex"
	"pancake-trade-bot-go/internal/logger"
	"pancake-trade-bot-go/internal/metrics"
)

// Quoter prices a swap path.
type Quoter interface {
	Quote(ctx context.Context, path []common.Address, amountIn *big.Int) (dex.Quote, error)
}

// Opportunity is a priced round trip.
type Opportunity struct {
	Path          []common.Address
	AmountIn      *big.Int
	AmountOut     *big.Int
	Profit        *big.Int
	ProfitPercent decimal.Decimal
}

// OpportunityEvaluator quotes a fixed round trip and compares it to the profit threshold.
// It never executes anything.
type OpportunityEvaluator struct {
	quoter    Quoter
	path      []common.Address
	amountIn  *big.Int
	minProfit decimal.Decimal
}

// NewOpportunityEvaluator creates an evaluator for path probed with amountIn.
func NewOpportunityEvaluator(quoter Quoter, path []common.Address, amountIn *big.Int, minProfitPercent decimal.Decimal) *OpportunityEvaluator {
	return &OpportunityEvaluator{quoter: quoter, path: path, amountIn: amountIn, minProfit: minProfitPercent}
}

// Evaluate reports whether the round trip currently clears the threshold.
// Quote failures count as no opportunity.
func (e *OpportunityEvaluator) Evaluate(ctx context.Context) (Opportunity, bool) {
	q, err := e.quoter.Quote(ctx, e.path, e.amountIn)
	if err != nil {
		return Opportunity{}, false
	}

	opp := Opportunity{
		Path:          q.Path,
		AmountIn:      q.AmountIn,
		AmountOut:     q.AmountOut,
		Profit:        new(big.Int).Sub(q.AmountOut, q.AmountIn),
		ProfitPercent: dex.ProfitPercent(q.AmountIn, q.AmountOut),
	}
	return opp, opp.ProfitPercent.GreaterThan(e.minProfit)
}

// ScanStats are the arbitrage scanner counters shown on the status page.
type ScanStats struct {
	Checks        uint64    `json:"checks"`
	Opportunities uint64    `json:"opportunities"`
	LastCheck     time.Time `json:"last_check"`
}

// ArbitrageScanner polls the evaluator on a fixed interval.
type ArbitrageScanner struct {
	evaluator      *OpportunityEvaluator
	interval       time.Duration
	heartbeatEvery uint64
	logger         *zap.Logger

	checks        atomic.Uint64
	opportunities atomic.Uint64
	lastCheck     atomic.Int64
}

// NewArbitrageScanner creates a scanner. A heartbeat line is logged every
// heartbeatEvery empty scans; zero disables it.
func NewArbitrageScanner(evaluator *OpportunityEvaluator, interval time.Duration, heartbeatEvery int, logger *zap.Logger) *ArbitrageScanner {
	if heartbeatEvery < 0 {
		heartbeatEvery = 0
	}
	return &ArbitrageScanner{
		evaluator:      evaluator,
		interval:       interval,
		heartbeatEvery: uint64(heartbeatEvery),
		logger:         logger.Named("arbitrage"),
	}
}

func (s *ArbitrageScanner) Name() string { return "arbitrage" }

// Run scans every interval until ctx is done.
func (s *ArbitrageScanner) Run(ctx context.Context, emit Emit) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Starting arbitrage scan", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.scan(ctx, emit)
		}
	}
}

func (s *ArbitrageScanner) scan(ctx context.Context, emit Emit) {
	n := s.checks.Add(1)
	s.lastCheck.Store(time.Now().UnixNano())
	metrics.Scans.Inc()

	opp, found := s.evaluator.Evaluate(ctx)
	if !found {
		if s.heartbeatEvery > 0 && n%s.heartbeatEvery == 0 {
			s.logger.Info("Scanning... no opportunities found", zap.Uint64("checks", n))
		}
		return
	}

	s.opportunities.Add(1)
	metrics.Opportunities.Inc()
	s.logger.Info("Opportunity found",
		logger.Success(),
		zap.String("profit_percent", opp.ProfitPercent.StringFixed(4)),
		zap.String("profit", dex.FromWei(opp.Profit, dex.Decimals).String()))

	emit(Intent{Kind: KindEntry, Source: SourceArbitrage, Token: opp.Path[0], Opportunity: &opp})
}

// Stats returns the scan counters.
func (s *ArbitrageScanner) Stats() ScanStats {
	st := ScanStats{Checks: s.checks.Load(), Opportunities: s.opportunities.Load()}
	if ns := s.lastCheck.Load(); ns > 0 {
		st.LastCheck = time.Unix(0, ns)
	}
	return st
}
