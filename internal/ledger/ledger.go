package ledger

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	hundred    = decimal.NewFromInt(100)
	minDays    = 0.001
	secsPerDay = float64(24 * time.Hour / time.Second)
)

// Ledger owns the portfolio state. Every mutation goes through its methods and is
// serialized; readers get deep copies.
type Ledger struct {
	mu    sync.RWMutex
	state State
	fees  Fees
	now   func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// New creates a ledger holding initialCash and nothing else.
func New(initialCash decimal.Decimal, fees Fees, opts ...Option) *Ledger {
	l := &Ledger{fees: fees, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	start := l.now()
	l.state = State{
		CashBalance: initialCash,
		StartEquity: initialCash,
		StartTime:   start,
		Snapshots:   []Snapshot{{Time: start, Equity: initialCash}},
	}
	return l
}

// Restore creates a ledger from previously saved state.
func Restore(st State, fees Fees, opts ...Option) *Ledger {
	l := &Ledger{fees: fees, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.state = st.clone()
	l.state.History = trimHistory(l.state.History)
	l.state.Snapshots = trimSnapshots(l.state.Snapshots)
	return l
}

// PositionOption adjusts a position as it is opened.
type PositionOption func(*Position)

// WithTokenAmount records how many token base units the entry acquired.
func WithTokenAmount(amount *big.Int) PositionOption {
	return func(p *Position) {
		if amount != nil {
			p.TokenAmount = decimal.NewFromBigInt(amount, 0)
		}
	}
}

// CanAfford reports ErrInsufficientFunds when an entry of amountUSD would overdraw cash.
func (l *Ledger) CanAfford(amountUSD decimal.Decimal) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.state.CashBalance.LessThan(amountUSD.Add(l.fees.GasFeeUSD)) {
		return ErrInsufficientFunds
	}
	return nil
}

// OpenPosition debits amountUSD plus gas and opens a position in token.
func (l *Ledger) OpenPosition(strategy, token string, amountUSD decimal.Decimal, opts ...PositionOption) (OpenResult, error) {
	if !amountUSD.IsPositive() {
		return OpenResult{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.indexOf(token) >= 0 {
		return OpenResult{}, fmt.Errorf("%w: %s", ErrPositionExists, token)
	}
	gas := l.fees.GasFeeUSD
	if l.state.CashBalance.LessThan(amountUSD.Add(gas)) {
		return OpenResult{}, fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, amountUSD.Add(gas).StringFixed(2), l.state.CashBalance.StringFixed(2))
	}

	fee := amountUSD.Mul(l.fees.SwapFeeRate)
	pos := Position{
		Strategy:          strategy,
		Token:             token,
		AmountUSD:         amountUSD.Sub(fee),
		InitialInvestment: amountUSD,
		OpenedAt:          l.now(),
		Status:            StatusOpen,
	}
	for _, opt := range opts {
		opt(&pos)
	}

	l.state.CashBalance = l.state.CashBalance.Sub(amountUSD).Sub(gas)
	l.state.InvestedBalance = l.state.InvestedBalance.Add(amountUSD)
	l.state.TotalGasPaid = l.state.TotalGasPaid.Add(gas)
	l.state.TotalFeesPaid = l.state.TotalFeesPaid.Add(fee)
	l.state.Positions = append(l.state.Positions, pos)

	return OpenResult{Position: pos, GasFee: gas, SwapFee: fee}, nil
}

// ClosePosition exits the position in token at exitValueUSD. Token matching ignores case.
func (l *Ledger) ClosePosition(token string, exitValueUSD decimal.Decimal) (CloseResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	idx := l.indexOf(token)
	if idx < 0 {
		return CloseResult{}, fmt.Errorf("%w: %s", ErrPositionNotFound, token)
	}
	pos := l.state.Positions[idx]

	gas := l.fees.GasFeeUSD
	exitFee := exitValueUSD.Mul(l.fees.SwapFeeRate)
	net := exitValueUSD.Sub(exitFee).Sub(gas)
	pnl := net.Sub(pos.InitialInvestment)

	pnlPct := decimal.Zero
	if pos.InitialInvestment.IsPositive() {
		pnlPct = pnl.Div(pos.InitialInvestment).Mul(hundred)
	}
	outcome := OutcomeLoss
	if pnl.IsPositive() {
		outcome = OutcomeWin
	}

	rec := TradeRecord{
		ID:         uuid.NewString(),
		Token:      pos.Token,
		Strategy:   pos.Strategy,
		EntryTime:  pos.OpenedAt,
		ExitTime:   l.now(),
		Investment: pos.InitialInvestment,
		ExitValue:  net,
		PnL:        pnl,
		PnLPercent: pnlPct,
		Outcome:    outcome,
	}

	l.state.CashBalance = l.state.CashBalance.Add(net)
	l.state.InvestedBalance = l.state.InvestedBalance.Sub(pos.InitialInvestment)
	l.state.TotalGasPaid = l.state.TotalGasPaid.Add(gas)
	l.state.TotalFeesPaid = l.state.TotalFeesPaid.Add(exitFee)
	l.state.RealizedPnL = l.state.RealizedPnL.Add(pnl)
	l.state.Positions = append(l.state.Positions[:idx:idx], l.state.Positions[idx+1:]...)
	l.pushHistory(rec)

	return CloseResult{Record: rec, NetProceeds: net}, nil
}

// RecordAtomicTrade books the profit of a self-contained round trip that never
// held a position.
func (l *Ledger) RecordAtomicTrade(label string, pnlUSD decimal.Decimal, txRef string) TradeRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	outcome := OutcomeLoss
	if pnlUSD.IsPositive() {
		outcome = OutcomeWin
	}
	rec := TradeRecord{
		ID:        uuid.NewString(),
		Token:     label,
		Strategy:  "Arbitrage",
		EntryTime: now,
		ExitTime:  now,
		PnL:       pnlUSD,
		Outcome:   outcome,
		TxRef:     txRef,
	}

	l.state.CashBalance = l.state.CashBalance.Add(pnlUSD)
	l.state.RealizedPnL = l.state.RealizedPnL.Add(pnlUSD)
	l.pushHistory(rec)
	return rec
}

// SetCashBalance replaces cash with an externally observed balance and restarts
// the return clock.
func (l *Ledger) SetCashBalance(amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.state.CashBalance = amount
	l.state.StartEquity = amount.Add(l.state.InvestedBalance)
	l.state.StartTime = l.now()
	l.snapshotLocked()
}

// TakeSnapshot appends the current equity to the equity curve.
func (l *Ledger) TakeSnapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Ledger) snapshotLocked() Snapshot {
	s := Snapshot{
		Time:   l.now(),
		Equity: l.state.CashBalance.Add(l.state.InvestedBalance),
		PnL:    l.state.RealizedPnL,
	}
	l.state.Snapshots = trimSnapshots(append(l.state.Snapshots, s))
	return s
}

// Portfolio returns the state with derived return metrics.
func (l *Ledger) Portfolio() Portfolio {
	l.mu.RLock()
	st := l.state.clone()
	l.mu.RUnlock()

	total := st.CashBalance.Add(st.InvestedBalance)
	days := l.now().Sub(st.StartTime).Seconds() / secsPerDay
	if days < minDays {
		days = minDays
	}

	var totalReturn float64
	if st.StartEquity.IsPositive() {
		totalReturn = total.Sub(st.StartEquity).Div(st.StartEquity).Mul(hundred).InexactFloat64()
	}

	return Portfolio{
		State:      st,
		TotalValue: total,
		Metrics: Metrics{
			InitialCapital:            st.StartEquity,
			TotalReturnPercent:        totalReturn,
			AverageDailyReturnPercent: totalReturn / days,
			DaysActive:                days,
		},
	}
}

// State returns a deep copy of the raw state for persistence.
func (l *Ledger) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.clone()
}

// Position looks up the open position in token, ignoring case.
func (l *Ledger) Position(token string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx := l.indexOf(token)
	if idx < 0 {
		return Position{}, false
	}
	return l.state.Positions[idx], true
}

// Holdings returns the lower-cased tokens with open positions.
func (l *Ledger) Holdings() map[string]struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]struct{}, len(l.state.Positions))
	for _, p := range l.state.Positions {
		out[strings.ToLower(p.Token)] = struct{}{}
	}
	return out
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state.CashBalance
}

func (l *Ledger) indexOf(token string) int {
	for i, p := range l.state.Positions {
		if strings.EqualFold(p.Token, token) {
			return i
		}
	}
	return -1
}

func (l *Ledger) pushHistory(rec TradeRecord) {
	l.state.History = trimHistory(append([]TradeRecord{rec}, l.state.History...))
}

func trimHistory(h []TradeRecord) []TradeRecord {
	if len(h) > MaxHistory {
		return h[:MaxHistory]
	}
	return h
}

func trimSnapshots(s []Snapshot) []Snapshot {
	if len(s) > MaxSnapshots {
		return append([]Snapshot(nil), s[len(s)-MaxSnapshots:]...)
	}
	return s
}
