package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionExists    = errors.New("position already open")
	ErrInvalidAmount     = errors.New("amount must be positive")
	// ErrNoState is returned by a Store that has nothing saved yet.
	ErrNoState = errors.New("no persisted state")
)

const (
	MaxHistory   = 50
	MaxSnapshots = 1000
)

// PositionStatus is the lifecycle state of a position. Only open positions are kept.
type PositionStatus string

const StatusOpen PositionStatus = "OPEN"

// Outcome of a closed trade.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
)

// Position is an open bet on one token.
type Position struct {
	Strategy          string          `json:"strategy"`
	Token             string          `json:"token"`
	AmountUSD         decimal.Decimal `json:"amountUSD"`
	InitialInvestment decimal.Decimal `json:"initialInvestment"`
	// TokenAmount is the acquired token quantity in base units, when known.
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	OpenedAt    time.Time       `json:"openedAt"`
	Status      PositionStatus  `json:"status"`
}

// TradeRecord is an immutable history entry.
type TradeRecord struct {
	ID         string          `json:"id"`
	Token      string          `json:"token"`
	Strategy   string          `json:"strategy"`
	EntryTime  time.Time       `json:"entryTime"`
	ExitTime   time.Time       `json:"exitTime"`
	Investment decimal.Decimal `json:"investment"`
	ExitValue  decimal.Decimal `json:"exitValue"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnlPercent"`
	Outcome    Outcome         `json:"outcome"`
	TxRef      string          `json:"txRef,omitempty"`
}

// Snapshot is one point on the equity curve.
type Snapshot struct {
	Time   time.Time       `json:"time"`
	Equity decimal.Decimal `json:"equity"`
	PnL    decimal.Decimal `json:"pnl"`
}

// State is the full portfolio. History is newest first; Snapshots are oldest first.
type State struct {
	CashBalance     decimal.Decimal `json:"cashBalance"`
	InvestedBalance decimal.Decimal `json:"investedBalance"`
	TotalGasPaid    decimal.Decimal `json:"totalGasPaid"`
	TotalFeesPaid   decimal.Decimal `json:"totalFeesPaid"`
	RealizedPnL     decimal.Decimal `json:"realizedPnL"`
	StartEquity     decimal.Decimal `json:"startEquity"`
	StartTime       time.Time       `json:"startTime"`
	Positions       []Position      `json:"positions"`
	History         []TradeRecord   `json:"history"`
	Snapshots       []Snapshot      `json:"snapshots"`
}

// Metrics are derived return figures.
type Metrics struct {
	InitialCapital            decimal.Decimal `json:"initialCapital"`
	TotalReturnPercent        float64         `json:"totalReturnPercent"`
	AverageDailyReturnPercent float64         `json:"averageDailyReturnPercent"`
	DaysActive                float64         `json:"daysActive"`
}

// Portfolio is a consistent read-only view of the ledger.
type Portfolio struct {
	State
	TotalValue decimal.Decimal `json:"totalValue"`
	Metrics    Metrics         `json:"metrics"`
}

// OpenResult describes a successful entry.
type OpenResult struct {
	Position Position
	GasFee   decimal.Decimal
	SwapFee  decimal.Decimal
}

// CloseResult describes a successful exit.
type CloseResult struct {
	Record      TradeRecord
	NetProceeds decimal.Decimal
}

// Store persists ledger state between runs.
type Store interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// Fees is the paper accounting fee schedule.
type Fees struct {
	GasFeeUSD decimal.Decimal
	// SwapFeeRate is a fraction, 0.0025 for 0.25%.
	SwapFeeRate decimal.Decimal
}

func (s State) clone() State {
	out := s
	out.Positions = append([]Position(nil), s.Positions...)
	out.History = append([]TradeRecord(nil), s.History...)
	out.Snapshots = append([]Snapshot(nil), s.Snapshots...)
	return out
}
