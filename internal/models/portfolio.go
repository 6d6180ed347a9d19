package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PortfolioStateID is the primary key of the single portfolio row.
const PortfolioStateID = 1

// PortfolioState holds the ledger balances. There should only ever be one row in this table.
type PortfolioState struct {
	ID              uint            `gorm:"primaryKey"`
	CashBalance     decimal.Decimal `gorm:"type:text;not null"`
	InvestedBalance decimal.Decimal `gorm:"type:text;not null"`
	TotalGasPaid    decimal.Decimal `gorm:"type:text"`
	TotalFeesPaid   decimal.Decimal `gorm:"type:text"`
	RealizedPnL     decimal.Decimal `gorm:"type:text"`
	StartEquity     decimal.Decimal `gorm:"type:text"`
	StartTime       time.Time
	UpdatedAt       time.Time
}

// Position is an open position.
type Position struct {
	ID                uint            `gorm:"primaryKey"`
	Seq               int             `gorm:"not null"`
	Strategy          string          `json:"strategy"`
	Token             string          `json:"token" gorm:"uniqueIndex"`
	AmountUSD         decimal.Decimal `json:"amount_usd" gorm:"type:text"`
	InitialInvestment decimal.Decimal `json:"initial_investment" gorm:"type:text"`
	TokenAmount       decimal.Decimal `json:"token_amount" gorm:"type:text"`
	OpenedAt          time.Time       `json:"opened_at"`
	Status            string          `json:"status"`
}

// Snapshot is one equity curve point.
type Snapshot struct {
	ID     uint            `gorm:"primaryKey"`
	Seq    int             `gorm:"index;not null"`
	Time   time.Time       `json:"time"`
	Equity decimal.Decimal `json:"equity" gorm:"type:text"`
	PnL    decimal.Decimal `json:"pnl" gorm:"type:text"`
}
