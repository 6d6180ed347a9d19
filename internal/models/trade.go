package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Trade is a closed trade. Rows are append-only so the dashboard can compute
// statistics beyond the in-memory history window.
type Trade struct {
	gorm.Model
	TradeID      string          `json:"trade_id" gorm:"uniqueIndex;not null"`
	Token        string          `json:"token"`
	Strategy     string          `json:"strategy"`
	EntryTime    time.Time       `json:"entry_time"`
	ExitTime     time.Time       `json:"exit_time" gorm:"index"`
	Investment   decimal.Decimal `json:"investment" gorm:"type:text"`
	ExitValue    decimal.Decimal `json:"exit_value" gorm:"type:text"`
	Profit       decimal.Decimal `json:"profit" gorm:"type:text"`
	ProfitPct    decimal.Decimal `json:"profit_percent" gorm:"type:text"`
	Outcome      string          `json:"outcome"` // "WIN" or "LOSS"
	TxRef        string          `json:"tx_ref,omitempty"`
	IsSimulation bool            `json:"is_simulation"`
}
