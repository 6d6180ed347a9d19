// Package ledgertest provides ledger fixtures for tests.
package ledgertest

import (
	"github.com/shopspring/decimal"
	"pancake-trade-bot-go/internal/ledger"
)

// Fees is the venue's 0.25% swap fee with a flat $0.50 gas estimate.
var Fees = ledger.Fees{
	GasFeeUSD:   decimal.RequireFromString("0.50"),
	SwapFeeRate: decimal.RequireFromString("0.0025"),
}
