package dex

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the precision of every asset this bot trades on BSC.
const Decimals int32 = 18

var hundred = decimal.NewFromInt(100)

// ToWei converts a whole-unit amount to base units, truncating dust.
func ToWei(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromWei converts base units to a whole-unit amount.
func FromWei(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// ProfitPercent returns (out - in) / in * 100 for a round trip in the same asset.
func ProfitPercent(amountIn, amountOut *big.Int) decimal.Decimal {
	if amountIn == nil || amountIn.Sign() <= 0 || amountOut == nil {
		return decimal.Zero
	}
	in := decimal.NewFromBigInt(amountIn, 0)
	out := decimal.NewFromBigInt(amountOut, 0)
	return out.Sub(in).Mul(hundred).Div(in)
}
