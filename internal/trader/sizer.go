package trader

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/dex"
)

// ErrInsufficientCapital means neither loop asset holds enough to trade.
var ErrInsufficientCapital = errors.New("insufficient capital for arbitrage loop")

var (
	nativeHeadroom = dex.ToWei(decimal.RequireFromString("0.02"), dex.Decimals)
	minStableLoop  = dex.ToWei(decimal.NewFromInt(5), dex.Decimals)
	two            = big.NewInt(2)
)

// Sizer decides how much each intent trades.
type Sizer struct {
	entryFraction decimal.Decimal
	minTradeUSD   decimal.Decimal
	probeAmount   *big.Int
	safeReserve   *big.Int
	balanceLoop   bool
	route         Route
}

// NewSizer builds a Sizer from configuration.
func NewSizer(trading config.Trading, risk config.Risk, route Route) *Sizer {
	return &Sizer{
		entryFraction: decimal.NewFromFloat(trading.CopyTrade.EntryFraction),
		minTradeUSD:   decimal.NewFromFloat(trading.CopyTrade.MinTradeUSD),
		probeAmount:   dex.ToWei(decimal.NewFromFloat(trading.Arbitrage.ProbeAmount), dex.Decimals),
		safeReserve:   dex.ToWei(decimal.NewFromFloat(risk.SafeGasReserve), dex.Decimals),
		balanceLoop:   trading.Arbitrage.Sizing == config.SizingBalance,
		route:         route,
	}
}

// EntrySize is the USD amount of a copy-trade entry: max(floor, cash × fraction).
func (s *Sizer) EntrySize(cash decimal.Decimal) decimal.Decimal {
	return decimal.Max(s.minTradeUSD, cash.Mul(s.entryFraction))
}

// Probe is the fixed arbitrage probe amount in WBNB base units.
func (s *Sizer) Probe() *big.Int {
	return new(big.Int).Set(s.probeAmount)
}

// LoopPlan is a sized arbitrage round trip.
type LoopPlan struct {
	Native   bool
	AmountIn *big.Int
	Path     []common.Address
}

// ProbeLoop trades the fixed probe on the native loop.
func (s *Sizer) ProbeLoop() LoopPlan {
	return LoopPlan{Native: true, AmountIn: s.Probe(), Path: s.route.NativeLoop()}
}

// Loop sizes an arbitrage execution. With fixed sizing it trades the probe on
// the native loop. With balance sizing it trades half of the spare native
// balance when that clears the safe reserve plus headroom, otherwise half the
// USDT balance on the stable loop.
func (s *Sizer) Loop(native, usdt *big.Int) (LoopPlan, error) {
	if !s.balanceLoop {
		return s.ProbeLoop(), nil
	}
	if native == nil {
		native = new(big.Int)
	}
	if usdt == nil {
		usdt = new(big.Int)
	}

	spare := new(big.Int).Sub(native, s.safeReserve)
	switch {
	case spare.Cmp(nativeHeadroom) > 0:
		return LoopPlan{Native: true, AmountIn: spare.Div(spare, two), Path: s.route.NativeLoop()}, nil
	case usdt.Cmp(minStableLoop) > 0:
		return LoopPlan{AmountIn: new(big.Int).Div(usdt, two), Path: s.route.StableLoop()}, nil
	case spare.Sign() > 0:
		return LoopPlan{Native: true, AmountIn: spare.Div(spare, two), Path: s.route.NativeLoop()}, nil
	default:
		return LoopPlan{}, ErrInsufficientCapital
	}
}
