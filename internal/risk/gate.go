package risk

import (
	"errors"
	"math/big"

	"github.com/shopspring/decimal"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/dex"
)

var (
	ErrInsufficientGas = errors.New("insufficient gas reserve")
	ErrProfitTooLow    = errors.New("profit below minimum")
	ErrInvalidProposal = errors.New("invalid proposal")
)

var hundred = decimal.NewFromInt(100)

// Side selects the slippage tolerance.
type Side int

const (
	SideBuy Side = iota
	SideSell
	SideArbitrage
)

// Verdict is the gate's answer.
type Verdict int

const (
	Approve Verdict = iota
	Cap
	Reject
)

func (v Verdict) String() string {
	switch v {
	case Approve:
		return "approve"
	case Cap:
		return "cap"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Proposal is a trade awaiting a decision. Amounts are in base units.
type Proposal struct {
	Side      Side
	AmountIn  *big.Int
	AmountOut *big.Int

	InputDecimals int32
	// InputUSDPrice is the USD value of one whole input token.
	InputUSDPrice decimal.Decimal
	InputIsNative bool
	// NativeBalance is the wallet's gas balance; nil skips the gas check.
	NativeBalance *big.Int

	FeeOnTransfer bool
	// RoundTrip marks proposals whose output is the input asset, so profit is comparable.
	RoundTrip bool
	// Capped marks a re-evaluation after a Cap decision.
	Capped bool
}

// Decision is the gate's verdict with the amounts to submit.
type Decision struct {
	Verdict       Verdict
	AmountIn      *big.Int
	AmountOutMin  *big.Int
	ProfitPercent decimal.Decimal
	Reason        error
	// Requote is set when AmountIn was capped and the caller must quote again.
	Requote bool
}

// Limits are the configured thresholds.
type Limits struct {
	MinGasReserve    *big.Int
	MaxTradeUSD      decimal.Decimal
	MinProfitPercent decimal.Decimal
	BuySlippage      decimal.Decimal
	SellSlippage     decimal.Decimal
	ArbSlippage      decimal.Decimal
	TaxedSlippage    decimal.Decimal
}

// LimitsFromConfig converts configured floats into exact limits.
func LimitsFromConfig(cfg config.Risk) Limits {
	return Limits{
		MinGasReserve:    dex.ToWei(decimal.NewFromFloat(cfg.MinGasReserve), dex.Decimals),
		MaxTradeUSD:      decimal.NewFromFloat(cfg.MaxTradeUSD),
		MinProfitPercent: decimal.NewFromFloat(cfg.MinProfitPercent),
		BuySlippage:      decimal.NewFromFloat(cfg.BuySlippagePercent),
		SellSlippage:     decimal.NewFromFloat(cfg.SellSlippagePercent),
		ArbSlippage:      decimal.NewFromFloat(cfg.ArbSlippagePercent),
		TaxedSlippage:    decimal.NewFromFloat(cfg.TaxedSlippagePercent),
	}
}

// Gate evaluates proposals against fixed limits. It keeps no state between calls.
type Gate struct {
	limits Limits
}

// NewGate creates a Gate.
func NewGate(limits Limits) *Gate {
	if limits.MinGasReserve == nil {
		limits.MinGasReserve = new(big.Int)
	}
	return &Gate{limits: limits}
}

// Evaluate applies the gas, size, profit and slippage rules in that order.
func (g *Gate) Evaluate(p Proposal) Decision {
	if p.AmountIn == nil || p.AmountIn.Sign() <= 0 || p.AmountOut == nil || p.AmountOut.Sign() < 0 {
		return reject(ErrInvalidProposal)
	}

	if p.NativeBalance != nil {
		left := new(big.Int).Set(p.NativeBalance)
		if p.InputIsNative {
			left.Sub(left, p.AmountIn)
		}
		if left.Cmp(g.limits.MinGasReserve) < 0 {
			return reject(ErrInsufficientGas)
		}
	}

	if !p.Capped && g.limits.MaxTradeUSD.IsPositive() && p.InputUSDPrice.IsPositive() {
		usd := dex.FromWei(p.AmountIn, p.InputDecimals).Mul(p.InputUSDPrice)
		if usd.GreaterThan(g.limits.MaxTradeUSD) {
			limit := dex.ToWei(g.limits.MaxTradeUSD.Div(p.InputUSDPrice), p.InputDecimals)
			if limit.Sign() > 0 && limit.Cmp(p.AmountIn) < 0 {
				return Decision{Verdict: Cap, AmountIn: limit, Requote: true}
			}
		}
	}

	var profit decimal.Decimal
	if p.RoundTrip {
		profit = dex.ProfitPercent(p.AmountIn, p.AmountOut)
		if profit.LessThan(g.limits.MinProfitPercent) {
			d := reject(ErrProfitTooLow)
			d.ProfitPercent = profit
			return d
		}
	}

	slip := g.slippage(p)
	minOut := decimal.NewFromBigInt(p.AmountOut, 0).
		Mul(decimal.NewFromInt(1).Sub(slip.Div(hundred))).
		Floor().
		BigInt()

	verdict := Approve
	if p.Capped {
		verdict = Cap
	}
	return Decision{
		Verdict:       verdict,
		AmountIn:      new(big.Int).Set(p.AmountIn),
		AmountOutMin:  minOut,
		ProfitPercent: profit,
	}
}

func (g *Gate) slippage(p Proposal) decimal.Decimal {
	var slip decimal.Decimal
	switch p.Side {
	case SideSell:
		slip = g.limits.SellSlippage
	case SideArbitrage:
		slip = g.limits.ArbSlippage
	default:
		slip = g.limits.BuySlippage
	}
	if p.FeeOnTransfer && g.limits.TaxedSlippage.GreaterThan(slip) {
		slip = g.limits.TaxedSlippage
	}
	return slip
}

func reject(reason error) Decision {
	return Decision{Verdict: Reject, Reason: reason}
}
