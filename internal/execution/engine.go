package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/chain"
	"pancake-trade-bot-go/internal/metrics"
)

// ErrExecutionFailed wraps every failure between allowance check and swap confirmation.
var ErrExecutionFailed = errors.New("execution failed")

// Order is an approved trade ready for submission.
type Order struct {
	Path         []common.Address
	AmountIn     *big.Int
	AmountOutMin *big.Int
	// QuotedOut is the pre-trade estimate, reported when the realized amount is unknown.
	QuotedOut *big.Int
	Deadline  time.Time
	NativeIn  bool
	NativeOut bool
	GasLimit  uint64
}

// Outcome is the settled result of an order.
type Outcome struct {
	TxRef            string
	SettledAmountOut *big.Int
	// Estimated is true when SettledAmountOut is the quote rather than a measured balance change.
	Estimated bool
}

// Engine submits orders to the venue router, one swap per call.
type Engine struct {
	client chain.Client
	router common.Address
	logger *zap.Logger
}

// NewEngine creates an execution engine for the given router.
func NewEngine(client chain.Client, router common.Address, logger *zap.Logger) *Engine {
	return &Engine{client: client, router: router, logger: logger.Named("execution")}
}

// Execute grants allowance if needed, swaps and waits for confirmation. It never retries.
func (e *Engine) Execute(ctx context.Context, o Order) (Outcome, error) {
	if err := validate(o); err != nil {
		return Outcome{}, fail(err)
	}
	owner := e.client.Address()
	tokenIn := o.Path[0]
	tokenOut := o.Path[len(o.Path)-1]

	l := e.logger.With(
		zap.String("token_in", tokenIn.Hex()),
		zap.String("token_out", tokenOut.Hex()),
		zap.String("amount_in", o.AmountIn.String()),
		zap.String("amount_out_min", o.AmountOutMin.String()),
	)

	if !o.NativeIn {
		if err := e.ensureAllowance(ctx, l, owner, tokenIn, o.AmountIn); err != nil {
			metrics.Executions.WithLabelValues("failed").Inc()
			return Outcome{}, fail(err)
		}
	}

	var before *big.Int
	if !o.NativeOut {
		if bal, err := e.client.TokenBalance(ctx, owner, tokenOut); err == nil {
			before = bal
		} else {
			l.Debug("Could not read output balance before swap", zap.Error(err))
		}
	}

	kind := chain.SwapExactTokensForTokens
	switch {
	case o.NativeIn:
		kind = chain.SwapExactNativeForTokens
	case o.NativeOut:
		kind = chain.SwapExactTokensForNative
	}

	l.Info("Submitting swap", zap.Stringer("kind", kind))
	receipt, err := e.client.Swap(ctx, chain.SwapParams{
		Kind:         kind,
		AmountIn:     o.AmountIn,
		AmountOutMin: o.AmountOutMin,
		Path:         o.Path,
		To:           owner,
		Deadline:     o.Deadline,
		GasLimit:     o.GasLimit,
	})
	if err != nil {
		metrics.Executions.WithLabelValues("failed").Inc()
		return Outcome{TxRef: txRef(receipt)}, fail(err)
	}
	if !receipt.Confirmed {
		metrics.Executions.WithLabelValues("failed").Inc()
		return Outcome{TxRef: txRef(receipt)}, fail(errors.New("swap not confirmed"))
	}
	metrics.Executions.WithLabelValues("success").Inc()

	out := Outcome{TxRef: txRef(receipt), SettledAmountOut: new(big.Int).Set(o.QuotedOut), Estimated: true}
	if before != nil {
		after, err := e.client.TokenBalance(ctx, owner, tokenOut)
		if err == nil {
			// A loop that starts and ends in the same token spent AmountIn from the measured balance.
			received := new(big.Int).Sub(after, before)
			if tokenIn == tokenOut && !o.NativeIn {
				received.Add(received, o.AmountIn)
			}
			if received.Sign() > 0 {
				out.SettledAmountOut = received
				out.Estimated = false
			}
		}
	}

	l.Info("Swap confirmed",
		zap.String("tx", out.TxRef),
		zap.String("settled_out", out.SettledAmountOut.String()),
		zap.Bool("estimated", out.Estimated))
	return out, nil
}

func (e *Engine) ensureAllowance(ctx context.Context, l *zap.Logger, owner, token common.Address, amount *big.Int) error {
	allowance, err := e.client.CurrentAllowance(ctx, owner, e.router, token)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	if allowance != nil && allowance.Cmp(amount) >= 0 {
		return nil
	}

	l.Info("Allowance too low, approving router", zap.String("allowance", fmt.Sprint(allowance)))
	if err := e.client.IncreaseAllowance(ctx, token, e.router, math.MaxBig256); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

func validate(o Order) error {
	switch {
	case len(o.Path) < 2:
		return errors.New("path needs at least two tokens")
	case o.AmountIn == nil || o.AmountIn.Sign() <= 0:
		return errors.New("amount in must be positive")
	case o.AmountOutMin == nil || o.AmountOutMin.Sign() < 0:
		return errors.New("amount out min must be set")
	case o.QuotedOut == nil:
		return errors.New("quoted output must be set")
	case o.NativeIn && o.NativeOut:
		return errors.New("native in and out in one swap")
	case o.Deadline.IsZero():
		return errors.New("deadline must be set")
	}
	return nil
}

func fail(err error) error {
	return fmt.Errorf("%w: %w", ErrExecutionFailed, err)
}

func txRef(r chain.SwapReceipt) string {
	if r.TxHash == (common.Hash{}) {
		return ""
	}
	return r.TxHash.Hex()
}
