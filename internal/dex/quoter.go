package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/metrics"
)

var (
	// ErrQuoteUnavailable means the venue cannot price the path, usually a missing pool.
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrInvalidPath      = errors.New("path needs at least two tokens")
	ErrInvalidAmount    = errors.New("amount in must be positive")
)

// AmountsQuoter is the venue query the Quoter wraps.
type AmountsQuoter interface {
	Quote(ctx context.Context, path []common.Address, amountIn *big.Int) ([]*big.Int, error)
}

// Quote is the venue's answer for one path and input amount.
type Quote struct {
	Path      []common.Address
	AmountIn  *big.Int
	Amounts   []*big.Int
	AmountOut *big.Int
}

// Quoter prices swap paths. It holds no state besides its venue handle.
type Quoter struct {
	venue  AmountsQuoter
	logger *zap.Logger
}

// NewQuoter creates a Quoter over the given venue.
func NewQuoter(venue AmountsQuoter, logger *zap.Logger) *Quoter {
	return &Quoter{venue: venue, logger: logger.Named("quoter")}
}

// Quote returns the per-hop output amounts for amountIn along path.
func (q *Quoter) Quote(ctx context.Context, path []common.Address, amountIn *big.Int) (Quote, error) {
	if len(path) < 2 {
		return Quote{}, ErrInvalidPath
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return Quote{}, ErrInvalidAmount
	}

	start := time.Now()
	amounts, err := q.venue.Quote(ctx, path, amountIn)
	metrics.QuoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QuoteErrors.Inc()
		q.logger.Debug("venue quote failed", zap.Int("hops", len(path)-1), zap.Error(err))
		return Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	if len(amounts) != len(path) {
		metrics.QuoteErrors.Inc()
		return Quote{}, fmt.Errorf("%w: got %d amounts for %d tokens", ErrQuoteUnavailable, len(amounts), len(path))
	}
	out := amounts[len(amounts)-1]
	if out == nil || out.Sign() <= 0 {
		metrics.QuoteErrors.Inc()
		return Quote{}, fmt.Errorf("%w: zero output", ErrQuoteUnavailable)
	}

	return Quote{
		Path:      append([]common.Address(nil), path...),
		AmountIn:  new(big.Int).Set(amountIn),
		Amounts:   amounts,
		AmountOut: new(big.Int).Set(out),
	}, nil
}
