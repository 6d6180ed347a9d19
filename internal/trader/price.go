package trader

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/dex"
)

// Ticker fetches a reference price from an exchange.
type Ticker interface {
	GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

var oneToken = dex.ToWei(decimal.NewFromInt(1), dex.Decimals)

// PriceSource values BNB in USD. It prefers the exchange ticker and falls back
// to quoting one WBNB into USDT on the venue.
type PriceSource struct {
	ticker Ticker
	symbol string
	quoter Quoter
	route  Route
	logger *zap.Logger
}

// NewPriceSource creates a PriceSource. ticker may be nil.
func NewPriceSource(ticker Ticker, symbol string, quoter Quoter, route Route, logger *zap.Logger) *PriceSource {
	return &PriceSource{ticker: ticker, symbol: symbol, quoter: quoter, route: route, logger: logger.Named("price")}
}

// NativeUSD returns the USD price of one BNB.
func (p *PriceSource) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	if p.ticker != nil {
		price, err := p.ticker.GetTickerPrice(ctx, p.symbol)
		if err == nil {
			return price, nil
		}
		p.logger.Debug("Ticker price unavailable, quoting venue", zap.Error(err))
	}

	q, err := p.quoter.Quote(ctx, p.route.SellPath(p.route.WBNB), oneToken)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price BNB: %w", err)
	}
	return dex.FromWei(q.AmountOut, dex.Decimals), nil
}
