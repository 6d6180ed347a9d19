package trader

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"pancake-trade-bot-go/internal/config"
)

// Kind is the direction of an intent.
type Kind string

const (
	KindEntry Kind = "ENTRY"
	KindExit  Kind = "EXIT"
)

// Source names the trigger that produced an intent.
type Source string

const (
	SourceArbitrage Source = "ARBITRAGE"
	SourceCopyTrade Source = "COPY_TRADE"
)

// Strategy tags recorded on positions and trades.
const (
	StrategyCopyTrading = "CopyTrading"
	StrategyArbitrage   = "Arbitrage"
)

// Intent is a request to trade, produced by a trigger and consumed by the engine.
type Intent struct {
	Kind   Kind
	Source Source
	Token  common.Address
	// Alias identifies the watched wallet for copy trades, e.g. "Trader #2".
	Alias string
	// SignalTx is the observed transaction that produced a copy-trade intent.
	SignalTx common.Hash
	// Opportunity is set for arbitrage intents.
	Opportunity *Opportunity
}

// Emit hands an intent to the engine. It never blocks on execution.
type Emit func(Intent)

// Strategy is a trigger that feeds intents into the engine until ctx is done.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Run watches its event source and emits intents. It returns when ctx is
	// cancelled or the source fails.
	Run(ctx context.Context, emit Emit) error
}

// Route holds the token addresses used to build swap paths.
type Route struct {
	WBNB common.Address
	BUSD common.Address
	USDT common.Address
}

// RouteFromConfig converts configured token addresses.
func RouteFromConfig(t config.Tokens) Route {
	return Route{
		WBNB: common.HexToAddress(t.WBNB),
		BUSD: common.HexToAddress(t.BUSD),
		USDT: common.HexToAddress(t.USDT),
	}
}

// NativeLoop is the round trip starting and ending in WBNB.
func (r Route) NativeLoop() []common.Address {
	return []common.Address{r.WBNB, r.BUSD, r.USDT, r.WBNB}
}

// StableLoop is the round trip starting and ending in USDT.
func (r Route) StableLoop() []common.Address {
	return []common.Address{r.USDT, r.WBNB, r.BUSD, r.USDT}
}

// BuyPath routes USDT into token through WBNB.
func (r Route) BuyPath(token common.Address) []common.Address {
	if token == r.WBNB {
		return []common.Address{r.USDT, r.WBNB}
	}
	return []common.Address{r.USDT, r.WBNB, token}
}

// SellPath routes token back to USDT through WBNB.
func (r Route) SellPath(token common.Address) []common.Address {
	if token == r.WBNB {
		return []common.Address{r.WBNB, r.USDT}
	}
	return []common.Address{token, r.WBNB, r.USDT}
}
