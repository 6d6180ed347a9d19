package trader

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/dex"
	"pancake-trade-bot-go/internal/execution"
	"pancake-trade-bot-go/internal/feed"
	"pancake-trade-bot-go/internal/ledger"
)

var (
	wallet  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	router  = common.HexToAddress("0x10ED43C718714eb63d5aA57B78B54704E256024E")
	wbnb    = common.HexToAddress("0xbb4CdB9CBd36B01bD1cBaEBF2De08d9173bc095c")
	busd    = common.HexToAddress("0xe9e7CEA3DedcA5984780Bafc599bD69ADd087D56")
	usdt    = common.HexToAddress("0x55d398326f99059fF775485246999027B3197955")
	tokenA  = common.HexToAddress("0x1111111111111111111111111111111111111111")
	watched = common.HexToAddress("0xB828DBa1250956123599F7753080202b2114C15F")
)

func wei(s string) *big.Int {
	return dex.ToWei(decimal.RequireFromString(s), dex.Decimals)
}

func testRoute() Route {
	return Route{WBNB: wbnb, BUSD: busd, USDT: usdt}
}

func testConfig() *config.Config {
	return &config.Config{
		Chain: config.Chain{Router: router.Hex(), GasLimit: 500000},
		Tokens: config.Tokens{
			WBNB: wbnb.Hex(),
			BUSD: busd.Hex(),
			USDT: usdt.Hex(),
		},
		Trading: config.Trading{
			DryRun:         true,
			PollInterval:   time.Second,
			HeartbeatEvery: 10,
			Arbitrage: config.Arbitrage{
				Enabled:     true,
				ProbeAmount: 0.01,
				Sizing:      config.SizingFixed,
				Deadline:    time.Minute,
			},
			CopyTrade: config.CopyTrade{
				Enabled:       true,
				WatchList:     []string{watched.Hex()},
				EntryFraction: 0.2,
				MinTradeUSD:   10,
				Deadline:      10 * time.Minute,
			},
		},
		Risk: config.Risk{
			MinGasReserve:        0.001,
			SafeGasReserve:       0.003,
			MinProfitPercent:     0.5,
			BuySlippagePercent:   5,
			SellSlippagePercent:  10,
			ArbSlippagePercent:   2,
			TaxedSlippagePercent: 15,
		},
		Ledger: config.Ledger{
			PersistSchedule:  "@every 30s",
			SnapshotSchedule: "@every 5m",
		},
	}
}

type mockQuoter struct {
	mock.Mock
}

func (m *mockQuoter) Quote(ctx context.Context, path []common.Address, amountIn *big.Int) (dex.Quote, error) {
	args := m.Called(path, amountIn)
	return args.Get(0).(dex.Quote), args.Error(1)
}

func quoteOf(path []common.Address, in, out *big.Int) dex.Quote {
	return dex.Quote{Path: path, AmountIn: in, Amounts: []*big.Int{in, out}, AmountOut: out}
}

type fakeExecutor struct {
	mu     sync.Mutex
	orders []execution.Order
	out    execution.Outcome
	err    error
}

func (f *fakeExecutor) Execute(ctx context.Context, o execution.Order) (execution.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.orders = append(f.orders, o)
	return f.out, f.err
}

func (f *fakeExecutor) Orders() []execution.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]execution.Order(nil), f.orders...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (f *fakePublisher) Publish(ctx context.Context, ev feed.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Events() []feed.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]feed.Event(nil), f.events...)
}

type fakeStore struct {
	mu    sync.Mutex
	saves int
	last  ledger.State
}

func (f *fakeStore) Load(ctx context.Context) (ledger.State, error) {
	return ledger.State{}, ledger.ErrNoState
}

func (f *fakeStore) Save(ctx context.Context, st ledger.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.last = st
	return nil
}

func (f *fakeStore) Saves() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type staticPrice decimal.Decimal

func (p staticPrice) NativeUSD(ctx context.Context) (decimal.Decimal, error) {
	return decimal.Decimal(p), nil
}

type fakeTicker struct {
	price decimal.Decimal
	err   error
}

func (f fakeTicker) GetTickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return f.price, f.err
}
