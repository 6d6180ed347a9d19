package trader

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pancake-trade-bot-go/internal/config"
)

func TestSizer_EntrySize(t *testing.T) {
	cfg := testConfig()
	s := NewSizer(cfg.Trading, cfg.Risk, testRoute())

	t.Run("Fraction of cash", func(t *testing.T) {
		assert.True(t, s.EntrySize(decimal.NewFromInt(1000)).Equal(decimal.NewFromInt(200)))
	})

	t.Run("Floor applies to small balances", func(t *testing.T) {
		assert.True(t, s.EntrySize(decimal.NewFromInt(20)).Equal(decimal.NewFromInt(10)))
	})
}

func TestSizer_Loop(t *testing.T) {
	route := testRoute()

	t.Run("Fixed sizing trades the probe", func(t *testing.T) {
		// Arrange
		cfg := testConfig()
		s := NewSizer(cfg.Trading, cfg.Risk, route)

		// Act
		plan, err := s.Loop(nil, nil)

		// Assert
		require.NoError(t, err)
		assert.True(t, plan.Native)
		assert.Equal(t, wei("0.01"), plan.AmountIn)
		assert.Equal(t, route.NativeLoop(), plan.Path)
	})

	cfg := testConfig()
	cfg.Trading.Arbitrage.Sizing = config.SizingBalance
	s := NewSizer(cfg.Trading, cfg.Risk, route)

	cases := []struct {
		name   string
		native string
		usdt   string
		want   string
		isBNB  bool
		errors bool
	}{
		{name: "Spare BNB above headroom", native: "1.003", usdt: "100", want: "0.5", isBNB: true},
		{name: "Falls back to USDT loop", native: "0.01", usdt: "20", want: "10"},
		{name: "Small spare BNB when USDT is short", native: "0.013", usdt: "5", want: "0.005", isBNB: true},
		{name: "Nothing to trade", native: "0.002", usdt: "1", errors: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := s.Loop(wei(tc.native), wei(tc.usdt))

			if tc.errors {
				assert.ErrorIs(t, err, ErrInsufficientCapital)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.isBNB, plan.Native)
			assert.Equal(t, wei(tc.want), plan.AmountIn)
			if tc.isBNB {
				assert.Equal(t, route.NativeLoop(), plan.Path)
			} else {
				assert.Equal(t, route.StableLoop(), plan.Path)
			}
		})
	}
}

func TestRoute_Paths(t *testing.T) {
	r := testRoute()

	assert.Equal(t, []common.Address{usdt, wbnb, tokenA}, r.BuyPath(tokenA))
	assert.Equal(t, []common.Address{tokenA, wbnb, usdt}, r.SellPath(tokenA))
	assert.Len(t, r.BuyPath(wbnb), 2)
	assert.Len(t, r.SellPath(wbnb), 2)
	assert.Equal(t, r.NativeLoop()[0], r.NativeLoop()[3])
	assert.Equal(t, r.StableLoop()[0], r.StableLoop()[3])
}
