package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSwap(t *testing.T) {
	to := common.HexToAddress("0x6B582301c5dcF172B529D9e1F113a2742ab68F99")
	token := common.HexToAddress("0x1111111111111111111111111111111111111111")
	deadline := big.NewInt(1_700_000_000)

	t.Run("Token for token", func(t *testing.T) {
		data, err := RouterABI.Pack(MethodSwapExactTokensForTokens, big.NewInt(100), big.NewInt(90), []common.Address{usdt, wbnb, token}, to, deadline)
		require.NoError(t, err)

		call, err := DecodeSwap(data)

		require.NoError(t, err)
		assert.Equal(t, MethodSwapExactTokensForTokens, call.Method)
		assert.Equal(t, usdt, call.InputToken())
		assert.Equal(t, token, call.OutputToken())
	})

	t.Run("Native for token", func(t *testing.T) {
		data, err := RouterABI.Pack(MethodSwapExactETHForTokens, big.NewInt(1), []common.Address{wbnb, token}, to, deadline)
		require.NoError(t, err)

		call, err := DecodeSwap(data)

		require.NoError(t, err)
		assert.Equal(t, wbnb, call.InputToken())
		assert.Equal(t, token, call.OutputToken())
	})

	t.Run("Fee on transfer sell", func(t *testing.T) {
		data, err := RouterABI.Pack(MethodSwapExactTokensForETHFee, big.NewInt(5), big.NewInt(1), []common.Address{token, wbnb}, to, deadline)
		require.NoError(t, err)

		call, err := DecodeSwap(data)

		require.NoError(t, err)
		assert.Equal(t, token, call.InputToken())
	})

	t.Run("Quote call is not a swap", func(t *testing.T) {
		data, err := RouterABI.Pack("getAmountsOut", big.NewInt(1), []common.Address{wbnb, usdt})
		require.NoError(t, err)

		_, err = DecodeSwap(data)

		assert.ErrorIs(t, err, ErrNotSwap)
	})

	t.Run("Unknown selector and short payload", func(t *testing.T) {
		_, err := DecodeSwap([]byte{0xde, 0xad, 0xbe, 0xef, 0x00})
		assert.ErrorIs(t, err, ErrNotSwap)

		_, err = DecodeSwap([]byte{0x01})
		assert.ErrorIs(t, err, ErrNotSwap)
	})

	t.Run("Truncated arguments", func(t *testing.T) {
		data, err := RouterABI.Pack(MethodSwapExactTokensForTokens, big.NewInt(100), big.NewInt(90), []common.Address{usdt, token}, to, deadline)
		require.NoError(t, err)

		_, err = DecodeSwap(data[:40])

		assert.Error(t, err)
	})
}
