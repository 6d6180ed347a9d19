// Package chaintest provides a testify mock of chain.Client.
package chaintest

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/mock"
	"pancake-trade-bot-go/internal/chain"
)

// MockClient is a mock implementation of chain.Client.
type MockClient struct {
	mock.Mock
}

var _ chain.Client = (*MockClient)(nil)

func (m *MockClient) Address() common.Address {
	args := m.Called()
	return args.Get(0).(common.Address)
}

func (m *MockClient) ChainID() *big.Int {
	args := m.Called()
	return args.Get(0).(*big.Int)
}

func (m *MockClient) Quote(ctx context.Context, path []common.Address, amountIn *big.Int) ([]*big.Int, error) {
	args := m.Called(path, amountIn)
	amounts, _ := args.Get(0).([]*big.Int)
	return amounts, args.Error(1)
}

func (m *MockClient) CurrentAllowance(ctx context.Context, owner, spender, token common.Address) (*big.Int, error) {
	args := m.Called(owner, spender, token)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *MockClient) IncreaseAllowance(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	args := m.Called(token, spender, amount)
	return args.Error(0)
}

func (m *MockClient) Swap(ctx context.Context, params chain.SwapParams) (chain.SwapReceipt, error) {
	args := m.Called(params)
	return args.Get(0).(chain.SwapReceipt), args.Error(1)
}

func (m *MockClient) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	args := m.Called(addr)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *MockClient) TokenBalance(ctx context.Context, addr, token common.Address) (*big.Int, error) {
	args := m.Called(addr, token)
	v, _ := args.Get(0).(*big.Int)
	return v, args.Error(1)
}

func (m *MockClient) SubscribeBlocks(ctx context.Context) (<-chan uint64, error) {
	args := m.Called()
	ch, _ := args.Get(0).(chan uint64)
	return ch, args.Error(1)
}

func (m *MockClient) SubscribeTransactions(ctx context.Context, from []common.Address) (<-chan chain.ObservedTx, error) {
	args := m.Called(from)
	ch, _ := args.Get(0).(chan chain.ObservedTx)
	return ch, args.Error(1)
}

func (m *MockClient) SubscribePairCreated(ctx context.Context) (<-chan chain.PairCreated, error) {
	args := m.Called()
	ch, _ := args.Get(0).(chan chain.PairCreated)
	return ch, args.Error(1)
}
