package chain

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAllowanceConfirmationTimeout means an approve transaction was sent but not mined in time.
	ErrAllowanceConfirmationTimeout = errors.New("allowance confirmation timeout")
	ErrConfirmationTimeout          = errors.New("transaction confirmation timeout")
	ErrReverted                     = errors.New("transaction reverted")
	ErrReadOnly                     = errors.New("no private key configured")
)

// SwapKind selects the router primitive. All kinds tolerate fee-on-transfer tokens.
type SwapKind int

const (
	SwapExactTokensForTokens SwapKind = iota
	SwapExactNativeForTokens
	SwapExactTokensForNative
)

func (k SwapKind) String() string {
	switch k {
	case SwapExactTokensForTokens:
		return "tokens-for-tokens"
	case SwapExactNativeForTokens:
		return "native-for-tokens"
	case SwapExactTokensForNative:
		return "tokens-for-native"
	default:
		return "unknown"
	}
}

// SwapParams describes one router swap. GasLimit zero means estimate.
type SwapParams struct {
	Kind         SwapKind
	AmountIn     *big.Int
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     time.Time
	GasLimit     uint64
}

// SwapReceipt is the mined result of a swap.
type SwapReceipt struct {
	TxHash    common.Hash
	Confirmed bool
	GasUsed   uint64
	Block     uint64
}

// ObservedTx is a transaction seen on chain from a watched sender.
type ObservedTx struct {
	Hash    common.Hash
	Block   uint64
	From    common.Address
	To      common.Address
	Value   *big.Int
	Payload []byte
}

// PairCreated is a factory event announcing a new pool.
type PairCreated struct {
	Block  uint64
	Token0 common.Address
	Token1 common.Address
	Pair   common.Address
}

// Client is everything the bot needs from the chain.
type Client interface {
	Address() common.Address
	ChainID() *big.Int

	Quote(ctx context.Context, path []common.Address, amountIn *big.Int) ([]*big.Int, error)
	CurrentAllowance(ctx context.Context, owner, spender, token common.Address) (*big.Int, error)
	// IncreaseAllowance approves spender and blocks until the approval is mined.
	IncreaseAllowance(ctx context.Context, token, spender common.Address, amount *big.Int) error
	// Swap submits a swap and blocks until it is mined.
	Swap(ctx context.Context, params SwapParams) (SwapReceipt, error)
	NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, addr, token common.Address) (*big.Int, error)

	SubscribeBlocks(ctx context.Context) (<-chan uint64, error)
	SubscribeTransactions(ctx context.Context, from []common.Address) (<-chan ObservedTx, error)
	SubscribePairCreated(ctx context.Context) (<-chan PairCreated, error)
}
