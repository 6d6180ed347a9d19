package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/config"
	"pancake-trade-bot-go/internal/dex"
)

const maxCatchUpBlocks = 20

// EthClient implements Client over a go-ethereum RPC connection.
type EthClient struct {
	ec             *ethclient.Client
	logger         *zap.Logger
	router         common.Address
	factory        common.Address
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	gasLimit       uint64
	confirmTimeout time.Duration
	pollInterval   time.Duration

	// txMu keeps nonce lookup and submission atomic.
	txMu sync.Mutex
}

var _ Client = (*EthClient)(nil)

// Dial connects to the RPC endpoint and loads the signing key when configured.
func Dial(ctx context.Context, cfg *config.Chain, logger *zap.Logger) (*EthClient, error) {
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	chainID, err := ec.ChainID(ctx)
	if err != nil {
		ec.Close()
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	c := &EthClient{
		ec:             ec,
		logger:         logger.Named("chain"),
		router:         common.HexToAddress(cfg.Router),
		factory:        common.HexToAddress(cfg.Factory),
		chainID:        chainID,
		gasLimit:       cfg.GasLimit,
		confirmTimeout: cfg.ConfirmTimeout,
		pollInterval:   cfg.PollInterval,
	}
	if c.pollInterval <= 0 {
		c.pollInterval = 3 * time.Second
	}
	if c.confirmTimeout <= 0 {
		c.confirmTimeout = 3 * time.Minute
	}

	if pk := strings.TrimSpace(cfg.PrivateKey); pk != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(pk, "0x"))
		if err != nil {
			ec.Close()
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	c.logger.Info("Connected to chain", zap.String("chain_id", chainID.String()), zap.String("wallet", c.from.Hex()))
	return c, nil
}

// Close releases the RPC connection.
func (c *EthClient) Close() { c.ec.Close() }

func (c *EthClient) Address() common.Address { return c.from }

func (c *EthClient) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *EthClient) Quote(ctx context.Context, path []common.Address, amountIn *big.Int) ([]*big.Int, error) {
	data, err := dex.RouterABI.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, err
	}
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.router, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	outs, err := dex.RouterABI.Unpack("getAmountsOut", raw)
	if err != nil || len(outs) == 0 {
		return nil, errors.New("decode getAmountsOut")
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok {
		return nil, errors.New("unexpected getAmountsOut type")
	}
	return amounts, nil
}

func (c *EthClient) CurrentAllowance(ctx context.Context, owner, spender, token common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "allowance", owner, spender)
}

func (c *EthClient) TokenBalance(ctx context.Context, addr, token common.Address) (*big.Int, error) {
	return c.callUint(ctx, token, "balanceOf", addr)
}

func (c *EthClient) NativeBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	return c.ec.BalanceAt(ctx, addr, nil)
}

func (c *EthClient) callUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	data, err := dex.ERC20ABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}
	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, token.Hex(), err)
	}
	outs, err := dex.ERC20ABI.Unpack(method, raw)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("decode %s", method)
	}
	v, ok := outs[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected %s type", method)
	}
	return v, nil
}

func (c *EthClient) IncreaseAllowance(ctx context.Context, token, spender common.Address, amount *big.Int) error {
	data, err := dex.ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return err
	}
	hash, err := c.transact(ctx, token, nil, data, 0)
	if err != nil {
		return fmt.Errorf("submit approve: %w", err)
	}
	c.logger.Info("Approval sent, waiting for confirmation", zap.String("tx", hash.Hex()), zap.String("token", token.Hex()))

	if _, err := c.waitMined(ctx, hash); err != nil {
		if errors.Is(err, ErrConfirmationTimeout) {
			return fmt.Errorf("%w: %v", ErrAllowanceConfirmationTimeout, err)
		}
		return err
	}
	return nil
}

func (c *EthClient) Swap(ctx context.Context, p SwapParams) (SwapReceipt, error) {
	deadline := big.NewInt(p.Deadline.Unix())

	var (
		data  []byte
		value *big.Int
		err   error
	)
	switch p.Kind {
	case SwapExactTokensForTokens:
		data, err = dex.RouterABI.Pack(dex.MethodSwapExactTokensForTokensFee, p.AmountIn, p.AmountOutMin, p.Path, p.To, deadline)
	case SwapExactNativeForTokens:
		data, err = dex.RouterABI.Pack(dex.MethodSwapExactETHForTokensFee, p.AmountOutMin, p.Path, p.To, deadline)
		value = p.AmountIn
	case SwapExactTokensForNative:
		data, err = dex.RouterABI.Pack(dex.MethodSwapExactTokensForETHFee, p.AmountIn, p.AmountOutMin, p.Path, p.To, deadline)
	default:
		return SwapReceipt{}, fmt.Errorf("unknown swap kind %d", p.Kind)
	}
	if err != nil {
		return SwapReceipt{}, fmt.Errorf("pack swap: %w", err)
	}

	hash, err := c.transact(ctx, c.router, value, data, p.GasLimit)
	if err != nil {
		return SwapReceipt{}, fmt.Errorf("submit swap: %w", err)
	}
	c.logger.Info("Swap sent, waiting for confirmation", zap.String("tx", hash.Hex()), zap.Stringer("kind", p.Kind))

	receipt, err := c.waitMined(ctx, hash)
	if err != nil {
		return SwapReceipt{TxHash: hash}, err
	}
	return SwapReceipt{
		TxHash:    hash,
		Confirmed: true,
		GasUsed:   receipt.GasUsed,
		Block:     receipt.BlockNumber.Uint64(),
	}, nil
}

func (c *EthClient) transact(ctx context.Context, to common.Address, value *big.Int, data []byte, gasLimit uint64) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, ErrReadOnly
	}
	if value == nil {
		value = new(big.Int)
	}

	c.txMu.Lock()
	defer c.txMu.Unlock()

	nonce, err := c.ec.PendingNonceAt(ctx, c.from)
	if err != nil {
		return common.Hash{}, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.ec.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("gas price: %w", err)
	}
	if gasLimit == 0 {
		est, err := c.ec.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Value: value, Data: data})
		if err != nil || est == 0 {
			gasLimit = c.gasLimit
		} else {
			gasLimit = est * 12 / 10
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign: %w", err)
	}
	if err := c.ec.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, err
	}
	return signed.Hash(), nil
}

func (c *EthClient) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	receipt, err := backoff.Retry(ctx, func() (*types.Receipt, error) {
		return c.ec.TransactionReceipt(ctx, hash)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.pollInterval)),
		backoff.WithMaxElapsedTime(c.confirmTimeout),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrConfirmationTimeout, hash.Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
	}
	return receipt, nil
}

// SubscribeBlocks streams new block numbers. It uses a head subscription when the
// endpoint supports one and falls back to polling otherwise.
func (c *EthClient) SubscribeBlocks(ctx context.Context) (<-chan uint64, error) {
	out := make(chan uint64, 16)
	heads := make(chan *types.Header, 16)

	sub, err := c.ec.SubscribeNewHead(ctx, heads)
	if err != nil {
		c.logger.Debug("Head subscription unavailable, polling for blocks", zap.Error(err))
		go func() {
			defer close(out)
			c.pollBlocks(ctx, out)
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				c.logger.Warn("Head subscription dropped, polling for blocks", zap.Error(err))
				c.pollBlocks(ctx, out)
				return
			case h := <-heads:
				if !send(ctx, out, h.Number.Uint64()) {
					return
				}
			}
		}
	}()
	return out, nil
}

func (c *EthClient) pollBlocks(ctx context.Context, out chan<- uint64) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var last uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		head, err := c.ec.BlockNumber(ctx)
		if err != nil {
			c.logger.Debug("Block number poll failed", zap.Error(err))
			continue
		}
		if last == 0 || head-last > maxCatchUpBlocks {
			last = head - 1
		}
		for n := last + 1; n <= head; n++ {
			if !send(ctx, out, n) {
				return
			}
		}
		if head > last {
			last = head
		}
	}
}

// SubscribeTransactions streams transactions sent by any of the given addresses.
func (c *EthClient) SubscribeTransactions(ctx context.Context, from []common.Address) (<-chan ObservedTx, error) {
	watch := make(map[common.Address]struct{}, len(from))
	for _, a := range from {
		watch[a] = struct{}{}
	}

	blocks, err := c.SubscribeBlocks(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan ObservedTx, 64)
	signer := types.LatestSignerForChainID(c.chainID)
	go func() {
		defer close(out)
		for n := range blocks {
			block, err := c.ec.BlockByNumber(ctx, new(big.Int).SetUint64(n))
			if err != nil {
				c.logger.Warn("Error processing block", zap.Uint64("block", n), zap.Error(err))
				continue
			}
			for _, tx := range block.Transactions() {
				if tx.To() == nil {
					continue
				}
				sender, err := types.Sender(signer, tx)
				if err != nil {
					continue
				}
				if _, ok := watch[sender]; !ok {
					continue
				}
				obs := ObservedTx{
					Hash:    tx.Hash(),
					Block:   n,
					From:    sender,
					To:      *tx.To(),
					Value:   tx.Value(),
					Payload: tx.Data(),
				}
				if !send(ctx, out, obs) {
					return
				}
			}
		}
	}()
	return out, nil
}

// SubscribePairCreated streams PairCreated events from the factory.
func (c *EthClient) SubscribePairCreated(ctx context.Context) (<-chan PairCreated, error) {
	blocks, err := c.SubscribeBlocks(ctx)
	if err != nil {
		return nil, err
	}

	event := dex.FactoryABI.Events["PairCreated"]
	out := make(chan PairCreated, 16)
	go func() {
		defer close(out)
		for n := range blocks {
			num := new(big.Int).SetUint64(n)
			logs, err := c.ec.FilterLogs(ctx, ethereum.FilterQuery{
				FromBlock: num,
				ToBlock:   num,
				Addresses: []common.Address{c.factory},
				Topics:    [][]common.Hash{{event.ID}},
			})
			if err != nil {
				c.logger.Warn("Error fetching pair events", zap.Uint64("block", n), zap.Error(err))
				continue
			}
			for _, l := range logs {
				pc, err := parsePairCreated(l)
				if err != nil {
					c.logger.Debug("Skipping malformed PairCreated log", zap.Error(err))
					continue
				}
				if !send(ctx, out, pc) {
					return
				}
			}
		}
	}()
	return out, nil
}

func parsePairCreated(l types.Log) (PairCreated, error) {
	if len(l.Topics) < 3 {
		return PairCreated{}, errors.New("missing indexed tokens")
	}
	fields := make(map[string]interface{})
	if err := dex.FactoryABI.UnpackIntoMap(fields, "PairCreated", l.Data); err != nil {
		return PairCreated{}, err
	}
	pair, _ := fields["pair"].(common.Address)
	return PairCreated{
		Block:  l.BlockNumber,
		Token0: common.BytesToAddress(l.Topics[1].Bytes()),
		Token1: common.BytesToAddress(l.Topics[2].Bytes()),
		Pair:   pair,
	}, nil
}

func send[T any](ctx context.Context, out chan<- T, v T) bool {
	select {
	case out <- v:
		return true
	case <-ctx.Done():
		return false
	}
}
