package trader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/chain"
	"pancake-trade-bot-go/internal/dex"
	"pancake-trade-bot-go/internal/metrics"
)

// Classifier turns a decoded swap into an intent given the tokens we hold.
type Classifier interface {
	Classify(call dex.SwapCall, holdings map[string]struct{}) (Intent, bool)
}

// HoldingsClassifier treats a swap out of a held token as a sell signal and
// anything else as a buy of the path's output.
type HoldingsClassifier struct{}

func (HoldingsClassifier) Classify(call dex.SwapCall, holdings map[string]struct{}) (Intent, bool) {
	in := call.InputToken()
	if _, held := holdings[strings.ToLower(in.Hex())]; held {
		return Intent{Kind: KindExit, Source: SourceCopyTrade, Token: in}, true
	}
	return Intent{Kind: KindEntry, Source: SourceCopyTrade, Token: call.OutputToken()}, true
}

// SignalDecoder filters observed transactions down to router swaps by watched wallets.
type SignalDecoder struct {
	router     common.Address
	watch      map[common.Address]int
	watched    []common.Address
	classifier Classifier
}

// NewSignalDecoder creates a decoder. A nil classifier uses HoldingsClassifier.
func NewSignalDecoder(router common.Address, watchList []common.Address, classifier Classifier) *SignalDecoder {
	if classifier == nil {
		classifier = HoldingsClassifier{}
	}
	d := &SignalDecoder{
		router:     router,
		watch:      make(map[common.Address]int, len(watchList)),
		classifier: classifier,
	}
	for i, addr := range watchList {
		if _, dup := d.watch[addr]; dup {
			continue
		}
		d.watch[addr] = i
		d.watched = append(d.watched, addr)
	}
	return d
}

// Watched returns the distinct watched addresses.
func (d *SignalDecoder) Watched() []common.Address {
	return append([]common.Address(nil), d.watched...)
}

// Decode returns the intent carried by tx, if any. Transactions from
// unwatched senders, to other contracts, or that are not swaps yield false.
func (d *SignalDecoder) Decode(tx chain.ObservedTx, holdings map[string]struct{}) (Intent, bool) {
	idx, ok := d.watch[tx.From]
	if !ok || tx.To != d.router {
		return Intent{}, false
	}
	call, err := dex.DecodeSwap(tx.Payload)
	if err != nil {
		return Intent{}, false
	}

	in, ok := d.classifier.Classify(call, holdings)
	if !ok {
		return Intent{}, false
	}
	in.Alias = fmt.Sprintf("Trader #%d", idx+1)
	in.SignalTx = tx.Hash
	return in, true
}

// Holdings reports the lower-cased tokens currently held.
type Holdings func() map[string]struct{}

// CopyTrader mirrors swaps by watched wallets.
type CopyTrader struct {
	client   chain.Client
	decoder  *SignalDecoder
	holdings Holdings
	logger   *zap.Logger
}

// NewCopyTrader creates the copy-trade trigger.
func NewCopyTrader(client chain.Client, decoder *SignalDecoder, holdings Holdings, logger *zap.Logger) *CopyTrader {
	return &CopyTrader{client: client, decoder: decoder, holdings: holdings, logger: logger.Named("copy")}
}

func (c *CopyTrader) Name() string { return "copy-trade" }

// Run consumes transactions from the watched wallets until ctx is done.
func (c *CopyTrader) Run(ctx context.Context, emit Emit) error {
	watched := c.decoder.Watched()
	txs, err := c.client.SubscribeTransactions(ctx, watched)
	if err != nil {
		return fmt.Errorf("subscribe transactions: %w", err)
	}
	c.logger.Info("Tracking watched wallets", zap.Int("wallets", len(watched)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case tx, ok := <-txs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("transaction stream closed")
			}
			in, ok := c.decoder.Decode(tx, c.holdings())
			if !ok {
				continue
			}
			metrics.Signals.WithLabelValues(string(in.Kind)).Inc()
			c.logger.Debug("Copy signal",
				zap.String("alias", in.Alias),
				zap.String("kind", string(in.Kind)),
				zap.String("token", in.Token.Hex()),
				zap.String("tx", tx.Hash.Hex()))
			emit(in)
		}
	}
}
