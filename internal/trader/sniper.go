package trader

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"pancake-trade-bot-go/internal/chain"
	"pancake-trade-bot-go/internal/logger"
)

// ClassifyPair returns the non-WBNB token of a WBNB-paired pool.
func ClassifyPair(ev chain.PairCreated, wbnb common.Address) (common.Address, bool) {
	switch wbnb {
	case ev.Token0:
		return ev.Token1, true
	case ev.Token1:
		return ev.Token0, true
	default:
		return common.Address{}, false
	}
}

// Sniper logs new pools created by the venue factory. It never trades.
type Sniper struct {
	client chain.Client
	wbnb   common.Address
	logger *zap.Logger
}

// NewSniper creates the new pair listener.
func NewSniper(client chain.Client, wbnb common.Address, logger *zap.Logger) *Sniper {
	return &Sniper{client: client, wbnb: wbnb, logger: logger.Named("sniper")}
}

func (s *Sniper) Name() string { return "sniper" }

// Run logs each new pair until ctx is done.
func (s *Sniper) Run(ctx context.Context, _ Emit) error {
	pairs, err := s.client.SubscribePairCreated(ctx)
	if err != nil {
		return fmt.Errorf("subscribe pair created: %w", err)
	}
	s.logger.Info("Listening for new pairs")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-pairs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return errors.New("pair stream closed")
			}
			s.handle(ev)
		}
	}
}

func (s *Sniper) handle(ev chain.PairCreated) {
	if token, ok := ClassifyPair(ev, s.wbnb); ok {
		s.logger.Info("New WBNB pair detected",
			logger.Success(),
			zap.String("token", token.Hex()),
			zap.String("pair", ev.Pair.Hex()))
		return
	}
	s.logger.Info("New pair without WBNB",
		zap.String("token0", ev.Token0.Hex()),
		zap.String("token1", ev.Token1.Hex()))
}
