// Package feed publishes trade events to a Redis stream for external consumers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"pancake-trade-bot-go/internal/config"
)

const defaultMaxLen int64 = 10000

// Event types.
const (
	EventOpen      = "position_opened"
	EventClose     = "position_closed"
	EventArbitrage = "arbitrage"
)

// Event is one trade lifecycle notification.
type Event struct {
	Type      string          `json:"type"`
	Strategy  string          `json:"strategy,omitempty"`
	Token     string          `json:"token,omitempty"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
	PnL       decimal.Decimal `json:"pnl"`
	TxRef     string          `json:"tx_ref,omitempty"`
	Simulated bool            `json:"simulated"`
	Time      time.Time       `json:"time"`
}

// Publisher appends events to a capped Redis stream.
type Publisher struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewPublisher connects to Redis with the given settings.
func NewPublisher(cfg *config.Redis) *Publisher {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	maxLen := cfg.MaxLen
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Publisher{rdb: rdb, stream: cfg.Stream, maxLen: maxLen}
}

// Ping checks the connection.
func (p *Publisher) Ping(ctx context.Context) error {
	return p.rdb.Ping(ctx).Err()
}

// Publish appends ev to the stream, trimming it to roughly maxLen entries.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("feed: encode %s: %w", ev.Type, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":    ev.Type,
			"payload": payload,
		},
	}
	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("feed: append %s: %w", p.stream, err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Publisher) Close() error {
	return p.rdb.Close()
}
