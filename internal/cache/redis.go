// Package cache mirrors the latest prices into Redis so other processes can
// read a snapshot (GET/MGET on the key prefix) or follow live updates
// (SUBSCRIBE on the channel prefix).
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"nse-monitor/internal/models"
)

const (
	DefaultKeyPrefix     = "stock:"
	DefaultChannelPrefix = "prices."
)

// RedisPriceSink writes each tick's prices as JSON snapshots and publishes
// them per symbol.
type RedisPriceSink struct {
	client        *redis.Client
	keyPrefix     string
	channelPrefix string
	now           func() time.Time
}

// NewRedisPriceSink wraps an existing client. Empty prefixes fall back to
// the defaults.
func NewRedisPriceSink(client *redis.Client, keyPrefix, channelPrefix string) *RedisPriceSink {
	if keyPrefix == "" {
		keyPrefix = DefaultKeyPrefix
	}
	if channelPrefix == "" {
		channelPrefix = DefaultChannelPrefix
	}
	return &RedisPriceSink{
		client:        client,
		keyPrefix:     keyPrefix,
		channelPrefix: channelPrefix,
		now:           time.Now,
	}
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

// PublishPrices stores and publishes every price in one pipeline.
func (s *RedisPriceSink) PublishPrices(ctx context.Context, prices map[string]float64) error {
	if len(prices) == 0 {
		return nil
	}

	now := s.now()
	pipe := s.client.Pipeline()
	for sym, price := range prices {
		payload, err := json.Marshal(models.Quote{Symbol: sym, Price: price, Timestamp: now})
		if err != nil {
			return fmt.Errorf("encoding quote for %s: %w", sym, err)
		}
		pipe.Set(ctx, s.keyPrefix+sym, payload, 0)
		pipe.Publish(ctx, s.channelPrefix+sym, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing prices to redis: %w", err)
	}
	return nil
}

// Snapshots returns the stored quotes of symbols that have one.
func (s *RedisPriceSink) Snapshots(ctx context.Context, symbols []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(symbols))
	if len(symbols) == 0 {
		return out, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = s.keyPrefix + sym
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("reading snapshots: %w", err)
	}

	for _, v := range values {
		raw, ok := v.(string)
		if !ok || raw == "" {
			continue
		}
		var q models.Quote
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			continue
		}
		out[q.Symbol] = q
	}
	return out, nil
}

// Close closes the underlying client.
func (s *RedisPriceSink) Close() error {
	return s.client.Close()
}
