package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/0xh7/lua-chess-server/internal/app"
	"github.com/0xh7/lua-chess-server/internal/relay"
)

// publisher is the slice of the redis client the bus needs
type publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Close() error
}

// RedisBus streams moderation events to redis pub/sub for audit consumers
type RedisBus struct {
	rdb publisher
	log *slog.Logger
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
	}
	return &RedisBus{rdb: rdb, log: log}, nil
}

// Publish sends an event to the channel for its action
func (b *RedisBus) Publish(ctx context.Context, ev relay.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, Channel(ev.Action), raw).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Action, err)
	}
	b.log.Debug("event.published", "action", ev.Action)
	return nil
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }

// Channel namespaces moderation pub/sub by action
func Channel(action string) string { return "moderation:" + action }
