package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Invalidation tells every LayeredCache sharing an L2 to drop L1 copies.
// Source is the id of the sending cache, which skips its own messages.
type Invalidation struct {
	Source  string   `json:"source"`
	Keys    []string `json:"keys,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

// InvalidationBus fans invalidations out between processes. Subscribe returns
// once the subscription is live; the returned func stops it.
type InvalidationBus interface {
	Publish(ctx context.Context, msg Invalidation) error
	Subscribe(ctx context.Context, fn func(Invalidation)) (func() error, error)
}

// RedisInvalidationBus carries invalidations over Redis pub/sub.
type RedisInvalidationBus struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisInvalidationBus(client redis.UniversalClient, channel string) *RedisInvalidationBus {
	return &RedisInvalidationBus{client: client, channel: channel}
}

func (b *RedisInvalidationBus) Publish(ctx context.Context, msg Invalidation) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode invalidation: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (b *RedisInvalidationBus) Subscribe(ctx context.Context, fn func(Invalidation)) (func() error, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	ch := ps.Channel()
	go func() {
		for m := range ch {
			var inv Invalidation
			if err := json.Unmarshal([]byte(m.Payload), &inv); err == nil {
				fn(inv)
			}
		}
	}()
	return ps.Close, nil
}
