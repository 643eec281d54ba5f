// Package redisbus implements the distributed pub/sub transport on Redis.
package redisbus

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nswire/nswire"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Bus wraps a Redis client behind the nswire.Transport interface. Publish is
// fire and forget; each Subscribe runs its own delivery goroutine.
type Bus struct {
	rdb *redis.Client
	log *zap.Logger
}

var _ nswire.Transport = (*Bus)(nil)

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config, log *zap.Logger) (*Bus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Bus{
		rdb: rdb,
		log: log.With(zap.String("scope", "redisbus")),
	}, nil
}

// IsAvailable reports whether Redis currently answers.
func (b *Bus) IsAvailable(ctx context.Context) bool {
	return b.rdb.Ping(ctx).Err() == nil
}

// Publish sends payload on channel. Failures are returned for logging but
// carry no delivery guarantee either way.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.rdb.Publish(ctx, channel, payload).Err()
}

// Subscribe registers fn for every message matching the channel pattern.
// Delivery is asynchronous and continues until ctx is cancelled or the bus
// is closed.
func (b *Bus) Subscribe(ctx context.Context, pattern string, fn func(channel string, payload []byte)) error {
	ps := b.rdb.PSubscribe(ctx, pattern)
	// Force the subscription to establish so errors surface here rather
	// than silently in the delivery loop.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", pattern, err)
	}

	go func() {
		defer func() {
			if err := ps.Close(); err != nil {
				b.log.Warn("closing subscription", zap.String("pattern", pattern), zap.Error(err))
			}
		}()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				fn(msg.Channel, []byte(msg.Payload))
			}
		}
	}()

	b.log.Info("subscribed", zap.String("pattern", pattern))
	return nil
}

// Close shuts the underlying client down.
func (b *Bus) Close() error {
	if err := b.rdb.Close(); err != nil {
		b.log.Error("closing Redis client", zap.Error(err))
		return err
	}
	return nil
}
