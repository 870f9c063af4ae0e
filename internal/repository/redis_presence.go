package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"CapIot.relaysync/internal/config"
)

// PresenceTTL is how long a cached last-seen timestamp survives without a
// fresh report.
const PresenceTTL = 60 * time.Second

// RedisPresence caches each device's last-seen time so status lookups can
// skip the durable store.
type RedisPresence struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPresence connects and pings the server.
func NewRedisPresence(ctx context.Context, cfg config.RedisConfig, ttl time.Duration) (*RedisPresence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return newRedisPresence(client, ttl), nil
}

func newRedisPresence(client *redis.Client, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = PresenceTTL
	}
	return &RedisPresence{client: client, ttl: ttl}
}

func presenceKey(deviceID string) string {
	return fmt.Sprintf("device:%s:last_seen", deviceID)
}

// MarkSeen records that deviceID reported at seenAt.
func (p *RedisPresence) MarkSeen(ctx context.Context, deviceID string, seenAt time.Time) error {
	err := p.client.Set(ctx, presenceKey(deviceID), seenAt.UTC().Format(time.RFC3339Nano), p.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis: mark %s seen: %w", deviceID, err)
	}
	return nil
}

// LastSeen returns the cached timestamp. ok is false on a cache miss.
func (p *RedisPresence) LastSeen(ctx context.Context, deviceID string) (seenAt time.Time, ok bool, err error) {
	raw, err := p.client.Get(ctx, presenceKey(deviceID)).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: last seen for %s: %w", deviceID, err)
	}
	seenAt, err = time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis: bad last seen for %s: %w", deviceID, err)
	}
	return seenAt, true, nil
}

// Close releases the connection pool.
func (p *RedisPresence) Close() error {
	return p.client.Close()
}
