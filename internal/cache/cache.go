// Package cache fronts the idempotency fast path with Redis: complete
// settlement results are small, immutable, and looked up on every repeat
// approval, so they cache indefinitely. The audit log remains the source of
// truth; a cache miss just falls through to SQLite.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/recircle/rewards/internal/models"
)

// ErrNotFound is returned when no cached result exists for the receipt.
var ErrNotFound = errors.New("cache: not found")

// ResultCache stores settlement results keyed by receipt ID.
type ResultCache interface {
	Get(ctx context.Context, receiptID string) (*models.SettlementResult, error)
	Set(ctx context.Context, result *models.SettlementResult) error
}

// RedisCache implements ResultCache on Redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ ResultCache = (*RedisCache)(nil)

// NewRedisCache connects to Redis at addr and verifies the connection.
func NewRedisCache(addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, receiptID string) (*models.SettlementResult, error) {
	val, err := r.client.Get(ctx, key(receiptID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var result models.SettlementResult
	if err := json.Unmarshal(val, &result); err != nil {
		return nil, fmt.Errorf("corrupt cached result for %s: %w", receiptID, err)
	}
	return &result, nil
}

func (r *RedisCache) Set(ctx context.Context, result *models.SettlementResult) error {
	val, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return r.client.Set(ctx, key(result.ReceiptID), val, r.ttl).Err()
}

func key(receiptID string) string {
	return "settlement:" + receiptID
}
