// cache/redis.go
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 使用 Redis 存储计分板
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to addr and verifies the connection.
func NewRedis(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Get(ctx context.Context, gameID int64) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key(gameID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read from redis: %w", err)
	}
	return data, true, nil
}

func (r *Redis) Set(ctx context.Context, gameID int64, data []byte) error {
	if err := r.client.Set(ctx, key(gameID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store in redis: %w", err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, gameIDs ...int64) error {
	if len(gameIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(gameIDs))
	for _, id := range gameIDs {
		keys = append(keys, key(id))
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
