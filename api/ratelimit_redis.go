package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisRejectionPrefix = "ironshield:rejections:"
	redisLockoutPrefix   = "ironshield:lockout:"
)

// RedisRejectionStore is a RejectionStore backed by Redis, for deployments
// where protection runs on multiple nodes behind one load balancer. Failure
// counters carry a TTL of rejectionExpiry; lockout keys expire on their own
// so no sweeping is needed.
type RedisRejectionStore struct {
	client *redis.Client
}

var _ RejectionStore = (*RedisRejectionStore)(nil)

// NewRedisRejectionStore builds a store around an existing client. The
// client stays owned by the caller.
func NewRedisRejectionStore(client *redis.Client) *RedisRejectionStore {
	return &RedisRejectionStore{client: client}
}

// DialRedisRejectionStore connects to Redis and verifies the connection
// before returning a store.
func DialRedisRejectionStore(ctx context.Context, addr, password string, db int) (*RedisRejectionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisRejectionStore(client), nil
}

// Close closes the underlying client.
func (s *RedisRejectionStore) Close() error {
	return s.client.Close()
}

func (s *RedisRejectionStore) Check(ctx context.Context, clientIP string) (bool, time.Duration, error) {
	ttl, err := s.client.TTL(ctx, redisLockoutPrefix+clientIP).Result()
	if err != nil {
		return false, 0, fmt.Errorf("checking lockout: %w", err)
	}
	// TTL returns a negative duration when the key does not exist or has no
	// expiry; either way the client is not locked out.
	if ttl > 0 {
		return true, ttl, nil
	}
	return false, 0, nil
}

func (s *RedisRejectionStore) RecordRejection(ctx context.Context, clientIP string) error {
	key := redisRejectionPrefix + clientIP

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("incrementing rejection counter: %w", err)
	}
	// Refresh the expiry so the counter dies rejectionExpiry after the most
	// recent failure, matching the in-memory store.
	if err := s.client.Expire(ctx, key, rejectionExpiry).Err(); err != nil {
		return fmt.Errorf("setting counter expiry: %w", err)
	}

	if count >= int64(maxRejections) {
		lockout := lockoutFor(int(count))
		if err := s.client.Set(ctx, redisLockoutPrefix+clientIP, 1, lockout).Err(); err != nil {
			return fmt.Errorf("setting lockout: %w", err)
		}
	}
	return nil
}

func (s *RedisRejectionStore) RecordSuccess(ctx context.Context, clientIP string) error {
	err := s.client.Del(ctx, redisRejectionPrefix+clientIP, redisLockoutPrefix+clientIP).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("clearing rejection state: %w", err)
	}
	return nil
}
