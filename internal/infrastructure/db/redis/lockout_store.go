package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockoutStore counts consecutive failed logins per identifier.
// Key format: lockout:<identifier>
type LockoutStore struct {
	client *redis.Client
}

func NewLockoutStore(client *redis.Client) *LockoutStore {
	return &LockoutStore{client: client}
}

// RecordFailure increments the failure counter and returns the new count.
// The expiry is set only when the key is created, so the tracking window
// runs from the first failure rather than sliding on every attempt.
func (s *LockoutStore) RecordFailure(ctx context.Context, identifier string, window time.Duration) (int64, error) {
	key := s.key(identifier)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record login failure: %w", err)
	}
	return incr.Val(), nil
}

func (s *LockoutStore) Reset(ctx context.Context, identifier string) error {
	if err := s.client.Del(ctx, s.key(identifier)).Err(); err != nil {
		return fmt.Errorf("reset login failures: %w", err)
	}
	return nil
}

func (s *LockoutStore) key(identifier string) string {
	return "lockout:" + identifier
}
