package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store backs the per-session mutation lock. Sends for one session serialize
// across all API and worker processes through SETNX with a TTL guard, so a
// crashed holder cannot wedge the session for good.
type Store struct {
	rdb *redis.Client

	lockTTL time.Duration
	retry   time.Duration
	wait    time.Duration
}

func New(addr, password string, db int) *Store {
	return &Store{
		rdb: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		lockTTL: 30 * time.Second,
		retry:   50 * time.Millisecond,
		wait:    10 * time.Second,
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func lockKey(sessionID string) string { return "chat:lock:" + sessionID }

// Acquire polls for the session lock until it is granted, the wait budget runs
// out, or the context is cancelled. The returned release is safe to call once.
func (s *Store) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKey(sessionID)
	deadline := time.Now().Add(s.wait)

	for {
		ok, err := s.rdb.SetNX(ctx, key, "1", s.lockTTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				// best effort; the TTL is the backstop
				_ = s.rdb.Del(context.Background(), key).Err()
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.retry):
		}
	}
}
