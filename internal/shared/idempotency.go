package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const idempotencyPending = "__pending__"

// IdempotencyStore remembers the outcome of keyed requests in Redis.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

func idempotencyKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}

// Claim reserves key within scope. When the key already completed, Claim
// returns the stored result and claimed=false. A key still being processed
// yields ErrIdempotencyInFlight.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) (result string, claimed bool, err error) {
	if s == nil {
		return "", true, nil
	}
	if key == "" {
		return "", false, errors.New("idempotency key required")
	}
	k := idempotencyKey(scope, key)
	ok, err := s.client.SetNX(ctx, k, idempotencyPending, s.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("idempotency: claim: %w", err)
	}
	if ok {
		return "", true, nil
	}
	val, err := s.client.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; try once more
		ok, err = s.client.SetNX(ctx, k, idempotencyPending, s.ttl).Result()
		if err != nil {
			return "", false, fmt.Errorf("idempotency: claim: %w", err)
		}
		if ok {
			return "", true, nil
		}
		return "", false, ErrIdempotencyInFlight
	}
	if err != nil {
		return "", false, fmt.Errorf("idempotency: lookup: %w", err)
	}
	if val == idempotencyPending {
		return "", false, ErrIdempotencyInFlight
	}
	return val, false, nil
}

// Complete stores the result for a claimed key.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, result string) error {
	if s == nil {
		return nil
	}
	return s.client.Set(ctx, idempotencyKey(scope, key), result, s.ttl).Err()
}

// Release removes a claimed key, typically used to roll back failed processing.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if s == nil {
		return nil
	}
	return s.client.Del(ctx, idempotencyKey(scope, key)).Err()
}
