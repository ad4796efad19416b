package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedPrefix = "auth:revoked:"

// RevocationStore keeps logged-out token ids in Redis until they would have
// expired anyway.
type RevocationStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRevocationStore returns a store. A nil client disables revocation.
func NewRevocationStore(client *redis.Client) *RevocationStore {
	return &RevocationStore{client: client, now: time.Now}
}

// Revoke denylists jti until exp.
func (s *RevocationStore) Revoke(ctx context.Context, jti string, exp time.Time) error {
	if s == nil || s.client == nil || jti == "" {
		return nil
	}
	ttl := exp.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, revokedPrefix+jti, "1", ttl).Err()
}

// IsRevoked reports whether jti was logged out.
func (s *RevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s == nil || s.client == nil {
		return false, nil
	}
	n, err := s.client.Exists(ctx, revokedPrefix+jti).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
