package utils

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const REVOKED_TOKEN_PREFIX = "auth:revoked:"

// TokenRevoker remembers logged-out token ids until the token would have expired anyway.
type TokenRevoker struct {
	redis *redis.Client
}

func NewTokenRevoker(redisClient *redis.Client) *TokenRevoker {
	return &TokenRevoker{redis: redisClient}
}

func (r *TokenRevoker) Revoke(ctx context.Context, claims *Claims) error {
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	return r.redis.Set(ctx, REVOKED_TOKEN_PREFIX+claims.ID, 1, ttl).Err()
}

func (r *TokenRevoker) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.redis.Exists(ctx, REVOKED_TOKEN_PREFIX+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
