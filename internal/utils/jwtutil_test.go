package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour)

	token, exp, err := issuer.GenerateToken(42, "alice", true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.AccountID)
	assert.Equal(t, "alice", claims.Username)
	assert.True(t, claims.IsEmployee)
	assert.NotEmpty(t, claims.ID)
}

func TestParseTokenRejectsForeignSignature(t *testing.T) {
	token, _, err := NewTokenIssuer("one", time.Hour).GenerateToken(1, "bob", false)
	require.NoError(t, err)

	_, err = NewTokenIssuer("two", time.Hour).ParseToken(token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	issuer := NewTokenIssuer("secret", -time.Minute)
	token, _, err := issuer.GenerateToken(1, "bob", false)
	require.NoError(t, err)

	_, err = issuer.ParseToken(token)
	assert.Error(t, err)
}

func TestRevokeToken(t *testing.T) {
	mr := miniredis.RunT(t)
	revoker := NewTokenRevoker(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	issuer := NewTokenIssuer("secret", time.Hour)
	ctx := context.Background()

	token, _, err := issuer.GenerateToken(7, "carol", false)
	require.NoError(t, err)
	claims, err := issuer.ParseToken(token)
	require.NoError(t, err)

	revoked, err := revoker.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, revoker.Revoke(ctx, claims))

	revoked, err = revoker.IsRevoked(ctx, claims.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Greater(t, mr.TTL(REVOKED_TOKEN_PREFIX+claims.ID), time.Duration(0))
}
