package services

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) (*RedisChallengeStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisChallengeStore(client), mr
}

// challengeValue parses a stored "<hash>|<expires_at_unix_ms>|<attempts>" value.
func challengeValue(raw string) (Challenge, bool) {
	parts := strings.Split(raw, "|")
	if len(parts) != 3 {
		return Challenge{}, false
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Challenge{}, false
	}
	attempts, err := strconv.Atoi(parts[2])
	if err != nil {
		return Challenge{}, false
	}
	return Challenge{CodeHash: parts[0], ExpiresAt: time.UnixMilli(ms), Attempts: attempts}, true
}

func TestRedisChallengeStore_ConsumeOnce(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, "8888888888", Challenge{CodeHash: hashCode("123456"), ExpiresAt: now.Add(5 * time.Minute)}))

	raw, err := mr.Get(otpKeyPrefix + "8888888888")
	require.NoError(t, err)
	stored, ok := challengeValue(raw)
	require.True(t, ok)
	assert.Equal(t, hashCode("123456"), stored.CodeHash)
	assert.Equal(t, now.Add(5*time.Minute).UnixMilli(), stored.ExpiresAt.UnixMilli())
	assert.Zero(t, stored.Attempts)
	assert.NotContains(t, raw, "123456|", "plain code must not be stored")

	ok, err = store.Consume(ctx, "8888888888", hashCode("654321"), now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Consume(ctx, "8888888888", hashCode("123456"), now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.Consume(ctx, "8888888888", hashCode("123456"), now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(otpKeyPrefix+"8888888888"))
}

func TestRedisChallengeStore_WrongCodesBurnChallenge(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()
	key := otpKeyPrefix + "8888888888"

	require.NoError(t, store.Put(ctx, "8888888888", Challenge{CodeHash: hashCode("123456"), ExpiresAt: now.Add(5 * time.Minute)}))

	for i := 1; i < MaxOTPAttempts; i++ {
		ok, err := store.Consume(ctx, "8888888888", hashCode("000000"), now)
		require.NoError(t, err)
		assert.False(t, ok)

		raw, err := mr.Get(key)
		require.NoError(t, err)
		stored, parsed := challengeValue(raw)
		require.True(t, parsed)
		assert.Equal(t, i, stored.Attempts)
		assert.Greater(t, mr.TTL(key), time.Duration(0), "ttl survives a wrong guess")
	}

	ok, err := store.Consume(ctx, "8888888888", hashCode("000000"), now)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(key))

	ok, err = store.Consume(ctx, "8888888888", hashCode("123456"), now)
	require.NoError(t, err)
	assert.False(t, ok, "correct code no longer works once the challenge is burned")
}

func TestRedisChallengeStore_ExpiryUsesCallerClock(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, "8888888888", Challenge{CodeHash: hashCode("123456"), ExpiresAt: now.Add(5 * time.Minute)}))

	ok, err := store.Consume(ctx, "8888888888", hashCode("123456"), now.Add(5*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, mr.Exists(otpKeyPrefix+"8888888888"), "expired challenge is deleted")
}

func TestRedisChallengeStore_PutOverwrites(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Put(ctx, "8888888888", Challenge{CodeHash: hashCode("111111"), ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, "8888888888", Challenge{CodeHash: hashCode("222222"), ExpiresAt: now.Add(time.Minute)}))

	ok, err := store.Consume(ctx, "8888888888", hashCode("111111"), now)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = store.Consume(ctx, "8888888888", hashCode("222222"), now)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisChallengeStore_DiscardComparesHash(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "8888888888", Challenge{CodeHash: "newer", ExpiresAt: time.Now().Add(time.Minute)}))

	require.NoError(t, store.Discard(ctx, "8888888888", "older"))
	assert.True(t, mr.Exists(otpKeyPrefix+"8888888888"))

	require.NoError(t, store.Discard(ctx, "8888888888", "newer"))
	assert.False(t, mr.Exists(otpKeyPrefix+"8888888888"))
}

func TestRedisChallengeStore_WithOTPService(t *testing.T) {
	store, _ := newTestRedisStore(t)
	sms := newFakeSMS()
	svc := NewOTPService(store, sms, newTestUserStore(t), time.Minute)
	ctx := context.Background()

	require.NoError(t, svc.RequestChallenge(ctx, "8888888888"))
	user, err := svc.VerifyChallenge(ctx, "8888888888", sms.lastCode(t, "8888888888"))
	require.NoError(t, err)
	assert.Equal(t, "8888888888", user.MobileNumber())

	sms.err = errUpstream
	err = svc.RequestChallenge(ctx, "7777777777")
	assert.ErrorIs(t, err, ErrDelivery)
	ok, err := store.Consume(ctx, "7777777777", "", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)
}
