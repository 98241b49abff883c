package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const otpKeyPrefix = "otp:"

// Values are stored as "<hash>|<expires_at_unix_ms>|<attempts>" so expiry is
// decided by the caller's clock, with the key TTL only reclaiming space.
var consumeScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if not value then
	return 0
end
local hash, expires, attempts = string.match(value, "^([^|]*)|(%d+)|(%d+)$")
if not hash then
	redis.call("DEL", KEYS[1])
	return 0
end
if tonumber(ARGV[2]) >= tonumber(expires) then
	redis.call("DEL", KEYS[1])
	return 0
end
if hash ~= ARGV[1] then
	local used = tonumber(attempts) + 1
	if used >= tonumber(ARGV[3]) then
		redis.call("DEL", KEYS[1])
		return 0
	end
	local updated = hash .. "|" .. expires .. "|" .. used
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl > 0 then
		redis.call("SET", KEYS[1], updated, "PX", ttl)
	else
		redis.call("SET", KEYS[1], updated)
	end
	return 0
end
redis.call("DEL", KEYS[1])
return 1
`)

var discardScript = redis.NewScript(`
local value = redis.call("GET", KEYS[1])
if not value then
	return 0
end
local sep = string.find(value, "|", 1, true)
if sep and string.sub(value, 1, sep - 1) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisChallengeStore shares OTP challenges between server instances.
type RedisChallengeStore struct {
	client redis.UniversalClient
	// grace is added to the key TTL on top of the challenge lifetime.
	grace time.Duration
}

// NewRedisChallengeStore constructs a RedisChallengeStore.
func NewRedisChallengeStore(client redis.UniversalClient) *RedisChallengeStore {
	return &RedisChallengeStore{client: client, grace: time.Minute}
}

func (s *RedisChallengeStore) Put(ctx context.Context, key string, c Challenge) error {
	ttl := time.Until(c.ExpiresAt) + s.grace
	if ttl <= 0 {
		ttl = s.grace
	}
	value := c.CodeHash + "|" + strconv.FormatInt(c.ExpiresAt.UnixMilli(), 10) + "|" + strconv.Itoa(c.Attempts)
	if err := s.client.Set(ctx, otpKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return nil
}

func (s *RedisChallengeStore) Consume(ctx context.Context, key, codeHash string, now time.Time) (bool, error) {
	result, err := consumeScript.Run(ctx, s.client, []string{otpKeyPrefix + key}, codeHash, now.UnixMilli(), MaxOTPAttempts).Int()
	if err != nil {
		return false, fmt.Errorf("consume otp challenge: %w", err)
	}
	return result == 1, nil
}

func (s *RedisChallengeStore) Discard(ctx context.Context, key, codeHash string) error {
	if err := discardScript.Run(ctx, s.client, []string{otpKeyPrefix + key}, codeHash).Err(); err != nil {
		return fmt.Errorf("discard otp challenge: %w", err)
	}
	return nil
}
