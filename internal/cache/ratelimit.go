package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// identifyLimitPrefix namespaces the per-IP buckets guarding the identify
// endpoint.
const identifyLimitPrefix = "ratelimit:identify:"

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// tokenBucketScript refills at rate tokens/ms and spends one token per call.
// Timestamps are Redis server milliseconds so replicas of the API agree on
// the clock. Returns {allowed, retry_after_ms, remaining}.
var tokenBucketScript = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local burst = tonumber(ARGV[2])

	local t = redis.call('TIME')
	local now = tonumber(t[1]) * 1000 + math.floor(tonumber(t[2]) / 1000)

	local data = redis.call('HMGET', key, 'tokens', 'ts')
	local tokens = tonumber(data[1]) or burst
	local ts = tonumber(data[2]) or now
	if now > ts then
		tokens = math.min(burst, tokens + (now - ts) * rate)
	end

	local allowed = 0
	local retry_after = 0
	if tokens >= 1 then
		tokens = tokens - 1
		allowed = 1
	else
		retry_after = math.ceil((1 - tokens) / rate)
	end

	redis.call('HSET', key, 'tokens', tostring(tokens), 'ts', now)
	redis.call('PEXPIRE', key, math.ceil(burst / rate) + 1000)

	return {allowed, retry_after, math.floor(tokens)}
`)

// CheckIPRateLimit spends one token from the client's bucket. The IP is
// hashed so raw addresses never reach Redis. A non-positive rate disables
// the limit.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond <= 0 {
		return &RateLimitResult{Allowed: true, Remaining: int64(burst)}, nil
	}
	if burst < 1 {
		burst = 1
	}

	perMs := float64(ratePerSecond) / 1000
	res, err := tokenBucketScript.Run(ctx, c.client, []string{identifyLimitPrefix + hashIP(ip)}, perMs, burst).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	return &RateLimitResult{
		Allowed:    res[0] == 1,
		Remaining:  max(res[2], 0),
		RetryAfter: time.Duration(res[1]) * time.Millisecond,
	}, nil
}

// RetryAfterSeconds rounds the wait up to whole seconds for the Retry-After
// header, never below one.
func (r *RateLimitResult) RetryAfterSeconds() int {
	s := int(math.Ceil(r.RetryAfter.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}

// hashIP returns a truncated blake2b digest of an IP address.
func hashIP(ip string) string {
	sum := blake2b.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:8])
}
