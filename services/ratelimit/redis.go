package ratelimit

import (
	"context"
	"time"

	"videoreach-engine/pkg/rediskey"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares the fixed-window accounting across engine replicas.
// INCR is atomic on the server, so concurrent recipients never lose counts.
type RedisLimiter struct {
	rdb    *redis.Client
	size   time.Duration
	limits map[string]int
	def    int
}

func NewRedisLimiter(rdb *redis.Client, size time.Duration, defaultLimit int, limits map[string]int) *RedisLimiter {
	if limits == nil {
		limits = make(map[string]int)
	}
	return &RedisLimiter{rdb: rdb, size: size, limits: limits, def: defaultLimit}
}

func (l *RedisLimiter) Check(ctx context.Context, key Key) (Decision, error) {
	now := time.Now()
	windowStart := now.Truncate(l.size)
	redisKey := rediskey.BuildRateLimitKey(key.Caller, key.Action, windowStart.Unix())

	count, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, err
	}
	if count == 1 {
		// First hit owns the expiry; the extra window pads clock skew.
		l.rdb.Expire(ctx, redisKey, l.size*2)
	}

	limit := l.def
	if v, ok := l.limits[key.Action]; ok {
		limit = v
	}

	resetAt := windowStart.Add(l.size)
	if int(count) > limit {
		limiterDenied.Inc()
		return Decision{Allowed: false, Remaining: 0, ResetAt: resetAt}, nil
	}

	limiterAllowed.Inc()
	return Decision{Allowed: true, Remaining: limit - int(count), ResetAt: resetAt}, nil
}
