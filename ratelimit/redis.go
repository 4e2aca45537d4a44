package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Sliding window on a ZSET scored by admission time in ms.
// KEYS[1]=key; ARGV[1]=nowMs; ARGV[2]=windowMs; ARGV[3]=limit; ARGV[4]=member
// Returns {1} admitted, {0, oldestMs} rejected.
var luaSlidingWindow = redis.NewScript(`
  local k = KEYS[1]
  local now = tonumber(ARGV[1])
  local window = tonumber(ARGV[2])
  local limit = tonumber(ARGV[3])

  redis.call('ZREMRANGEBYSCORE', k, '-inf', now - window)
  local count = redis.call('ZCARD', k)
  if count >= limit then
    local oldest = redis.call('ZRANGE', k, 0, 0, 'WITHSCORES')
    return {0, tonumber(oldest[2])}
  end
  redis.call('ZADD', k, now, ARGV[4])
  redis.call('PEXPIRE', k, window)
  return {1}
`)

var luaRelease = redis.NewScript(`return redis.call('ZREM', KEYS[1], ARGV[1])`)

// RedisLimiter shares rate-limit state between processes. The check and the
// increment run as one script so concurrent callers cannot overshoot.
type RedisLimiter struct {
	rdb      redis.Scripter
	policies Policies
	now      func() time.Time
}

// NewRedisLimiter creates a limiter on rdb.
func NewRedisLimiter(rdb redis.Scripter, policies Policies) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, policies: policies, now: time.Now}
}

func (r *RedisLimiter) Admit(ctx context.Context, actor, action string) (Decision, error) {
	pol, err := r.policies.lookup(action)
	if err != nil {
		return Decision{}, err
	}
	nowMs := r.now().UnixMilli()
	windowMs := pol.Window.Milliseconds()

	member := strconv.FormatInt(nowMs, 10) + "-" + uuid.NewString()

	res, err := luaSlidingWindow.Run(ctx, r.rdb,
		[]string{key(actor, action)},
		nowMs, windowMs, pol.Limit, member,
	).Int64Slice()
	if err != nil {
		return Decision{}, err
	}
	if len(res) > 0 && res[0] == 1 {
		return Decision{Allowed: true, Ticket: member}, nil
	}
	retry := time.Duration(windowMs) * time.Millisecond
	if len(res) > 1 {
		retry = time.Duration(res[1]+windowMs-nowMs) * time.Millisecond
	}
	if retry < time.Millisecond {
		retry = time.Millisecond
	}
	return Decision{RetryAfter: retry}, nil
}

func (r *RedisLimiter) Release(ctx context.Context, actor, action, ticket string) error {
	if ticket == "" {
		return nil
	}
	return luaRelease.Run(ctx, r.rdb, []string{key(actor, action)}, ticket).Err()
}
