package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "pos:ratelimit:"

var errUnexpectedReply = errors.New("ratelimit: unexpected script reply")

// slidingWindow trims the window, admits the event when there is room and
// reports the admitted count plus the moment the oldest event leaves the
// window. Scores are microseconds so they stay exact as Lua numbers.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < max then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, math.ceil(window / 1000))
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// Limiter is a sliding window limiter over Redis sorted sets, one member per
// admitted request. Refused requests are not recorded, so a terminal that
// keeps retrying is released as soon as its oldest admitted request expires.
type Limiter struct {
	Client redis.Scripter
	Prefix string
}

// Allow admits one event for key when fewer than max were admitted within window.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, max int) (allowed bool, remaining int, reset time.Time, err error) {
	now := time.Now()
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}
	prefix := l.Prefix
	if prefix == "" {
		prefix = defaultPrefix
	}

	vals, err := slidingWindow.Run(ctx, l.Client, []string{prefix + key},
		now.UnixMicro(), window.Microseconds(), max, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	if len(vals) != 3 {
		return false, 0, now.Add(window), errUnexpectedReply
	}
	remaining = max - int(vals[1])
	if remaining < 0 {
		remaining = 0
	}
	return vals[0] == 1, remaining, time.UnixMicro(vals[2]), nil
}
