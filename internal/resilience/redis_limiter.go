package resilience

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements DistributedLimiter on top of Redis: one Lua
// script call checks and increments every descriptor in the batch
// atomically, so concurrent callers across instances never race the same
// window counter.
type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
}

// NewRedisLimiter wraps an existing Redis client. UniversalClient accepts a
// single node, cluster, or sentinel client interchangeably.
func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	luaScript := `
local results = {}
local now = tonumber(ARGV[1])
local window_size = tonumber(ARGV[2])

for i = 1, #KEYS, 2 do
    local window_key = KEYS[i]
    local counter_key = KEYS[i + 1]

    local window_start = redis.call('GET', window_key)

    if not window_start or (now - tonumber(window_start)) >= window_size then
        redis.call('SET', window_key, tostring(now))
        redis.call('SET', counter_key, 1)
        redis.call('EXPIRE', window_key, window_size)
        redis.call('EXPIRE', counter_key, window_size)
        table.insert(results, tostring(now))
        table.insert(results, 1)
    else
        local counter = redis.call('INCR', counter_key)
        if redis.call('TTL', counter_key) == -1 then
            redis.call('EXPIRE', counter_key, window_size)
        end
        table.insert(results, window_start)
        table.insert(results, counter)
    end
end

return results
`
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(luaScript),
	}
}

// CheckAllow runs the batch check-and-increment script. All descriptors in
// one call are assumed to share the same window size.
func (r *RedisLimiter) CheckAllow(ctx context.Context, descriptors []Descriptor) ([]LimitResult, error) {
	if len(descriptors) == 0 {
		return nil, nil
	}

	now := time.Now().Unix()
	windowSize := int64(descriptors[0].Window.Seconds())
	if windowSize <= 0 {
		windowSize = 60
	}

	keys := make([]string, 0, len(descriptors)*2)
	for _, desc := range descriptors {
		// Braces keep the window and counter keys on the same cluster node.
		tag := fmt.Sprintf("{%s:%s}", desc.Key, desc.Value)
		baseKey := fmt.Sprintf("%s:%s", tag, desc.Type)
		keys = append(keys, baseKey+":window", baseKey+":count")
	}

	val, err := r.script.Run(ctx, r.client, keys, now, windowSize).Result()
	if err != nil {
		return nil, err
	}

	resultsSlice, ok := val.([]interface{})
	if !ok {
		return nil, fmt.Errorf("resilience: unexpected redis script result type %T", val)
	}
	if len(resultsSlice) != len(descriptors)*2 {
		return nil, fmt.Errorf("resilience: unexpected redis script result length: got %d, want %d", len(resultsSlice), len(descriptors)*2)
	}

	out := make([]LimitResult, len(descriptors))
	for i, desc := range descriptors {
		current := toInt64(resultsSlice[i*2+1])
		windowStart := toInt64(resultsSlice[i*2])

		remaining := desc.Limit - current
		if remaining < 0 {
			remaining = 0
		}

		out[i] = LimitResult{
			Allowed:   current <= desc.Limit,
			Current:   current,
			Remaining: remaining,
			ResetAt:   windowStart + windowSize,
		}
	}

	return out, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed
	case float64:
		return int64(n)
	default:
		parsed, _ := strconv.ParseInt(fmt.Sprintf("%v", n), 10, 64)
		return parsed
	}
}
