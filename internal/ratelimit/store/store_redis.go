package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"foodlink/internal/ratelimit/models"
	"foodlink/pkg/requestcontext"
)

const keyPrefix = "foodlink:lockout:"

// recordFailureScript increments the counter and, on the first failure of a
// window, stamps the window start and arms the expiry.
var recordFailureScript = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], "failures", 1)
if n == 1 then
	redis.call("HSET", KEYS[1], "window_start", ARGV[1])
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return redis.call("HMGET", KEYS[1], "failures", "window_start", "locked_until")
`)

// RedisStore keeps one hash per key. The key's TTL is the window while
// unlocked and the lock's end once locked.
type RedisStore struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) RecordFailure(ctx context.Context, key string, window time.Duration) (*models.Lockout, error) {
	now := requestcontext.Now(ctx)
	res, err := recordFailureScript.Run(ctx, s.client, []string{keyPrefix + key},
		now.UnixMilli(), window.Milliseconds()).Slice()
	if err != nil {
		return nil, fmt.Errorf("record failure: %w", err)
	}
	fields := make(map[string]string, 3)
	for i, name := range []string{"failures", "window_start", "locked_until"} {
		if i < len(res) {
			if v, ok := res[i].(string); ok {
				fields[name] = v
			}
		}
	}
	return decode(key, fields)
}

func (s *RedisStore) Lock(ctx context.Context, key string, until time.Time) error {
	k := keyPrefix + key
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, "locked_until", until.UnixMilli())
		p.PExpireAt(ctx, k, until)
		return nil
	})
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.Lockout, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+key).Result()
	if err != nil {
		return nil, fmt.Errorf("get lockout: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return decode(key, fields)
}

func (s *RedisStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}
	return nil
}

func decode(key string, fields map[string]string) (*models.Lockout, error) {
	rec := &models.Lockout{Key: key}
	var err error
	if v := fields["failures"]; v != "" {
		if rec.Failures, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("decode failures: %w", err)
		}
	}
	if v := fields["window_start"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode window start: %w", err)
		}
		rec.WindowStart = time.UnixMilli(ms).UTC()
	}
	if v := fields["locked_until"]; v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode lock: %w", err)
		}
		until := time.UnixMilli(ms).UTC()
		rec.LockedUntil = &until
	}
	return rec, nil
}
