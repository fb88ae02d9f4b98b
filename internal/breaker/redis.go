package breaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// saveIfVersion writes the record and bumps the version in one atomic step,
// but only when the stored version still matches the caller's.
var saveIfVersion = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], "version")
if v == false then
	v = "0"
end
if v ~= ARGV[1] then
	return 0
end
redis.call("HSET", KEYS[1], "version", ARGV[1] + 1, "record", ARGV[2])
return 1
`)

// RedisStore implements Store on a shared Redis, one hash per service. All
// orchestrator processes pointed at the same Redis see the same breaker state.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Store backed by the given Redis client.
// All keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "leadgen"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(service string) string {
	return s.prefix + ":breaker:" + service
}

// Load returns the service's record and version, zero values when absent.
func (s *RedisStore) Load(ctx context.Context, service string) (Record, int64, error) {
	vals, err := s.client.HMGet(ctx, s.key(service), "version", "record").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Record{}, 0, fmt.Errorf("load breaker record %s: %w", service, err)
	}

	var rec Record
	var version int64
	if len(vals) == 2 {
		if raw, ok := vals[0].(string); ok {
			if version, err = strconv.ParseInt(raw, 10, 64); err != nil {
				return Record{}, 0, fmt.Errorf("parse breaker version %s: %w", service, err)
			}
		}
		if raw, ok := vals[1].(string); ok {
			if err = json.Unmarshal([]byte(raw), &rec); err != nil {
				return Record{}, 0, fmt.Errorf("decode breaker record %s: %w", service, err)
			}
		}
	}
	return rec, version, nil
}

// Save writes the record when the version still matches.
func (s *RedisStore) Save(ctx context.Context, service string, rec Record, version int64) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("encode breaker record %s: %w", service, err)
	}
	won, err := saveIfVersion.Run(ctx, s.client, []string{s.key(service)}, version, string(data)).Int64()
	if err != nil {
		return false, fmt.Errorf("save breaker record %s: %w", service, err)
	}
	return won == 1, nil
}
