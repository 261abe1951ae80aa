package quota

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counters are hashes with fields "used" and "reset_at" (unix ms). Keys expire
// a week after their period ends so idle counters do not accumulate.
const redisGrace = 7 * 24 * time.Hour

// KEYS[1] counter key, KEYS[2] the account's feature index
// ARGV[1] now ms, ARGV[2] limit, ARGV[3] next reset ms, ARGV[4] grace ms, ARGV[5] feature
var checkAndIncrementScript = redis.NewScript(`
local used = tonumber(redis.call('HGET', KEYS[1], 'used') or '0')
local reset_at = tonumber(redis.call('HGET', KEYS[1], 'reset_at') or '0')
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if reset_at == 0 or now >= reset_at then
  used = 0
  reset_at = tonumber(ARGV[3])
end
local allowed = 0
if limit < 0 or used < limit then
  used = used + 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'used', used, 'reset_at', reset_at)
redis.call('PEXPIREAT', KEYS[1], reset_at + tonumber(ARGV[4]))
redis.call('SADD', KEYS[2], ARGV[5])
if redis.call('PTTL', KEYS[2]) < reset_at + tonumber(ARGV[4]) - now then
  redis.call('PEXPIREAT', KEYS[2], reset_at + tonumber(ARGV[4]))
end
return {used, reset_at, allowed}
`)

// KEYS[1] counter key
// ARGV[1] next reset ms, ARGV[2] expire-at ms
var resetScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'used', 0, 'reset_at', ARGV[1])
redis.call('PEXPIREAT', KEYS[1], ARGV[2])
return 1
`)

// RedisStore keeps counters in Redis. CheckAndIncrement runs as one Lua
// script so it is atomic across every process sharing the instance.
//
// Counters live under <prefix>quota:counter:<account>:<feature>. Each account
// also has a set <prefix>quota:features:<account> naming its features, so
// Reset touches exactly that account's counters whatever characters the
// account id contains.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore namespaces keys under prefix + "quota:".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix + "quota:"}
}

func (s *RedisStore) key(accountID string, feature Feature) string {
	return s.prefix + "counter:" + accountID + ":" + string(feature)
}

func (s *RedisStore) indexKey(accountID string) string {
	return s.prefix + "features:" + accountID
}

func (s *RedisStore) CheckAndIncrement(ctx context.Context, accountID string, feature Feature, limit int64, now time.Time) (Counter, bool, error) {
	res, err := checkAndIncrementScript.Run(ctx, s.client,
		[]string{s.key(accountID, feature), s.indexKey(accountID)},
		now.UnixMilli(), limit, NextPeriodStart(now).UnixMilli(), redisGrace.Milliseconds(), string(feature),
	).Int64Slice()
	if err != nil {
		return Counter{}, false, errors.Join(ErrStorageUnavailable, err)
	}
	if len(res) != 3 {
		return Counter{}, false, errors.Join(ErrStorageUnavailable, errors.New("unexpected script result"))
	}
	return Counter{Used: res[0], ResetAt: time.UnixMilli(res[1]).UTC()}, res[2] == 1, nil
}

func (s *RedisStore) Get(ctx context.Context, accountID string, feature Feature) (Counter, bool, error) {
	vals, err := s.client.HGetAll(ctx, s.key(accountID, feature)).Result()
	if err != nil {
		return Counter{}, false, errors.Join(ErrStorageUnavailable, err)
	}
	if len(vals) == 0 {
		return Counter{}, false, nil
	}
	used, _ := strconv.ParseInt(vals["used"], 10, 64)
	resetAt, _ := strconv.ParseInt(vals["reset_at"], 10, 64)
	return Counter{Used: used, ResetAt: time.UnixMilli(resetAt).UTC()}, true, nil
}

func (s *RedisStore) Reset(ctx context.Context, accountID string, now time.Time) (int, error) {
	features, err := s.client.SMembers(ctx, s.indexKey(accountID)).Result()
	if err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	n := 0
	for _, f := range features {
		ok, err := s.reset(ctx, s.key(accountID, Feature(f)), now)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

func (s *RedisStore) ResetAll(ctx context.Context, now time.Time) (int, error) {
	n := 0
	iter := s.client.Scan(ctx, 0, escapeGlob(s.prefix+"counter:")+"*", 200).Iterator()
	for iter.Next(ctx) {
		ok, err := s.reset(ctx, iter.Val(), now)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if err := iter.Err(); err != nil {
		return n, errors.Join(ErrStorageUnavailable, err)
	}
	return n, nil
}

// reset zeroes an existing counter. Expired counters are not recreated.
func (s *RedisStore) reset(ctx context.Context, key string, now time.Time) (bool, error) {
	next := NextPeriodStart(now)
	done, err := resetScript.Run(ctx, s.client, []string{key},
		next.UnixMilli(), next.Add(redisGrace).UnixMilli(),
	).Int()
	if err != nil {
		return false, errors.Join(ErrStorageUnavailable, err)
	}
	return done == 1, nil
}

// escapeGlob quotes the SCAN pattern metacharacters in a literal prefix.
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
