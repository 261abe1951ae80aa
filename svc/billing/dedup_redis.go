package billing

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// RedisDedup keeps one string key per provider event: "pending" while claimed,
// then the outcome. Expiry bounds both the claim lease and the retention window.
type RedisDedup struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDedup namespaces keys under prefix + "billing:event:".
func NewRedisDedup(client redis.UniversalClient, prefix string) *RedisDedup {
	return &RedisDedup{client: client, prefix: prefix + "billing:event:"}
}

func (d *RedisDedup) key(provider, id string) string {
	return d.prefix + dedupKey(provider, id)
}

func (d *RedisDedup) Claim(ctx context.Context, provider, id string, lease time.Duration) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(provider, id), pendingMarker, lease).Result()
	if err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	return ok, nil
}

func (d *RedisDedup) Complete(ctx context.Context, provider, id string, outcome Outcome, ttl time.Duration) error {
	if err := d.client.Set(ctx, d.key(provider, id), string(outcome), ttl).Err(); err != nil {
		return errors.Join(ErrDedupUnavailable, err)
	}
	return nil
}

// Outcome returns the recorded outcome; ok is false while pending or absent.
func (d *RedisDedup) Outcome(ctx context.Context, provider, id string) (Outcome, bool, error) {
	v, err := d.client.Get(ctx, d.key(provider, id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrDedupUnavailable, err)
	}
	if v == pendingMarker {
		return "", false, nil
	}
	return Outcome(v), true, nil
}
