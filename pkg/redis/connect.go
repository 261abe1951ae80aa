package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/coachkit/creditledger/pkg/retry"
)

// Connect returns a client that has answered a ping.
func Connect(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.ConnectionURL == "" {
		return nil, ErrEmptyConnectionURL
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	opts, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	var client *redis.Client
	err = retry.Do(ctx, retry.Policy{
		MaxAttempts: cfg.RetryAttempts,
		Backoff:     retry.FixedBackoff{Interval: cfg.RetryInterval},
		Retryable:   func(error) bool { return true },
	}, func(ctx context.Context) error {
		c := redis.NewClient(opts)
		if err := c.Ping(ctx).Err(); err != nil {
			_ = c.Close()
			return err
		}
		client = c
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrRedisNotReady, err)
	}

	return client, nil
}
