package quota_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/svc/quota"
)

type resetterFunc func(ctx context.Context) (int, error)

func (f resetterFunc) ResetAll(ctx context.Context) (int, error) { return f(ctx) }

func TestNewSweeper(t *testing.T) {
	t.Parallel()

	noop := resetterFunc(func(context.Context) (int, error) { return 0, nil })

	s, err := quota.NewSweeper(noop, "", logger.Discard())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC), s.Next(march))

	_, err = quota.NewSweeper(noop, "not a schedule", logger.Discard())
	assert.Error(t, err)
}

func TestSweeper_RunStopsWithContext(t *testing.T) {
	t.Parallel()

	fired := make(chan struct{}, 8)
	s, err := quota.NewSweeper(resetterFunc(func(context.Context) (int, error) {
		fired <- struct{}{}
		return 0, nil
	}), "@every 1s", logger.Discard())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("sweep did not fire")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
