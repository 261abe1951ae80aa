//go:build integration

package billing_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/pkg/pg/pgtest"
	"github.com/coachkit/creditledger/svc/billing"
)

func TestPostgresDedup(t *testing.T) {
	d := billing.NewPostgresDedup(pgtest.New(t))
	ctx := context.Background()

	ok, err := d.Claim(ctx, "stripe", "evt_1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = d.Claim(ctx, "stripe", "evt_1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := d.Outcome(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, d.Complete(ctx, "stripe", "evt_1", billing.OutcomeSkipped, time.Hour))
	outcome, found, err := d.Outcome(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, billing.OutcomeSkipped, outcome)

	// The same id from another provider is a different event.
	ok, err = d.Claim(ctx, "paddle", "evt_1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	_, found, err = d.Outcome(ctx, "paddle", "evt_1")
	require.NoError(t, err)
	assert.False(t, found)

	// An expired lease can be reclaimed; a negative lease expires at once.
	ok, err = d.Claim(ctx, "stripe", "evt_2", -time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = d.Claim(ctx, "stripe", "evt_2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.Claim(ctx, "stripe", "evt_3", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, d.Complete(ctx, "stripe", "evt_3", billing.OutcomeApplied, -time.Second))

	n, err := d.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, err = d.Outcome(ctx, "stripe", "evt_3")
	require.NoError(t, err)
	assert.False(t, found)
}
