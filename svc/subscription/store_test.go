package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/subscription"
)

func exerciseStore(t *testing.T, store subscription.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "sub_1")
	require.ErrorIs(t, err, subscription.ErrNotFound)
	_, err = store.FindByCustomer(ctx, "cus_1")
	require.ErrorIs(t, err, subscription.ErrNotFound)

	sub := &subscription.Subscription{
		ID:               "sub_1",
		AccountID:        "acc_1",
		CustomerID:       "cus_1",
		Tier:             ledger.TierPro,
		Status:           subscription.StatusActive,
		CurrentPeriodEnd: t0.AddDate(0, 1, 0),
		LastEventID:      "evt_2",
		LastEventAt:      t0.Add(time.Hour),
		UpdatedAt:        t0.Add(time.Hour),
	}
	saved, err := store.Save(ctx, sub)
	require.NoError(t, err)
	assert.True(t, saved)

	older := *sub
	older.Status = subscription.StatusCanceled
	older.LastEventID = "evt_1"
	older.LastEventAt = t0
	saved, err = store.Save(ctx, &older)
	require.NoError(t, err)
	assert.False(t, saved)

	got, err := store.Get(ctx, "sub_1")
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusActive, got.Status)
	assert.Equal(t, "evt_2", got.LastEventID)
	assert.True(t, got.CurrentPeriodStart.IsZero())
	assert.True(t, got.CurrentPeriodEnd.Equal(t0.AddDate(0, 1, 0)))

	same := *sub
	same.CancelAtPeriodEnd = true
	saved, err = store.Save(ctx, &same)
	require.NoError(t, err)
	assert.True(t, saved)

	got, err = store.FindByCustomer(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", got.ID)
	assert.True(t, got.CancelAtPeriodEnd)
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	exerciseStore(t, subscription.NewMemoryStore())
}
