//go:build integration

package ledger_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"github.com/coachkit/creditledger/pkg/mongo"
	"github.com/coachkit/creditledger/pkg/pg/pgtest"
	"github.com/coachkit/creditledger/pkg/retry"
	"github.com/coachkit/creditledger/svc/ledger"
)

func exerciseStore(t *testing.T, base ledger.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := base.Get(ctx, "acc_int")
	require.ErrorIs(t, err, ledger.ErrNotFound)

	_, _, err = base.AtomicUpdate(ctx, "acc_int", create(250))
	require.NoError(t, err)

	_, _, err = base.AtomicUpdate(ctx, "acc_int", create(250))
	require.ErrorIs(t, err, ledger.ErrAlreadyExists)

	store := ledger.WithRetry(base,
		ledger.WithMaxAttempts(50),
		ledger.WithBackoff(retry.ExponentialBackoff{InitialInterval: time.Millisecond, MaxInterval: 20 * time.Millisecond, Multiplier: 2, JitterFactor: 0.5}),
	)

	const writers = 20
	var g errgroup.Group
	for i := range writers {
		g.Go(func() error {
			_, _, err := store.AtomicUpdate(ctx, "acc_int", func(a *ledger.Account) (*ledger.Account, *ledger.Transaction, error) {
				a.Balance += 5
				return a, &ledger.Transaction{
					Kind:     ledger.KindAddition,
					Delta:    5,
					Metadata: ledger.Metadata{Reason: fmt.Sprintf("writer-%d", i), Extra: map[string]string{"n": "1"}},
				}, nil
			})
			return err
		})
	}
	require.NoError(t, g.Wait())

	acc, err := base.Get(ctx, "acc_int")
	require.NoError(t, err)
	assert.Equal(t, int64(250+writers*5), acc.Balance)
	assert.Len(t, acc.Transactions, 10)
	assert.Equal(t, "1", acc.Transactions[9].Metadata.Extra["n"])
	assert.NoError(t, ledger.Verify(acc))
}

func TestPostgresStore(t *testing.T) {
	pool := pgtest.New(t)
	exerciseStore(t, ledger.NewPostgresStore(pool, ledger.WithHistoryCap(10)))
}

func TestMongoStore(t *testing.T) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("mongo container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(container) })

	endpoint, err := container.PortEndpoint(ctx, "27017/tcp", "mongodb")
	require.NoError(t, err)

	db, err := mongo.ConnectDatabase(ctx, mongo.Config{
		ConnectionURL:  endpoint,
		Database:       "creditledger_test",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    50,
		RetryAttempts:  5,
		RetryInterval:  time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Client().Disconnect(context.Background()) })

	exerciseStore(t, ledger.NewMongoStore(db, ledger.WithHistoryCap(10)))
}
