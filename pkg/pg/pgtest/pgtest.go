//go:build integration

// Package pgtest starts a disposable PostgreSQL container with the embedded
// migrations applied, for integration tests of the Postgres stores.
package pgtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/pg"
)

// New returns a migrated pool. The container is terminated on test cleanup.
// The test is skipped when no container runtime is reachable.
func New(t *testing.T) *pgxpool.Pool {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("container runtime not available, skipping integration test")
	}
	_ = provider.Close()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("creditledger_test"),
		postgres.WithUsername("creditledger"),
		postgres.WithPassword("creditledger"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	cfg := pg.Config{
		ConnectionString: dsn,
		MaxOpenConns:     20,
		MaxIdleConns:     1,
		RetryAttempts:    5,
		RetryInterval:    500 * time.Millisecond,
		MigrationsTable:  "schema_migrations",
	}

	pool, err := pg.Connect(ctx, cfg)
	require.NoError(t, err, "connect")
	t.Cleanup(pool.Close)

	require.NoError(t, pg.Migrate(ctx, pool, cfg, logger.Discard()), "migrate")
	return pool
}
