// Package pg bootstraps PostgreSQL access for the ledger, quota, subscription
// and billing stores using the pgx/v5 driver.
//
// It covers the connection pool (Connect retries with backoff until the
// database answers a ping), schema migrations (Migrate runs goose against the
// pool, from disk or from the embedded migrations package), a Healthcheck
// closure for readiness probes and helpers that classify *pgconn.PgError
// values.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, cfg, log); err != nil {
//		return err
//	}
//
// Stores use IsConflictError to tell serialization failures and deadlocks
// (safe to retry the whole transaction) apart from other failures.
package pg
