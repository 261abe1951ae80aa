package quota

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coachkit/creditledger/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps counters in the usage_counters table. The row lock
// taken by SELECT ... FOR UPDATE serialises concurrent increments.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	ensureCounterSQL = `
INSERT INTO usage_counters (account_id, feature, used, period_reset_at)
VALUES ($1, $2, 0, $3)
ON CONFLICT (account_id, feature) DO NOTHING`

	lockCounterSQL = `
SELECT used, period_reset_at FROM usage_counters
WHERE account_id = $1 AND feature = $2 FOR UPDATE`

	updateCounterSQL = `
UPDATE usage_counters SET used = $3, period_reset_at = $4
WHERE account_id = $1 AND feature = $2`

	getCounterSQL = `
SELECT used, period_reset_at FROM usage_counters WHERE account_id = $1 AND feature = $2`

	resetAccountSQL = `UPDATE usage_counters SET used = 0, period_reset_at = $2 WHERE account_id = $1`
	resetAllSQL     = `UPDATE usage_counters SET used = 0, period_reset_at = $1`
)

func (s *PostgresStore) CheckAndIncrement(ctx context.Context, accountID string, feature Feature, limit int64, now time.Time) (Counter, bool, error) {
	var (
		out     Counter
		allowed bool
	)
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Counter{}, false, mapErr(err)
	}
	err = func() error {
		defer func() { _ = tx.Rollback(ctx) }()

		// A fresh row starts expired so apply resets it to the current period.
		if _, err := tx.Exec(ctx, ensureCounterSQL, accountID, string(feature), now.UTC()); err != nil {
			return err
		}
		var c Counter
		if err := tx.QueryRow(ctx, lockCounterSQL, accountID, string(feature)).Scan(&c.Used, &c.ResetAt); err != nil {
			return err
		}
		out, allowed = apply(c, true, limit, now)
		if _, err := tx.Exec(ctx, updateCounterSQL, accountID, string(feature), out.Used, out.ResetAt); err != nil {
			return err
		}
		return tx.Commit(ctx)
	}()
	if err != nil {
		return Counter{}, false, mapErr(err)
	}
	out.ResetAt = out.ResetAt.UTC()
	return out, allowed, nil
}

func (s *PostgresStore) Get(ctx context.Context, accountID string, feature Feature) (Counter, bool, error) {
	var c Counter
	err := s.db.QueryRow(ctx, getCounterSQL, accountID, string(feature)).Scan(&c.Used, &c.ResetAt)
	if pg.IsNotFoundError(err) {
		return Counter{}, false, nil
	}
	if err != nil {
		return Counter{}, false, mapErr(err)
	}
	c.ResetAt = c.ResetAt.UTC()
	return c, true, nil
}

func (s *PostgresStore) Reset(ctx context.Context, accountID string, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, resetAccountSQL, accountID, NextPeriodStart(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ResetAll(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.db.Exec(ctx, resetAllSQL, NextPeriodStart(now))
	if err != nil {
		return 0, mapErr(err)
	}
	return int(tag.RowsAffected()), nil
}

func mapErr(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.Join(ErrStorageUnavailable, err)
}
