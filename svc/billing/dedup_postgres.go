package billing

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coachkit/creditledger/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by PostgresDedup.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDedup keeps markers in the billing_events table. A row whose
// expires_at has passed can be claimed again.
type PostgresDedup struct {
	db  DB
	now func() time.Time
}

func NewPostgresDedup(db DB) *PostgresDedup {
	return &PostgresDedup{db: db, now: time.Now}
}

const (
	claimEventSQL = `
INSERT INTO billing_events (provider, id, outcome, claimed_at, expires_at)
VALUES ($1, $2, '', $3, $4)
ON CONFLICT (provider, id) DO UPDATE
SET outcome = '', claimed_at = EXCLUDED.claimed_at,
    completed_at = NULL, expires_at = EXCLUDED.expires_at
WHERE billing_events.expires_at <= EXCLUDED.claimed_at
RETURNING id`

	completeEventSQL = `
UPDATE billing_events SET outcome = $3, completed_at = $4, expires_at = $5 WHERE provider = $1 AND id = $2`

	outcomeEventSQL = `SELECT outcome, completed_at IS NOT NULL FROM billing_events WHERE provider = $1 AND id = $2`

	purgeEventsSQL = `DELETE FROM billing_events WHERE expires_at < $1`
)

func (d *PostgresDedup) Claim(ctx context.Context, provider, id string, lease time.Duration) (bool, error) {
	now := d.now().UTC()
	var got string
	err := d.db.QueryRow(ctx, claimEventSQL, provider, id, now, now.Add(lease)).Scan(&got)
	if pg.IsNotFoundError(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.Join(ErrDedupUnavailable, err)
	}
	return true, nil
}

func (d *PostgresDedup) Complete(ctx context.Context, provider, id string, outcome Outcome, ttl time.Duration) error {
	now := d.now().UTC()
	if _, err := d.db.Exec(ctx, completeEventSQL, provider, id, string(outcome), now, now.Add(ttl)); err != nil {
		return errors.Join(ErrDedupUnavailable, err)
	}
	return nil
}

// Outcome returns the recorded outcome; ok is false while pending or absent.
func (d *PostgresDedup) Outcome(ctx context.Context, provider, id string) (Outcome, bool, error) {
	var (
		outcome   string
		completed bool
	)
	err := d.db.QueryRow(ctx, outcomeEventSQL, provider, id).Scan(&outcome, &completed)
	if pg.IsNotFoundError(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Join(ErrDedupUnavailable, err)
	}
	return Outcome(outcome), completed, nil
}

// Purge deletes markers past their retention.
func (d *PostgresDedup) Purge(ctx context.Context) (int, error) {
	tag, err := d.db.Exec(ctx, purgeEventsSQL, d.now().UTC())
	if err != nil {
		return 0, errors.Join(ErrDedupUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}
