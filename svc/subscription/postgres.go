package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coachkit/creditledger/pkg/pg"
	"github.com/coachkit/creditledger/svc/ledger"
)

// DB is the subset of *pgxpool.Pool used by PostgresStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps projections in the subscriptions table. The ordering
// guard is part of the upsert so concurrent writers cannot regress a row.
type PostgresStore struct {
	db DB
}

func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const (
	subscriptionColumns = `id, account_id, customer_id, tier, status, current_period_start,
       current_period_end, cancel_at_period_end, last_event_id, last_event_at, updated_at`

	getSubscriptionSQL = `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`

	findByCustomerSQL = `SELECT ` + subscriptionColumns + ` FROM subscriptions
WHERE customer_id = $1 ORDER BY updated_at DESC LIMIT 1`

	saveSubscriptionSQL = `
INSERT INTO subscriptions (` + subscriptionColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
ON CONFLICT (id) DO UPDATE SET
    account_id = EXCLUDED.account_id,
    customer_id = EXCLUDED.customer_id,
    tier = EXCLUDED.tier,
    status = EXCLUDED.status,
    current_period_start = EXCLUDED.current_period_start,
    current_period_end = EXCLUDED.current_period_end,
    cancel_at_period_end = EXCLUDED.cancel_at_period_end,
    last_event_id = EXCLUDED.last_event_id,
    last_event_at = EXCLUDED.last_event_at,
    updated_at = EXCLUDED.updated_at
WHERE subscriptions.last_event_at <= EXCLUDED.last_event_at`
)

func (s *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	return s.scanOne(s.db.QueryRow(ctx, getSubscriptionSQL, id))
}

func (s *PostgresStore) FindByCustomer(ctx context.Context, customerID string) (*Subscription, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return s.scanOne(s.db.QueryRow(ctx, findByCustomerSQL, customerID))
}

func (s *PostgresStore) Save(ctx context.Context, sub *Subscription) (bool, error) {
	tag, err := s.db.Exec(ctx, saveSubscriptionSQL,
		sub.ID, sub.AccountID, sub.CustomerID, string(sub.Tier), string(sub.Status),
		nullTime(sub.CurrentPeriodStart), nullTime(sub.CurrentPeriodEnd), sub.CancelAtPeriodEnd,
		sub.LastEventID, sub.LastEventAt.UTC(), sub.UpdatedAt.UTC(),
	)
	if err != nil {
		return false, errors.Join(ErrStorageUnavailable, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) scanOne(row pgx.Row) (*Subscription, error) {
	var (
		sub         Subscription
		tier        string
		status      string
		periodStart *time.Time
		periodEnd   *time.Time
	)
	err := row.Scan(&sub.ID, &sub.AccountID, &sub.CustomerID, &tier, &status, &periodStart,
		&periodEnd, &sub.CancelAtPeriodEnd, &sub.LastEventID, &sub.LastEventAt, &sub.UpdatedAt)
	if pg.IsNotFoundError(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	sub.Tier = ledger.Tier(tier)
	sub.Status = Status(status)
	if periodStart != nil {
		sub.CurrentPeriodStart = periodStart.UTC()
	}
	if periodEnd != nil {
		sub.CurrentPeriodEnd = periodEnd.UTC()
	}
	sub.LastEventAt = sub.LastEventAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()
	return &sub, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
