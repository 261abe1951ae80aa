package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/coachkit/creditledger/pkg/pg"
)

// DB is the subset of *pgxpool.Pool used by the Postgres stores.
type DB interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps accounts in the accounts and account_transactions
// tables created by the embedded migrations.
type PostgresStore struct {
	db  DB
	cfg storeConfig
}

func NewPostgresStore(db DB, opts ...StoreOption) *PostgresStore {
	return &PostgresStore{db: db, cfg: newStoreConfig(opts)}
}

const (
	selectAccountSQL = `
SELECT id, display_name, email, tier, balance, trimmed_delta,
       external_subscription_id, external_customer_id, tier_event_at, version, created_at, updated_at
FROM accounts WHERE id = $1`

	selectTransactionsSQL = `
SELECT id, seq, kind, delta, balance_before, balance_after, metadata, created_at
FROM account_transactions WHERE account_id = $1 ORDER BY seq`

	insertAccountSQL = `
INSERT INTO accounts (id, display_name, email, tier, balance, trimmed_delta,
       external_subscription_id, external_customer_id, tier_event_at, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO NOTHING`

	updateAccountSQL = `
UPDATE accounts SET display_name = $2, email = $3, tier = $4, balance = $5, trimmed_delta = $6,
       external_subscription_id = $7, external_customer_id = $8, tier_event_at = $9, version = $10, updated_at = $11
WHERE id = $1 AND version = $12`

	insertTransactionSQL = `
INSERT INTO account_transactions (account_id, seq, id, kind, delta, balance_before, balance_after, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	trimTransactionsSQL = `DELETE FROM account_transactions WHERE account_id = $1 AND seq < $2`
)

func (s *PostgresStore) Get(ctx context.Context, id string) (*Account, error) {
	if id == "" {
		return nil, ErrInvalidAccountID
	}
	a, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, s.mapErr(err)
	}
	if a == nil {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *PostgresStore) AtomicUpdate(ctx context.Context, id string, fn UpdateFunc) (*Account, *Transaction, error) {
	if id == "" {
		return nil, nil, ErrInvalidAccountID
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, nil, s.mapErr(err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	current, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, nil, s.mapErr(err)
	}

	next, txn, err := fn(current.Clone())
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		return current, nil, nil
	}

	committed, appended, err := prepare(id, current, next, txn, s.cfg.historyCap, s.cfg.now())
	if err != nil {
		return nil, nil, err
	}

	if err := s.writeAccount(ctx, tx, current, committed); err != nil {
		return nil, nil, err
	}

	if appended != nil {
		meta, err := json.Marshal(appended.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("ledger: encode metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, insertTransactionSQL,
			id, appended.Seq, appended.ID, string(appended.Kind), appended.Delta,
			appended.BalanceBefore, appended.BalanceAfter, meta, appended.CreatedAt,
		); err != nil {
			return nil, nil, s.mapErr(err)
		}
		if _, err := tx.Exec(ctx, trimTransactionsSQL, id, committed.Transactions[0].Seq); err != nil {
			return nil, nil, s.mapErr(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, s.mapErr(err)
	}

	return committed, appended, nil
}

func (s *PostgresStore) writeAccount(ctx context.Context, tx pgx.Tx, current, a *Account) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	if current == nil {
		tag, err = tx.Exec(ctx, insertAccountSQL,
			a.ID, a.DisplayName, a.Email, string(a.Tier), a.Balance, a.TrimmedDelta,
			a.ExternalSubscriptionID, a.ExternalCustomerID, a.TierEventAt, a.Version, a.CreatedAt, a.UpdatedAt,
		)
	} else {
		tag, err = tx.Exec(ctx, updateAccountSQL,
			a.ID, a.DisplayName, a.Email, string(a.Tier), a.Balance, a.TrimmedDelta,
			a.ExternalSubscriptionID, a.ExternalCustomerID, a.TierEventAt, a.Version, a.UpdatedAt, current.Version,
		)
	}
	if err != nil {
		return s.mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

// load returns nil, nil when the account does not exist.
func (s *PostgresStore) load(ctx context.Context, q querier, id string) (*Account, error) {
	var (
		a    Account
		tier string
	)
	err := q.QueryRow(ctx, selectAccountSQL, id).Scan(
		&a.ID, &a.DisplayName, &a.Email, &tier, &a.Balance, &a.TrimmedDelta,
		&a.ExternalSubscriptionID, &a.ExternalCustomerID, &a.TierEventAt, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}
	a.Tier = Tier(tier)
	a.TierEventAt = a.TierEventAt.UTC()

	rows, err := q.Query(ctx, selectTransactionsSQL, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			t    Transaction
			kind string
			meta []byte
		)
		if err := rows.Scan(&t.ID, &t.Seq, &kind, &t.Delta, &t.BalanceBefore, &t.BalanceAfter, &meta, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Kind = Kind(kind)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &t.Metadata); err != nil {
				return nil, fmt.Errorf("ledger: decode metadata of %s: %w", t.ID, err)
			}
		}
		a.Transactions = append(a.Transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &a, nil
}

func (s *PostgresStore) mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case pg.IsConflictError(err), pg.IsDuplicateKeyError(err):
		return errors.Join(ErrConflict, err)
	default:
		return errors.Join(ErrStorageUnavailable, err)
	}
}
