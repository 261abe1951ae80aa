package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/coachkit/creditledger/pkg/config"
	"github.com/coachkit/creditledger/pkg/httpserver"
	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/metrics"
	"github.com/coachkit/creditledger/pkg/mongo"
	"github.com/coachkit/creditledger/pkg/pg"
	"github.com/coachkit/creditledger/pkg/redis"
	"github.com/coachkit/creditledger/svc/billing"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/httpapi"
	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/quota"
	"github.com/coachkit/creditledger/svc/subscription"
)

// app holds the process-wide dependencies. Connections are opened on first
// use so a memory-only setup needs no infrastructure.
type app struct {
	cfg      settings
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	pgCfg  pg.Config
	pool   *pgxpool.Pool
	rdbCfg redis.Config
	rdb    *goredis.Client
	mdb    *mongodrv.Database
	mcli   *mongodrv.Client

	checks []httpserver.Check

	credits  *credit.Service
	enforcer *quota.Enforcer
	dedup    billing.DedupStore
	webhooks http.Handler
}

func newApp() (*app, error) {
	cfg, err := loadSettings()
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.App)
	if err != nil {
		return nil, err
	}
	reg := metrics.NewRegistry()
	return &app{cfg: cfg, log: log, registry: reg, metrics: metrics.New(reg)}, nil
}

func (a *app) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if a.pool != nil {
		return a.pool, nil
	}
	if err := config.Load(&a.pgCfg); err != nil {
		return nil, err
	}
	pool, err := pg.Connect(ctx, a.pgCfg)
	if err != nil {
		return nil, err
	}
	a.pool = pool
	a.checks = append(a.checks, httpserver.Check{Name: "postgres", Fn: pg.Healthcheck(pool)})
	return pool, nil
}

func (a *app) redis(ctx context.Context) (*goredis.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	if err := config.Load(&a.rdbCfg); err != nil {
		return nil, err
	}
	client, err := redis.Connect(ctx, a.rdbCfg)
	if err != nil {
		return nil, err
	}
	a.rdb = client
	a.checks = append(a.checks, httpserver.Check{Name: "redis", Fn: redis.Healthcheck(client)})
	return client, nil
}

func (a *app) mongo(ctx context.Context) (*mongodrv.Database, error) {
	if a.mdb != nil {
		return a.mdb, nil
	}
	var cfg mongo.Config
	if err := config.Load(&cfg); err != nil {
		return nil, err
	}
	client, err := mongo.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.mcli = client
	a.mdb = client.Database(cfg.Database)
	a.checks = append(a.checks, httpserver.Check{Name: "mongo", Fn: mongo.Healthcheck(client)})
	return a.mdb, nil
}

func (a *app) ledgerStore(ctx context.Context) (ledger.Store, error) {
	cfg := a.cfg.Ledger
	opts := []ledger.StoreOption{ledger.WithHistoryCap(cfg.HistoryCap)}

	var base ledger.Store
	switch cfg.Backend {
	case ledger.BackendMemory, "":
		base = ledger.NewMemoryStore(opts...)
	case ledger.BackendPostgres:
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		base = ledger.NewPostgresStore(pool, opts...)
	case ledger.BackendMongo:
		db, err := a.mongo(ctx)
		if err != nil {
			return nil, err
		}
		base = ledger.NewMongoStore(db, opts...)
	default:
		return nil, fmt.Errorf("unknown LEDGER_BACKEND %q", cfg.Backend)
	}

	if cfg.OpTimeout > 0 {
		base = ledger.WithTimeout(base, cfg.OpTimeout)
	}
	return ledger.WithRetry(base,
		ledger.WithMaxAttempts(cfg.MaxRetries),
		ledger.WithOnRetry(func(attempt int, err error) {
			a.metrics.LedgerRetry()
			a.log.Debug("retrying ledger update", logger.RetryCount(attempt), logger.Error(err))
		}),
	), nil
}

func (a *app) counterStore(ctx context.Context) (quota.CounterStore, error) {
	switch a.cfg.Quota.Backend {
	case "memory", "":
		return quota.NewMemoryStore(), nil
	case "redis":
		client, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return quota.NewRedisStore(client, a.rdbCfg.KeyPrefix), nil
	case "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return quota.NewPostgresStore(pool), nil
	}
	return nil, fmt.Errorf("unknown QUOTA_BACKEND %q", a.cfg.Quota.Backend)
}

func (a *app) dedupStore(ctx context.Context) (billing.DedupStore, error) {
	switch a.cfg.Billing.DedupBackend {
	case "memory", "":
		return billing.NewMemoryDedup(), nil
	case "redis":
		client, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return billing.NewRedisDedup(client, a.rdbCfg.KeyPrefix), nil
	case "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return billing.NewPostgresDedup(pool), nil
	}
	return nil, fmt.Errorf("unknown BILLING_DEDUP_BACKEND %q", a.cfg.Billing.DedupBackend)
}

func (a *app) subscriptionStore(ctx context.Context) (subscription.Store, error) {
	switch a.cfg.Subscription.Backend {
	case "memory", "":
		return subscription.NewMemoryStore(), nil
	case "postgres":
		pool, err := a.postgres(ctx)
		if err != nil {
			return nil, err
		}
		return subscription.NewPostgresStore(pool), nil
	}
	return nil, fmt.Errorf("unknown SUBSCRIPTION_BACKEND %q", a.cfg.Subscription.Backend)
}

// buildQuota loads plans and the counter store. Plans from a file also
// supply the credit grants.
func (a *app) buildQuota(ctx context.Context) error {
	store, err := a.counterStore(ctx)
	if err != nil {
		return err
	}
	enforcer, err := quota.NewEnforcer(ctx, a.cfg.Quota.Source(), store,
		quota.WithLogger(a.log),
		quota.WithMetrics(a.metrics),
	)
	if err != nil {
		return err
	}
	a.enforcer = enforcer
	return nil
}

func (a *app) buildCredits(ctx context.Context) error {
	store, err := a.ledgerStore(ctx)
	if err != nil {
		return err
	}

	grants := a.cfg.Credit.Grants()
	if a.cfg.Quota.PlansFile != "" && a.enforcer != nil {
		grants = grantsFromPlans(a.enforcer.Plans())
	}
	if err := grants.Validate(); err != nil {
		return err
	}

	a.credits = credit.NewService(store,
		credit.WithGrants(grants),
		credit.WithLogger(a.log),
		credit.WithMetrics(a.metrics),
	)
	return nil
}

func (a *app) buildBilling(ctx context.Context) error {
	providers, err := billing.NewProviders(a.cfg.Billing)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		a.log.WarnContext(ctx, "no billing providers configured, webhooks disabled")
		return nil
	}

	subs, err := a.subscriptionStore(ctx)
	if err != nil {
		return err
	}
	handler, err := subscription.NewService(subs, a.credits, subscription.WithLogger(a.log))
	if err != nil {
		return err
	}
	dedup, err := a.dedupStore(ctx)
	if err != nil {
		return err
	}
	a.dedup = dedup

	opts := []billing.Option{
		billing.WithLogger(a.log),
		billing.WithMetrics(a.metrics),
		billing.WithDedupTTL(a.cfg.Billing.DedupTTL),
		billing.WithClaimLease(a.cfg.Billing.ClaimLease),
	}
	if a.cfg.Archive.Enabled() {
		archive, err := billing.NewS3Archive(ctx, a.cfg.Archive)
		if err != nil {
			return err
		}
		opts = append(opts, billing.WithArchive(archive))
	}

	processor := billing.NewProcessor(providers, dedup, handler, opts...)
	a.webhooks = billing.NewWebhookHandler(processor, a.cfg.Billing.MaxBodyBytes, a.log).Routes()
	return nil
}

func (a *app) router() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		API:      httpapi.New(a.credits, a.enforcer, a.log),
		Webhooks: a.webhooks,
		Metrics:  a.metrics,
		Registry: a.registry,
		Checks:   a.checks,
		Logger:   a.log,
	})
}

func (a *app) close(ctx context.Context) {
	if a.pool != nil {
		a.pool.Close()
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.ErrorContext(ctx, "failed to close redis", logger.Error(err))
		}
	}
	if a.mcli != nil {
		if err := a.mcli.Disconnect(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, mongodrv.ErrClientDisconnected) {
			a.log.ErrorContext(ctx, "failed to close mongo", logger.Error(err))
		}
	}
}
