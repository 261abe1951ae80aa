package main

import (
	"fmt"
	"log/slog"

	"github.com/coachkit/creditledger/pkg/config"
	"github.com/coachkit/creditledger/pkg/httpserver"
	"github.com/coachkit/creditledger/pkg/logger"
	"github.com/coachkit/creditledger/pkg/requestid"
	"github.com/coachkit/creditledger/svc/billing"
	"github.com/coachkit/creditledger/svc/credit"
	"github.com/coachkit/creditledger/svc/ledger"
	"github.com/coachkit/creditledger/svc/quota"
	"github.com/coachkit/creditledger/svc/subscription"
)

type appConfig struct {
	Env      string `env:"APP_ENV" envDefault:"development"`
	Name     string `env:"APP_NAME" envDefault:"creditd"`
	LogLevel string `env:"LOG_LEVEL"`
}

// settings is every config section the process reads.
type settings struct {
	App          appConfig
	HTTP         httpserver.Config
	Ledger       ledger.Config
	Credit       credit.Config
	Quota        quota.Config
	Billing      billing.Config
	Archive      billing.S3ArchiveConfig
	Subscription subscription.Config
}

func loadSettings() (settings, error) {
	var s settings
	for _, load := range []func() error{
		func() error { return config.Load(&s.App) },
		func() error { return config.Load(&s.HTTP) },
		func() error { return config.Load(&s.Ledger) },
		func() error { return config.Load(&s.Credit) },
		func() error { return config.Load(&s.Quota) },
		func() error { return config.Load(&s.Billing) },
		func() error { return config.Load(&s.Archive) },
		func() error { return config.Load(&s.Subscription) },
	} {
		if err := load(); err != nil {
			return settings{}, err
		}
	}
	return s, nil
}

func newLogger(cfg appConfig) (*slog.Logger, error) {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Env, cfg.Name),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
		}
		opts = append(opts, logger.WithLevel(level))
	}
	return logger.New(opts...), nil
}

// grantsFromPlans takes credit grants from a plans file so one document
// describes each tier.
func grantsFromPlans(plans map[ledger.Tier]quota.Plan) credit.Grants {
	g := make(credit.Grants, len(plans))
	for tier, p := range plans {
		g[tier] = credit.Grant{Initial: p.InitialGrant, Renewal: p.RenewalGrant}
	}
	return g
}
