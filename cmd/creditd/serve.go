package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coachkit/creditledger/pkg/httpserver"
	"github.com/coachkit/creditledger/pkg/pg"
	"github.com/coachkit/creditledger/svc/quota"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, billing webhooks and the quota sweeper",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply Postgres migrations before serving")
	return cmd
}

func serve(ctx context.Context, migrate bool) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.buildQuota(ctx); err != nil {
		return err
	}
	if err := a.buildCredits(ctx); err != nil {
		return err
	}
	if err := a.buildBilling(ctx); err != nil {
		return err
	}
	if migrate && a.pool != nil {
		if err := pg.Migrate(ctx, a.pool, a.pgCfg, a.log); err != nil {
			return err
		}
	}

	server := httpserver.NewFromConfig(a.cfg.HTTP, httpserver.WithLogger(a.log))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(ctx, a.router())
	})
	if a.cfg.Quota.SweepEnabled {
		sweeper, err := quota.NewSweeper(a.enforcer, a.cfg.Quota.SweepSchedule, a.log)
		if err != nil {
			return err
		}
		g.Go(func() error { return sweeper.Run(ctx) })
	}

	a.log.InfoContext(ctx, "creditd started")
	return g.Wait()
}
