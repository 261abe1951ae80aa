package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/coachkit/creditledger/svc/billing"
)

func newSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reset every quota counter and purge expired billing event markers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return sweep(cmd.Context())
		},
	}
}

func sweep(ctx context.Context) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if err := a.buildQuota(ctx); err != nil {
		return err
	}
	n, err := a.enforcer.ResetAll(ctx)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "quota counters reset", slog.Int("counters", n))

	// Only the Postgres dedup store keeps rows past their expiry.
	if a.cfg.Billing.DedupBackend != "postgres" {
		return nil
	}
	store, err := a.dedupStore(ctx)
	if err != nil {
		return err
	}
	purged, err := store.(*billing.PostgresDedup).Purge(ctx)
	if err != nil {
		return err
	}
	a.log.InfoContext(ctx, "billing event markers purged", slog.Int("rows", purged))
	return nil
}
