package main

import (
	"github.com/spf13/cobra"

	"github.com/coachkit/creditledger/pkg/pg"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply Postgres migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close(ctx)

			pool, err := a.postgres(ctx)
			if err != nil {
				return err
			}
			if err := pg.Migrate(ctx, pool, a.pgCfg, a.log); err != nil {
				return err
			}
			a.log.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}
