package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "creditd",
		Short:         "Credit ledger and billing sync service",
		Long:          "creditd keeps per-account credit ledgers, enforces monthly feature quotas and applies billing provider webhooks to subscriptions.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newServeCmd(),
		newSweepCmd(),
		newMigrateCmd(),
	)
	return root
}
