package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"mail-agent/internal/auditlog"
	"mail-agent/internal/cli"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent decisions from the SQLite history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			cfg, err := loadConfiguration(cmd, opts)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}

			store, err := auditlog.OpenStore(cmd.Context(), cfg.Log.SQLitePath)
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			formatter := cli.NewOutputFormatter(opts.format, opts.quiet, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return formatter.PrintDecisions(entries)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of decisions to show")
	return cmd
}
