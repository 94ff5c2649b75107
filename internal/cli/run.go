package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/goldrush/internal/config"
	"github.com/mesh-intelligence/goldrush/internal/coordinator"
)

func newRunCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prospect one partition, or all of them",
		Long: "Run scans the configured partition (--instance, INSTANCE_ID) until every\n" +
			"located treasure is dug and cashed. With --all every partition runs in\n" +
			"parallel in this process. SIGINT or SIGTERM stops the run.",
		Args: cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			a.bindFlag(cmd, "instance", config.KeyInstanceID)
			a.bindFlag(cmd, "journal", config.KeyJournalPath)
			a.bindFlag(cmd, "metrics-addr", config.KeyMetricsAddr)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return userError{err}
			}
			log, err := a.logger(cmd, cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			opts := coordinator.Options{Log: log}

			var summaries []coordinator.Summary
			if all {
				summaries, err = coordinator.RunAll(ctx, cfg, opts)
			} else {
				var s coordinator.Summary
				s, err = coordinator.Run(ctx, cfg, opts)
				summaries = []coordinator.Summary{s}
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return writeRunReports(cmd.OutOrStdout(), a.flags.jsonMode, summaries)
		},
	}
	cmd.Flags().Int("instance", 0, "partition to run (default: INSTANCE_ID)")
	cmd.Flags().BoolVar(&all, "all", false, "run every partition")
	cmd.Flags().String("journal", "", "SQLite journal file (default: in memory)")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}
