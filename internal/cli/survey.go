package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/goldrush/internal/config"
	"github.com/mesh-intelligence/goldrush/internal/coordinator"
	"github.com/mesh-intelligence/goldrush/internal/remote"
	"github.com/mesh-intelligence/goldrush/internal/stats"
	"github.com/mesh-intelligence/goldrush/internal/survey"
)

// surveyReport is the printed form of a survey result.
type surveyReport struct {
	Instance int     `json:"instance"`
	Area     string  `json:"area"`
	Probed   int     `json:"probed"`
	Hits     int     `json:"hits"`
	Amount   int     `json:"amount"`
	Errors   int     `json:"errors"`
	Density  float64 `json:"density"`
	Batches  []int   `json:"batches"`
}

func newSurveyCmd(a *app) *cobra.Command {
	var batch, limit int
	cmd := &cobra.Command{
		Use:   "survey",
		Short: "Sample treasure density with single-cell probes",
		Long: "Survey probes the cells of the configured partition one by one, in\n" +
			"concurrent batches, and reports how many hold treasure per batch.",
		Args: cobra.NoArgs,
		// Flags shared by name with other commands bind only when this one runs.
		PreRun: func(cmd *cobra.Command, args []string) {
			a.bindFlag(cmd, "instance", config.KeyInstanceID)
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

			area := coordinator.Partition(cfg.Grid(), cfg.PartsX, cfg.PartsY)[cfg.InstanceID]
			rec := stats.NewRecorder(nil)
			client := remote.NewClient(remote.Config{
				BaseURL:   remote.BaseURL(cfg.Address, cfg.Port),
				RateLimit: cfg.RateLimit,
				Timeout:   cfg.RequestTimeout,
			}, rec)

			res, err := survey.New(client, batch, log).Run(cmd.Context(), area, limit)
			stats.NewReporter(rec, nil, log, 0).Report()
			if err != nil {
				return err
			}

			report := surveyReport{
				Instance: cfg.InstanceID,
				Area:     area.String(),
				Probed:   res.Probed,
				Hits:     res.Hits,
				Amount:   res.Amount,
				Errors:   res.Errors,
				Density:  res.Density(),
				Batches:  res.Batches,
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "instance %d area %s: probed %d, hits %d (%.4f), amount %d, errors %d\n",
				report.Instance, report.Area, report.Probed, report.Hits, report.Density, report.Amount, report.Errors)
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", survey.DefaultBatch, "probes in flight per batch")
	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many cells (0: whole partition)")
	cmd.Flags().Int("instance", 0, "partition to survey (default: INSTANCE_ID)")
	return cmd
}
