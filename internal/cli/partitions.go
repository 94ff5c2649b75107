package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/goldrush/internal/coordinator"
)

// partitionRow is one line of the partitions listing.
type partitionRow struct {
	Instance int `json:"instance"`
	PosX     int `json:"posX"`
	PosY     int `json:"posY"`
	SizeX    int `json:"sizeX"`
	SizeY    int `json:"sizeY"`
	Cells    int `json:"cells"`
}

func newPartitionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "partitions",
		Short: "Print the grid tiling and scan cells per instance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateGrid(); err != nil {
				return userError{err}
			}

			var rows []partitionRow
			for i, p := range coordinator.Partition(cfg.Grid(), cfg.PartsX, cfg.PartsY) {
				rows = append(rows, partitionRow{
					Instance: i,
					PosX:     p.PosX, PosY: p.PosY, SizeX: p.SizeX, SizeY: p.SizeY,
					Cells: len(coordinator.Cells(p, cfg.Step)),
				})
			}

			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), rows)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "INSTANCE\tX\tY\tWIDTH\tHEIGHT\tCELLS")
			for _, r := range rows {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\n", r.Instance, r.PosX, r.PosY, r.SizeX, r.SizeY, r.Cells)
			}
			return tw.Flush()
		},
	}
}
