package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/goldrush/internal/config"
	"github.com/mesh-intelligence/goldrush/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the effective settings",
		Long: "Write the current settings (defaults, environment and flags) to the file\n" +
			"named by --config, or to .goldrush/config.yaml. An existing file is kept.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			path := a.flags.configFile
			if path == "" {
				if path, err = paths.LocalConfigFile(); err != nil {
					return err
				}
			}
			written, err := config.WriteFile(path, cfg)
			if err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if !written {
				fmt.Fprintf(cmd.OutOrStdout(), "config exists: %s\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config written: %s\n", path)
			return nil
		},
	}
}
