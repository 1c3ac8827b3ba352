package commands

import (
	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/libs/confix"
)

// MakeConfigCommand returns the command group that maintains config.toml.
func MakeConfigCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Maintain the node configuration file",
	}

	var (
		output string
		dryRun bool
	)
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade config.toml to the current format",
		Long: `Rewrite config.toml so that it is valid for this release. Renamed
keys are moved, removed keys are dropped and new settings get their
defaults. Comments are kept. The file is replaced in place unless --output
or --dry-run is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := config.DefaultConfigFile(conf.RootDir)
			if dryRun {
				return confix.Upgrade(cmd.Context(), in, "", cmd.OutOrStdout())
			}
			return confix.Upgrade(cmd.Context(), in, output, nil)
		},
	}
	migrate.Flags().StringVar(&output, "output", "", "write the result here instead of replacing config.toml")
	migrate.Flags().BoolVar(&dryRun, "dry-run", false, "print the result instead of writing it")

	cmd.AddCommand(migrate)
	return cmd
}
