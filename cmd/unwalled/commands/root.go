package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/libs/cli"
	"github.com/unwalled/unwalled/libs/log"
)

const ctxTimeout = 4 * time.Second

// ParseConfig retrieves the default environment configuration,
// sets up the root and ensures that the root exists
func ParseConfig(conf *config.Config) (*config.Config, error) {
	if err := viper.Unmarshal(conf); err != nil {
		return nil, err
	}

	conf.SetRoot(conf.RootDir)

	if err := conf.ValidateBasic(); err != nil {
		return nil, fmt.Errorf("error in config file: %w", err)
	}
	return conf, nil
}

// RootCommand constructs the root command-line entry point for the node.
func RootCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unwalled",
		Short: "Decentralized ad exchange node and client",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == VersionCmd.Name() {
				return nil
			}

			pconf, err := ParseConfig(conf)
			if err != nil {
				return err
			}
			*conf = *pconf
			if err := config.EnsureRoot(conf.RootDir); err != nil {
				return err
			}
			return log.OverrideWithNewLogger(logger, conf.LogFormat, conf.LogLevel)
		},
	}
	cmd.PersistentFlags().String("log-level", conf.LogLevel, "log level")
	return cli.PrepareBaseCmd(cmd, "UW", defaultHome())
}

func defaultHome() string {
	if home := os.Getenv("UWHOME"); home != "" {
		return home
	}
	return os.ExpandEnv(filepath.Join("$HOME", config.DefaultUnwalledDir))
}
