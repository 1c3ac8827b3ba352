package main

import (
	"github.com/unwalled/unwalled/cmd/unwalled/commands"
	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/libs/cli"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/node"
)

func main() {
	conf := config.DefaultConfig()

	logger, err := log.NewDefaultLogger(log.LogFormatPlain, log.LogLevelInfo)
	if err != nil {
		panic(err)
	}

	rootCmd := commands.RootCommand(conf, logger)
	rootCmd.AddCommand(
		commands.MakeInitFilesCommand(conf, logger),
		commands.MakeKeysCommand(conf),
		commands.MakeTxCommand(conf),
		commands.MakeQueryCommand(conf),
		commands.MakeConfigCommand(conf),
		commands.VersionCmd,
	)

	// NOTE: embedders wanting a different withdrawer or database
	// provider can copy this file and pass their own NodeProvider.
	nodeFunc := node.NewDefault

	// Create & start node
	rootCmd.AddCommand(commands.NewRunNodeCmd(nodeFunc, conf, logger))

	cli.Execute(rootCmd)
}
