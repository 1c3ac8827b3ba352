package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/node"
)

// NodeProvider constructs a node from its config.
type NodeProvider func(*config.Config, log.Logger) (*node.Node, error)

// AddNodeFlags exposes some common configuration options from conf in the
// flag set for cmd. This is a convenience for commands embedding a node.
func AddNodeFlags(cmd *cobra.Command, conf *config.Config) {
	// bind flags
	cmd.Flags().String("moniker", conf.Moniker, "node name")

	// rpc flags
	cmd.Flags().String("rpc.laddr", conf.RPC.ListenAddress, "RPC listen address. Port required")
	cmd.Flags().Bool("rpc.unsafe", conf.RPC.Unsafe, "enabled unsafe rpc methods")

	// mempool flags
	cmd.Flags().Int("mempool.size", conf.Mempool.Size, "maximum number of transactions in the mempool")

	// sequencer flags
	cmd.Flags().Duration("sequencer.idle-interval", conf.Sequencer.IdleInterval,
		"interval at which the mempool is polled when no tx notification arrives")

	// db flags
	cmd.Flags().String(
		"db-backend",
		conf.DBBackend,
		"database backend: goleveldb | memdb")
	cmd.Flags().String(
		"db-dir",
		conf.DBPath,
		"database directory")

	// instrumentation
	cmd.Flags().Bool("instrumentation.prometheus", conf.Instrumentation.Prometheus,
		"serve Prometheus metrics")
}

// NewRunNodeCmd returns the command that allows the CLI to start a node.
// It can be used with a custom node provider.
func NewRunNodeCmd(nodeProvider NodeProvider, conf *config.Config, logger log.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the exchange node",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := nodeProvider(conf, logger)
			if err != nil {
				return fmt.Errorf("failed to create node: %w", err)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer cancel()

			if err := n.Start(ctx); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			logger.Info("started node", "chain_id", n.GenesisDoc().ChainID)

			// Run forever.
			n.Wait()
			logger.Info("node stopped")
			return nil
		},
	}

	AddNodeFlags(cmd, conf)
	return cmd
}
