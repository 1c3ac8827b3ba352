package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/privval"
	"github.com/unwalled/unwalled/types"
)

// MakeQueryCommand returns the command group reading state over RPC.
func MakeQueryCommand(conf *config.Config) *cobra.Command {
	var node string
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query exchange state from a node",
	}
	cmd.PersistentFlags().StringVar(&node, "node", "", "RPC address of the node (default: rpc.laddr)")

	account := &cobra.Command{
		Use:   "account [address]",
		Short: "Show an account balance and next nonce (default: the signer key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var addr types.Address
			if len(args) == 1 {
				addr = types.Address(args[0])
				if err := addr.ValidateBasic(); err != nil {
					return err
				}
			} else {
				a, err := privval.LoadFilePVAddress(conf.SignerKeyFile())
				if err != nil {
					return err
				}
				addr = a
			}

			client, err := newClient(conf, node)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), ctxTimeout)
			defer cancel()

			res, err := client.Account(ctx, addr)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	bid := &cobra.Command{
		Use:   "bid <id>",
		Short: "Show a stored bid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(conf, node)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), ctxTimeout)
			defer cancel()

			res, err := client.Bid(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	var (
		floor   uint64
		perPage int
	)
	rank := &cobra.Command{
		Use:   "rank <attribute>...",
		Short: "List the open bids an auction on these attributes would consider, best first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(conf, node)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), ctxTimeout)
			defer cancel()

			res, err := client.RankBids(ctx, args, floor, &perPage)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	rank.Flags().Uint64Var(&floor, "floor", 0, "minimum bid price")
	rank.Flags().IntVar(&perPage, "limit", 30, "maximum number of bids to list")

	cmd.AddCommand(account, bid, rank)
	return cmd
}
