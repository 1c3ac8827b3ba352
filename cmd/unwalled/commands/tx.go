package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/privval"
	rpchttp "github.com/unwalled/unwalled/rpc/client/http"
	"github.com/unwalled/unwalled/rpc/coretypes"
	"github.com/unwalled/unwalled/types"
)

// txFlags are shared by every transaction subcommand.
type txFlags struct {
	node           string
	nonce          int64
	fee            uint64
	passphraseFile string
}

func (f *txFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.node, "node", "", "RPC address of the node (default: rpc.laddr)")
	cmd.Flags().Int64Var(&f.nonce, "nonce", -1, "envelope nonce; negative queries the node for the next one")
	cmd.Flags().Uint64Var(&f.fee, "fee", 1, "fee debited from the signer")
	cmd.Flags().StringVar(&f.passphraseFile, "passphrase-file", "", "file holding the signer key passphrase")
}

// MakeTxCommand returns the command group that signs and broadcasts
// transactions with the configured signer key.
func MakeTxCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Sign and broadcast transactions",
	}
	cmd.AddCommand(makePlaceBidCommand(conf), makeTriggerAuctionCommand(conf))
	return cmd
}

func makePlaceBidCommand(conf *config.Config) *cobra.Command {
	var (
		flags    txFlags
		id       string
		price    uint64
		creative string
		tags     []string
	)
	cmd := &cobra.Command{
		Use:   "place-bid",
		Short: "Place a standing bid",
		RunE: func(cmd *cobra.Command, args []string) error {
			bidID, err := parseOrNewUUID(id)
			if err != nil {
				return err
			}
			bid := types.NewBid(bidID, price, creative, tags...)
			return broadcast(cmd, conf, &flags, func(nonce uint64) signableTx {
				return types.NewPlaceBidTx(bid, nonce, flags.fee)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "bid id (random if empty)")
	cmd.Flags().Uint64Var(&price, "price", 0, "price paid per impression")
	cmd.Flags().StringVar(&creative, "creative", "", "creative served when the bid wins")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "targeting tags")
	return cmd
}

func makeTriggerAuctionCommand(conf *config.Config) *cobra.Command {
	var (
		flags txFlags
		id    string
		floor uint64
		attrs []string
	)
	cmd := &cobra.Command{
		Use:   "trigger-auction",
		Short: "Run an auction for one impression",
		RunE: func(cmd *cobra.Command, args []string) error {
			auctionID, err := parseOrNewUUID(id)
			if err != nil {
				return err
			}
			trigger := types.NewAuctionTrigger(auctionID, floor, attrs...)
			return broadcast(cmd, conf, &flags, func(nonce uint64) signableTx {
				return types.NewTriggerAuctionTx(trigger, nonce, flags.fee)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&id, "id", "", "auction id (random if empty)")
	cmd.Flags().Uint64Var(&floor, "floor", 0, "minimum winning price")
	cmd.Flags().StringSliceVar(&attrs, "attrs", nil, "impression attributes")
	return cmd
}

type signableTx interface {
	types.Tx
	Sign(types.Signer) error
}

func broadcast(cmd *cobra.Command, conf *config.Config, flags *txFlags, build func(nonce uint64) signableTx) error {
	passphrase, err := readPassphrase(flags.passphraseFile)
	if err != nil {
		return err
	}
	pv, err := privval.LoadFilePVWithPassphrase(conf.SignerKeyFile(), passphrase)
	if err != nil {
		return err
	}

	client, err := newClient(conf, flags.node)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), ctxTimeout)
	defer cancel()

	nonce := uint64(flags.nonce)
	if flags.nonce < 0 {
		acct, err := client.Account(ctx, pv.Address())
		if err != nil {
			return fmt.Errorf("querying next nonce: %w", err)
		}
		nonce = acct.NextNonce
	}

	tx := build(nonce)
	if err := tx.ValidateBasic(); err != nil {
		return err
	}
	if err := tx.Sign(pv); err != nil {
		return err
	}

	res, err := client.BroadcastTxCommit(ctx, tx.Bytes())
	if err != nil {
		return err
	}
	if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return broadcastErr(res)
}

// broadcastErr reports a tx refused by the mempool or rejected on delivery.
func broadcastErr(res *coretypes.ResultBroadcastTxCommit) error {
	if res.CheckTx.Code != types.CodeOK {
		return fmt.Errorf("tx rejected by mempool (%v): %s", res.CheckTx.Code, res.CheckTx.Log)
	}
	if res.TxResult == nil {
		return errors.New("tx was not delivered")
	}
	if res.TxResult.Code != types.CodeOK {
		return fmt.Errorf("tx rejected on delivery (%v): %s", res.TxResult.Code, res.TxResult.Log)
	}
	return nil
}

func newClient(conf *config.Config, node string) (*rpchttp.HTTP, error) {
	if node == "" {
		node = conf.RPC.ListenAddress
	}
	if node == "" {
		return nil, errors.New("no node address: set --node or rpc.laddr")
	}
	return rpchttp.New(node)
}

func parseOrNewUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.New(), nil
	}
	return uuid.Parse(s)
}
