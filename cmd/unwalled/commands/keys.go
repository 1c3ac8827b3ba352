package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/config"
	uwos "github.com/unwalled/unwalled/libs/os"
	"github.com/unwalled/unwalled/privval"
)

type keyOutput struct {
	Address string `json:"address"`
	PubKey  string `json:"pub_key"`
	Path    string `json:"path"`
}

// MakeKeysCommand returns the command group managing signer keys.
func MakeKeysCommand(conf *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the signer key",
	}
	cmd.AddCommand(makeGenKeyCommand(conf), makeShowKeyCommand(conf))
	return cmd
}

func makeGenKeyCommand(conf *config.Config) *cobra.Command {
	var (
		output         string
		passphraseFile string
		overwrite      bool
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate a new signer key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = conf.SignerKeyFile()
			}
			if uwos.FileExists(output) && !overwrite {
				return fmt.Errorf("key file %s already exists", output)
			}
			passphrase, err := readPassphrase(passphraseFile)
			if err != nil {
				return err
			}

			pv := privval.GenFilePV(output)
			if err := savePV(pv, passphrase); err != nil {
				return err
			}
			return printKey(cmd.OutOrStdout(), pv, output)
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "key file to write (default: the configured signer key)")
	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "", "file holding a passphrase to encrypt the key with")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace an existing key file")
	return cmd
}

func makeShowKeyCommand(conf *config.Config) *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the address and public key of the signer key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyFile == "" {
				keyFile = conf.SignerKeyFile()
			}
			if !uwos.FileExists(keyFile) {
				return fmt.Errorf("key file %s does not exist", keyFile)
			}
			addr, err := privval.LoadFilePVAddress(keyFile)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), keyOutput{
				Address: addr.String(),
				PubKey:  addr.String(),
				Path:    keyFile,
			})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "key file to read (default: the configured signer key)")
	return cmd
}

func printKey(w io.Writer, pv *privval.FilePV, path string) error {
	return writeJSON(w, keyOutput{
		Address: pv.Address().String(),
		PubKey:  fmt.Sprintf("%x", pv.PubKey().Bytes()),
		Path:    path,
	})
}

func writeJSON(w io.Writer, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(bz))
	return err
}
