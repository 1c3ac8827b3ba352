package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/crypto"
	"github.com/unwalled/unwalled/libs/log"
	uwos "github.com/unwalled/unwalled/libs/os"
	"github.com/unwalled/unwalled/privval"
	"github.com/unwalled/unwalled/types"
)

// MakeInitFilesCommand returns the command to initialize a fresh node.
func MakeInitFilesCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var (
		chainID        string
		balance        uint64
		passphraseFile string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initializes the config, signer key and genesis of a node",
		Long: `Writes config.toml, a signer key and a genesis file under the home
directory. Files that already exist are left untouched. The genesis funds the
signer key with the given balance.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase, err := readPassphrase(passphraseFile)
			if err != nil {
				return err
			}
			return initFilesWithConfig(conf, logger, chainID, balance, passphrase)
		},
	}

	cmd.Flags().StringVar(&chainID, "chain-id", "", "chain id of the genesis (random if empty)")
	cmd.Flags().Uint64Var(&balance, "balance", 0, "genesis balance of the signer key")
	cmd.Flags().StringVar(&passphraseFile, "passphrase-file", "",
		"file holding a passphrase to encrypt a new signer key with")
	return cmd
}

func initFilesWithConfig(conf *config.Config, logger log.Logger, chainID string, balance uint64, passphrase []byte) error {
	if err := config.EnsureRoot(conf.RootDir); err != nil {
		return err
	}

	cfgFile := config.DefaultConfigFile(conf.RootDir)
	if uwos.FileExists(cfgFile) {
		logger.Info("Found config file", "path", cfgFile)
	} else {
		if err := config.WriteConfigFile(conf.RootDir, conf); err != nil {
			return err
		}
		logger.Info("Generated config file", "path", cfgFile)
	}

	// signer key
	keyFile := conf.SignerKeyFile()
	var signer types.Address
	if uwos.FileExists(keyFile) {
		addr, err := privval.LoadFilePVAddress(keyFile)
		if err != nil {
			return err
		}
		signer = addr
		logger.Info("Found signer key", "path", keyFile, "address", signer)
	} else {
		pv := privval.GenFilePV(keyFile)
		if err := savePV(pv, passphrase); err != nil {
			return err
		}
		signer = pv.Address()
		logger.Info("Generated signer key", "path", keyFile, "address", signer, "encrypted", len(passphrase) > 0)
	}

	// genesis file
	genFile := conf.GenesisFile()
	if uwos.FileExists(genFile) {
		logger.Info("Found genesis file", "path", genFile)
		return nil
	}

	if chainID == "" {
		chainID = fmt.Sprintf("unwalled-%X", crypto.CRandBytes(3))
	}
	genDoc := types.GenesisDoc{
		ChainID:     chainID,
		GenesisTime: time.Now().UTC(),
	}
	if balance > 0 {
		genDoc.Accounts = []types.GenesisAccount{{Address: signer, Balance: balance}}
	}
	if err := genDoc.ValidateAndComplete(); err != nil {
		return err
	}
	if err := genDoc.SaveAs(genFile); err != nil {
		return err
	}
	logger.Info("Generated genesis file", "path", genFile, "chain_id", chainID)
	return nil
}

func savePV(pv *privval.FilePV, passphrase []byte) error {
	if len(passphrase) == 0 {
		return pv.Save()
	}
	return pv.Key.SaveEncrypted(passphrase)
}

// readPassphrase reads a passphrase from the first line of path. An empty
// path means no passphrase.
func readPassphrase(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	line := strings.TrimRight(strings.SplitN(string(bz), "\n", 2)[0], "\r")
	if line == "" {
		return nil, errors.New("passphrase file is empty")
	}
	return []byte(line), nil
}
