package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unwalled/unwalled/version"
)

var verbose bool

// VersionCmd prints the node version.
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version info",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			fmt.Fprintln(cmd.OutOrStdout(), version.Version)
			return nil
		}
		values, err := json.MarshalIndent(struct {
			Version    string `json:"version"`
			GitCommit  string `json:"git_commit,omitempty"`
			TxProtocol uint64 `json:"tx_protocol"`
		}{
			Version:    version.Version,
			GitCommit:  version.GitCommit,
			TxProtocol: version.TxProtocol,
		}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(values))
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show protocol and library versions")
}
