package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ensureFiles(t *testing.T, rootDir string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := rootify(f, rootDir)
		_, err := os.Stat(p)
		assert.NoError(t, err, p)
	}
}

func TestEnsureRoot(t *testing.T) {
	tmpDir := t.TempDir()

	require.NoError(t, EnsureRoot(tmpDir))
	require.NoError(t, WriteConfigFile(tmpDir, DefaultConfig()))

	data, err := os.ReadFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(t, err)
	checkConfig(t, string(data))

	ensureFiles(t, tmpDir, "data", "config")
}

func TestEnsureTestRoot(t *testing.T) {
	cfg, err := ResetTestRoot(t.Name())
	require.NoError(t, err)
	defer os.RemoveAll(cfg.RootDir)

	data, err := os.ReadFile(filepath.Join(cfg.RootDir, defaultConfigFilePath))
	require.NoError(t, err)
	checkConfig(t, string(data))

	ensureFiles(t, cfg.RootDir, "data", defaultGenesisJSONPath)
}

func checkConfig(t *testing.T, configFile string) {
	t.Helper()

	var parsed map[string]interface{}
	_, err := toml.Decode(configFile, &parsed)
	require.NoError(t, err, "rendered config is not valid TOML")

	// list of words we expect in the config
	elems := []string{
		"moniker",
		"db-backend",
		"log-level",
		"genesis-file",
		"signer-key-file",
		"laddr",
		"max-txs-bytes",
		"check-tx-workers",
		"idle-interval",
		"indexer",
		"withdrawals-file",
		"prometheus",
	}
	for _, e := range elems {
		assert.Contains(t, configFile, e)
	}
	for _, section := range []string{"rpc", "mempool", "sequencer", "tx-index", "settlement", "instrumentation"} {
		assert.Contains(t, parsed, section)
	}
}

func TestTemplateRoundTripsThroughViper(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, EnsureRoot(tmpDir))

	want := DefaultConfig()
	want.RPC.CORSAllowedOrigins = []string{"https://*.example.com"}
	want.TxIndex.Indexer = []string{"kv", "psql"}
	want.TxIndex.PsqlConn = "postgresql://u:p@localhost:5432/uw"
	want.Settlement.WithdrawalsFile = `C:\withdrawals "q".jsonl`
	require.NoError(t, WriteConfigFile(tmpDir, want))

	v := viper.New()
	v.SetConfigFile(filepath.Join(tmpDir, defaultConfigFilePath))
	require.NoError(t, v.ReadInConfig())

	got := new(Config)
	require.NoError(t, v.Unmarshal(got))

	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}
