package confix_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/libs/confix"
)

const legacyConfig = `# legacy node config
moniker = "old-node"
log_level = "debug"
withdrawals_file = "data/out.jsonl"

[rpc]
laddr = "tcp://127.0.0.1:36657"
max_open_connections = 50

[mempool]
size = 2000
broadcast = true

[sequencer]

[tx_index]
# which indexer to use
indexer = "kv"
`

func writeFile(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	return path
}

func decode(t *testing.T, data []byte) *config.Config {
	t.Helper()
	v := viper.New()
	v.SetConfigType("toml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(data)))
	cfg := config.DefaultConfig()
	require.NoError(t, v.Unmarshal(cfg))
	return cfg
}

func TestUpgradeLegacyConfig(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, legacyConfig)

	var buf bytes.Buffer
	require.NoError(t, confix.Upgrade(ctx, path, "", &buf))
	out := buf.String()

	assert.NotContains(t, out, "_")
	assert.NotContains(t, out, "broadcast")
	assert.Contains(t, out, "# which indexer to use")

	cfg := decode(t, buf.Bytes())
	assert.Equal(t, "old-node", cfg.Moniker)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "tcp://127.0.0.1:36657", cfg.RPC.ListenAddress)
	assert.Equal(t, 50, cfg.RPC.MaxOpenConnections)
	assert.Equal(t, 2000, cfg.Mempool.Size)
	assert.Equal(t, 4, cfg.Mempool.CheckTxWorkers)
	assert.Equal(t, 1000, cfg.Sequencer.MaxBatchTxs)
	assert.Equal(t, []string{"kv"}, cfg.TxIndex.Indexer)
	assert.Equal(t, "data/out.jsonl", cfg.Settlement.WithdrawalsFile)

	// the input is untouched when writing elsewhere
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, legacyConfig, string(got))
}

func TestUpgradeInPlace(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, legacyConfig)

	require.NoError(t, confix.Upgrade(ctx, path, "", nil))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, confix.CheckValid(got))
	assert.True(t, strings.Contains(string(got), "[tx-index]"))

	// a second pass has nothing left to change
	require.NoError(t, confix.Upgrade(ctx, path, "", nil))
	again, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, decode(t, got), decode(t, again))
}

func TestUpgradeCurrentConfig(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, config.EnsureRoot(root))
	want := config.DefaultConfig()
	want.Moniker = "current"
	want.TxIndex.Indexer = []string{"null"}
	require.NoError(t, config.WriteConfigFile(root, want))

	out := filepath.Join(t.TempDir(), "upgraded.toml")
	require.NoError(t, confix.Upgrade(ctx, config.DefaultConfigFile(root), out, nil))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	cfg := decode(t, data)
	assert.Equal(t, "current", cfg.Moniker)
	assert.Equal(t, []string{"null"}, cfg.TxIndex.Indexer)
	assert.Equal(t, want.Mempool, cfg.Mempool)
}

func TestUpgradeRejectsInvalidResult(t *testing.T) {
	ctx := context.Background()
	path := writeFile(t, "[mempool]\nsize = -1\n")

	out := filepath.Join(t.TempDir(), "out.toml")
	err := confix.Upgrade(ctx, path, out, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
	_, statErr := os.Stat(out)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpgradeErrors(t *testing.T) {
	ctx := context.Background()
	assert.Error(t, confix.Upgrade(ctx, "", "", nil))
	assert.Error(t, confix.Upgrade(ctx, filepath.Join(t.TempDir(), "missing.toml"), "", nil))
	assert.Error(t, confix.Upgrade(ctx, writeFile(t, "this is = = not toml"), "", nil))
}
