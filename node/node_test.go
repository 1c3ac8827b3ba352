package node

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/libs/log"
	rpchttp "github.com/unwalled/unwalled/rpc/client/http"
	"github.com/unwalled/unwalled/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.ResetTestRoot(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(cfg.RootDir) })
	cfg.RPC.ListenAddress = "tcp://127.0.0.1:0"
	return cfg
}

func TestNodeStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	n, err := NewDefault(cfg, log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(ctx))
	require.True(t, n.IsRunning())
	require.NotNil(t, n.RPCListenAddr())

	c, err := rpchttp.New("http://" + n.RPCListenAddr().String())
	require.NoError(t, err)
	status, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "unwalled_test", status.SyncInfo.ChainID)

	go func() {
		require.NoError(t, n.Stop())
	}()

	select {
	case <-n.Quit():
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for shutdown")
	}
}

func TestNodeDeliversBroadcastTxs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig(t)
	genDoc := factory.GenesisDoc(t, 100, "advertiser", "publisher")
	n, err := New(cfg, log.TestingLogger(), config.DefaultDBProvider, genDoc)
	require.NoError(t, err)
	require.NoError(t, n.Start(ctx))
	t.Cleanup(func() { _ = n.Stop() })

	c, err := rpchttp.New(fmt.Sprintf("tcp://%s", n.RPCListenAddr()))
	require.NoError(t, err)

	bid := types.NewBid(factory.BidID(1), 30, "https://ads.example/c", "sports")
	res, err := c.BroadcastTxCommit(ctx, factory.PlaceBidTx(t, factory.Key("advertiser"), bid, 0, 1))
	require.NoError(t, err)
	require.NotNil(t, res.TxResult)
	assert.Equal(t, types.CodeOK, res.TxResult.Code)

	trigger := types.NewAuctionTrigger(factory.BidID(50), 5, "sports")
	res, err = c.BroadcastTxCommit(ctx, factory.TriggerAuctionTx(t, factory.Key("publisher"), trigger, 0, 1))
	require.NoError(t, err)
	require.NotNil(t, res.TxResult)
	require.NotNil(t, res.TxResult.Match)
	assert.True(t, res.TxResult.Match.Settled)

	acc, err := c.Account(ctx, factory.Address("publisher"))
	require.NoError(t, err)
	assert.EqualValues(t, 100-1+30, acc.Balance)

	info := n.Applier().Info()
	assert.EqualValues(t, 2, info.Height)
}

func TestNodeHaltsOnFault(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := NewDefault(testConfig(t), log.TestingLogger())
	require.NoError(t, err)
	require.NoError(t, n.Start(ctx))

	n.onFault(types.StorageFault("commit", errors.New("disk full")))

	select {
	case <-n.Quit():
	case <-time.After(5 * time.Second):
		t.Fatal("node kept running after a storage fault")
	}
	assert.False(t, n.IsRunning())
}

func TestNodeRejectsBadGenesis(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, log.TestingLogger(), config.DefaultDBProvider, &types.GenesisDoc{})
	require.Error(t, err)
}
