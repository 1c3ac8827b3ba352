package core

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/consensus"
	"github.com/unwalled/unwalled/internal/eventbus"
	"github.com/unwalled/unwalled/internal/mempool"
	"github.com/unwalled/unwalled/internal/settlement"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/internal/state/indexer/sink/kv"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/rpc/coretypes"
	rpcserver "github.com/unwalled/unwalled/rpc/jsonrpc/server"
	rpctypes "github.com/unwalled/unwalled/rpc/jsonrpc/types"
	"github.com/unwalled/unwalled/types"
)

func newTestEnvironment(ctx context.Context, t *testing.T, names ...string) *Environment {
	t.Helper()
	logger := log.TestingLogger()

	bus := eventbus.NewDefault(logger)
	require.NoError(t, bus.Start(ctx))
	t.Cleanup(func() { _ = bus.Stop() })

	applier, err := state.NewApplier(logger, dbm.NewMemDB(), state.WithEventPublisher(bus))
	require.NoError(t, err)
	genDoc := factory.GenesisDoc(t, 1000, names...)
	require.NoError(t, applier.InitChain(genDoc))

	sinks := []indexer.EventSink{kv.NewEventSink(dbm.NewMemDB())}
	is := indexer.NewService(indexer.ServiceArgs{Sinks: sinks, EventBus: bus, Logger: logger})
	require.NoError(t, is.Start(ctx))
	t.Cleanup(func() { _ = is.Stop() })

	mp := mempool.NewTxMempool(logger, config.TestMempoolConfig())
	seq := consensus.NewSequencer(logger, config.TestSequencerConfig(), mp, applier)
	require.NoError(t, seq.Start(ctx))
	t.Cleanup(func() { _ = seq.Stop() })

	cfg := config.TestRPCConfig()
	cfg.TimeoutBroadcastTxCommit = 5 * time.Second
	return &Environment{
		Applier:    applier,
		Mempool:    mp,
		EventBus:   bus,
		EventSinks: sinks,
		Bridge:     settlement.NewBridge(logger, applier, settlement.LogWithdrawer{Logger: logger}),
		GenDoc:     genDoc,
		Moniker:    "test",
		Logger:     logger,
		Config:     *cfg,
	}
}

func TestBroadcastTxCommit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnvironment(ctx, t, "advertiser")
	key := factory.Key("advertiser")
	bid := types.NewBid(factory.BidID(1), 10, "https://ads.example/c", "sports")
	tx := factory.PlaceBidTx(t, key, bid, 0, 2)

	res, err := env.BroadcastTxCommit(ctx, &coretypes.RequestBroadcastTx{Tx: tx})
	require.NoError(t, err)
	require.True(t, res.CheckTx.Code.IsOK())
	require.NotNil(t, res.TxResult)
	assert.Equal(t, types.CodeOK, res.TxResult.Code)
	assert.EqualValues(t, 1, res.Height)
	assert.Equal(t, types.TxHash(tx), []byte(res.Hash))

	acc, err := env.Account(ctx, &coretypes.RequestAccount{Address: factory.Address("advertiser")})
	require.NoError(t, err)
	assert.EqualValues(t, 998, acc.Balance)
	assert.EqualValues(t, 1, acc.NextNonce)

	got, err := env.Bid(ctx, &coretypes.RequestBid{ID: bid.ID.String()})
	require.NoError(t, err)
	assert.Equal(t, factory.Address("advertiser"), got.Advertiser)
	assert.EqualValues(t, 10, got.Bid.Price)

	// the indexer runs behind the applier
	require.Eventually(t, func() bool {
		r, err := env.Tx(ctx, &coretypes.RequestTx{Hash: res.Hash})
		return err == nil && r.Height == 1
	}, 5*time.Second, 10*time.Millisecond)

	search, err := env.TxSearch(ctx, &coretypes.RequestTxSearch{
		Query: types.TxSignerKey + " = '" + factory.Address("advertiser").String() + "'",
	})
	require.NoError(t, err)
	require.Equal(t, 1, search.TotalCount)
	assert.Equal(t, res.Hash, search.Txs[0].Hash)

	status, err := env.Status(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, status.SyncInfo.Height)
}

func TestBroadcastTxSyncRejects(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnvironment(ctx, t, "advertiser")

	res, err := env.BroadcastTxSync(ctx, &coretypes.RequestBroadcastTx{Tx: []byte{0xff, 0x01}})
	require.NoError(t, err)
	assert.Equal(t, types.CodeMalformedTx, res.Code)
	assert.NotEmpty(t, res.Log)

	count, err := env.NumUnconfirmedTxs(ctx)
	require.NoError(t, err)
	assert.Zero(t, count.Count)
}

func TestTxNotFound(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnvironment(ctx, t)
	_, err := env.Tx(ctx, &coretypes.RequestTx{Hash: types.TxHash([]byte("nope"))})
	assert.ErrorIs(t, err, coretypes.ErrTxNotFound)

	_, err = env.Bid(ctx, &coretypes.RequestBid{ID: factory.BidID(9).String()})
	assert.ErrorIs(t, err, coretypes.ErrBidNotFound)

	env.EventSinks = nil
	_, err = env.Tx(ctx, &coretypes.RequestTx{Hash: types.TxHash([]byte("nope"))})
	assert.ErrorIs(t, err, coretypes.ErrTxIndexingDisabled)
	_, err = env.TxSearch(ctx, &coretypes.RequestTxSearch{Query: "tx.code = '0'"})
	assert.ErrorIs(t, err, coretypes.ErrTxIndexingDisabled)
}

func TestUnsafeSettlement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnvironment(ctx, t)
	addr := factory.Address("publisher")

	res, err := env.UnsafeOnboard(ctx, &coretypes.RequestSettlement{Address: addr, Amount: 50})
	require.NoError(t, err)
	assert.Equal(t, types.CodeOK, res.Code)

	_, err = env.UnsafeOffboard(ctx, &coretypes.RequestSettlement{Address: addr, Amount: 80})
	assert.ErrorIs(t, err, types.ErrInsufficientFunds)

	acc, err := env.Account(ctx, &coretypes.RequestAccount{Address: addr})
	require.NoError(t, err)
	assert.EqualValues(t, 50, acc.Balance)

	env.Bridge = nil
	_, err = env.UnsafeOnboard(ctx, &coretypes.RequestSettlement{Address: addr, Amount: 1})
	assert.ErrorIs(t, err, coretypes.ErrSettlementDisabled)
}

func TestRoutesOverHTTP(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env := newTestEnvironment(ctx, t, "advertiser")
	mux := http.NewServeMux()
	rpcserver.RegisterRPCFuncs(mux, NewRoutesMap(env, &RouteOptions{Unsafe: false}), env.Logger)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	// URI
	resp, err := http.Get(srv.URL + "/account?address=" + url.QueryEscape(`"`+factory.Address("advertiser").String()+`"`))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	var acc coretypes.ResultAccount
	require.NoError(t, json.Unmarshal(body, &acc))
	assert.EqualValues(t, 1000, acc.Balance)

	// JSON-RPC; unsafe routes are not registered
	req := `{"jsonrpc":"2.0","id":1,"method":"unsafe_onboard","params":{"address":"` +
		factory.Address("advertiser").String() + `","amount":1}}`
	resp, err = http.Post(srv.URL, "application/json", strings.NewReader(req))
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)

	var rpcResp rpctypes.RPCResponse
	require.NoError(t, json.Unmarshal(body, &rpcResp))
	require.NotNil(t, rpcResp.Error)
	assert.Equal(t, rpctypes.CodeMethodNotFound, rpcResp.Error.Code)
}
