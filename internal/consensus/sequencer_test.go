package consensus_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/consensus"
	"github.com/unwalled/unwalled/internal/mempool"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/types"
)

func bidTxs(t *testing.T, n int) [][]byte {
	t.Helper()
	key := factory.Key("advertiser")
	txs := make([][]byte, n)
	for i := range txs {
		bid := types.NewBid(factory.BidID(byte(i+1)), 10, "https://ads.example/c", "sports")
		txs[i] = factory.PlaceBidTx(t, key, bid, uint64(i), 1)
	}
	return txs
}

func TestSequencerDeliversInArrivalOrder(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.TestingLogger()
	applier, err := state.NewApplier(logger, dbm.NewMemDB())
	require.NoError(t, err)
	require.NoError(t, applier.InitChain(factory.GenesisDoc(t, 100, "advertiser")))

	mp := mempool.NewTxMempool(logger, config.TestMempoolConfig())
	cfg := config.TestSequencerConfig()
	cfg.MaxBatchTxs = 3
	seq := consensus.NewSequencer(logger, cfg, mp, applier)
	require.NoError(t, seq.Start(ctx))

	txs := bidTxs(t, 10)
	for _, tx := range txs {
		require.NoError(t, mp.CheckTx(ctx, tx))
	}

	// every tx is in order, so all ten commit
	require.Eventually(t, func() bool {
		return applier.Info().Height == 10
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return mp.Size() == 0
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, seq.Stop())
	require.NoError(t, seq.Err())
}

type faultyDeliverer struct {
	mtx       sync.Mutex
	delivered [][]byte
	failAt    int
}

func (d *faultyDeliverer) DeliverTx(tx []byte) (*types.TxResult, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if len(d.delivered) == d.failAt {
		return nil, types.StorageFault("write", errors.New("disk full"))
	}
	d.delivered = append(d.delivered, tx)
	return &types.TxResult{Hash: types.TxHash(tx), Height: uint64(len(d.delivered))}, nil
}

func TestSequencerStopsOnStorageFault(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := log.TestingLogger()
	mp := mempool.NewTxMempool(logger, config.TestMempoolConfig())
	d := &faultyDeliverer{failAt: 2}

	var faults []error
	seq := consensus.NewSequencer(logger, config.TestSequencerConfig(), mp, d,
		consensus.WithFaultHandler(func(err error) { faults = append(faults, err) }))

	txs := bidTxs(t, 4)
	for _, tx := range txs {
		require.NoError(t, mp.CheckTx(ctx, tx))
	}
	require.NoError(t, seq.Start(ctx))

	select {
	case <-seq.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sequencer did not stop on fault")
	}

	require.ErrorIs(t, seq.Err(), types.ErrStorageFault)
	require.Len(t, faults, 1)
	assert.Equal(t, txs[:2], d.delivered)
	// the undelivered txs are kept for a restart
	assert.Equal(t, txs[2:], mp.ReapMaxTxs(-1))

	require.NoError(t, seq.Stop())
}

func TestSequencerStopsWithContext(t *testing.T) {
	defer leaktest.Check(t)()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.TestingLogger()
	mp := mempool.NewTxMempool(logger, config.TestMempoolConfig())
	seq := consensus.NewSequencer(logger, config.TestSequencerConfig(), mp, &faultyDeliverer{failAt: -1})
	require.NoError(t, seq.Start(ctx))

	cancel()
	select {
	case <-seq.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("sequencer did not stop")
	}
	require.NoError(t, seq.Err())
}
