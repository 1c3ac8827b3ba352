package kv

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/types"
)

func txResult(height uint64, hash byte, signer string, match *types.Match) *types.TxResult {
	kind := types.TxKindPlaceBid
	if match != nil {
		kind = types.TxKindTriggerAuction
	}
	return &types.TxResult{
		Height: height,
		Hash:   []byte{hash, hash},
		Kind:   kind,
		Signer: factory.Address(signer),
		Match:  match,
	}
}

func TestType(t *testing.T) {
	sink := NewEventSink(dbm.NewMemDB())
	assert.Equal(t, indexer.KV, sink.Type())
}

func TestIndexAndGetByHash(t *testing.T) {
	sink := NewEventSink(dbm.NewMemDB())

	res := txResult(1, 0xaa, "alice", nil)
	require.NoError(t, sink.IndexTxEvents([]*types.TxResult{res}))

	got, err := sink.GetTxByHash(res.Hash)
	require.NoError(t, err)
	assert.Equal(t, res, got)

	got, err = sink.GetTxByHash([]byte{0x01})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = sink.GetTxByHash(nil)
	assert.ErrorIs(t, err, indexer.ErrEmptyHash)
}

func TestSearch(t *testing.T) {
	ctx := context.Background()
	sink := NewEventSink(dbm.NewMemDB())

	match := &types.Match{
		BidID:             factory.BidID(1),
		AuctionID:         uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		WinningPrice:      10,
		AdvertiserAddress: factory.Address("alice"),
		PublisherAddress:  factory.Address("bob"),
		Settled:           true,
	}
	results := []*types.TxResult{
		txResult(1, 0x01, "alice", nil),
		txResult(2, 0x02, "alice", nil),
		txResult(3, 0x03, "bob", match),
	}
	require.NoError(t, sink.IndexTxEvents(results))

	testCases := []struct {
		q    string
		want []*types.TxResult
	}{
		{"tx.signer = '" + factory.Address("alice").String() + "'", results[:2]},
		{"tx.kind = 'trigger_auction'", results[2:]},
		{"match.auction = '6ba7b810-9dad-11d1-80b4-00c04fd430c8'", results[2:]},
		{"match.advertiser = '" + factory.Address("alice").String() + "' AND tx.code = '0'", results[2:]},
		{"tx.hash = '0202'", results[1:2]},
		{"tx.hash = '0202' AND tx.kind = 'trigger_auction'", []*types.TxResult{}},
		{"tx.hash = 'zz'", []*types.TxResult{}},
		{"tx.signer = 'nobody'", []*types.TxResult{}},
	}

	for _, tc := range testCases {
		got, err := sink.SearchTxEvents(ctx, query.MustNew(tc.q))
		require.NoError(t, err, tc.q)
		assert.Equal(t, tc.want, got, tc.q)
	}

	_, err := sink.SearchTxEvents(ctx, query.All)
	assert.Error(t, err)
}

func TestSearchHonorsContext(t *testing.T) {
	sink := NewEventSink(dbm.NewMemDB())
	require.NoError(t, sink.IndexTxEvents([]*types.TxResult{txResult(1, 0x01, "alice", nil)}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sink.SearchTxEvents(ctx, query.MustNew("tx.kind = 'place_bid'"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReindexIsIdempotent(t *testing.T) {
	sink := NewEventSink(dbm.NewMemDB())
	res := txResult(1, 0x01, "alice", nil)
	require.NoError(t, sink.IndexTxEvents([]*types.TxResult{res}))
	require.NoError(t, sink.IndexTxEvents([]*types.TxResult{res}))

	got, err := sink.SearchTxEvents(context.Background(), query.MustNew("tx.kind = 'place_bid'"))
	require.NoError(t, err)
	assert.Len(t, got, 1)
	require.NoError(t, sink.Stop())
}
