package state_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/crypto/ed25519"
	"github.com/unwalled/unwalled/internal/dbtest"
	"github.com/unwalled/unwalled/internal/inventory"
	"github.com/unwalled/unwalled/internal/ledger"
	"github.com/unwalled/unwalled/internal/state"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/types"
)

var (
	advKey = factory.Key("advertiser")
	pubKey = factory.Key("publisher")
	adv    = factory.Address("advertiser")
	pub    = factory.Address("publisher")
)

type recorder struct {
	txs     []types.EventDataTx
	matches []types.EventDataMatch
}

func (r *recorder) PublishEventTx(e types.EventDataTx) error {
	r.txs = append(r.txs, e)
	return nil
}

func (r *recorder) PublishEventMatch(e types.EventDataMatch) error {
	r.matches = append(r.matches, e)
	return nil
}

func newApplier(t *testing.T, db dbm.DB, balances map[types.Address]uint64, opts ...state.Option) *state.Applier {
	t.Helper()
	a, err := state.NewApplier(log.TestingLogger(), db, opts...)
	require.NoError(t, err)

	doc := &types.GenesisDoc{ChainID: "test-chain"}
	for addr, bal := range balances {
		doc.Accounts = append(doc.Accounts, types.GenesisAccount{Address: addr, Balance: bal})
	}
	require.NoError(t, doc.ValidateAndComplete())
	require.NoError(t, a.InitChain(doc))
	return a
}

func account(t *testing.T, a *state.Applier, addr types.Address) ledger.Account {
	t.Helper()
	acc, err := ledger.GetAccount(a.Store(), addr)
	require.NoError(t, err)
	return acc
}

func deliver(t *testing.T, a *state.Applier, tx []byte) *types.TxResult {
	t.Helper()
	res, err := a.DeliverTx(tx)
	require.NoError(t, err)
	return res
}

func TestScenarioPlaceBidThenAuction(t *testing.T) {
	events := &recorder{}
	a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 100, pub: 10}, state.WithEventPublisher(events))

	b1 := factory.BidID(1)
	res := deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(b1, 200, "<ad/>", "sports"), 0, 5))
	require.Equal(t, types.CodeOK, res.Code, res.Log)

	// price is not escrowed: only the fee leaves the advertiser
	require.Equal(t, ledger.Account{Address: adv, Balance: 95, NextNonce: 1}, account(t, a, adv))
	require.EqualValues(t, 5, account(t, a, types.FeePoolAddress).Balance)

	auction := types.NewAuctionTrigger(uuid.New(), 150, "sports", "finance")
	res = deliver(t, a, factory.TriggerAuctionTx(t, pubKey, auction, 0, 1))
	require.Equal(t, types.CodeOK, res.Code, res.Log)
	require.NotNil(t, res.Match)
	require.Equal(t, types.Match{
		BidID:             b1,
		AuctionID:         auction.ID,
		WinningPrice:      200,
		AdvertiserAddress: adv,
		PublisherAddress:  pub,
		Settled:           false, // 95 cannot cover 200
	}, *res.Match)

	ok, err := inventory.Has(a.Store(), b1)
	require.NoError(t, err)
	require.False(t, ok, "winning bid is removed")

	require.EqualValues(t, 95, account(t, a, adv).Balance)
	require.EqualValues(t, 9, account(t, a, pub).Balance)

	// the same auction again finds nothing
	auction2 := types.NewAuctionTrigger(uuid.New(), 150, "sports", "finance")
	res = deliver(t, a, factory.TriggerAuctionTx(t, pubKey, auction2, 1, 1))
	require.Equal(t, types.CodeOK, res.Code)
	require.Nil(t, res.Match)

	require.Len(t, events.txs, 3)
	require.Len(t, events.matches, 1)
	require.Equal(t, auction.ID, events.matches[0].Match.AuctionID)
}

func TestMatchSettlesWhenAdvertiserCanPay(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 1000, pub: 100})

	res := deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(1), 50, "", "sports"), 0, 1))
	require.Equal(t, types.CodeOK, res.Code)

	res = deliver(t, a, factory.TriggerAuctionTx(t, pubKey, types.NewAuctionTrigger(uuid.New(), 40, "sports"), 0, 1))
	require.NotNil(t, res.Match)
	require.True(t, res.Match.Settled)
	require.EqualValues(t, 50, res.Match.WinningPrice)

	require.EqualValues(t, 1000-1-50, account(t, a, adv).Balance)
	require.EqualValues(t, 100-1+50, account(t, a, pub).Balance)

	total, err := ledger.TotalSupply(a.Store())
	require.NoError(t, err)
	require.EqualValues(t, 1100, total, "fees and settlements conserve supply")
}

func TestNonceSequences(t *testing.T) {
	testCases := map[string]struct {
		nonces []uint64
		codes  []types.Code
	}{
		"replay":   {[]uint64{0, 0}, []types.Code{types.CodeOK, types.CodeReplayedOrOutOfOrderNonce}},
		"gap":      {[]uint64{0, 2}, []types.Code{types.CodeOK, types.CodeReplayedOrOutOfOrderNonce}},
		"in order": {[]uint64{0, 1}, []types.Code{types.CodeOK, types.CodeOK}},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 100})
			for i, n := range tc.nonces {
				bid := types.NewBid(factory.BidID(byte(i+1)), 10, "", "news")
				res := deliver(t, a, factory.PlaceBidTx(t, advKey, bid, n, 1))
				require.Equal(t, tc.codes[i], res.Code, "tx %d: %s", i, res.Log)
			}
		})
	}
}

func TestNonceFiveSixSeven(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 100})
	for n := uint64(0); n < 5; n++ {
		res := deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(uuid.New(), 1, "", "x"), n, 0))
		require.Equal(t, types.CodeOK, res.Code)
	}

	res := deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(uuid.New(), 1, "", "x"), 5, 0))
	require.Equal(t, types.CodeOK, res.Code)
	res = deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(uuid.New(), 1, "", "x"), 5, 0))
	require.Equal(t, types.CodeReplayedOrOutOfOrderNonce, res.Code)
	res = deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(uuid.New(), 1, "", "x"), 7, 0))
	require.Equal(t, types.CodeReplayedOrOutOfOrderNonce, res.Code)
	res = deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(uuid.New(), 1, "", "x"), 6, 0))
	require.Equal(t, types.CodeOK, res.Code)

	require.EqualValues(t, 7, account(t, a, adv).NextNonce)
}

func TestRejectionsChangeNothing(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 10})
	before := a.Info()

	valid := types.NewPlaceBidTx(types.NewBid(factory.BidID(1), 10, "", "news"), 0, 1)
	require.NoError(t, valid.Sign(advKey))
	tampered := *valid
	tampered.Fee = 0

	stranger := ed25519.GenPrivKeyFromSecret([]byte("stranger"))

	testCases := map[string]struct {
		tx   []byte
		code types.Code
	}{
		"malformed":         {[]byte{1, 2, 3}, types.CodeMalformedTx},
		"tampered fee":      {tampered.Bytes(), types.CodeInvalidSignature},
		"fee exceeds funds": {factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(2), 1, "", "a"), 0, 11), types.CodeInsufficientFunds},
		"unfunded signer":   {factory.PlaceBidTx(t, stranger, types.NewBid(factory.BidID(3), 1, "", "a"), 0, 1), types.CodeInsufficientFunds},
		"future nonce":      {factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(4), 1, "", "a"), 3, 1), types.CodeReplayedOrOutOfOrderNonce},
	}

	for name, tc := range testCases {
		res := deliver(t, a, tc.tx)
		require.Equal(t, tc.code, res.Code, name)
		require.False(t, res.Committed(), name)
	}

	require.Equal(t, before, a.Info())
	require.Equal(t, ledger.Account{Address: adv, Balance: 10}, account(t, a, adv))
	require.Zero(t, account(t, a, types.FeePoolAddress).Balance)

	n := 0
	require.NoError(t, inventory.Iterate(a.Store(), func(*inventory.OpenBid) bool { n++; return true }))
	require.Zero(t, n)
}

func TestZeroFeeWithZeroBalance(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), nil)
	res := deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(1), 1, "", "a"), 0, 0))
	require.Equal(t, types.CodeOK, res.Code)
	require.EqualValues(t, 1, account(t, a, adv).NextNonce)
}

func TestDuplicateBidChargesFee(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 10})
	bid := types.NewBid(factory.BidID(1), 10, "", "news")

	res := deliver(t, a, factory.PlaceBidTx(t, advKey, bid, 0, 2))
	require.Equal(t, types.CodeOK, res.Code)

	other := types.NewBid(factory.BidID(1), 99, "", "sports")
	res = deliver(t, a, factory.PlaceBidTx(t, advKey, other, 1, 2))
	require.Equal(t, types.CodeDuplicateBidID, res.Code)
	require.True(t, res.Committed())

	require.Equal(t, ledger.Account{Address: adv, Balance: 6, NextNonce: 2}, account(t, a, adv))
	ob, err := inventory.Get(a.Store(), bid.ID)
	require.NoError(t, err)
	require.Equal(t, bid, ob.Bid, "original bid is kept")
}

func TestApplyTxReturnsTypedErrors(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), map[types.Address]uint64{adv: 10})

	tx := types.NewPlaceBidTx(types.NewBid(factory.BidID(1), 1, "", "a"), 0, 1)
	require.NoError(t, tx.Sign(advKey))
	_, err := a.ApplyTx(tx)
	require.NoError(t, err)

	_, err = a.ApplyTx(tx)
	require.ErrorIs(t, err, types.ErrReplayedOrOutOfOrderNonce)

	tx.Nonce = 1
	_, err = a.ApplyTx(tx)
	require.ErrorIs(t, err, types.ErrInvalidSignature)

	require.NoError(t, tx.Sign(advKey))
	_, err = a.ApplyTx(tx)
	require.ErrorIs(t, err, types.ErrDuplicateBidID)
}

func TestStorageFaultLeavesStateUntouched(t *testing.T) {
	db := dbtest.NewFaultyDB()
	var faults []error
	a := newApplier(t, db, map[types.Address]uint64{adv: 100, pub: 100},
		state.WithFaultHandler(func(err error) { faults = append(faults, err) }))

	a.Deliver(factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(1), 10, "", "sports"), 0, 1))
	require.Empty(t, faults)
	before := a.Info()

	db.FailWrites(true)
	a.Deliver(factory.TriggerAuctionTx(t, pubKey, types.NewAuctionTrigger(uuid.New(), 0, "sports"), 0, 1))
	a.Deliver(factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(2), 10, "", "sports"), 1, 1))
	require.Len(t, faults, 2)
	for _, err := range faults {
		require.ErrorIs(t, err, types.ErrStorageFault)
	}

	require.Equal(t, before, a.Info())
	require.Equal(t, ledger.Account{Address: adv, Balance: 99, NextNonce: 1}, account(t, a, adv))
	require.Equal(t, ledger.Account{Address: pub, Balance: 100}, account(t, a, pub))
	ok, err := inventory.Has(a.Store(), factory.BidID(1))
	require.NoError(t, err)
	require.True(t, ok)

	// once the store recovers the same txs apply normally
	db.FailWrites(false)
	res := deliver(t, a, factory.TriggerAuctionTx(t, pubKey, types.NewAuctionTrigger(uuid.New(), 0, "sports"), 0, 1))
	require.Equal(t, types.CodeOK, res.Code)
	require.NotNil(t, res.Match)
}

func TestDeliverPanicsOnStorageFaultByDefault(t *testing.T) {
	db := dbtest.NewFaultyDB()
	a := newApplier(t, db, map[types.Address]uint64{adv: 100})
	db.FailWrites(true)
	require.Panics(t, func() {
		a.Deliver(factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(1), 10, "", "x"), 0, 1))
	})
}

func TestAppHashIsDeterministic(t *testing.T) {
	balances := map[types.Address]uint64{adv: 500, pub: 500}
	var txs [][]byte
	for i := 0; i < 5; i++ {
		txs = append(txs, factory.PlaceBidTx(t, advKey,
			types.NewBid(factory.BidID(byte(i)), uint64(10*i), "", "sports"), uint64(i), 1))
	}
	txs = append(txs,
		[]byte("garbage"),
		factory.TriggerAuctionTx(t, pubKey, types.NewAuctionTrigger(factory.BidID(100), 5, "sports"), 0, 2),
		factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(0), 1, "", "dup"), 5, 1),
	)

	run := func() state.Info {
		a := newApplier(t, dbm.NewMemDB(), balances)
		for _, tx := range txs {
			a.Deliver(tx)
		}
		return a.Info()
	}

	first, second := run(), run()
	require.Equal(t, first, second)
	require.EqualValues(t, 7, first.Height, "malformed tx is not committed")
	require.Len(t, first.AppHash, 32)
}

func TestApplierReloadsMetadata(t *testing.T) {
	db := dbm.NewMemDB()
	a := newApplier(t, db, map[types.Address]uint64{adv: 100})
	deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(1), 1, "", "a"), 0, 1))
	deliver(t, a, factory.PlaceBidTx(t, advKey, types.NewBid(factory.BidID(2), 1, "", "a"), 1, 1))
	info := a.Info()

	reopened, err := state.NewApplier(log.NewNopLogger(), db)
	require.NoError(t, err)
	require.Equal(t, info, reopened.Info())

	// InitChain is idempotent for the same chain and refuses another
	require.NoError(t, reopened.InitChain(&types.GenesisDoc{ChainID: "test-chain"}))
	require.Error(t, reopened.InitChain(&types.GenesisDoc{ChainID: "other"}))
	require.EqualValues(t, 98, account(t, reopened, adv).Balance)

	ob, err := inventory.Get(reopened.Store(), factory.BidID(2))
	require.NoError(t, err)
	require.EqualValues(t, 1, ob.Seq)
}

func TestSettlementOps(t *testing.T) {
	a := newApplier(t, dbm.NewMemDB(), nil)
	before := a.Info()

	res, err := a.Onboard(adv, 300, []byte("deposit-1"))
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Height)
	require.EqualValues(t, 300, account(t, a, adv).Balance)

	_, err = a.Offboard(adv, 301, []byte("withdraw-1"))
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
	require.EqualValues(t, 300, account(t, a, adv).Balance)

	_, err = a.Offboard(adv, 120, []byte("withdraw-2"))
	require.NoError(t, err)
	require.EqualValues(t, 180, account(t, a, adv).Balance)

	_, err = a.Onboard("not-an-address", 1, nil)
	require.Error(t, err)

	require.NotEqual(t, before.AppHash, a.Info().AppHash)
	require.EqualValues(t, 2, a.Info().Height)
}

func TestSettlementStorageFaultHalts(t *testing.T) {
	db := dbtest.NewFaultyDB()
	var faults []error
	a := newApplier(t, db, map[types.Address]uint64{adv: 100},
		state.WithFaultHandler(func(err error) { faults = append(faults, err) }))
	before := a.Info()

	db.FailWrites(true)
	_, err := a.Onboard(adv, 5, []byte("deposit"))
	require.ErrorIs(t, err, types.ErrStorageFault)
	_, err = a.Offboard(adv, 5, []byte("withdraw"))
	require.ErrorIs(t, err, types.ErrStorageFault)

	require.Len(t, faults, 2)
	for _, err := range faults {
		require.ErrorIs(t, err, types.ErrStorageFault)
	}
	require.Equal(t, before, a.Info())
	require.EqualValues(t, 100, account(t, a, adv).Balance)

	// a rejected settlement is not a fault
	db.FailWrites(false)
	_, err = a.Offboard(adv, 500, nil)
	require.ErrorIs(t, err, types.ErrInsufficientFunds)
	require.Len(t, faults, 2)
}

func TestSettlementPanicsOnStorageFaultByDefault(t *testing.T) {
	db := dbtest.NewFaultyDB()
	a := newApplier(t, db, nil)
	db.FailWrites(true)
	require.Panics(t, func() {
		_, _ = a.Onboard(adv, 5, nil)
	})
}
