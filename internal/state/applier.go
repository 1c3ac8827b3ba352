package state

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/internal/inventory"
	"github.com/unwalled/unwalled/internal/ledger"
	"github.com/unwalled/unwalled/internal/matching"
	"github.com/unwalled/unwalled/internal/store"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/types"
)

// EventPublisher receives the effects of delivered transactions after they
// are committed.
type EventPublisher interface {
	PublishEventTx(types.EventDataTx) error
	PublishEventMatch(types.EventDataMatch) error
}

type nopPublisher struct{}

func (nopPublisher) PublishEventTx(types.EventDataTx) error       { return nil }
func (nopPublisher) PublishEventMatch(types.EventDataMatch) error { return nil }

// Option sets an optional parameter on the Applier.
type Option func(*Applier)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(a *Applier) { a.metrics = metrics }
}

// WithEventPublisher sets the publisher that receives committed effects.
func WithEventPublisher(pub EventPublisher) Option {
	return func(a *Applier) { a.events = pub }
}

// WithFaultHandler sets the function Deliver calls on a storage fault. It
// must not return normally into consensus: the default panics.
func WithFaultHandler(fn func(error)) Option {
	return func(a *Applier) { a.onFault = fn }
}

// Applier is the only writer of exchange state. Consensus hands it each
// ordered transaction through Deliver. Every transaction is either applied
// in full, in one atomic commit, or leaves state untouched.
//
// The steps for a transaction short-circuit in this order: signature,
// nonce, fee solvency, then the payload. A payload failure after the fee
// check (a duplicate bid id) still consumes the nonce and the fee.
type Applier struct {
	mtx sync.Mutex

	store   *store.Store
	logger  log.Logger
	metrics *Metrics
	events  EventPublisher
	onFault func(error)

	// cached metadata, mirrored in the store
	height  uint64
	appHash []byte
	seq     uint64
	chainID string
}

// NewApplier loads applier metadata from db and returns an Applier writing
// to it.
func NewApplier(logger log.Logger, db dbm.DB, options ...Option) (*Applier, error) {
	a := &Applier{
		store:   store.NewStore(db),
		logger:  logger,
		metrics: NopMetrics(),
		events:  nopPublisher{},
		onFault: func(err error) { panic(err) },
	}
	for _, opt := range options {
		opt(a)
	}

	if err := a.loadMeta(); err != nil {
		return nil, err
	}
	a.metrics.Height.Set(float64(a.height))
	return a, nil
}

func (a *Applier) loadMeta() error {
	var err error
	if a.height, err = a.loadUint64(store.MetaHeight); err != nil {
		return err
	}
	if a.seq, err = a.loadUint64(store.MetaSeq); err != nil {
		return err
	}
	if a.appHash, err = a.store.Get(store.MetaKey(store.MetaAppHash)); err != nil {
		return err
	}
	chainID, err := a.store.Get(store.MetaKey(store.MetaChainID))
	if err != nil {
		return err
	}
	a.chainID = string(chainID)
	return nil
}

func (a *Applier) loadUint64(name string) (uint64, error) {
	bz, err := a.store.Get(store.MetaKey(name))
	switch {
	case err != nil:
		return 0, err
	case bz == nil:
		return 0, nil
	case len(bz) != 8:
		return 0, types.StorageFault("load "+name, fmt.Errorf("value is %d bytes", len(bz)))
	}
	return binary.LittleEndian.Uint64(bz), nil
}

func uint64Bytes(v uint64) []byte {
	bz := make([]byte, 8)
	binary.LittleEndian.PutUint64(bz, v)
	return bz
}

// Store returns the store for read-only queries.
func (a *Applier) Store() *store.Store {
	return a.store
}

// Info describes the applier's position in the transaction stream.
type Info struct {
	ChainID string `json:"chain_id"`
	Height  uint64 `json:"height"`
	AppHash []byte `json:"app_hash"`
}

// Info returns the applier's current metadata.
func (a *Applier) Info() Info {
	a.mtx.Lock()
	defer a.mtx.Unlock()
	return Info{
		ChainID: a.chainID,
		Height:  a.height,
		AppHash: append([]byte(nil), a.appHash...),
	}
}

// InitChain funds the genesis accounts. It is a no-op if the store was
// already initialized for the same chain, and an error for another chain.
func (a *Applier) InitChain(genDoc *types.GenesisDoc) error {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	if a.chainID != "" {
		if a.chainID != genDoc.ChainID {
			return fmt.Errorf("store belongs to chain %q, genesis is for %q", a.chainID, genDoc.ChainID)
		}
		return nil
	}

	tx := a.store.NewTx()
	for _, acc := range genDoc.Accounts {
		if err := ledger.Credit(tx, acc.Address, acc.Balance); err != nil {
			return fmt.Errorf("funding %s: %w", acc.Address, err)
		}
	}
	tx.Set(store.MetaKey(store.MetaChainID), []byte(genDoc.ChainID))
	if err := tx.Commit(); err != nil {
		return err
	}

	a.chainID = genDoc.ChainID
	a.logger.Info("initialized chain", "chain_id", genDoc.ChainID, "accounts", len(genDoc.Accounts))
	return nil
}

// Deliver applies one consensus-ordered transaction. Rejected transactions
// are logged and otherwise ignored. A storage fault is handed to the fault
// handler, which halts the node by default.
func (a *Applier) Deliver(txBytes []byte) {
	if _, err := a.DeliverTx(txBytes); err != nil {
		a.halt(err)
	}
}

// halt reports a storage fault to the fault handler. The in-memory metadata
// still matches the last successful commit.
func (a *Applier) halt(err error) {
	a.logger.Error("halting on storage fault", "err", err)
	a.onFault(err)
}

// DeliverTx decodes and applies txBytes. The returned error is non-nil only
// for storage faults; rejections are reported in the result code.
func (a *Applier) DeliverTx(txBytes []byte) (*types.TxResult, error) {
	hash := types.TxHash(txBytes)

	tx, err := types.DecodeTx(txBytes)
	if err != nil {
		a.metrics.Txs.With("kind", "unknown", "code", types.CodeMalformedTx.String()).Add(1)
		a.logger.Warn("rejected malformed tx", "hash", log.Hexadecimal(hash), "err", err)
		res := &types.TxResult{Hash: hash, Code: types.CodeMalformedTx, Log: err.Error()}
		a.publish(res)
		return res, nil
	}

	return a.applyTx(tx, hash)
}

// ApplyTx applies a decoded transaction. Rejections are returned as errors
// wrapping the matching types error; a result is always returned unless the
// store failed.
func (a *Applier) ApplyTx(tx types.Tx) (*types.TxResult, error) {
	res, err := a.applyTx(tx, types.TxHash(tx.Bytes()))
	if err != nil {
		return nil, err
	}
	if !res.Code.IsOK() {
		return res, fmt.Errorf("%w: %s", codeErr(res.Code), res.Log)
	}
	return res, nil
}

func codeErr(c types.Code) error {
	switch c {
	case types.CodeMalformedTx:
		return types.ErrMalformedTx
	case types.CodeInvalidSignature:
		return types.ErrInvalidSignature
	case types.CodeReplayedOrOutOfOrderNonce:
		return types.ErrReplayedOrOutOfOrderNonce
	case types.CodeInsufficientFunds:
		return types.ErrInsufficientFunds
	case types.CodeDuplicateBidID:
		return types.ErrDuplicateBidID
	case types.CodeBalanceOverflow:
		return types.ErrBalanceOverflow
	default:
		return errors.New(c.String())
	}
}

func (a *Applier) applyTx(tx types.Tx, hash []byte) (*types.TxResult, error) {
	a.mtx.Lock()
	defer a.mtx.Unlock()

	start := time.Now()
	res := &types.TxResult{Hash: hash, Kind: tx.Kind(), Signer: tx.SignerAddress()}

	stx := a.store.NewTx()
	seq := a.seq
	match, err := a.execute(stx, tx, &seq)
	switch {
	case errors.Is(err, types.ErrStorageFault):
		return nil, err
	case err != nil && stx.Len() == 0:
		// rejected before any state change
		res.Code, res.Log = types.CodeOf(err), err.Error()
		a.metrics.Txs.With("kind", res.Kind.String(), "code", res.Code.String()).Add(1)
		a.logger.Warn("rejected tx",
			"hash", log.Hexadecimal(hash),
			"kind", res.Kind,
			"signer", res.Signer,
			"nonce", tx.GetNonce(),
			"code", res.Code,
			"err", err)
		a.publish(res)
		return res, nil
	case err != nil:
		res.Code, res.Log = types.CodeOf(err), err.Error()
	}
	res.Match = match

	height := a.height + 1
	appHash := nextAppHash(a.appHash, hash, res.Code)
	stx.Set(store.MetaKey(store.MetaHeight), uint64Bytes(height))
	stx.Set(store.MetaKey(store.MetaAppHash), appHash)
	stx.Set(store.MetaKey(store.MetaSeq), uint64Bytes(seq))

	if err := stx.Commit(); err != nil {
		return nil, err
	}

	a.height, a.appHash, a.seq = height, appHash, seq
	res.Height = height

	a.metrics.Height.Set(float64(height))
	a.metrics.Txs.With("kind", res.Kind.String(), "code", res.Code.String()).Add(1)
	a.metrics.FeesCollected.Add(float64(tx.GetFee()))
	a.metrics.ApplyDuration.Observe(time.Since(start).Seconds())

	if match != nil {
		a.metrics.Matches.With("settled", fmt.Sprint(match.Settled)).Add(1)
		if match.Settled {
			a.metrics.SettledVolume.Add(float64(match.WinningPrice))
		}
		a.logger.Info("matched auction",
			"auction", match.AuctionID,
			"bid", match.BidID,
			"price", match.WinningPrice,
			"settled", match.Settled,
			"height", height)
	}
	if !res.Code.IsOK() {
		a.logger.Warn("rejected tx after fee",
			"hash", log.Hexadecimal(hash), "signer", res.Signer, "code", res.Code, "err", res.Log)
	} else {
		a.logger.Debug("applied tx", "hash", log.Hexadecimal(hash), "kind", res.Kind, "height", height)
	}

	a.publish(res)
	return res, nil
}

// execute stages the effects of tx on stx, advancing seq for every bid it
// inserts. An error with nothing staged is a rejection; an error after the
// fee was staged is a payload failure that still commits.
func (a *Applier) execute(stx *store.Tx, tx types.Tx, seq *uint64) (*types.Match, error) {
	if !tx.Verify() {
		return nil, types.ErrInvalidSignature
	}

	signer := tx.SignerAddress()
	acc, err := ledger.GetAccount(stx, signer)
	if err != nil {
		return nil, err
	}
	if tx.GetNonce() != acc.NextNonce {
		return nil, fmt.Errorf("%w: got %d, expected %d",
			types.ErrReplayedOrOutOfOrderNonce, tx.GetNonce(), acc.NextNonce)
	}
	if acc.Balance < tx.GetFee() {
		return nil, fmt.Errorf("%w: fee %d exceeds balance %d",
			types.ErrInsufficientFunds, tx.GetFee(), acc.Balance)
	}

	if err := a.chargeFee(stx, signer, tx.GetFee()); err != nil {
		stx.Discard()
		return nil, err
	}

	switch tx := tx.(type) {
	case *types.PlaceBidTx:
		return nil, a.placeBid(stx, signer, tx.Payload, seq)
	case *types.TriggerAuctionTx:
		return a.triggerAuction(stx, signer, tx.Payload)
	default:
		stx.Discard()
		return nil, fmt.Errorf("%w: unknown tx type %T", types.ErrMalformedTx, tx)
	}
}

func (a *Applier) chargeFee(stx *store.Tx, signer types.Address, fee uint64) error {
	if _, err := ledger.GetAndIncrementNonce(stx, signer); err != nil {
		return err
	}
	if fee == 0 {
		return nil
	}
	if err := ledger.Debit(stx, signer, fee); err != nil {
		return err
	}
	return ledger.Credit(stx, types.FeePoolAddress, fee)
}

func (a *Applier) placeBid(stx *store.Tx, advertiser types.Address, bid *types.Bid, seq *uint64) error {
	err := inventory.Insert(stx, &inventory.OpenBid{
		Bid:        bid,
		Advertiser: advertiser,
		Seq:        *seq,
	})
	if err != nil {
		return err
	}
	*seq++
	return nil
}

// triggerAuction runs the auction and, on a match, removes the winning bid
// and moves the winning price from the advertiser to the publisher if the
// advertiser can pay it. Otherwise the match is left for the settlement
// layer.
func (a *Applier) triggerAuction(
	stx *store.Tx,
	publisher types.Address,
	auction *types.AuctionTrigger,
) (*types.Match, error) {
	match, err := matching.FindMatch(stx, auction, publisher)
	if err != nil || match == nil {
		return nil, err
	}

	if _, err := inventory.Remove(stx, match.BidID); err != nil {
		return nil, err
	}

	err = ledger.Transfer(stx, match.AdvertiserAddress, match.PublisherAddress, match.WinningPrice)
	switch {
	case err == nil:
		match.Settled = true
	case errors.Is(err, types.ErrInsufficientFunds), errors.Is(err, types.ErrBalanceOverflow):
		a.logger.Info("match left unsettled", "auction", match.AuctionID, "reason", err)
	default:
		return nil, err
	}
	return match, nil
}

func (a *Applier) publish(res *types.TxResult) {
	if err := a.events.PublishEventTx(types.EventDataTx{TxResult: *res}); err != nil {
		a.logger.Error("failed publishing tx event", "err", err)
	}
	if res.Match == nil {
		return
	}
	err := a.events.PublishEventMatch(types.EventDataMatch{
		Height: res.Height,
		TxHash: res.Hash,
		Match:  *res.Match,
	})
	if err != nil {
		a.logger.Error("failed publishing match event", "err", err)
	}
}

// nextAppHash chains the previous app hash with the hash and result code of
// a committed transaction.
func nextAppHash(prev, txHash []byte, code types.Code) []byte {
	h := sha256.New()
	h.Write(prev)
	h.Write(txHash)
	var c [4]byte
	binary.LittleEndian.PutUint32(c[:], uint32(code))
	h.Write(c[:])
	return h.Sum(nil)
}
