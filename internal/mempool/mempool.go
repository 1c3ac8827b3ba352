package mempool

import (
	"context"
	"fmt"
	"sync"

	"github.com/creachadair/taskgroup"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/types"
)

// TxMempoolOption sets an optional parameter on the TxMempool.
type TxMempoolOption func(*TxMempool)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) TxMempoolOption {
	return func(txmp *TxMempool) { txmp.metrics = metrics }
}

// WrappedTx is a transaction accepted by the mempool, decoded and verified.
type WrappedTx struct {
	tx   []byte
	hash types.TxKey
	// Signer and nonce are kept for logging and RPC; the applier decides
	// whether the nonce is still current at delivery.
	signer types.Address
	nonce  uint64
}

func (wtx *WrappedTx) Bytes() []byte         { return wtx.tx }
func (wtx *WrappedTx) Key() types.TxKey      { return wtx.hash }
func (wtx *WrappedTx) Signer() types.Address { return wtx.signer }
func (wtx *WrappedTx) Size() int             { return len(wtx.tx) }

// TxMempool holds verified transactions in arrival order until the sequencer
// delivers them. Only stateless checks run here: the applier is the sole
// judge of nonces and balances, and it records a result for every tx it is
// handed.
type TxMempool struct {
	logger  log.Logger
	metrics *Metrics
	config  *config.MempoolConfig

	// txsAvailable fires once whenever the mempool goes from empty to
	// non-empty.
	txsAvailable         chan struct{}
	notifiedTxsAvailable bool

	// cache defines a fixed-size cache of already seen transactions, so a
	// resubmitted tx does not pay for signature verification again.
	cache TxCache

	mtx       sync.RWMutex
	txs       []*WrappedTx
	txByKey   map[types.TxKey]*WrappedTx
	sizeBytes int64
}

func NewTxMempool(logger log.Logger, cfg *config.MempoolConfig, options ...TxMempoolOption) *TxMempool {
	txmp := &TxMempool{
		logger:       logger,
		config:       cfg,
		cache:        NopTxCache{},
		metrics:      NopMetrics(),
		txsAvailable: make(chan struct{}, 1),
		txByKey:      make(map[types.TxKey]*WrappedTx),
	}

	if cfg.CacheSize > 0 {
		txmp.cache = NewLRUTxCache(cfg.CacheSize)
	}

	for _, opt := range options {
		opt(txmp)
	}

	return txmp
}

// Size returns the number of valid transactions in the mempool.
func (txmp *TxMempool) Size() int {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()
	return len(txmp.txs)
}

// SizeBytes return the total sum in bytes of all the valid transactions in the
// mempool.
func (txmp *TxMempool) SizeBytes() int64 {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()
	return txmp.sizeBytes
}

// TxsAvailable returns a channel which fires once after the mempool becomes
// non-empty. The channel is re-armed by Update and Flush once the mempool is
// empty again.
func (txmp *TxMempool) TxsAvailable() <-chan struct{} {
	return txmp.txsAvailable
}

// CheckTx decodes tx and verifies its signature. If both pass and the mempool
// has room, tx is appended to the queue. A tx that fails is removed from the
// seen cache so that a corrected resubmission is not rejected as a duplicate.
func (txmp *TxMempool) CheckTx(ctx context.Context, tx []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := txmp.admit(tx); err != nil {
		return err
	}
	wtx, err := txmp.verify(tx)
	if err != nil {
		return err
	}
	return txmp.insert(wtx)
}

// CheckTxs is CheckTx over a batch. Signatures are verified on up to
// CheckTxWorkers goroutines, but accepted txs enter the queue in submission
// order, so a signer's consecutive nonces stay consecutive. The returned
// slice holds the error for each tx by position.
func (txmp *TxMempool) CheckTxs(ctx context.Context, txs [][]byte) []error {
	errs := make([]error, len(txs))
	if err := ctx.Err(); err != nil {
		for i := range errs {
			errs[i] = err
		}
		return errs
	}

	// Size and duplicate checks run in order, so a tx repeated within the
	// batch is always rejected at its later position.
	for i, tx := range txs {
		errs[i] = txmp.admit(tx)
	}

	workers := txmp.config.CheckTxWorkers
	if workers < 1 {
		workers = 1
	}
	wtxs := make([]*WrappedTx, len(txs))
	sem := make(chan struct{}, workers)
	g := taskgroup.New(nil)
	for i := range txs {
		if errs[i] != nil {
			continue
		}
		i := i
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			wtxs[i], errs[i] = txmp.verify(txs[i])
			return nil
		})
	}
	_ = g.Wait()

	for i, wtx := range wtxs {
		if errs[i] == nil {
			errs[i] = txmp.insert(wtx)
		}
	}
	return errs
}

// admit runs the checks that need no decoding and records tx as seen.
func (txmp *TxMempool) admit(tx []byte) error {
	if txSize := len(tx); txSize > txmp.config.MaxTxBytes {
		txmp.metrics.FailedTxs.With("reason", "too_large").Add(1)
		return ErrTxTooLarge{Max: txmp.config.MaxTxBytes, Actual: txSize}
	}
	if !txmp.cache.Push(tx) {
		txmp.metrics.AlreadySeenTxs.Add(1)
		return ErrTxInCache
	}
	return nil
}

// verify decodes tx and checks its signature. It is safe to call
// concurrently.
func (txmp *TxMempool) verify(tx []byte) (*WrappedTx, error) {
	wtx, err := verifyTx(tx)
	if err != nil {
		txmp.cache.Remove(tx)
		txmp.metrics.FailedTxs.With("reason", "precheck").Add(1)
		txmp.logger.Debug("rejected invalid transaction",
			"tx", fmt.Sprintf("%X", types.TxHash(tx)),
			"err", err,
		)
		return nil, err
	}
	return wtx, nil
}

// insert appends a verified tx to the queue if there is room.
func (txmp *TxMempool) insert(wtx *WrappedTx) error {
	txmp.mtx.Lock()
	defer txmp.mtx.Unlock()

	if err := txmp.canAdd(wtx); err != nil {
		txmp.cache.Remove(wtx.tx)
		txmp.metrics.FailedTxs.With("reason", "full").Add(1)
		return err
	}
	if _, ok := txmp.txByKey[wtx.hash]; ok {
		return ErrTxInCache
	}

	txmp.txs = append(txmp.txs, wtx)
	txmp.txByKey[wtx.hash] = wtx
	txmp.sizeBytes += int64(wtx.Size())

	txmp.metrics.TxSizeBytes.Observe(float64(wtx.Size()))
	txmp.metrics.Size.Set(float64(len(txmp.txs)))

	txmp.logger.Debug("inserted new valid transaction",
		"tx", fmt.Sprintf("%X", wtx.hash),
		"signer", wtx.signer,
		"nonce", wtx.nonce,
		"num_txs", len(txmp.txs),
	)
	txmp.notifyTxsAvailable()
	return nil
}

// ReapMaxTxs returns up to max transactions in arrival order. A negative max
// returns all of them. The transactions stay in the mempool until Update.
func (txmp *TxMempool) ReapMaxTxs(max int) [][]byte {
	txmp.mtx.RLock()
	defer txmp.mtx.RUnlock()

	n := len(txmp.txs)
	if max >= 0 && max < n {
		n = max
	}
	txs := make([][]byte, 0, n)
	for _, wtx := range txmp.txs[:n] {
		txs = append(txs, wtx.tx)
	}
	return txs
}

// Update removes delivered transactions from the mempool. Delivered
// transactions stay in the seen cache whatever their result code, since the
// applier has already consumed them.
func (txmp *TxMempool) Update(delivered [][]byte) {
	txmp.mtx.Lock()
	defer txmp.mtx.Unlock()

	for _, tx := range delivered {
		key := types.TxKeyOf(tx)
		if wtx, ok := txmp.txByKey[key]; ok {
			delete(txmp.txByKey, key)
			txmp.sizeBytes -= int64(wtx.Size())
		}
	}

	kept := txmp.txs[:0]
	for _, wtx := range txmp.txs {
		if _, ok := txmp.txByKey[wtx.hash]; ok {
			kept = append(kept, wtx)
		}
	}
	for i := len(kept); i < len(txmp.txs); i++ {
		txmp.txs[i] = nil
	}
	txmp.txs = kept

	txmp.metrics.Size.Set(float64(len(txmp.txs)))
	if len(txmp.txs) == 0 {
		txmp.notifiedTxsAvailable = false
	} else {
		txmp.notifyTxsAvailable()
	}
}

// Flush empties the mempool and resets the seen cache.
func (txmp *TxMempool) Flush() {
	txmp.mtx.Lock()
	defer txmp.mtx.Unlock()

	txmp.txs = nil
	txmp.txByKey = make(map[types.TxKey]*WrappedTx)
	txmp.sizeBytes = 0
	txmp.notifiedTxsAvailable = false
	txmp.cache.Reset()
	txmp.metrics.Size.Set(0)
}

// canAdd returns an error if wtx does not fit. Caller must hold the lock.
func (txmp *TxMempool) canAdd(wtx *WrappedTx) error {
	var (
		numTxs    = len(txmp.txs)
		sizeBytes = txmp.sizeBytes
	)

	if numTxs >= txmp.config.Size || int64(wtx.Size())+sizeBytes > txmp.config.MaxTxsBytes {
		return ErrMempoolIsFull{
			NumTxs:      numTxs,
			MaxTxs:      txmp.config.Size,
			TxsBytes:    sizeBytes,
			MaxTxsBytes: txmp.config.MaxTxsBytes,
		}
	}

	return nil
}

// notifyTxsAvailable must be called with the lock held.
func (txmp *TxMempool) notifyTxsAvailable() {
	if len(txmp.txs) == 0 || txmp.notifiedTxsAvailable {
		return
	}
	txmp.notifiedTxsAvailable = true
	select {
	case txmp.txsAvailable <- struct{}{}:
	default:
	}
}

func verifyTx(bz []byte) (*WrappedTx, error) {
	tx, err := types.DecodeTx(bz)
	if err != nil {
		return nil, ErrPreCheck{Reason: err}
	}
	if !tx.Verify() {
		return nil, ErrPreCheck{Reason: types.ErrInvalidSignature}
	}
	return &WrappedTx{
		tx:     bz,
		hash:   types.TxKeyOf(bz),
		signer: tx.SignerAddress(),
		nonce:  tx.GetNonce(),
	}, nil
}
