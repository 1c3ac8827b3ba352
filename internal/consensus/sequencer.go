package consensus

import (
	"context"
	"time"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/service"
	"github.com/unwalled/unwalled/types"
)

// Mempool is the part of the mempool the sequencer drains.
type Mempool interface {
	TxsAvailable() <-chan struct{}
	ReapMaxTxs(max int) [][]byte
	Update(delivered [][]byte)
}

// Deliverer applies one ordered transaction. A non-nil error is a storage
// fault; rejections are reported in the result.
type Deliverer interface {
	DeliverTx(tx []byte) (*types.TxResult, error)
}

// SequencerOption sets an optional parameter on the Sequencer.
type SequencerOption func(*Sequencer)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) SequencerOption {
	return func(s *Sequencer) { s.metrics = metrics }
}

// WithFaultHandler sets the function called when delivery hits a storage
// fault. The sequencer stops delivering either way.
func WithFaultHandler(fn func(error)) SequencerOption {
	return func(s *Sequencer) { s.onFault = fn }
}

// Sequencer is the single-node ordering service. It takes transactions from
// the mempool in arrival order and hands each one to the Deliverer exactly
// once. Every replica fed the same order reaches the same state, so the
// sequencer can later be replaced by a replicated log without touching the
// applier.
type Sequencer struct {
	service.BaseService
	logger log.Logger

	config    *config.SequencerConfig
	mempool   Mempool
	deliverer Deliverer
	metrics   *Metrics
	onFault   func(error)

	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// NewSequencer returns a sequencer draining mp into d.
func NewSequencer(
	logger log.Logger,
	cfg *config.SequencerConfig,
	mp Mempool,
	d Deliverer,
	options ...SequencerOption,
) *Sequencer {
	s := &Sequencer{
		logger:    logger,
		config:    cfg,
		mempool:   mp,
		deliverer: d,
		metrics:   NopMetrics(),
		onFault:   func(error) {},
		done:      make(chan struct{}),
	}
	for _, opt := range options {
		opt(s)
	}
	s.BaseService = *service.NewBaseService(logger, "Sequencer", s)
	return s
}

// OnStart starts the delivery loop. The loop exits when ctx is canceled or
// on the first storage fault.
func (s *Sequencer) OnStart(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.run(ctx)
	return nil
}

// OnStop waits for the delivery loop to exit. The in-flight transaction, if
// any, is finished first.
func (s *Sequencer) OnStop() {
	s.cancel()
	<-s.done
}

// Done is closed once the delivery loop has exited.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Err returns the storage fault that stopped the loop, if any. It is only
// meaningful after Done is closed.
func (s *Sequencer) Err() error {
	<-s.done
	return s.err
}

func (s *Sequencer) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.IdleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.mempool.TxsAvailable():
		case <-ticker.C:
		}

		if err := s.deliverBatch(ctx); err != nil {
			s.err = err
			s.logger.Error("stopped delivering transactions", "err", err)
			s.onFault(err)
			return
		}
	}
}

func (s *Sequencer) deliverBatch(ctx context.Context) error {
	max := s.config.MaxBatchTxs
	if max == 0 {
		max = -1
	}
	txs := s.mempool.ReapMaxTxs(max)
	if len(txs) == 0 {
		return nil
	}

	start := time.Now()
	delivered := make([][]byte, 0, len(txs))
	defer func() {
		s.mempool.Update(delivered)
	}()

	var sizeBytes int
	for _, tx := range txs {
		if ctx.Err() != nil {
			break
		}
		res, err := s.deliverer.DeliverTx(tx)
		if err != nil {
			return err
		}
		delivered = append(delivered, tx)
		sizeBytes += len(tx)

		s.logger.Debug("delivered tx", "tx", log.Hexadecimal(res.Hash), "code", res.Code, "height", res.Height)
	}

	s.metrics.NumTxs.Set(float64(len(delivered)))
	s.metrics.TotalTxs.Add(float64(len(delivered)))
	s.metrics.BatchSizeBytes.Observe(float64(sizeBytes))
	s.metrics.BatchDurationSeconds.Observe(time.Since(start).Seconds())
	return nil
}
