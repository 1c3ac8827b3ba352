package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/unwalled/unwalled/internal/eventbus"
	"github.com/unwalled/unwalled/libs/log"
	"github.com/unwalled/unwalled/libs/pubsub"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/libs/service"
	"github.com/unwalled/unwalled/types"
)

const (
	subscriber = "IndexerService"

	// The indexer must not fall behind by more than this many txs or its
	// subscription is dropped.
	subscriptionLimit = 10000
)

// EventQueryTx selects every delivered tx.
var EventQueryTx = query.MustNew(types.EventTypeKey + " = '" + types.EventTx + "'")

// Service connects the event bus to the event sinks, indexing every
// committed tx result published on the bus.
type Service struct {
	service.BaseService
	logger log.Logger

	eventSinks []EventSink
	eventBus   *eventbus.EventBus
	metrics    *Metrics
}

// ServiceArgs are arguments for constructing a new indexer service.
type ServiceArgs struct {
	Sinks    []EventSink
	EventBus *eventbus.EventBus
	Metrics  *Metrics
	Logger   log.Logger
}

// NewService constructs a new indexer service from the given arguments.
func NewService(args ServiceArgs) *Service {
	is := &Service{
		logger:     args.Logger,
		eventSinks: args.Sinks,
		eventBus:   args.EventBus,
		metrics:    args.Metrics,
	}
	if is.logger == nil {
		is.logger = log.NewNopLogger()
	}
	if is.metrics == nil {
		is.metrics = NopMetrics()
	}
	is.BaseService = *service.NewBaseService(is.logger, "IndexerService", is)
	return is
}

// OnStart implements service.Service by subscribing for all transactions
// and indexing them by events.
func (is *Service) OnStart(ctx context.Context) error {
	if !IndexingEnabled(is.eventSinks) {
		return nil
	}

	sub, err := is.eventBus.SubscribeWithArgs(ctx, pubsub.SubscribeArgs{
		ClientID: subscriber,
		Query:    EventQueryTx,
		Limit:    subscriptionLimit,
	})
	if err != nil {
		return err
	}

	go func() {
		for {
			msg, err := sub.Next(ctx)
			if err != nil {
				if !errors.Is(err, context.Canceled) && !errors.Is(err, pubsub.ErrUnsubscribed) {
					is.logger.Error("indexer subscription ended", "err", err)
				}
				return
			}
			res := msg.Data().(types.EventDataTx).TxResult
			if !res.Committed() {
				continue
			}
			is.index(&res)
		}
	}()
	return nil
}

func (is *Service) index(res *types.TxResult) {
	batch := []*types.TxResult{res}
	for _, sink := range is.eventSinks {
		start := time.Now()
		if err := sink.IndexTxEvents(batch); err != nil {
			is.logger.Error("failed to index tx", "height", res.Height, "hash", res.Hash, "err", err)
			continue
		}
		is.metrics.TxEventsSeconds.Observe(time.Since(start).Seconds())
		is.metrics.TransactionsIndexed.Add(1)
		is.logger.Debug("indexed tx", "height", res.Height, "sink", sink.Type())
	}
}

// OnStop implements service.Service by unsubscribing from all transactions and
// close the eventsink.
func (is *Service) OnStop() {
	if is.eventBus.IsRunning() {
		_ = is.eventBus.UnsubscribeAll(context.Background(), subscriber)
	}

	for _, sink := range is.eventSinks {
		if err := sink.Stop(); err != nil {
			is.logger.Error("failed to close eventsink", "eventsink", sink.Type(), "err", err)
		}
	}
}

// KVSinkEnabled returns the given eventSinks is containing KVEventSink.
func KVSinkEnabled(sinks []EventSink) bool {
	for _, sink := range sinks {
		if sink.Type() == KV {
			return true
		}
	}

	return false
}

// IndexingEnabled returns the given eventSinks is supporting the indexing services.
func IndexingEnabled(sinks []EventSink) bool {
	for _, sink := range sinks {
		if sink.Type() == KV || sink.Type() == PSQL {
			return true
		}
	}

	return false
}
