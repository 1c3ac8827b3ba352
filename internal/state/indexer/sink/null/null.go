package null

import (
	"context"

	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/types"
)

var _ indexer.EventSink = (*EventSink)(nil)

// EventSink implements a no-op indexer.
type EventSink struct{}

func NewEventSink() indexer.EventSink {
	return &EventSink{}
}

func (nes *EventSink) Type() indexer.EventSinkType {
	return indexer.NULL
}

func (nes *EventSink) IndexTxEvents(results []*types.TxResult) error {
	return nil
}

func (nes *EventSink) SearchTxEvents(ctx context.Context, q *query.Query) ([]*types.TxResult, error) {
	return nil, nil
}

func (nes *EventSink) GetTxByHash(hash []byte) (*types.TxResult, error) {
	return nil, nil
}

func (nes *EventSink) Stop() error {
	return nil
}
