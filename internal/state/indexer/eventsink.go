package indexer

import (
	"context"
	"errors"

	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/types"
)

type EventSinkType string

const (
	NULL EventSinkType = "null"
	KV   EventSinkType = "kv"
	PSQL EventSinkType = "psql"
)

var (
	// ErrEmptyHash is returned when looking up a tx by an empty hash.
	ErrEmptyHash = errors.New("transaction hash cannot be empty")

	// ErrNotImplemented is returned by sinks that are write-only.
	ErrNotImplemented = errors.New("not supported by this event sink")
)

// EventSink is the API the indexer Service uses to persist committed tx
// results and, where the backend supports it, to search them.
type EventSink interface {
	// IndexTxEvents indexes the given tx results, in delivery order.
	IndexTxEvents([]*types.TxResult) error

	// SearchTxEvents returns the results matching q, ordered by height.
	SearchTxEvents(context.Context, *query.Query) ([]*types.TxResult, error)

	// GetTxByHash returns the result of the tx with the given hash, or nil
	// if it was never indexed.
	GetTxByHash([]byte) (*types.TxResult, error)

	// Type checks the eventsink structure type.
	Type() EventSinkType

	// Stop will close the data store connection, if the eventsink supports it.
	Stop() error
}
