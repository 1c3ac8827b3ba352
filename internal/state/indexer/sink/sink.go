package sink

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unwalled/unwalled/config"
	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/internal/state/indexer/sink/kv"
	"github.com/unwalled/unwalled/internal/state/indexer/sink/null"
	"github.com/unwalled/unwalled/internal/state/indexer/sink/psql"
)

// TxIndexDBID names the database holding the kv sink.
const TxIndexDBID = "tx_index"

// EventSinksFromConfig opens the sinks listed in the tx-index section, in the
// order they are listed. An empty list, or one naming "null", disables
// indexing and opens nothing. If any sink fails to open, the ones already
// opened are stopped.
func EventSinksFromConfig(cfg *config.Config, dbProvider config.DBProvider, chainID string) ([]indexer.EventSink, error) {
	kinds, err := sinkTypes(cfg.TxIndex)
	if err != nil {
		return nil, err
	}
	if kinds == nil {
		return []indexer.EventSink{null.NewEventSink()}, nil
	}

	eventSinks := make([]indexer.EventSink, 0, len(kinds))
	for _, kind := range kinds {
		es, err := openSink(kind, cfg, dbProvider, chainID)
		if err != nil {
			for _, opened := range eventSinks {
				_ = opened.Stop()
			}
			return nil, fmt.Errorf("opening %s event sink: %w", kind, err)
		}
		eventSinks = append(eventSinks, es)
	}
	return eventSinks, nil
}

// sinkTypes validates the configured indexers. It returns nil when indexing
// is disabled.
func sinkTypes(cfg *config.TxIndexConfig) ([]indexer.EventSinkType, error) {
	seen := make(map[indexer.EventSinkType]struct{}, len(cfg.Indexer))
	kinds := make([]indexer.EventSinkType, 0, len(cfg.Indexer))
	disabled := len(cfg.Indexer) == 0
	for _, s := range cfg.Indexer {
		kind := indexer.EventSinkType(strings.ToLower(s))
		if _, ok := seen[kind]; ok {
			return nil, fmt.Errorf("duplicated event sink %q in the tx-index section", s)
		}
		seen[kind] = struct{}{}

		switch kind {
		case indexer.NULL:
			disabled = true
		case indexer.KV:
		case indexer.PSQL:
			if cfg.PsqlConn == "" {
				return nil, errors.New("the psql connection settings cannot be empty")
			}
		default:
			return nil, fmt.Errorf("unsupported event sink type %q", s)
		}
		kinds = append(kinds, kind)
	}
	if disabled {
		return nil, nil
	}
	return kinds, nil
}

func openSink(kind indexer.EventSinkType, cfg *config.Config, dbProvider config.DBProvider, chainID string) (indexer.EventSink, error) {
	switch kind {
	case indexer.KV:
		store, err := dbProvider(&config.DBContext{ID: TxIndexDBID, Config: cfg})
		if err != nil {
			return nil, err
		}
		return kv.NewEventSink(store), nil
	case indexer.PSQL:
		return psql.NewEventSink(cfg.TxIndex.PsqlConn, chainID)
	default:
		return nil, fmt.Errorf("unsupported event sink type %q", kind)
	}
}
