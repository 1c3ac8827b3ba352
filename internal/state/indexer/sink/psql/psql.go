// Package psql implements an event sink backed by a PostgreSQL database.
package psql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	// Register the Postgres database driver.
	_ "github.com/lib/pq"

	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/types"
)

const (
	tableTxResults  = "tx_results"
	tableAttributes = "attributes"
	tableMatches    = "matches"
	driverName      = "postgres"
)

// EventSink is an indexer backend providing the tx index services. This
// implementation stores records in a PostgreSQL database using the schema
// defined in state/indexer/sink/psql/schema.sql.
type EventSink struct {
	store   *sql.DB
	chainID string
}

// NewEventSink constructs an event sink associated with the PostgreSQL
// database specified by connStr. Events written to the sink are attributed to
// the specified chainID.
func NewEventSink(connStr, chainID string) (*EventSink, error) {
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, err
	}

	return &EventSink{
		store:   db,
		chainID: chainID,
	}, nil
}

// DB returns the underlying Postgres connection used by the sink.
// This is exported to support testing.
func (es *EventSink) DB() *sql.DB { return es.store }

// Type returns the structure type for this sink, which is Postgres.
func (es *EventSink) Type() indexer.EventSinkType { return indexer.PSQL }

// runInTransaction executes query in a fresh database transaction.
// If query reports an error, the transaction is rolled back and the
// error from query is reported to the caller.
// Otherwise, the result of committing the transaction is returned.
func runInTransaction(db *sql.DB, query func(*sql.Tx) error) error {
	dbtx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := query(dbtx); err != nil {
		_ = dbtx.Rollback() // report the initial error, not the rollback
		return err
	}
	return dbtx.Commit()
}

// queryWithID executes the specified SQL query with the given arguments,
// expecting a single-row, single-column result containing an ID. If the query
// succeeds, the ID from the result is returned.
func queryWithID(tx *sql.Tx, query string, args ...interface{}) (uint64, error) {
	var id uint64
	if err := tx.QueryRow(query, args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// IndexTxEvents indexes the specified tx results, part of the
// indexer.EventSink interface. Results already indexed are skipped.
func (es *EventSink) IndexTxEvents(txrs []*types.TxResult) error {
	ts := time.Now().UTC()

	for _, txr := range txrs {
		resultData, err := json.Marshal(txr)
		if err != nil {
			return fmt.Errorf("marshaling tx_result: %w", err)
		}

		if err := runInTransaction(es.store, func(dbtx *sql.Tx) error {
			txID, err := queryWithID(dbtx, `
INSERT INTO `+tableTxResults+` (chain_id, height, tx_hash, code, tx_result, created_at)
  VALUES ($1, $2, $3, $4, $5, $6)
  ON CONFLICT DO NOTHING
  RETURNING rowid;
`, es.chainID, txr.Height, txr.Hash.String(), int(txr.Code), resultData, ts)
			if errors.Is(err, sql.ErrNoRows) {
				return nil // we already saw this transaction; quietly succeed
			} else if err != nil {
				return fmt.Errorf("indexing tx_result: %w", err)
			}

			for key, values := range txr.Events() {
				for _, v := range values {
					if _, err := dbtx.Exec(`
INSERT INTO `+tableAttributes+` (tx_id, key, value)
  VALUES ($1, $2, $3)
  ON CONFLICT DO NOTHING;
`, txID, key, v); err != nil {
						return fmt.Errorf("indexing attribute %s: %w", key, err)
					}
				}
			}

			if m := txr.Match; m != nil {
				if _, err := dbtx.Exec(`
INSERT INTO `+tableMatches+` (tx_id, auction_id, bid_id, price, advertiser, publisher, settled)
  VALUES ($1, $2, $3, $4, $5, $6, $7);
`, txID, m.AuctionID.String(), m.BidID.String(), fmt.Sprint(m.WinningPrice),
					m.AdvertiserAddress.String(), m.PublisherAddress.String(), m.Settled); err != nil {
					return fmt.Errorf("indexing match: %w", err)
				}
			}
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// SearchTxEvents is not implemented by this sink, and reports an error for all queries.
func (es *EventSink) SearchTxEvents(ctx context.Context, q *query.Query) ([]*types.TxResult, error) {
	return nil, indexer.ErrNotImplemented
}

// GetTxByHash is not implemented by this sink, and reports an error for all queries.
func (es *EventSink) GetTxByHash(hash []byte) (*types.TxResult, error) {
	return nil, indexer.ErrNotImplemented
}

// Stop closes the underlying PostgreSQL database.
func (es *EventSink) Stop() error { return es.store.Close() }
