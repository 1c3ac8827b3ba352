// Package kv implements an event sink on a key-value database. It supports
// lookup by hash and conjunctive search on indexed attributes.
package kv

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/orderedcode"
	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/internal/state/indexer"
	"github.com/unwalled/unwalled/libs/pubsub/query"
	"github.com/unwalled/unwalled/types"
)

var _ indexer.EventSink = (*EventSink)(nil)

const (
	prefixResult = int64(1)
	prefixEvent  = int64(2)
)

// EventSink is backed by two key spaces:
//  1. tx hash -> result (primary key)
//  2. (attribute key, value, height, hash) -> hash (secondary key)
type EventSink struct {
	store dbm.DB
}

// NewEventSink creates a kv event sink writing to store.
func NewEventSink(store dbm.DB) *EventSink {
	return &EventSink{store: store}
}

func (kves *EventSink) Type() indexer.EventSinkType {
	return indexer.KV
}

func primaryKey(hash []byte) []byte {
	key, err := orderedcode.Append(nil, prefixResult, string(hash))
	if err != nil {
		panic(err)
	}
	return key
}

func eventKey(key, value string, height uint64, hash []byte) []byte {
	k, err := orderedcode.Append(nil, prefixEvent, key, value, height, string(hash))
	if err != nil {
		panic(err)
	}
	return k
}

func eventPrefix(key, value string) []byte {
	k, err := orderedcode.Append(nil, prefixEvent, key, value)
	if err != nil {
		panic(err)
	}
	return k
}

// IndexTxEvents writes results and their attribute index entries in one
// batch.
func (kves *EventSink) IndexTxEvents(results []*types.TxResult) error {
	b := kves.store.NewBatch()
	defer b.Close()

	for _, res := range results {
		if len(res.Hash) == 0 {
			return indexer.ErrEmptyHash
		}
		raw, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encoding tx result: %w", err)
		}
		if err := b.Set(primaryKey(res.Hash), raw); err != nil {
			return err
		}

		for key, values := range res.Events() {
			for _, v := range values {
				if err := b.Set(eventKey(key, v, res.Height, res.Hash), res.Hash); err != nil {
					return err
				}
			}
		}
	}

	return b.WriteSync()
}

// GetTxByHash returns the indexed result for hash, or nil if there is none.
func (kves *EventSink) GetTxByHash(hash []byte) (*types.TxResult, error) {
	if len(hash) == 0 {
		return nil, indexer.ErrEmptyHash
	}

	raw, err := kves.store.Get(primaryKey(hash))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}

	res := new(types.TxResult)
	if err := json.Unmarshal(raw, res); err != nil {
		return nil, fmt.Errorf("error reading TxResult: %w", err)
	}
	return res, nil
}

// SearchTxEvents returns the results matching every condition of q, ordered
// by height. A "tx.hash" condition is served from the primary key.
//
// Search returns early with the context error if ctx ends.
func (kves *EventSink) SearchTxEvents(ctx context.Context, q *query.Query) ([]*types.TxResult, error) {
	conds := q.Conditions()
	if len(conds) == 0 {
		return nil, fmt.Errorf("empty query")
	}

	var matches map[string]struct{}
	for _, c := range conds {
		hashes, err := kves.match(ctx, c)
		if err != nil {
			return nil, err
		}
		if matches == nil {
			matches = hashes
			continue
		}
		for h := range matches {
			if _, ok := hashes[h]; !ok {
				delete(matches, h)
			}
		}
	}

	results := make([]*types.TxResult, 0, len(matches))
	for h := range matches {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := kves.GetTxByHash([]byte(h))
		if err != nil {
			return nil, err
		}
		if res != nil {
			results = append(results, res)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Height != results[j].Height {
			return results[i].Height < results[j].Height
		}
		return bytes.Compare(results[i].Hash, results[j].Hash) < 0
	})
	return results, nil
}

func (kves *EventSink) match(ctx context.Context, c query.Condition) (map[string]struct{}, error) {
	hashes := make(map[string]struct{})

	if c.Key == types.TxHashKey {
		hash, err := hex.DecodeString(c.Value)
		if err != nil || len(hash) == 0 {
			return hashes, nil
		}
		ok, err := kves.store.Has(primaryKey(hash))
		if err != nil {
			return nil, err
		}
		if ok {
			hashes[string(hash)] = struct{}{}
		}
		return hashes, nil
	}

	prefix := eventPrefix(c.Key, c.Value)
	it, err := dbm.IteratePrefix(kves.store, prefix)
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for ; it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hashes[string(it.Value())] = struct{}{}
	}
	return hashes, it.Error()
}

func (kves *EventSink) Stop() error {
	return kves.store.Close()
}
