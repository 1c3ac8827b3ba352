package store

import (
	"bytes"
	"sort"

	dbm "github.com/tendermint/tm-db"

	"github.com/unwalled/unwalled/types"
)

/*
Store is the durable state of the exchange: account records, open bids, the
tag index used for matching and the applier's metadata. All of it lives in a
single DB so that one transaction's effects can be committed with one batch.

Writers go through a Tx, a copy-on-write overlay: reads see the Tx's own
pending writes first, then the DB. Nothing reaches the DB until Commit writes
every pending change in one synchronous batch. A Tx that is discarded, or
whose Commit fails, leaves the DB untouched.

Readers that are not the applier (RPC queries) call Get and Iterate on the
Store directly and observe state either before or after a commit, never in
between.
*/
type Store struct {
	db dbm.DB
}

// Reader is the read side shared by Store and Tx. Keys and values passed to
// an Iterate callback are only valid until it returns.
type Reader interface {
	Get(key []byte) ([]byte, error)
	Iterate(prefix []byte, fn func(key, value []byte) bool) error
}

// ReadWriter stages changes on top of a Reader.
type ReadWriter interface {
	Reader
	Set(key, value []byte)
	Delete(key []byte)
}

var (
	_ Reader     = (*Store)(nil)
	_ ReadWriter = (*Tx)(nil)
)

// NewStore returns a Store backed by db.
func NewStore(db dbm.DB) *Store {
	return &Store{db: db}
}

// Get returns the value stored at key, or nil if none exists.
func (s *Store) Get(key []byte) ([]byte, error) {
	bz, err := s.db.Get(key)
	if err != nil {
		return nil, types.StorageFault("get", err)
	}
	return bz, nil
}

// Iterate calls fn for every key with the given prefix in ascending key
// order until fn returns false.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	return iteratePrefix(s.db, prefix, fn)
}

// NewTx opens an overlay on the store.
func (s *Store) NewTx() *Tx {
	return &Tx{db: s.db, pending: make(map[string][]byte)}
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Tx is a copy-on-write view of the Store. It is not safe for concurrent use.
type Tx struct {
	db dbm.DB
	// pending maps a key to its new value; a nil value marks a delete.
	pending map[string][]byte
}

// Get returns the value at key as seen by this Tx, or nil.
func (tx *Tx) Get(key []byte) ([]byte, error) {
	if v, ok := tx.pending[string(key)]; ok {
		return v, nil
	}
	bz, err := tx.db.Get(key)
	if err != nil {
		return nil, types.StorageFault("get", err)
	}
	return bz, nil
}

// Has reports whether key holds a value as seen by this Tx.
func (tx *Tx) Has(key []byte) (bool, error) {
	bz, err := tx.Get(key)
	return bz != nil, err
}

// Set stages value at key. Empty values are stored as empty, not deleted.
func (tx *Tx) Set(key, value []byte) {
	if value == nil {
		value = []byte{}
	}
	tx.pending[string(key)] = value
}

// Delete stages the removal of key.
func (tx *Tx) Delete(key []byte) {
	tx.pending[string(key)] = nil
}

// Iterate calls fn for every key with the given prefix in ascending key
// order, merging pending writes over the DB, until fn returns false.
func (tx *Tx) Iterate(prefix []byte, fn func(key, value []byte) bool) error {
	staged := tx.stagedKeys(prefix)

	i := 0
	stopped := false
	err := iteratePrefix(tx.db, prefix, func(key, value []byte) bool {
		// emit staged keys that sort before the DB key
		for ; i < len(staged) && staged[i] < string(key); i++ {
			if v := tx.pending[staged[i]]; v != nil && !fn([]byte(staged[i]), v) {
				stopped = true
				return false
			}
		}
		if i < len(staged) && staged[i] == string(key) {
			v := tx.pending[staged[i]]
			i++
			if v == nil {
				return true
			}
			value = v
		}
		if !fn(key, value) {
			stopped = true
			return false
		}
		return true
	})
	if err != nil || stopped {
		return err
	}

	for ; i < len(staged); i++ {
		if v := tx.pending[staged[i]]; v != nil && !fn([]byte(staged[i]), v) {
			return nil
		}
	}
	return nil
}

func (tx *Tx) stagedKeys(prefix []byte) []string {
	var keys []string
	for k := range tx.pending {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of staged changes.
func (tx *Tx) Len() int { return len(tx.pending) }

// Commit writes every staged change to the DB in one synchronous batch.
// Either all changes become visible or, on error, none do. Any error wraps
// types.ErrStorageFault.
func (tx *Tx) Commit() error {
	keys := make([]string, 0, len(tx.pending))
	for k := range tx.pending {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	batch := tx.db.NewBatch()
	defer batch.Close()

	for _, k := range keys {
		var err error
		if v := tx.pending[k]; v == nil {
			err = batch.Delete([]byte(k))
		} else {
			err = batch.Set([]byte(k), v)
		}
		if err != nil {
			return types.StorageFault("batch", err)
		}
	}

	if err := batch.WriteSync(); err != nil {
		return types.StorageFault("commit", err)
	}

	tx.Discard()
	return nil
}

// Discard drops every staged change.
func (tx *Tx) Discard() {
	tx.pending = make(map[string][]byte)
}

func iteratePrefix(db dbm.DB, prefix []byte, fn func(key, value []byte) bool) error {
	iter, err := db.Iterator(prefix, prefixEnd(prefix))
	if err != nil {
		return types.StorageFault("iterator", err)
	}
	defer iter.Close()

	for ; iter.Valid(); iter.Next() {
		if !fn(iter.Key(), iter.Value()) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return types.StorageFault("iterator", err)
	}
	return nil
}

// prefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func prefixEnd(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
