package dbtest

import (
	"errors"
	"sync"

	dbm "github.com/tendermint/tm-db"
)

// ErrInjected is returned by a FaultyDB batch when a fault is armed.
var ErrInjected = errors.New("injected storage fault")

// FaultyDB wraps a DB and fails batch writes on demand, leaving the wrapped
// DB untouched when it does.
type FaultyDB struct {
	dbm.DB

	mtx  sync.Mutex
	fail bool
}

// NewFaultyDB wraps an in-memory DB.
func NewFaultyDB() *FaultyDB {
	return &FaultyDB{DB: dbm.NewMemDB()}
}

// FailWrites arms or disarms write failures.
func (db *FaultyDB) FailWrites(fail bool) {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	db.fail = fail
}

func (db *FaultyDB) failing() bool {
	db.mtx.Lock()
	defer db.mtx.Unlock()
	return db.fail
}

// NewBatch implements dbm.DB.
func (db *FaultyDB) NewBatch() dbm.Batch {
	return &faultyBatch{Batch: db.DB.NewBatch(), db: db}
}

type faultyBatch struct {
	dbm.Batch
	db *FaultyDB
}

func (b *faultyBatch) Write() error {
	if b.db.failing() {
		return ErrInjected
	}
	return b.Batch.Write()
}

func (b *faultyBatch) WriteSync() error {
	if b.db.failing() {
		return ErrInjected
	}
	return b.Batch.WriteSync()
}
