package mempool

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/unwalled/unwalled/types"
)

// TxCache defines an interface for raw transaction caching in a mempool.
// Currently, a TxCache does not allow direct reading or getting of transaction
// values. A TxCache is used primarily to push transactions and removing
// transactions. Pushing via Push returns a boolean telling the caller if the
// transaction already exists in the cache or not.
type TxCache interface {
	// Reset resets the cache to an empty state.
	Reset()

	// Push adds the given raw transaction to the cache and returns true if it was
	// newly added. Otherwise, it returns false.
	Push(tx []byte) bool

	// Remove removes the given raw transaction from the cache.
	Remove(tx []byte)
}

var _ TxCache = (*LRUTxCache)(nil)

// LRUTxCache maintains a thread-safe LRU cache of raw transactions, keyed by
// hash. The cache only stores the hash of the raw transaction.
type LRUTxCache struct {
	cache *lru.Cache
}

// NewLRUTxCache returns a cache remembering the last cacheSize tx hashes.
func NewLRUTxCache(cacheSize int) *LRUTxCache {
	cache, err := lru.New(cacheSize)
	if err != nil {
		panic(err) // only for a non-positive size
	}
	return &LRUTxCache{cache: cache}
}

func (c *LRUTxCache) Reset() {
	c.cache.Purge()
}

func (c *LRUTxCache) Push(tx []byte) bool {
	ok, _ := c.cache.ContainsOrAdd(types.TxKeyOf(tx), struct{}{})
	return !ok
}

func (c *LRUTxCache) Remove(tx []byte) {
	c.cache.Remove(types.TxKeyOf(tx))
}

// NopTxCache defines a no-op raw transaction cache.
type NopTxCache struct{}

var _ TxCache = (*NopTxCache)(nil)

func (NopTxCache) Reset()           {}
func (NopTxCache) Push([]byte) bool { return true }
func (NopTxCache) Remove([]byte)    {}
