package store

import (
	"fmt"

	"github.com/google/orderedcode"
	"github.com/google/uuid"

	"github.com/unwalled/unwalled/types"
)

// key prefixes
const (
	prefixAccount = int64(1)
	prefixBid     = int64(2)
	prefixTag     = int64(3)
	prefixMeta    = int64(4)
)

// Metadata keys.
const (
	MetaHeight  = "height"
	MetaAppHash = "app_hash"
	MetaSeq     = "seq"
	MetaChainID = "chain_id"
)

func mustAppend(items ...interface{}) []byte {
	key, err := orderedcode.Append(nil, items...)
	if err != nil {
		panic(err)
	}
	return key
}

// AccountKey is the key of an account record.
func AccountKey(addr types.Address) []byte {
	return mustAppend(prefixAccount, string(addr))
}

// AccountPrefix is the prefix shared by every account key.
func AccountPrefix() []byte {
	return mustAppend(prefixAccount)
}

// DecodeAccountKey returns the address encoded in an account key.
func DecodeAccountKey(key []byte) (types.Address, error) {
	var (
		prefix int64
		addr   string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &addr)
	if err != nil {
		return "", err
	}
	if len(remaining) != 0 || prefix != prefixAccount {
		return "", fmt.Errorf("not an account key: %x", key)
	}
	return types.Address(addr), nil
}

// BidKey is the key of an open bid record.
func BidKey(id uuid.UUID) []byte {
	return mustAppend(prefixBid, string(id[:]))
}

// BidPrefix is the prefix shared by every bid key.
func BidPrefix() []byte {
	return mustAppend(prefixBid)
}

// TagKey is the index entry linking a targeting tag to a bid.
func TagKey(tag string, id uuid.UUID) []byte {
	return mustAppend(prefixTag, tag, string(id[:]))
}

// TagPrefix is the prefix shared by every index entry for tag. Entries under
// it sort by bid id.
func TagPrefix(tag string) []byte {
	return mustAppend(prefixTag, tag)
}

// DecodeTagKey returns the tag and bid id of an index entry.
func DecodeTagKey(key []byte) (string, uuid.UUID, error) {
	var (
		prefix  int64
		tag, id string
	)
	remaining, err := orderedcode.Parse(string(key), &prefix, &tag, &id)
	if err != nil {
		return "", uuid.Nil, err
	}
	if len(remaining) != 0 || prefix != prefixTag {
		return "", uuid.Nil, fmt.Errorf("not a tag key: %x", key)
	}
	bidID, err := uuid.FromBytes([]byte(id))
	return tag, bidID, err
}

// MetaKey is the key of an applier metadata value.
func MetaKey(name string) []byte {
	return mustAppend(prefixMeta, name)
}
