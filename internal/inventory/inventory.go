// Package inventory stores open bids and the tag index used to find the bids
// that can serve an auction.
package inventory

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/unwalled/unwalled/internal/store"
	"github.com/unwalled/unwalled/types"
)

// OpenBid is a bid resting in the inventory together with the account that
// placed it. Seq is the applier's insertion counter.
type OpenBid struct {
	Bid        *types.Bid    `json:"bid"`
	Advertiser types.Address `json:"advertiser"`
	Seq        uint64        `json:"seq"`
}

// record layout: seq (u64 LE) | len(advertiser) (u32 LE) | advertiser | canonical bid
func (ob *OpenBid) bytes() []byte {
	bid := ob.Bid.CanonicalBytes()
	bz := make([]byte, 12, 12+len(ob.Advertiser)+len(bid))
	binary.LittleEndian.PutUint64(bz[:8], ob.Seq)
	binary.LittleEndian.PutUint32(bz[8:12], uint32(len(ob.Advertiser)))
	bz = append(bz, ob.Advertiser...)
	return append(bz, bid...)
}

func decodeOpenBid(bz []byte) (*OpenBid, error) {
	if len(bz) < 12 {
		return nil, types.StorageFault("decode bid", fmt.Errorf("record is %d bytes", len(bz)))
	}
	ob := &OpenBid{Seq: binary.LittleEndian.Uint64(bz[:8])}
	n := binary.LittleEndian.Uint32(bz[8:12])
	if uint64(len(bz)-12) < uint64(n) {
		return nil, types.StorageFault("decode bid", fmt.Errorf("advertiser length %d overruns record", n))
	}
	ob.Advertiser = types.Address(bz[12 : 12+n])
	bid, err := types.DecodeBid(bz[12+n:])
	if err != nil {
		return nil, types.StorageFault("decode bid", err)
	}
	ob.Bid = bid
	return ob, nil
}

// Has reports whether a bid with id is open.
func Has(r store.Reader, id uuid.UUID) (bool, error) {
	bz, err := r.Get(store.BidKey(id))
	return bz != nil, err
}

// Get returns the open bid with id, or nil if there is none.
func Get(r store.Reader, id uuid.UUID) (*OpenBid, error) {
	bz, err := r.Get(store.BidKey(id))
	if err != nil || bz == nil {
		return nil, err
	}
	return decodeOpenBid(bz)
}

// Insert adds ob to the inventory and indexes it under each targeting tag.
// It fails with types.ErrDuplicateBidID if the id is already open.
func Insert(rw store.ReadWriter, ob *OpenBid) error {
	exists, err := Has(rw, ob.Bid.ID)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %v", types.ErrDuplicateBidID, ob.Bid.ID)
	}

	rw.Set(store.BidKey(ob.Bid.ID), ob.bytes())
	for _, tag := range ob.Bid.Targeting {
		rw.Set(store.TagKey(tag, ob.Bid.ID), nil)
	}
	return nil
}

// Remove deletes the bid with id and its index entries. It returns the
// removed bid, or nil if none was open.
func Remove(rw store.ReadWriter, id uuid.UUID) (*OpenBid, error) {
	ob, err := Get(rw, id)
	if err != nil || ob == nil {
		return nil, err
	}

	rw.Delete(store.BidKey(id))
	for _, tag := range ob.Bid.Targeting {
		rw.Delete(store.TagKey(tag, id))
	}
	return ob, nil
}

// Candidates calls fn, in ascending bid id order, once for every open bid
// whose targeting shares at least one tag with attributes. It stops early if
// fn returns false.
func Candidates(r store.Reader, attributes types.StringSet, fn func(*OpenBid) bool) error {
	seen := make(map[uuid.UUID]struct{})
	var ids []uuid.UUID

	for _, tag := range attributes {
		var decodeErr error
		err := r.Iterate(store.TagPrefix(tag), func(key, _ []byte) bool {
			_, id, err := store.DecodeTagKey(key)
			if err != nil {
				decodeErr = types.StorageFault("decode tag key", err)
				return false
			}
			if _, ok := seen[id]; !ok {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
			return true
		})
		if err != nil {
			return err
		}
		if decodeErr != nil {
			return decodeErr
		}
	}

	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})

	for _, id := range ids {
		ob, err := Get(r, id)
		if err != nil {
			return err
		}
		if ob == nil {
			return types.StorageFault("candidates", fmt.Errorf("index entry for missing bid %v", id))
		}
		if !fn(ob) {
			return nil
		}
	}
	return nil
}

// Iterate calls fn for every open bid in ascending id order until fn returns
// false.
func Iterate(r store.Reader, fn func(*OpenBid) bool) error {
	var decodeErr error
	err := r.Iterate(store.BidPrefix(), func(_, value []byte) bool {
		ob, err := decodeOpenBid(value)
		if err != nil {
			decodeErr = err
			return false
		}
		return fn(ob)
	})
	if err != nil {
		return err
	}
	return decodeErr
}
