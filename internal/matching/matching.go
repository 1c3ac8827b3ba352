// Package matching selects the winning bid for an auction.
//
// A bid is eligible for an auction when its price is at least the auction's
// floor and its targeting shares at least one tag with the auction's
// attributes (exact, case-sensitive comparison). Among eligible bids the
// highest price wins; equal prices are broken by the lowest bid id in byte
// order. The auction is first-price: the winner pays its own bid.
//
// Matching reads the inventory and never mutates it. The same inventory and
// auction always produce the same result on every node.
package matching

import (
	"bytes"
	"sort"

	"github.com/unwalled/unwalled/internal/inventory"
	"github.com/unwalled/unwalled/internal/store"
	"github.com/unwalled/unwalled/types"
)

// Eligible reports whether ob may win auction.
func Eligible(ob *inventory.OpenBid, auction *types.AuctionTrigger) bool {
	return ob.Bid.Price >= auction.BidFloor && ob.Bid.Targeting.Intersects(auction.Attributes)
}

// Outranks reports whether a beats b: a higher price, or the same price and
// a lower id.
func Outranks(a, b *inventory.OpenBid) bool {
	if a.Bid.Price != b.Bid.Price {
		return a.Bid.Price > b.Bid.Price
	}
	return bytes.Compare(a.Bid.ID[:], b.Bid.ID[:]) < 0
}

// ByPriority sorts open bids from best to worst.
type ByPriority []*inventory.OpenBid

func (l ByPriority) Len() int           { return len(l) }
func (l ByPriority) Less(i, j int) bool { return Outranks(l[i], l[j]) }
func (l ByPriority) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

// FindWinner returns the best eligible bid for auction, or nil if there is
// none.
func FindWinner(r store.Reader, auction *types.AuctionTrigger) (*inventory.OpenBid, error) {
	var best *inventory.OpenBid
	err := inventory.Candidates(r, auction.Attributes, func(ob *inventory.OpenBid) bool {
		if Eligible(ob, auction) && (best == nil || Outranks(ob, best)) {
			best = ob
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return best, nil
}

// FindMatch runs auction against the inventory on behalf of publisher. It
// returns nil when no bid is eligible. The returned match is not settled and
// the winning bid is left in place.
func FindMatch(r store.Reader, auction *types.AuctionTrigger, publisher types.Address) (*types.Match, error) {
	winner, err := FindWinner(r, auction)
	if err != nil || winner == nil {
		return nil, err
	}
	return &types.Match{
		BidID:             winner.Bid.ID,
		AuctionID:         auction.ID,
		WinningPrice:      winner.Bid.Price,
		AdvertiserAddress: winner.Advertiser,
		PublisherAddress:  publisher,
	}, nil
}

// Rank returns every eligible bid for auction from best to worst.
func Rank(r store.Reader, auction *types.AuctionTrigger) ([]*inventory.OpenBid, error) {
	var ranked ByPriority
	err := inventory.Candidates(r, auction.Attributes, func(ob *inventory.OpenBid) bool {
		if Eligible(ob, auction) {
			ranked = append(ranked, ob)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Sort(ranked)
	return ranked, nil
}
