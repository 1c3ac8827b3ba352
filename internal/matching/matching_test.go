package matching_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	dbm "github.com/tendermint/tm-db"
	"pgregory.net/rapid"

	"github.com/unwalled/unwalled/internal/inventory"
	"github.com/unwalled/unwalled/internal/matching"
	"github.com/unwalled/unwalled/internal/store"
	"github.com/unwalled/unwalled/internal/test/factory"
	"github.com/unwalled/unwalled/types"
)

var (
	advertiser = factory.Address("advertiser")
	publisher  = factory.Address("publisher")
)

func newInventory(t *testing.T, bids ...*types.Bid) *store.Store {
	t.Helper()
	s := store.NewStore(dbm.NewMemDB())
	tx := s.NewTx()
	for i, bid := range bids {
		require.NoError(t, inventory.Insert(tx, &inventory.OpenBid{Bid: bid, Advertiser: advertiser, Seq: uint64(i)}))
	}
	require.NoError(t, tx.Commit())
	return s
}

func TestFindMatch(t *testing.T) {
	testCases := map[string]struct {
		bids    []*types.Bid
		auction *types.AuctionTrigger
		wantBid *uuid.UUID
	}{
		"single eligible bid": {
			bids:    []*types.Bid{types.NewBid(factory.BidID(1), 100, "", "sports")},
			auction: types.NewAuctionTrigger(factory.BidID(99), 50, "sports"),
			wantBid: idPtr(1),
		},
		"price equal to floor is eligible": {
			bids:    []*types.Bid{types.NewBid(factory.BidID(1), 50, "", "sports")},
			auction: types.NewAuctionTrigger(factory.BidID(99), 50, "sports"),
			wantBid: idPtr(1),
		},
		"below floor": {
			bids:    []*types.Bid{types.NewBid(factory.BidID(1), 49, "", "sports")},
			auction: types.NewAuctionTrigger(factory.BidID(99), 50, "sports"),
		},
		"no shared tag": {
			bids:    []*types.Bid{types.NewBid(factory.BidID(1), 100, "", "sports")},
			auction: types.NewAuctionTrigger(factory.BidID(99), 0, "news"),
		},
		"tags are case sensitive": {
			bids:    []*types.Bid{types.NewBid(factory.BidID(1), 100, "", "sports")},
			auction: types.NewAuctionTrigger(factory.BidID(99), 0, "Sports"),
		},
		"empty attributes never match": {
			bids:    []*types.Bid{types.NewBid(factory.BidID(1), 100, "", "sports")},
			auction: types.NewAuctionTrigger(factory.BidID(99), 0),
		},
		"highest price wins": {
			bids: []*types.Bid{
				types.NewBid(factory.BidID(1), 60, "", "sports"),
				types.NewBid(factory.BidID(2), 80, "", "news"),
				types.NewBid(factory.BidID(3), 70, "", "sports", "news"),
			},
			auction: types.NewAuctionTrigger(factory.BidID(99), 50, "news", "sports"),
			wantBid: idPtr(2),
		},
		"tie broken by lowest id": {
			bids: []*types.Bid{
				types.NewBid(factory.BidID(9), 80, "", "sports"),
				types.NewBid(factory.BidID(4), 80, "", "sports"),
				types.NewBid(factory.BidID(7), 80, "", "sports"),
			},
			auction: types.NewAuctionTrigger(factory.BidID(99), 0, "sports"),
			wantBid: idPtr(4),
		},
		"ineligible higher bid is skipped": {
			bids: []*types.Bid{
				types.NewBid(factory.BidID(1), 500, "", "news"),
				types.NewBid(factory.BidID(2), 60, "", "sports"),
			},
			auction: types.NewAuctionTrigger(factory.BidID(99), 50, "sports"),
			wantBid: idPtr(2),
		},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			s := newInventory(t, tc.bids...)
			m, err := matching.FindMatch(s, tc.auction, publisher)
			require.NoError(t, err)

			if tc.wantBid == nil {
				require.Nil(t, m)
				return
			}
			require.NotNil(t, m)
			require.Equal(t, *tc.wantBid, m.BidID)
			require.Equal(t, tc.auction.ID, m.AuctionID)
			require.Equal(t, advertiser, m.AdvertiserAddress)
			require.Equal(t, publisher, m.PublisherAddress)
			require.False(t, m.Settled)

			for _, b := range tc.bids {
				if b.ID == m.BidID {
					require.Equal(t, b.Price, m.WinningPrice, "first-price auction")
				}
			}

			// matching leaves the inventory untouched
			ok, err := inventory.Has(s, m.BidID)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestRank(t *testing.T) {
	s := newInventory(t,
		types.NewBid(factory.BidID(3), 70, "", "sports"),
		types.NewBid(factory.BidID(2), 70, "", "sports"),
		types.NewBid(factory.BidID(1), 90, "", "sports"),
		types.NewBid(factory.BidID(4), 10, "", "sports"),
	)
	ranked, err := matching.Rank(s, types.NewAuctionTrigger(factory.BidID(99), 20, "sports"))
	require.NoError(t, err)

	var ids []uuid.UUID
	for _, ob := range ranked {
		ids = append(ids, ob.Bid.ID)
	}
	require.Equal(t, []uuid.UUID{factory.BidID(1), factory.BidID(2), factory.BidID(3)}, ids)
}

// TestFindMatchAgainstBruteForce compares the indexed search with a scan over
// every bid and checks that insertion order has no effect on the result.
func TestFindMatchAgainstBruteForce(t *testing.T) {
	tags := []string{"a", "b", "c", "d"}
	genTags := rapid.SliceOfN(rapid.SampledFrom(tags), 0, 3)

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 12).Draw(t, "n").(int)
		var bids []*types.Bid
		for i := 0; i < n; i++ {
			bids = append(bids, types.NewBid(
				factory.BidID(byte(rapid.IntRange(0, 255).Draw(t, "id").(int))),
				rapid.Uint64Range(0, 10).Draw(t, "price").(uint64),
				"",
				genTags.Draw(t, "targeting").([]string)...,
			))
		}
		bids = dedupe(bids)
		auction := types.NewAuctionTrigger(
			factory.BidID(0),
			rapid.Uint64Range(0, 10).Draw(t, "floor").(uint64),
			genTags.Draw(t, "attributes").([]string)...,
		)

		var want *inventory.OpenBid
		for _, b := range bids {
			ob := &inventory.OpenBid{Bid: b, Advertiser: advertiser}
			if matching.Eligible(ob, auction) && (want == nil || matching.Outranks(ob, want)) {
				want = ob
			}
		}

		forward := mustMatch(t, bids, auction)
		reversed := make([]*types.Bid, len(bids))
		for i, b := range bids {
			reversed[len(bids)-1-i] = b
		}
		backward := mustMatch(t, reversed, auction)

		if want == nil {
			if forward != nil || backward != nil {
				t.Fatalf("expected no match, got %v / %v", forward, backward)
			}
			return
		}
		if forward == nil || forward.BidID != want.Bid.ID {
			t.Fatalf("got %v, want bid %v", forward, want.Bid.ID)
		}
		if *forward != *backward {
			t.Fatalf("insertion order changed the result: %v vs %v", forward, backward)
		}
	})
}

func mustMatch(t *rapid.T, bids []*types.Bid, auction *types.AuctionTrigger) *types.Match {
	s := store.NewStore(dbm.NewMemDB())
	tx := s.NewTx()
	for i, b := range bids {
		if err := inventory.Insert(tx, &inventory.OpenBid{Bid: b, Advertiser: advertiser, Seq: uint64(i)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	m, err := matching.FindMatch(s, auction, publisher)
	if err != nil {
		t.Fatalf("find match: %v", err)
	}
	return m
}

func dedupe(bids []*types.Bid) []*types.Bid {
	seen := map[uuid.UUID]bool{}
	out := bids[:0]
	for _, b := range bids {
		if !seen[b.ID] {
			seen[b.ID] = true
			out = append(out, b)
		}
	}
	return out
}

func idPtr(n byte) *uuid.UUID {
	id := factory.BidID(n)
	return &id
}
