package types

import (
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Bid is an advertiser's standing offer to pay Price for one impression on
// any auction whose attributes share a tag with Targeting.
type Bid struct {
	ID        uuid.UUID `json:"id"`
	Price     uint64    `json:"price"`
	Targeting StringSet `json:"targeting"`
	Creative  string    `json:"creative"`
}

// NewBid returns a bid with a canonical targeting set built from tags.
func NewBid(id uuid.UUID, price uint64, creative string, tags ...string) *Bid {
	return &Bid{
		ID:        id,
		Price:     price,
		Targeting: NewStringSet(tags...),
		Creative:  creative,
	}
}

// ValidateBasic performs stateless checks on the bid.
func (b *Bid) ValidateBasic() error {
	if err := b.Targeting.ValidateBasic(); err != nil {
		return fmt.Errorf("targeting: %w", err)
	}
	if len(b.Creative) > MaxCreativeSize {
		return fmt.Errorf("creative is %d bytes, max is %d", len(b.Creative), MaxCreativeSize)
	}
	if !utf8.ValidString(b.Creative) {
		return fmt.Errorf("creative is not valid utf-8")
	}
	return nil
}

// CanonicalBytes is the byte form covered by the envelope signature:
//
//	id (16) | price (u64) | targeting (set) | creative (string)
func (b *Bid) CanonicalBytes() []byte {
	var e encoder
	e.raw(b.ID[:])
	e.uint64(b.Price)
	e.stringSet(b.Targeting)
	e.string(b.Creative)
	return e.buf
}

// DecodeBid parses the canonical form of a bid. Any non-canonical input is
// rejected.
func DecodeBid(bz []byte) (*Bid, error) {
	d := decoder{buf: bz}
	b := decodeBid(&d)
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decoding bid: %w", err)
	}
	return b, nil
}

func decodeBid(d *decoder) *Bid {
	b := new(Bid)
	copy(b.ID[:], d.take(len(b.ID)))
	b.Price = d.uint64()
	b.Targeting = d.stringSet()
	b.Creative = d.string(MaxCreativeSize)
	return b
}

func (b *Bid) String() string {
	return fmt.Sprintf("Bid{%v price=%d targeting=%v}", b.ID, b.Price, []string(b.Targeting))
}

// AuctionTrigger is a publisher's request to fill one impression. It is
// matched once at apply time and never stored.
type AuctionTrigger struct {
	ID         uuid.UUID `json:"id"`
	BidFloor   uint64    `json:"bid_floor"`
	Attributes StringSet `json:"attributes"`
}

// NewAuctionTrigger returns a trigger with a canonical attribute set.
func NewAuctionTrigger(id uuid.UUID, floor uint64, attrs ...string) *AuctionTrigger {
	return &AuctionTrigger{
		ID:         id,
		BidFloor:   floor,
		Attributes: NewStringSet(attrs...),
	}
}

// ValidateBasic performs stateless checks on the trigger.
func (a *AuctionTrigger) ValidateBasic() error {
	if err := a.Attributes.ValidateBasic(); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	return nil
}

// CanonicalBytes is the byte form covered by the envelope signature:
//
//	id (16) | bid_floor (u64) | attributes (set)
func (a *AuctionTrigger) CanonicalBytes() []byte {
	var e encoder
	e.raw(a.ID[:])
	e.uint64(a.BidFloor)
	e.stringSet(a.Attributes)
	return e.buf
}

// DecodeAuctionTrigger parses the canonical form of an auction trigger.
func DecodeAuctionTrigger(bz []byte) (*AuctionTrigger, error) {
	d := decoder{buf: bz}
	a := new(AuctionTrigger)
	copy(a.ID[:], d.take(len(a.ID)))
	a.BidFloor = d.uint64()
	a.Attributes = d.stringSet()
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("decoding auction trigger: %w", err)
	}
	return a, nil
}

func (a *AuctionTrigger) String() string {
	return fmt.Sprintf("AuctionTrigger{%v floor=%d attributes=%v}", a.ID, a.BidFloor, []string(a.Attributes))
}

// Match is the outcome of a successful auction. Settled reports whether
// WinningPrice was moved from the advertiser to the publisher on the ledger;
// unsettled matches are left for the settlement layer.
type Match struct {
	BidID             uuid.UUID `json:"bid_id"`
	AuctionID         uuid.UUID `json:"auction_id"`
	WinningPrice      uint64    `json:"winning_price"`
	AdvertiserAddress Address   `json:"advertiser_address"`
	PublisherAddress  Address   `json:"publisher_address"`
	Settled           bool      `json:"settled"`
}

func (m *Match) String() string {
	return fmt.Sprintf("Match{auction=%v bid=%v price=%d settled=%t}",
		m.AuctionID, m.BidID, m.WinningPrice, m.Settled)
}
