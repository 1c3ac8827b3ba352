package types

import (
	"fmt"
	"strconv"

	uwbytes "github.com/unwalled/unwalled/libs/bytes"
)

// Reserved event types published by the applier.
const (
	EventTx    = "Tx"
	EventMatch = "Match"
)

// Event attribute keys usable in subscription queries.
const (
	EventTypeKey       = "event.type"
	TxHashKey          = "tx.hash"
	TxSignerKey        = "tx.signer"
	TxCodeKey          = "tx.code"
	TxKindKey          = "tx.kind"
	MatchAuctionKey    = "match.auction"
	MatchAdvertiserKey = "match.advertiser"
	MatchPublisherKey  = "match.publisher"
)

// TxResult is the outcome of delivering one transaction.
type TxResult struct {
	// Height is the applier height after the tx, 0 if the tx changed nothing.
	Height uint64           `json:"height"`
	Hash   uwbytes.HexBytes `json:"hash"`
	Kind   TxKind           `json:"kind"`
	Signer Address          `json:"signer,omitempty"`
	Code   Code             `json:"code"`
	Log    string           `json:"log,omitempty"`
	Match  *Match           `json:"match,omitempty"`
}

// Committed reports whether the tx was written to state. Duplicate bids are
// committed: their nonce and fee are consumed.
func (r *TxResult) Committed() bool {
	return r.Height > 0
}

func (r *TxResult) String() string {
	return fmt.Sprintf("TxResult{%s %v code=%d height=%d}", r.Hash.ShortString(), r.Kind, r.Code, r.Height)
}

// EventDataTx is published for every delivered tx.
type EventDataTx struct {
	TxResult
}

// EventDataMatch is published for every auction that produced a match.
type EventDataMatch struct {
	Height uint64           `json:"height"`
	TxHash uwbytes.HexBytes `json:"tx_hash"`
	Match  Match            `json:"match"`
}

// Events returns the attributes a tx result is indexed and queried by.
func (r *TxResult) Events() map[string][]string {
	events := map[string][]string{
		TxHashKey: {r.Hash.String()},
		TxKindKey: {r.Kind.String()},
		TxCodeKey: {strconv.FormatUint(uint64(r.Code), 10)},
	}
	if r.Signer != "" {
		events[TxSignerKey] = []string{r.Signer.String()}
	}
	if r.Match != nil {
		events[MatchAuctionKey] = []string{r.Match.AuctionID.String()}
		events[MatchAdvertiserKey] = []string{r.Match.AdvertiserAddress.String()}
		events[MatchPublisherKey] = []string{r.Match.PublisherAddress.String()}
	}
	return events
}
