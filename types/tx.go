package types

import (
	"crypto/sha256"
	"fmt"

	"github.com/unwalled/unwalled/crypto"
	"github.com/unwalled/unwalled/crypto/ed25519"
)

// TxKind is the leading byte of an encoded transaction.
type TxKind uint8

const (
	TxKindPlaceBid       TxKind = 1
	TxKindTriggerAuction TxKind = 2
)

func (k TxKind) String() string {
	switch k {
	case TxKindPlaceBid:
		return "place_bid"
	case TxKindTriggerAuction:
		return "trigger_auction"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Tx is a decoded, not yet verified, transaction.
type Tx interface {
	Kind() TxKind
	Verify() bool
	SignerAddress() Address
	GetNonce() uint64
	GetFee() uint64
	ValidateBasic() error
	Bytes() []byte
}

var (
	_ Tx = (*PlaceBidTx)(nil)
	_ Tx = (*TriggerAuctionTx)(nil)
)

// PlaceBidTx inserts a bid into the inventory on behalf of the signer.
type PlaceBidTx struct {
	SignedEnvelope[*Bid]
}

// NewPlaceBidTx returns an unsigned PlaceBid transaction.
func NewPlaceBidTx(bid *Bid, nonce, fee uint64) *PlaceBidTx {
	return &PlaceBidTx{SignedEnvelope[*Bid]{Payload: bid, Nonce: nonce, Fee: fee}}
}

func (tx *PlaceBidTx) Kind() TxKind { return TxKindPlaceBid }

func (tx *PlaceBidTx) ValidateBasic() error {
	if tx.Payload == nil {
		return fmt.Errorf("%w: missing bid", ErrMalformedTx)
	}
	if err := tx.Payload.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	return nil
}

func (tx *PlaceBidTx) Bytes() []byte { return encodeTx(tx.Kind(), &tx.SignedEnvelope) }

// TriggerAuctionTx runs one auction on behalf of the signing publisher.
type TriggerAuctionTx struct {
	SignedEnvelope[*AuctionTrigger]
}

// NewTriggerAuctionTx returns an unsigned TriggerAuction transaction.
func NewTriggerAuctionTx(a *AuctionTrigger, nonce, fee uint64) *TriggerAuctionTx {
	return &TriggerAuctionTx{SignedEnvelope[*AuctionTrigger]{Payload: a, Nonce: nonce, Fee: fee}}
}

func (tx *TriggerAuctionTx) Kind() TxKind { return TxKindTriggerAuction }

func (tx *TriggerAuctionTx) ValidateBasic() error {
	if tx.Payload == nil {
		return fmt.Errorf("%w: missing auction trigger", ErrMalformedTx)
	}
	if err := tx.Payload.ValidateBasic(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}
	return nil
}

func (tx *TriggerAuctionTx) Bytes() []byte { return encodeTx(tx.Kind(), &tx.SignedEnvelope) }

type envelope interface {
	encode(*encoder)
}

// encodeTx lays out a transaction as:
//
//	kind (u8) | payload (bytes) | signer (bytes) | signature (bytes) | nonce (u64) | fee (u64)
//
// where bytes are prefixed by their length as a little endian uint32.
func encodeTx(kind TxKind, env envelope) []byte {
	enc := encoder{buf: []byte{byte(kind)}}
	env.encode(&enc)
	return enc.buf
}

// DecodeTx parses the wire form of a transaction. Every error wraps
// ErrMalformedTx. The signature is not checked.
func DecodeTx(bz []byte) (Tx, error) {
	if len(bz) > MaxTxBytes {
		return nil, fmt.Errorf("%w: tx is %d bytes, max is %d", ErrMalformedTx, len(bz), MaxTxBytes)
	}
	if len(bz) == 0 {
		return nil, fmt.Errorf("%w: empty tx", ErrMalformedTx)
	}

	d := decoder{buf: bz, off: 1}
	payload := d.bytes(MaxFieldSize)
	signer := d.bytes(ed25519.PubKeySize)
	sig := d.bytes(ed25519.SignatureSize)
	nonce := d.uint64()
	fee := d.uint64()
	if err := d.finish(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}

	var tx Tx
	switch kind := TxKind(bz[0]); kind {
	case TxKindPlaceBid:
		bid, err := DecodeBid(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
		}
		tx = &PlaceBidTx{SignedEnvelope[*Bid]{
			Payload: bid, Signer: signer, Signature: sig, Nonce: nonce, Fee: fee,
		}}
	case TxKindTriggerAuction:
		a, err := DecodeAuctionTrigger(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTx, err)
		}
		tx = &TriggerAuctionTx{SignedEnvelope[*AuctionTrigger]{
			Payload: a, Signer: signer, Signature: sig, Nonce: nonce, Fee: fee,
		}}
	default:
		return nil, fmt.Errorf("%w: unknown tx kind %v", ErrMalformedTx, kind)
	}

	if err := tx.ValidateBasic(); err != nil {
		return nil, err
	}
	return tx, nil
}

// TxHash is the SHA256 of the wire encoded transaction.
func TxHash(bz []byte) []byte { return crypto.Checksum(bz) }

// TxKey is a fixed-length key for the wire encoded transaction, for use in
// maps and caches.
type TxKey [sha256.Size]byte

func TxKeyOf(bz []byte) TxKey { return sha256.Sum256(bz) }
