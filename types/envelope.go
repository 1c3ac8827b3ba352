package types

import (
	"errors"

	"github.com/unwalled/unwalled/crypto"
	"github.com/unwalled/unwalled/crypto/ed25519"
)

// Payload is the signed content of an envelope.
type Payload interface {
	CanonicalBytes() []byte
	ValidateBasic() error
}

// Signer produces signatures for envelopes. crypto.PrivKey and the privval
// signers satisfy it.
type Signer interface {
	PubKey() crypto.PubKey
	Sign(msg []byte) ([]byte, error)
}

// SignedEnvelope binds a payload to its signer together with the replay
// nonce and the fee the signer agrees to pay.
type SignedEnvelope[T Payload] struct {
	Payload   T              `json:"payload"`
	Signer    ed25519.PubKey `json:"signer"`
	Signature []byte         `json:"signature"`
	Nonce     uint64         `json:"nonce"`
	Fee       uint64         `json:"fee"`
}

// SignBytes returns the exact bytes covered by the signature:
// CanonicalBytes(payload) followed by the nonce and fee as little endian
// uint64s.
func (e *SignedEnvelope[T]) SignBytes() []byte {
	enc := encoder{buf: e.Payload.CanonicalBytes()}
	enc.uint64(e.Nonce)
	enc.uint64(e.Fee)
	return enc.buf
}

// Verify reports whether Signature is a valid signature by Signer over
// SignBytes. It never panics on malformed keys or signatures.
func (e *SignedEnvelope[T]) Verify() bool {
	return e.Signer.VerifySignature(e.SignBytes(), e.Signature)
}

// Sign sets Signer and Signature using s.
func (e *SignedEnvelope[T]) Sign(s Signer) error {
	pub, ok := s.PubKey().(ed25519.PubKey)
	if !ok {
		return errors.New("signer must hold an ed25519 key")
	}
	e.Signer = pub
	sig, err := s.Sign(e.SignBytes())
	if err != nil {
		return err
	}
	e.Signature = sig
	return nil
}

// SignerAddress is the address of the account that signed the envelope.
func (e *SignedEnvelope[T]) SignerAddress() Address {
	return AddressFromPubKey(e.Signer)
}

func (e *SignedEnvelope[T]) GetNonce() uint64 { return e.Nonce }
func (e *SignedEnvelope[T]) GetFee() uint64   { return e.Fee }

func (e *SignedEnvelope[T]) encode(enc *encoder) {
	enc.bytes(e.Payload.CanonicalBytes())
	enc.bytes(e.Signer)
	enc.bytes(e.Signature)
	enc.uint64(e.Nonce)
	enc.uint64(e.Fee)
}
