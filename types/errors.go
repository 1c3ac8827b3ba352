package types

import (
	"errors"
	"fmt"
)

// Code is the result code recorded for every delivered transaction. It feeds
// the app hash, so the numeric values are part of the replicated state and
// must never be renumbered.
type Code uint32

const (
	CodeOK                        Code = 0
	CodeMalformedTx               Code = 1
	CodeInvalidSignature          Code = 2
	CodeReplayedOrOutOfOrderNonce Code = 3
	CodeInsufficientFunds         Code = 4
	CodeDuplicateBidID            Code = 5
	CodeStorageFault              Code = 6
	CodeBalanceOverflow           Code = 7
	CodeUnknown                   Code = 255
)

var code2string = map[Code]string{
	CodeOK:                        "OK",
	CodeMalformedTx:               "Malformed transaction",
	CodeInvalidSignature:          "Invalid signature",
	CodeReplayedOrOutOfOrderNonce: "Replayed or out of order nonce",
	CodeInsufficientFunds:         "Insufficient funds",
	CodeDuplicateBidID:            "Duplicate bid id",
	CodeStorageFault:              "Storage fault",
	CodeBalanceOverflow:           "Balance overflow",
}

func (c Code) IsOK() bool { return c == CodeOK }

// String transforms code into a more humane format, such as "Insufficient
// funds" instead of 4.
func (c Code) String() string {
	s, ok := code2string[c]
	if !ok {
		return fmt.Sprintf("Unknown code %d", uint32(c))
	}
	return s
}

var (
	// ErrMalformedTx is returned when tx bytes do not decode to a canonical
	// envelope.
	ErrMalformedTx = errors.New("malformed transaction")
	// ErrInvalidSignature is returned when the envelope signature does not
	// verify against the claimed signer.
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrReplayedOrOutOfOrderNonce is returned when the envelope nonce is not
	// the signer's next expected nonce.
	ErrReplayedOrOutOfOrderNonce = errors.New("replayed or out of order nonce")
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateBidID is returned when a bid id is already in the inventory.
	ErrDuplicateBidID = errors.New("duplicate bid id")
	// ErrBalanceOverflow is returned when a credit would overflow a balance.
	ErrBalanceOverflow = errors.New("balance overflow")
	// ErrStorageFault wraps failures of the durable store. It is fatal to the
	// node: continuing would let this replica diverge from the others.
	ErrStorageFault = errors.New("storage fault")
)

var errCodes = []struct {
	err  error
	code Code
}{
	{ErrMalformedTx, CodeMalformedTx},
	{ErrInvalidSignature, CodeInvalidSignature},
	{ErrReplayedOrOutOfOrderNonce, CodeReplayedOrOutOfOrderNonce},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrDuplicateBidID, CodeDuplicateBidID},
	{ErrBalanceOverflow, CodeBalanceOverflow},
	{ErrStorageFault, CodeStorageFault},
}

// CodeOf maps err to its result code. A nil error is CodeOK.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	for _, ec := range errCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return CodeUnknown
}

// StorageFault wraps err so that errors.Is(err, ErrStorageFault) holds.
func StorageFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorageFault, op, err)
}
