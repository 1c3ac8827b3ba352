package types

import (
	"encoding/hex"
	"fmt"

	"github.com/unwalled/unwalled/crypto/ed25519"
)

// Address identifies an account. It is the lowercase hex encoding of the
// account's 32 byte ed25519 public key.
type Address string

// FeePoolAddress is the account that collects transaction fees. It is not
// valid hex, so no key can ever own it.
const FeePoolAddress Address = "feepool"

// AddressFromPubKey derives the address of an ed25519 public key.
func AddressFromPubKey(pubKey []byte) Address {
	return Address(hex.EncodeToString(pubKey))
}

// ValidateBasic checks that the address is the lowercase hex form of a 32
// byte key. The fee pool is accepted as a valid address.
func (a Address) ValidateBasic() error {
	if a == FeePoolAddress {
		return nil
	}
	if len(a) != 2*ed25519.PubKeySize {
		return fmt.Errorf("address must be %d hex characters, got %d", 2*ed25519.PubKeySize, len(a))
	}
	for i := 0; i < len(a); i++ {
		c := a[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return fmt.Errorf("address has non lowercase-hex character %q at %d", c, i)
		}
	}
	return nil
}

// PubKey decodes the address back into the public key it was derived from.
func (a Address) PubKey() (ed25519.PubKey, error) {
	if err := a.ValidateBasic(); err != nil {
		return nil, err
	}
	if a == FeePoolAddress {
		return nil, fmt.Errorf("%s has no public key", a)
	}
	bz, err := hex.DecodeString(string(a))
	if err != nil {
		return nil, err
	}
	return ed25519.PubKey(bz), nil
}

func (a Address) String() string { return string(a) }
