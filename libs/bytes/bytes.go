package bytes

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// HexBytes is a wrapper around []byte that encodes data as lowercase
// hexadecimal strings for use in JSON.
type HexBytes []byte

// MarshalText encodes a HexBytes value as hexadecimal digits.
// This method is used by json.Marshal.
func (bz HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(bz)), nil
}

// UnmarshalText handles decoding of HexBytes from JSON strings. Upper and
// lower case digits are accepted, as is an optional 0x prefix.
func (bz *HexBytes) UnmarshalText(data []byte) error {
	input := strings.TrimPrefix(string(data), "0x")
	dec, err := hex.DecodeString(input)
	if err != nil {
		return fmt.Errorf("invalid hex bytes: %w", err)
	}
	*bz = HexBytes(dec)
	return nil
}

// Bytes returns the underlying byte slice.
func (bz HexBytes) Bytes() []byte {
	return bz
}

func (bz HexBytes) String() string {
	return hex.EncodeToString(bz)
}

// ShortString returns at most the first three bytes in hex, for logs.
func (bz HexBytes) ShortString() string {
	if len(bz) < 3 {
		return bz.String()
	}
	return hex.EncodeToString(bz[:3])
}
