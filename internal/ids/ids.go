package ids

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// AddressSize is the size of a participant address (an Ed25519 public key).
const AddressSize = 32

// Address identifies a participant: workers, verifiers, owners, bidders.
type Address [AddressSize]byte

// ZeroAddress is the unset address. Root assets report it as their parent creator.
var ZeroAddress Address

// AddressFromBytes copies a 32-byte slice into an Address.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressSize {
		return a, fmt.Errorf("invalid address length: got %d, want %d", len(b), AddressSize)
	}

	copy(a[:], b)

	return a, nil
}

// ParseAddress decodes a hex-encoded address.
func ParseAddress(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("decode address hex:\n%w", err)
	}

	return AddressFromBytes(b)
}

// String returns the full hex encoding.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Short returns the first 8 bytes in hex, for log lines.
func (a Address) Short() string {
	return hex.EncodeToString(a[:8])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// Compare orders addresses bytewise.
func (a Address) Compare(b Address) int {
	return bytes.Compare(a[:], b[:])
}

// MarshalText encodes the address as hex, so JSON carries a string.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a hex address.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}
