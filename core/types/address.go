package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressLength is the byte length of account and contract addresses. Accounts
// and deployed contracts share a single 20-byte address space.
const AddressLength = 20

// Address identifies an account or a contract on the ledger. The zero value is
// never a valid participant and is used as the "no address" marker.
type Address [AddressLength]byte

// BytesToAddress converts a byte slice into an address, left-padding or
// truncating to the canonical length.
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// ParseAddress decodes a hex-encoded address with an optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return Address{}, fmt.Errorf("types: invalid address %q: %w", s, err)
	}
	if len(raw) != AddressLength {
		return Address{}, fmt.Errorf("types: invalid address length %d", len(raw))
	}
	return BytesToAddress(raw), nil
}

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the 0x-prefixed hex encoding of the address.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

// IsZero reports whether the address is the empty marker value.
func (a Address) IsZero() bool { return a == (Address{}) }

func (a Address) String() string { return a.Hex() }
