package types

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// AddressSize is the length of an account address in bytes.
const AddressSize = 32

// addressHexLen is the length of a normalized address in hex characters.
const addressHexLen = AddressSize * 2

// Address is a 256-bit account address.
type Address [AddressSize]byte

// Normalize canonicalizes an address string for comparison.
//
// It strips a leading "0x" (or "0X"), lowercases, and left-pads with zeros to
// 64 hex characters, since the remote ledger may omit leading zero bytes.
// Input longer than 64 characters after stripping is returned unpadded and
// untruncated. Normalize never fails and is idempotent.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	s = strings.ToLower(s)
	if len(s) < addressHexLen {
		s = strings.Repeat("0", addressHexLen-len(s)) + s
	}
	return s
}

// Equal reports whether two address strings refer to the same account.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// IsZero returns true if the address is all zeros.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the 0x-prefixed, zero-padded hex address.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// Hex returns the normalized hex address without prefix.
func (a Address) Hex() string {
	return hex.EncodeToString(a[:])
}

// Short returns an abbreviated form for logs ("0x1234…abcd").
func (a Address) Short() string {
	h := a.Hex()
	return "0x" + h[:4] + "…" + h[len(h)-4:]
}

// Bytes returns a copy of the address as a byte slice.
func (a Address) Bytes() []byte {
	b := make([]byte, AddressSize)
	copy(b, a[:])
	return b
}

// MarshalJSON encodes the address as a 0x-prefixed hex string.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes any address form accepted by ParseAddress.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a hex address with or without "0x" and with or without
// leading zero bytes (e.g. "0x1" is the address 0x00…01).
func ParseAddress(s string) (Address, error) {
	if strings.TrimSpace(s) == "" {
		return Address{}, fmt.Errorf("empty address")
	}
	norm := Normalize(s)
	if len(norm) != addressHexLen {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d hex chars", AddressSize, len(norm))
	}
	decoded, err := hex.DecodeString(norm)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address: %w", err)
	}
	var a Address
	copy(a[:], decoded)
	return a, nil
}

// MustParseAddress is like ParseAddress but panics on error.
// Intended for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}
