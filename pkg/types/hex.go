// Package types defines the primitive types shared by the wallet core.
package types

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// DecodeHex decodes a hex string with an optional 0x prefix.
// Odd-length input is left-padded with a single zero.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return b, nil
}

// EncodeHex returns the 0x-prefixed hex encoding of b.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}
