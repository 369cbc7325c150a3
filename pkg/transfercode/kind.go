package transfercode

import (
	"crypto/rand"
	"fmt"
)

// Kind is the asset standard a coded transfer escrows.
type Kind string

const (
	// KindMove escrows a legacy coin identified by its Move type.
	KindMove Kind = "move"
	// KindFungibleAsset escrows a fungible asset identified by its metadata object.
	KindFungibleAsset Kind = "fa"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindMove || k == KindFungibleAsset
}

// codeAlphabet avoids characters that are easy to confuse when read aloud
// or retyped (0/O, 1/I/L).
const codeAlphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

// DefaultCodeLength is the length of codes produced by NewCode.
const DefaultCodeLength = 10

// NewCode returns a random claim code of n characters.
func NewCode(n int) (string, error) {
	if n <= 0 {
		return "", ErrEmptyCode
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	// 256 is not a multiple of the alphabet size; reject the biased tail.
	limit := byte(256 - 256%len(codeAlphabet))
	out := make([]byte, 0, n)
	for len(out) < n {
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == n {
				break
			}
		}
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate code: %w", err)
		}
	}
	return string(out), nil
}
