// Package transfercode encodes and decodes coded-transfer claim codes.
//
// A claim code is stored on-chain XORed with the sender's 32-byte address,
// cycled over the length of the code. The scheme is symmetric: anyone who knows
// the sender address can decode the code, so it hides codes from casual
// inspection of transaction payloads and nothing more. Claim authorization is
// enforced by the contract when the plaintext code is presented.
package transfercode

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// ErrNonASCII is returned by Encode for codes containing bytes above 0x7f.
var ErrNonASCII = errors.New("claim code must be ASCII")

// ErrEmptyCode is returned by Encode for an empty code.
var ErrEmptyCode = errors.New("claim code is empty")

// DecodeError reports malformed cipher input. Decode never returns a partially
// decoded string alongside it.
type DecodeError struct {
	Input  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode transfer code: %s: %v", e.Reason, e.Err)
	}
	return "decode transfer code: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// IsDecodeError reports whether err is or wraps a *DecodeError.
func IsDecodeError(err error) bool {
	var de *DecodeError
	return errors.As(err, &de)
}

// keystream returns the 32-byte key for a sender address.
func keystream(sender string) ([]byte, error) {
	key, err := hex.DecodeString(padEven(types.Normalize(sender)))
	if err != nil {
		return nil, &DecodeError{Input: sender, Reason: "invalid sender address", Err: err}
	}
	if len(key) != types.AddressSize {
		return nil, &DecodeError{
			Input:  sender,
			Reason: fmt.Sprintf("sender address must be %d bytes, got %d", types.AddressSize, len(key)),
		}
	}
	return key, nil
}

// padEven left-pads odd-length hex with a single zero.
func padEven(s string) string {
	if len(s)%2 == 1 {
		return "0" + s
	}
	return s
}

func xorCycle(data, key []byte) []byte {
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ key[i%len(key)]
	}
	return out
}

// Encode obfuscates a plaintext claim code with the sender address and
// returns the lowercase hex form stored on-chain (no 0x prefix).
func Encode(code, sender string) (string, error) {
	if code == "" {
		return "", ErrEmptyCode
	}
	plain := []byte(code)
	for _, b := range plain {
		if b > 0x7f {
			return "", ErrNonASCII
		}
	}
	key, err := keystream(sender)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(xorCycle(plain, key)), nil
}

// Decode reverses Encode: plain[i] = cipher[i] XOR address[i mod 32].
// The input may carry a 0x prefix; odd-length hex is left-padded with a zero.
func Decode(encodedHex, sender string) (string, error) {
	s := encodedHex
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if s == "" {
		return "", &DecodeError{Input: encodedHex, Reason: "empty input"}
	}
	ct, err := hex.DecodeString(padEven(s))
	if err != nil {
		return "", &DecodeError{Input: encodedHex, Reason: "invalid hex", Err: err}
	}
	key, err := keystream(sender)
	if err != nil {
		return "", err
	}
	plain := xorCycle(ct, key)
	for _, b := range plain {
		if b > 0x7f {
			return "", &DecodeError{Input: encodedHex, Reason: "decoded code is not ASCII"}
		}
	}
	return string(plain), nil
}
