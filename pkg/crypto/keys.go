package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/schnorr"
)

// PrivateKeySize is the length of a raw secp256k1 private key.
const PrivateKeySize = 32

// DigestSize is the length of the message digests the wallet signs.
const DigestSize = 32

var (
	// ErrKeyOutOfRange is returned for a zero scalar or one not below the curve order.
	ErrKeyOutOfRange = errors.New("private key out of range")

	// ErrKeyEncoding is returned when a private key string is not 64 hex chars.
	ErrKeyEncoding = errors.New("private key must be 64 hex characters")
)

// PrivateKey is an account signing key. Signatures are BIP-340 Schnorr
// over secp256k1.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a random signing key.
func GenerateKey() (*PrivateKey, error) {
	key, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes wraps a 32-byte scalar. The caller keeps ownership of b.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeySize {
		return nil, fmt.Errorf("private key must be %d bytes, got %d", PrivateKeySize, len(b))
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		scalar.Zero()
		return nil, ErrKeyOutOfRange
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&scalar)}, nil
}

// ParsePrivateKeyHex parses a hex key with or without a 0x prefix.
func ParsePrivateKeyHex(s string) (*PrivateKey, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	if len(s) != PrivateKeySize*2 {
		return nil, fmt.Errorf("%w, got %d", ErrKeyEncoding, len(s))
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyEncoding, err)
	}
	defer func() {
		for i := range raw {
			raw[i] = 0
		}
	}()
	return PrivateKeyFromBytes(raw)
}

// Sign signs a 32-byte digest.
func (pk *PrivateKey) Sign(digest []byte) ([]byte, error) {
	if len(digest) != DigestSize {
		return nil, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(digest))
	}
	sig, err := schnorr.Sign(pk.key, digest)
	if err != nil {
		return nil, fmt.Errorf("schnorr sign: %w", err)
	}
	return sig.Serialize(), nil
}

// PublicKey returns the compressed 33-byte public key.
func (pk *PrivateKey) PublicKey() []byte {
	return pk.key.PubKey().SerializeCompressed()
}

// Serialize returns the 32-byte scalar.
func (pk *PrivateKey) Serialize() []byte {
	return pk.key.Serialize()
}

// Hex returns the scalar as 0x-prefixed hex, the form the export screen shows.
func (pk *PrivateKey) Hex() string {
	return "0x" + hex.EncodeToString(pk.key.Serialize())
}

// Zero wipes the scalar.
func (pk *PrivateKey) Zero() {
	pk.key.Zero()
}

// VerifySignature reports whether signature is valid for digest under the
// compressed publicKey. Malformed inputs verify as false.
func VerifySignature(digest, signature, publicKey []byte) bool {
	pub, err := secp256k1.ParsePubKey(publicKey)
	if err != nil {
		return false
	}
	sig, err := schnorr.ParseSignature(signature)
	if err != nil {
		return false
	}
	return sig.Verify(digest, pub)
}
