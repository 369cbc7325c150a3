package wallet

import (
	"fmt"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// OriginKind records which kind of secret backs an account.
type OriginKind uint8

const (
	// OriginMnemonic accounts are derived from a BIP-39 phrase.
	OriginMnemonic OriginKind = iota + 1
	// OriginPrivateKey accounts were imported from a raw key.
	OriginPrivateKey
)

// String implements fmt.Stringer.
func (o OriginKind) String() string {
	switch o {
	case OriginMnemonic:
		return "mnemonic"
	case OriginPrivateKey:
		return "private_key"
	default:
		return fmt.Sprintf("origin(%d)", uint8(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o OriginKind) MarshalText() ([]byte, error) {
	if o != OriginMnemonic && o != OriginPrivateKey {
		return nil, fmt.Errorf("unknown origin %d", uint8(o))
	}
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OriginKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "mnemonic":
		*o = OriginMnemonic
	case "private_key":
		*o = OriginPrivateKey
	default:
		return fmt.Errorf("unknown origin %q", b)
	}
	return nil
}

// Identity is the persisted metadata of one account. The secret itself lives
// in the secret store.
type Identity struct {
	Address types.Address `json:"address"`
	Name    string        `json:"name"`
	Emoji   string        `json:"emoji,omitempty"`
	Origin  OriginKind    `json:"origin"`
}

// Account is the resolved, signing-ready view of an identity.
type Account struct {
	Address   types.Address
	PublicKey []byte
	Origin    OriginKind
}

// MetadataUpdate carries optional display changes. Nil fields are left as is.
type MetadataUpdate struct {
	Name  *string
	Emoji *string
}

// Signature is a Schnorr signature together with the public key that verifies it.
type Signature struct {
	Signature []byte
	PublicKey []byte
}
