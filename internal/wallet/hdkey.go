package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Klingon-tech/codewallet/pkg/crypto"
	"github.com/Klingon-tech/codewallet/pkg/types"
	"github.com/tyler-smith/go-bip32"
)

// Hardened marks a path element as hardened.
const Hardened = bip32.FirstHardenedChild

// coinType is the SLIP-44 coin type of the ledger.
const coinType = 637

// Path is a BIP-32 derivation path.
type Path []uint32

// AccountPath returns m/44'/637'/account'/0/0.
func AccountPath(account uint32) Path {
	return Path{Hardened + 44, Hardened + coinType, Hardened + account, 0, 0}
}

// String formats the path in the usual m/44'/... notation.
func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		b.WriteByte('/')
		if idx >= Hardened {
			b.WriteString(strconv.FormatUint(uint64(idx-Hardened), 10))
			b.WriteByte('\'')
			continue
		}
		b.WriteString(strconv.FormatUint(uint64(idx), 10))
	}
	return b.String()
}

// HDKey is a node in a BIP-32 key tree.
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates the root of a key tree from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// Derive walks path from k.
func (k *HDKey) Derive(path Path) (*HDKey, error) {
	cur := k.key
	for _, idx := range path {
		child, err := cur.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
		cur = child
	}
	return &HDKey{key: cur}, nil
}

// Depth returns the number of derivation steps from the master key.
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Signer returns the signing key held by this node.
func (k *HDKey) Signer() (*crypto.PrivateKey, error) {
	if !k.key.IsPrivate {
		return nil, errors.New("public-only key cannot sign")
	}
	// bip32 stores private keys with a leading zero byte.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		raw = raw[1:]
	}
	return crypto.PrivateKeyFromBytes(raw)
}

// Address returns the account address of this node's public key.
func (k *HDKey) Address() types.Address {
	return crypto.AddressFromPubKey(k.key.PublicKey().Key)
}

// KeyFromMnemonic derives the signing key a recovery phrase controls,
// always at AccountPath(0).
func KeyFromMnemonic(phrase string) (*crypto.PrivateKey, error) {
	seed, err := SeedFromMnemonic(phrase, "")
	if err != nil {
		return nil, err
	}
	defer wipe(seed)

	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	node, err := master.Derive(AccountPath(0))
	if err != nil {
		return nil, err
	}
	return node.Signer()
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
