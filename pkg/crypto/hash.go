// Package crypto provides the hashing and signing primitives used by the wallet.
package crypto

import (
	"github.com/Klingon-tech/codewallet/pkg/types"
	"github.com/zeebo/blake3"
)

// SchemeSchnorrSecp256k1 is the authentication scheme byte appended to a
// public key before hashing it into an account address.
const SchemeSchnorrSecp256k1 byte = 0x02

// Hash computes a BLAKE3-256 digest.
func Hash(data []byte) [32]byte {
	return blake3.Sum256(data)
}

// AddressFromPubKey derives an account address from a compressed public key.
// Address = BLAKE3(compressed_pubkey || scheme).
func AddressFromPubKey(pubKey []byte) types.Address {
	buf := make([]byte, 0, len(pubKey)+1)
	buf = append(buf, pubKey...)
	buf = append(buf, SchemeSchnorrSecp256k1)
	return types.Address(Hash(buf))
}
