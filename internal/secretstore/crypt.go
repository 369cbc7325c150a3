package secretstore

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrWrongPassphrase is returned when a passphrase-sealed blob fails authentication.
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted data")

// errBadHeader is returned for a wrapped key whose header cannot be trusted.
var errBadHeader = errors.New("malformed wrapped key")

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns the Argon2id parameters used for new stores.
func DefaultParams() EncryptionParams {
	return EncryptionParams{Memory: 64 * 1024, Iterations: 3, Parallelism: 4}
}

// Limits on parameters read back from disk, so a damaged header cannot
// make unlock allocate without bound.
const (
	maxMemory     = 4 << 20 // 4 GiB
	maxIterations = 64
)

func (p EncryptionParams) check() error {
	if p.Memory == 0 || p.Memory > maxMemory || p.Iterations == 0 ||
		p.Iterations > maxIterations || p.Parallelism == 0 {
		return fmt.Errorf("%w: kdf params %+v", errBadHeader, p)
	}
	return nil
}

// Wrapped key layout:
//
//	version(1) | salt(16) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
//
// The header up to the nonce is authenticated as associated data.
const (
	wrapVersion = 1
	saltSize    = 16
	headerSize  = 1 + saltSize + 4 + 4 + 1
)

func kek(passphrase, salt []byte, p EncryptionParams) []byte {
	return argon2.IDKey(passphrase, salt, p.Iterations, p.Memory, p.Parallelism, chacha20poly1305.KeySize)
}

// wrapKey seals dataKey under a key stretched from passphrase.
func wrapKey(dataKey, passphrase []byte, p EncryptionParams) ([]byte, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	out := make([]byte, headerSize+chacha20poly1305.NonceSizeX, headerSize+chacha20poly1305.NonceSizeX+len(dataKey)+chacha20poly1305.Overhead)
	out[0] = wrapVersion
	salt := out[1 : 1+saltSize]
	nonce := out[headerSize:]
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	binary.LittleEndian.PutUint32(out[1+saltSize:], p.Memory)
	binary.LittleEndian.PutUint32(out[1+saltSize+4:], p.Iterations)
	out[headerSize-1] = p.Parallelism

	key := kek(passphrase, salt, p)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	return aead.Seal(out, nonce, dataKey, out[:headerSize]), nil
}

// unwrapKey reverses wrapKey using the parameters stored in the header.
func unwrapKey(wrapped, passphrase []byte) ([]byte, error) {
	if len(wrapped) < headerSize+chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("%w: %d bytes", errBadHeader, len(wrapped))
	}
	if wrapped[0] != wrapVersion {
		return nil, fmt.Errorf("%w: version %d", errBadHeader, wrapped[0])
	}
	p := EncryptionParams{
		Memory:      binary.LittleEndian.Uint32(wrapped[1+saltSize:]),
		Iterations:  binary.LittleEndian.Uint32(wrapped[1+saltSize+4:]),
		Parallelism: wrapped[headerSize-1],
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	nonce := wrapped[headerSize : headerSize+chacha20poly1305.NonceSizeX]

	key := kek(passphrase, wrapped[1:1+saltSize], p)
	defer wipe(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, wrapped[headerSize+len(nonce):], wrapped[:headerSize])
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

// seal encrypts one secret under the store's data key. The slot name is
// associated data, so a ciphertext cannot be moved to another slot.
//
// Layout: nonce(24) | ciphertext
func seal(dataKey []byte, slot string, secret []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	out := make([]byte, aead.NonceSize(), aead.NonceSize()+len(secret)+aead.Overhead())
	if _, err := rand.Read(out); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return aead.Seal(out, out[:aead.NonceSize()], secret, []byte(slot)), nil
}

// open reverses seal.
func open(dataKey []byte, slot string, sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(dataKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, fmt.Errorf("sealed secret too short: %d bytes", len(sealed))
	}
	nonce, ct := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, ct, []byte(slot))
	if err != nil {
		return nil, fmt.Errorf("open secret %q: %w", slot, err)
	}
	return plain, nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
