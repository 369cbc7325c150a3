// Package wallet implements the multi-account identity vault.
package wallet

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const (
	// PhraseWords is the number of words in a generated recovery phrase.
	PhraseWords = 12

	// SeedSize is the length of a BIP-39 seed in bytes.
	SeedSize = 64

	phraseEntropyBits = PhraseWords / 3 * 32
)

// GenerateMnemonic creates a fresh 12-word recovery phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(phraseEntropyBits)
	if err != nil {
		return "", fmt.Errorf("phrase entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("phrase encode: %w", err)
	}
	return phrase, nil
}

// NormalizeMnemonic lowercases a phrase and collapses runs of whitespace
// into single spaces. Imported phrases are stored in this form.
func NormalizeMnemonic(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// ValidateMnemonic reports whether phrase passes the BIP-39 word list and
// checksum after normalization.
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(phrase))
}

// SeedFromMnemonic stretches a recovery phrase into the 64-byte seed that
// roots key derivation. The BIP-39 passphrase is always empty for vault
// accounts; it is a parameter for interop tests.
func SeedFromMnemonic(phrase, passphrase string) ([]byte, error) {
	phrase = NormalizeMnemonic(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return nil, ErrInvalidMnemonic
	}
	seed, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return seed, nil
}
