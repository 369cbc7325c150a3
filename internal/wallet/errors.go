package wallet

import "errors"

// Vault errors.
var (
	// ErrInvalidKeyFormat is returned when an imported private key is not
	// 32 bytes of hex or is outside the curve order.
	ErrInvalidKeyFormat = errors.New("invalid private key format")
	// ErrInvalidMnemonic is returned when a phrase fails BIP-39 wordlist or
	// checksum validation.
	ErrInvalidMnemonic = errors.New("invalid mnemonic")
	ErrAccountNotFound = errors.New("account not found")
	ErrNoActiveAccount = errors.New("no active account")
	// ErrSecretMissing means a known address has no stored secret. The
	// account cannot sign until it is reimported or deleted.
	ErrSecretMissing = errors.New("secret missing for account")
	// ErrSecretMismatch means a stored secret derives to a different address.
	ErrSecretMismatch = errors.New("secret does not match account address")
	ErrNotLoaded      = errors.New("vault not loaded")
)
