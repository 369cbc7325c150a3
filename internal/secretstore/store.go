// Package secretstore keeps account secrets sealed at rest.
//
// A random data key is generated when a store is first opened and wrapped
// under the user's passphrase with Argon2id + XChaCha20-Poly1305. Every
// secret is then sealed with the data key, so the passphrase KDF runs once
// per Open rather than once per read.
package secretstore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"golang.org/x/crypto/chacha20poly1305"
)

// Store errors.
var (
	ErrClosed     = errors.New("secret store closed")
	ErrEmptySlot  = errors.New("empty secret slot name")
	ErrNoSecret   = errors.New("secret not found")
	ErrPassphrase = errors.New("passphrase must not be empty")
)

// wrappedKey holds the data key sealed under the passphrase. Entries live
// in the "e" namespace beside it.
var wrappedKey = []byte("key")

// Store is a durable key-value store for secrets. Values returned by Get are
// owned by the caller, who should wipe them after use.
type Store interface {
	// Get returns the secret for slot. The bool is false when nothing is stored.
	Get(slot string) ([]byte, bool, error)
	Set(slot string, secret []byte) error
	// Delete removes a slot. Deleting a missing slot is not an error.
	Delete(slot string) error
}

// With fetches the secret in slot, passes it to fn and wipes it afterwards.
// fn must not retain the slice. ErrNoSecret is returned when the slot is empty.
func With(s Store, slot string, fn func(secret []byte) error) error {
	secret, ok, err := s.Get(slot)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", slot, ErrNoSecret)
	}
	defer wipe(secret)
	return fn(secret)
}

// Sealed is a Store that encrypts every secret before it reaches storage.
type Sealed struct {
	mu      sync.RWMutex
	db      storage.DB
	entries *storage.Namespace
	dataKey []byte
	params  EncryptionParams
}

// Open unlocks the store kept in db, creating it on first use.
// ErrWrongPassphrase is returned when db holds a store sealed under another passphrase.
func Open(db storage.DB, passphrase []byte, params EncryptionParams) (*Sealed, error) {
	if len(passphrase) == 0 {
		return nil, ErrPassphrase
	}
	s := &Sealed{
		db:      db,
		entries: storage.NewNamespace(db, "e"),
		params:  params,
	}

	wrapped, err := db.Get(wrappedKey)
	switch {
	case err == nil:
		key, err := unwrapKey(wrapped, passphrase)
		if err != nil {
			return nil, err
		}
		s.dataKey = key
		log.Secrets.Debug().Msg("Secret store unlocked")
	case errors.Is(err, storage.ErrNotFound):
		key := make([]byte, chacha20poly1305.KeySize)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate data key: %w", err)
		}
		if err := s.putWrapped(key, passphrase); err != nil {
			wipe(key)
			return nil, err
		}
		s.dataKey = key
		log.Secrets.Info().Msg("Secret store initialized")
	default:
		return nil, fmt.Errorf("read wrapped key: %w", err)
	}
	return s, nil
}

func (s *Sealed) putWrapped(dataKey, passphrase []byte) error {
	wrapped, err := wrapKey(dataKey, passphrase, s.params)
	if err != nil {
		return fmt.Errorf("wrap data key: %w", err)
	}
	if err := s.db.Put(wrappedKey, wrapped); err != nil {
		return fmt.Errorf("store wrapped key: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *Sealed) Get(slot string) ([]byte, bool, error) {
	if slot == "" {
		return nil, false, ErrEmptySlot
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dataKey == nil {
		return nil, false, ErrClosed
	}

	sealed, err := s.entries.Get([]byte(slot))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read secret: %w", err)
	}
	plain, err := open(s.dataKey, slot, sealed)
	if err != nil {
		return nil, false, err
	}
	return plain, true, nil
}

// Set implements Store.
func (s *Sealed) Set(slot string, secret []byte) error {
	if slot == "" {
		return ErrEmptySlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataKey == nil {
		return ErrClosed
	}

	sealed, err := seal(s.dataKey, slot, secret)
	if err != nil {
		return err
	}
	if err := s.entries.Put([]byte(slot), sealed); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	return nil
}

// Delete implements Store.
func (s *Sealed) Delete(slot string) error {
	if slot == "" {
		return ErrEmptySlot
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataKey == nil {
		return ErrClosed
	}
	if err := s.entries.Delete([]byte(slot)); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	return nil
}

// Slots returns the names of all stored secrets.
func (s *Sealed) Slots() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dataKey == nil {
		return nil, ErrClosed
	}
	var slots []string
	err := s.entries.ForEach(nil, func(key, _ []byte) error {
		slots = append(slots, string(key))
		return nil
	})
	return slots, err
}

// ChangePassphrase rewraps the data key under a new passphrase. Sealed
// entries are untouched.
func (s *Sealed) ChangePassphrase(oldPass, newPass []byte) error {
	if len(newPass) == 0 {
		return ErrPassphrase
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataKey == nil {
		return ErrClosed
	}

	wrapped, err := s.db.Get(wrappedKey)
	if err != nil {
		return fmt.Errorf("read wrapped key: %w", err)
	}
	key, err := unwrapKey(wrapped, oldPass)
	if err != nil {
		return err
	}
	wipe(key)

	if err := s.putWrapped(s.dataKey, newPass); err != nil {
		return err
	}
	log.Secrets.Info().Msg("Secret store passphrase changed")
	return nil
}

// Close wipes the data key. The underlying storage is left open.
func (s *Sealed) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dataKey != nil {
		wipe(s.dataKey)
		s.dataKey = nil
	}
	return nil
}
