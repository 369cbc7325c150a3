package wallet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/internal/secretstore"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/pkg/crypto"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// secretSlotPrefix namespaces account secrets inside the secret store.
const secretSlotPrefix = "acct/"

func secretSlot(addr types.Address) string {
	return secretSlotPrefix + addr.Hex()
}

// State is the lifecycle stage of a Vault.
type State int32

const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Vault holds every account of the wallet and signs on their behalf.
//
// Identity metadata goes to the keystore, secrets to the secret store. Signing
// keys are cached in memory for the life of the Vault: the active account is
// derived during Load and the rest are warmed in the background.
type Vault struct {
	ks      *Keystore
	secrets secretstore.Store

	// mu guards identities, active and state. Writers also hold it while
	// zeroing a cached key, so readers may sign with a key under RLock.
	mu         sync.RWMutex
	state      State
	identities []Identity
	active     *types.Address

	cacheMu sync.RWMutex
	cache   map[types.Address]*crypto.PrivateKey

	warming sync.WaitGroup
	stop    chan struct{}
	once    sync.Once
}

// New creates a vault that keeps metadata in db and secrets in secrets.
// Load must be called before any other operation.
func New(db storage.DB, secrets secretstore.Store) *Vault {
	return &Vault{
		ks:      NewKeystore(db),
		secrets: secrets,
		cache:   make(map[types.Address]*crypto.PrivateKey),
		stop:    make(chan struct{}),
	}
}

// State returns the current lifecycle stage.
func (v *Vault) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Load reads the identity list and active pointer, derives the active
// account and returns it. The remaining keys are derived in the background;
// Load does not wait for them. A nil account means the wallet is empty.
//
// If the active account's secret is missing the vault still becomes ready so
// that the account can be deleted or reimported, and the error is returned.
func (v *Vault) Load(ctx context.Context) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer log.Benchmark("vault load")()

	v.mu.Lock()
	if v.state == StateReady {
		acct, err := v.activeAccountLocked()
		v.mu.Unlock()
		return acct, err
	}
	v.state = StateLoading

	ids, active, err := v.ks.Load()
	if err != nil {
		v.state = StateUninitialized
		v.mu.Unlock()
		return nil, err
	}
	v.identities = ids
	v.active = active
	if v.active != nil && v.indexLocked(*v.active) < 0 {
		log.Vault.Warn().Str("address", v.active.Short()).Msg("Active account not in identity list, reselecting")
		v.active = v.firstLocked()
	} else if v.active == nil {
		v.active = v.firstLocked()
	}

	acct, loadErr := v.activeAccountLocked()
	v.state = StateReady

	var rest []Identity
	for _, id := range v.identities {
		if v.active == nil || id.Address != *v.active {
			rest = append(rest, id)
		}
	}
	v.mu.Unlock()

	log.Vault.Info().Int("accounts", len(ids)).Msg("Vault loaded")
	if len(rest) > 0 {
		v.warming.Add(1)
		go v.warm(rest)
	}
	return acct, loadErr
}

// warm derives keys for ids that are not cached yet. Entries written by a
// foreground path are never replaced, and accounts deleted meanwhile are skipped.
func (v *Vault) warm(ids []Identity) {
	defer v.warming.Done()
	defer log.Benchmark("vault warm")()

	for _, id := range ids {
		select {
		case <-v.stop:
			return
		default:
		}
		if v.cachedKey(id.Address) != nil {
			continue
		}
		key, err := v.deriveKey(id)
		if err != nil {
			log.Vault.Warn().Err(err).Str("address", id.Address.Short()).Msg("Background key derivation failed")
			continue
		}
		v.mu.Lock()
		if v.indexLocked(id.Address) >= 0 {
			v.storeKey(id.Address, key, false)
		} else {
			key.Zero()
		}
		v.mu.Unlock()
	}
}

// WaitWarm blocks until background key derivation has finished.
func (v *Vault) WaitWarm() {
	v.warming.Wait()
}

// Close stops background work and wipes every cached key.
func (v *Vault) Close() error {
	v.once.Do(func() { close(v.stop) })
	v.warming.Wait()

	v.mu.Lock()
	defer v.mu.Unlock()
	v.cacheMu.Lock()
	for addr, key := range v.cache {
		key.Zero()
		delete(v.cache, addr)
	}
	v.cacheMu.Unlock()
	v.state = StateUninitialized
	return nil
}

// CreateAccount generates a fresh mnemonic, stores it and makes the new
// account active. The mnemonic is returned for backup display.
func (v *Vault) CreateAccount(ctx context.Context, name string) (types.Address, string, error) {
	if err := ctx.Err(); err != nil {
		return types.Address{}, "", err
	}
	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return types.Address{}, "", err
	}
	key, err := KeyFromMnemonic(mnemonic)
	if err != nil {
		return types.Address{}, "", err
	}
	addr, err := v.addAccount(name, OriginMnemonic, []byte(mnemonic), key)
	if err != nil {
		return types.Address{}, "", err
	}
	log.Vault.Info().Str("address", addr.Short()).Msg("Account created")
	return addr, mnemonic, nil
}

// ImportFromPrivateKey imports a raw 32-byte hex key, with or without 0x.
func (v *Vault) ImportFromPrivateKey(ctx context.Context, hexKey, name string) (types.Address, error) {
	if err := ctx.Err(); err != nil {
		return types.Address{}, err
	}
	key, err := crypto.ParsePrivateKeyHex(hexKey)
	if err != nil {
		return types.Address{}, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	raw := key.Serialize()
	defer wipe(raw)

	addr, err := v.addAccount(name, OriginPrivateKey, raw, key)
	if err != nil {
		return types.Address{}, err
	}
	log.Vault.Info().Str("address", addr.Short()).Msg("Account imported from private key")
	return addr, nil
}

// ImportFromSeedphrase imports a BIP-39 phrase. Whitespace and case are normalized.
func (v *Vault) ImportFromSeedphrase(ctx context.Context, mnemonic, name string) (types.Address, error) {
	if err := ctx.Err(); err != nil {
		return types.Address{}, err
	}
	mnemonic = NormalizeMnemonic(mnemonic)
	if !ValidateMnemonic(mnemonic) {
		return types.Address{}, ErrInvalidMnemonic
	}
	key, err := KeyFromMnemonic(mnemonic)
	if err != nil {
		return types.Address{}, err
	}
	addr, err := v.addAccount(name, OriginMnemonic, []byte(mnemonic), key)
	if err != nil {
		return types.Address{}, err
	}
	log.Vault.Info().Str("address", addr.Short()).Msg("Account imported from seed phrase")
	return addr, nil
}

// addAccount stores secret for the address of key and makes it active.
// An address that is already known keeps its metadata.
func (v *Vault) addAccount(name string, origin OriginKind, secret []byte, key *crypto.PrivateKey) (types.Address, error) {
	addr := crypto.AddressFromPubKey(key.PublicKey())

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateReady {
		return types.Address{}, ErrNotLoaded
	}

	// Secret first, so metadata never points at a missing secret.
	if err := v.secrets.Set(secretSlot(addr), secret); err != nil {
		return types.Address{}, fmt.Errorf("store secret: %w", err)
	}

	ids := make([]Identity, len(v.identities), len(v.identities)+1)
	copy(ids, v.identities)
	idx := v.indexLocked(addr)
	if idx < 0 {
		if name == "" {
			name = fmt.Sprintf("Wallet %d", len(ids)+1)
		}
		ids = append(ids, Identity{Address: addr, Name: name, Origin: origin})
	} else {
		ids[idx].Origin = origin
	}

	if err := v.ks.Save(ids, &addr); err != nil {
		if idx < 0 {
			if derr := v.secrets.Delete(secretSlot(addr)); derr != nil {
				log.Vault.Error().Err(derr).Str("address", addr.Short()).Msg("Failed to roll back secret")
			}
		}
		return types.Address{}, err
	}
	v.identities = ids
	v.active = &addr
	v.storeKey(addr, key, true)
	return addr, nil
}

// SwitchActive makes addr the active account. The previous selection is kept
// on any error.
func (v *Vault) SwitchActive(ctx context.Context, addr types.Address) (*Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateReady {
		return nil, ErrNotLoaded
	}

	idx := v.indexLocked(addr)
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", addr.Short(), ErrAccountNotFound)
	}
	key, err := v.keyLocked(addr)
	if err != nil {
		if errors.Is(err, ErrSecretMissing) {
			return nil, fmt.Errorf("%w: %w", ErrAccountNotFound, err)
		}
		return nil, err
	}
	if err := v.ks.Save(v.identities, &addr); err != nil {
		return nil, err
	}
	v.active = &addr
	log.Vault.Debug().Str("address", addr.Short()).Msg("Active account switched")
	return accountOf(v.identities[idx], key), nil
}

// Sign signs a 32-byte hash with the active account.
func (v *Vault) Sign(hash []byte) (*Signature, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.active == nil {
		return nil, ErrNoActiveAccount
	}
	return v.signLocked(*v.active, hash)
}

// SignWith signs a 32-byte hash with the account at addr.
func (v *Vault) SignWith(ctx context.Context, addr types.Address, hash []byte) (*Signature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.state != StateReady {
		return nil, ErrNotLoaded
	}
	if v.indexLocked(addr) < 0 {
		return nil, fmt.Errorf("%s: %w", addr.Short(), ErrAccountNotFound)
	}
	return v.signLocked(addr, hash)
}

func (v *Vault) signLocked(addr types.Address, hash []byte) (*Signature, error) {
	key, err := v.keyLocked(addr)
	if err != nil {
		return nil, err
	}
	sig, err := key.Sign(hash)
	if err != nil {
		return nil, err
	}
	return &Signature{Signature: sig, PublicKey: key.PublicKey()}, nil
}

// ExportMnemonic returns the phrase backing addr, or the active account when
// addr is zero. The bool is false when the account was not created from a
// mnemonic.
func (v *Vault) ExportMnemonic(ctx context.Context, addr types.Address) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	id, err := v.resolveLocked(addr)
	if err != nil {
		return "", false, err
	}
	if id.Origin != OriginMnemonic {
		return "", false, nil
	}
	var phrase string
	err = secretstore.With(v.secrets, secretSlot(id.Address), func(secret []byte) error {
		phrase = string(secret)
		return nil
	})
	if err != nil {
		return "", false, v.secretErr(id.Address, err)
	}
	return phrase, true, nil
}

// ExportPrivateKey returns the 0x-prefixed hex private key of addr, or of the
// active account when addr is zero. Mnemonic accounts export their derived key.
func (v *Vault) ExportPrivateKey(ctx context.Context, addr types.Address) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	id, err := v.resolveLocked(addr)
	if err != nil {
		return "", false, err
	}
	if id.Origin != OriginMnemonic && id.Origin != OriginPrivateKey {
		return "", false, nil
	}
	key, err := v.keyLocked(id.Address)
	if err != nil {
		return "", false, err
	}
	return key.Hex(), true, nil
}

// DeleteAccount removes an account's metadata, secret and cached key. When
// the active account is deleted the first remaining one becomes active.
func (v *Vault) DeleteAccount(ctx context.Context, addr types.Address) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateReady {
		return ErrNotLoaded
	}

	idx := v.indexLocked(addr)
	if idx < 0 {
		return fmt.Errorf("%s: %w", addr.Short(), ErrAccountNotFound)
	}
	ids := make([]Identity, 0, len(v.identities)-1)
	ids = append(ids, v.identities[:idx]...)
	ids = append(ids, v.identities[idx+1:]...)

	active := v.active
	if active != nil && *active == addr {
		active = nil
		if len(ids) > 0 {
			first := ids[0].Address
			active = &first
		}
	}

	if err := v.ks.Save(ids, active); err != nil {
		return err
	}
	v.identities = ids
	v.active = active
	v.dropKey(addr)

	if err := v.secrets.Delete(secretSlot(addr)); err != nil {
		return fmt.Errorf("delete secret: %w", err)
	}
	log.Vault.Info().Str("address", addr.Short()).Int("remaining", len(ids)).Msg("Account deleted")
	return nil
}

// DeleteAll removes every account. Orphaned secrets are swept as well when
// the secret store can list its slots.
func (v *Vault) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateReady {
		return ErrNotLoaded
	}

	if err := v.ks.Reset(); err != nil {
		return err
	}
	old := v.identities
	v.identities = nil
	v.active = nil
	for _, id := range old {
		v.dropKey(id.Address)
		if err := v.secrets.Delete(secretSlot(id.Address)); err != nil {
			return fmt.Errorf("delete secret: %w", err)
		}
	}

	if lister, ok := v.secrets.(interface{ Slots() ([]string, error) }); ok {
		slots, err := lister.Slots()
		if err != nil {
			return fmt.Errorf("list secrets: %w", err)
		}
		for _, slot := range slots {
			if !strings.HasPrefix(slot, secretSlotPrefix) {
				continue
			}
			if err := v.secrets.Delete(slot); err != nil {
				return fmt.Errorf("delete secret: %w", err)
			}
		}
	}
	log.Vault.Info().Int("deleted", len(old)).Msg("All accounts deleted")
	return nil
}

// UpdateMetadata changes an account's display name or emoji.
func (v *Vault) UpdateMetadata(ctx context.Context, addr types.Address, upd MetadataUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.state != StateReady {
		return ErrNotLoaded
	}

	idx := v.indexLocked(addr)
	if idx < 0 {
		return fmt.Errorf("%s: %w", addr.Short(), ErrAccountNotFound)
	}
	ids := make([]Identity, len(v.identities))
	copy(ids, v.identities)
	if upd.Name != nil {
		ids[idx].Name = *upd.Name
	}
	if upd.Emoji != nil {
		ids[idx].Emoji = *upd.Emoji
	}
	if err := v.ks.Save(ids, v.active); err != nil {
		return err
	}
	v.identities = ids
	return nil
}

// Accounts returns a copy of the identity list in insertion order.
func (v *Vault) Accounts() []Identity {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Identity, len(v.identities))
	copy(out, v.identities)
	return out
}

// Active returns the active identity, or nil when there is none.
func (v *Vault) Active() *Identity {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.active == nil {
		return nil
	}
	idx := v.indexLocked(*v.active)
	if idx < 0 {
		return nil
	}
	id := v.identities[idx]
	return &id
}

func (v *Vault) activeAccountLocked() (*Account, error) {
	if v.active == nil {
		return nil, nil
	}
	idx := v.indexLocked(*v.active)
	if idx < 0 {
		return nil, ErrNoActiveAccount
	}
	key, err := v.keyLocked(*v.active)
	if err != nil {
		return nil, err
	}
	return accountOf(v.identities[idx], key), nil
}

// resolveLocked maps a zero address to the active account.
func (v *Vault) resolveLocked(addr types.Address) (Identity, error) {
	if addr.IsZero() {
		if v.active == nil {
			return Identity{}, ErrNoActiveAccount
		}
		addr = *v.active
	}
	idx := v.indexLocked(addr)
	if idx < 0 {
		return Identity{}, fmt.Errorf("%s: %w", addr.Short(), ErrAccountNotFound)
	}
	return v.identities[idx], nil
}

func (v *Vault) indexLocked(addr types.Address) int {
	for i, id := range v.identities {
		if id.Address == addr {
			return i
		}
	}
	return -1
}

func (v *Vault) firstLocked() *types.Address {
	if len(v.identities) == 0 {
		return nil
	}
	first := v.identities[0].Address
	return &first
}

// keyLocked returns the cached key for addr, deriving it on a miss.
// The caller must hold mu for reading or writing.
func (v *Vault) keyLocked(addr types.Address) (*crypto.PrivateKey, error) {
	if key := v.cachedKey(addr); key != nil {
		return key, nil
	}
	idx := v.indexLocked(addr)
	if idx < 0 {
		return nil, fmt.Errorf("%s: %w", addr.Short(), ErrAccountNotFound)
	}
	key, err := v.deriveKey(v.identities[idx])
	if err != nil {
		return nil, err
	}
	// Readers may race here; the first stored key is the one they share.
	return v.storeKey(addr, key, false), nil
}

// deriveKey reads the secret of id and rebuilds its signing key. The
// derived address must match the stored one.
func (v *Vault) deriveKey(id Identity) (*crypto.PrivateKey, error) {
	var key *crypto.PrivateKey
	err := secretstore.With(v.secrets, secretSlot(id.Address), func(secret []byte) error {
		var err error
		switch id.Origin {
		case OriginMnemonic:
			key, err = KeyFromMnemonic(string(secret))
		case OriginPrivateKey:
			key, err = crypto.PrivateKeyFromBytes(secret)
		default:
			err = fmt.Errorf("unknown origin %d", id.Origin)
		}
		return err
	})
	if err != nil {
		return nil, v.secretErr(id.Address, err)
	}
	if crypto.AddressFromPubKey(key.PublicKey()) != id.Address {
		key.Zero()
		return nil, fmt.Errorf("%s: %w", id.Address.Short(), ErrSecretMismatch)
	}
	return key, nil
}

func (v *Vault) secretErr(addr types.Address, err error) error {
	if errors.Is(err, secretstore.ErrNoSecret) {
		return fmt.Errorf("%s: %w", addr.Short(), ErrSecretMissing)
	}
	return fmt.Errorf("load secret for %s: %w", addr.Short(), err)
}

func (v *Vault) cachedKey(addr types.Address) *crypto.PrivateKey {
	v.cacheMu.RLock()
	defer v.cacheMu.RUnlock()
	return v.cache[addr]
}

// storeKey caches key for addr and returns the cached entry. With replace,
// key overwrites and wipes any previous entry, so the caller must hold mu for
// writing. Without it an existing entry wins and key is wiped.
func (v *Vault) storeKey(addr types.Address, key *crypto.PrivateKey, replace bool) *crypto.PrivateKey {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	if old, ok := v.cache[addr]; ok && old != key {
		if !replace {
			key.Zero()
			return old
		}
		old.Zero()
	}
	v.cache[addr] = key
	return key
}

// dropKey removes and wipes the cached key for addr. The caller must hold mu
// for writing.
func (v *Vault) dropKey(addr types.Address) {
	v.cacheMu.Lock()
	defer v.cacheMu.Unlock()
	if key, ok := v.cache[addr]; ok {
		key.Zero()
		delete(v.cache, addr)
	}
}

func accountOf(id Identity, key *crypto.PrivateKey) *Account {
	return &Account{
		Address:   id.Address,
		PublicKey: key.PublicKey(),
		Origin:    id.Origin,
	}
}
