package wallet

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/internal/secretstore"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/pkg/crypto"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

func init() {
	log.Discard()
}

// fastParams returns low-cost Argon2 params for fast tests.
func fastParams() secretstore.EncryptionParams {
	return secretstore.EncryptionParams{Memory: 64, Iterations: 1, Parallelism: 1}
}

// testVault builds a loaded vault over db. Metadata and secrets share db
// under separate prefixes the way the app lays them out.
func testVault(t *testing.T, db storage.DB) (*Vault, *secretstore.Sealed) {
	t.Helper()
	secrets, err := secretstore.Open(storage.NewNamespace(db, storage.NSSecrets), []byte("pw"), fastParams())
	if err != nil {
		t.Fatalf("secretstore.Open() error: %v", err)
	}
	v := New(storage.NewNamespace(db, storage.NSVault), secrets)
	if _, err := v.Load(context.Background()); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	t.Cleanup(func() {
		v.Close()
		secrets.Close()
	})
	return v, secrets
}

func testHash(s string) []byte {
	h := crypto.Hash([]byte(s))
	return h[:]
}

func TestVault_NotLoaded(t *testing.T) {
	secrets, err := secretstore.Open(storage.NewMemory(), []byte("pw"), fastParams())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	v := New(storage.NewMemory(), secrets)
	if v.State() != StateUninitialized {
		t.Errorf("State() = %v, want uninitialized", v.State())
	}
	if _, _, err := v.CreateAccount(context.Background(), ""); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("CreateAccount() before Load error = %v, want ErrNotLoaded", err)
	}

	acct, err := v.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if acct != nil {
		t.Errorf("Load() on empty vault = %+v, want nil", acct)
	}
	if v.State() != StateReady {
		t.Errorf("State() = %v, want ready", v.State())
	}
}

func TestVault_CreateThenImportSamePhrase(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	addr, mnemonic, err := v.CreateAccount(ctx, "")
	if err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	if n := len(strings.Fields(mnemonic)); n != 12 {
		t.Errorf("mnemonic has %d words, want 12", n)
	}

	again, err := v.ImportFromSeedphrase(ctx, "  "+strings.ToUpper(mnemonic)+"\n", "other name")
	if err != nil {
		t.Fatalf("ImportFromSeedphrase() error: %v", err)
	}
	if again != addr {
		t.Errorf("reimport address = %s, want %s", again, addr)
	}

	accts := v.Accounts()
	if len(accts) != 1 {
		t.Fatalf("Accounts() len = %d, want 1", len(accts))
	}
	if accts[0].Name != "Wallet 1" {
		t.Errorf("reimport should keep metadata, name = %q", accts[0].Name)
	}
}

func TestVault_DefaultNames(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	for i := 0; i < 3; i++ {
		if _, _, err := v.CreateAccount(ctx, ""); err != nil {
			t.Fatalf("CreateAccount() error: %v", err)
		}
	}
	if _, _, err := v.CreateAccount(ctx, "Named"); err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	want := []string{"Wallet 1", "Wallet 2", "Wallet 3", "Named"}
	for i, id := range v.Accounts() {
		if id.Name != want[i] {
			t.Errorf("account %d name = %q, want %q", i, id.Name, want[i])
		}
	}
}

func TestVault_ImportFromPrivateKey(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	want := crypto.AddressFromPubKey(key.PublicKey())

	addr, err := v.ImportFromPrivateKey(ctx, "0x"+hex.EncodeToString(key.Serialize()), "")
	if err != nil {
		t.Fatalf("ImportFromPrivateKey() error: %v", err)
	}
	if addr != want {
		t.Errorf("address = %s, want %s", addr, want)
	}

	// Without prefix, uppercase: same account, no duplicate.
	addr2, err := v.ImportFromPrivateKey(ctx, strings.ToUpper(hex.EncodeToString(key.Serialize())), "")
	if err != nil {
		t.Fatalf("ImportFromPrivateKey() error: %v", err)
	}
	if addr2 != addr || len(v.Accounts()) != 1 {
		t.Errorf("reimport gave %s with %d accounts", addr2, len(v.Accounts()))
	}
	if v.Accounts()[0].Origin != OriginPrivateKey {
		t.Errorf("origin = %v, want private_key", v.Accounts()[0].Origin)
	}
}

func TestVault_ImportFromPrivateKey_Invalid(t *testing.T) {
	v, _ := testVault(t, storage.NewMemory())

	tests := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"short", "0x1234"},
		{"odd length", strings.Repeat("a", 63)},
		{"too long", strings.Repeat("a", 66)},
		{"not hex", strings.Repeat("zz", 32)},
		{"zero", strings.Repeat("00", 32)},
		{"curve order", "fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.ImportFromPrivateKey(context.Background(), tt.key, "")
			if !errors.Is(err, ErrInvalidKeyFormat) {
				t.Errorf("error = %v, want ErrInvalidKeyFormat", err)
			}
		})
	}
	if len(v.Accounts()) != 0 {
		t.Error("failed imports should not add accounts")
	}
}

func TestVault_ImportFromSeedphrase_Invalid(t *testing.T) {
	v, _ := testVault(t, storage.NewMemory())
	bad := []string{
		"",
		"abandon abandon abandon",
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon",
		"notaword abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about",
	}
	for _, m := range bad {
		if _, err := v.ImportFromSeedphrase(context.Background(), m, ""); !errors.Is(err, ErrInvalidMnemonic) {
			t.Errorf("ImportFromSeedphrase(%q) error = %v, want ErrInvalidMnemonic", m, err)
		}
	}
}

func TestVault_SwitchActive(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	a1, _, _ := v.CreateAccount(ctx, "")
	a2, _, _ := v.CreateAccount(ctx, "")
	if v.Active().Address != a2 {
		t.Fatalf("newest account should be active")
	}

	acct, err := v.SwitchActive(ctx, a1)
	if err != nil {
		t.Fatalf("SwitchActive() error: %v", err)
	}
	if acct.Address != a1 || len(acct.PublicKey) != 33 || acct.Origin != OriginMnemonic {
		t.Errorf("SwitchActive() = %+v", acct)
	}
	if crypto.AddressFromPubKey(acct.PublicKey) != a1 {
		t.Error("account public key does not derive its address")
	}
	if v.Active().Address != a1 {
		t.Error("active account not updated")
	}

	unknown := types.MustParseAddress("0xdead")
	if _, err := v.SwitchActive(ctx, unknown); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("SwitchActive(unknown) error = %v, want ErrAccountNotFound", err)
	}
	if v.Active().Address != a1 {
		t.Error("failed switch must leave the active account unchanged")
	}
}

func TestVault_SwitchActive_SecretMissing(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemory()
	v, secrets := testVault(t, db)

	a1, _, _ := v.CreateAccount(ctx, "")
	a2, _, _ := v.CreateAccount(ctx, "")
	if err := secrets.Delete(secretSlot(a1)); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	// A fresh vault has no cached key for a1.
	v2 := New(storage.NewNamespace(db, storage.NSVault), secrets)
	if _, err := v2.Load(ctx); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	v2.WaitWarm()
	defer v2.Close()

	_, err := v2.SwitchActive(ctx, a1)
	if !errors.Is(err, ErrAccountNotFound) || !errors.Is(err, ErrSecretMissing) {
		t.Errorf("SwitchActive() error = %v, want ErrAccountNotFound and ErrSecretMissing", err)
	}
	if v2.Active().Address != a2 {
		t.Error("failed switch must leave the active account unchanged")
	}
}

func TestVault_Sign(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	if _, err := v.Sign(testHash("x")); !errors.Is(err, ErrNoActiveAccount) {
		t.Errorf("Sign() with no account error = %v, want ErrNoActiveAccount", err)
	}

	addr, _, _ := v.CreateAccount(ctx, "")
	hash := testHash("transfer")
	sig, err := v.Sign(hash)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(hash, sig.Signature, sig.PublicKey) {
		t.Error("signature should verify")
	}
	if crypto.AddressFromPubKey(sig.PublicKey) != addr {
		t.Error("signature public key does not belong to the active account")
	}

	if _, err := v.Sign([]byte("short")); err == nil {
		t.Error("Sign() should reject a hash that is not 32 bytes")
	}
}

func TestVault_SignWith(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	a1, _, _ := v.CreateAccount(ctx, "")
	v.CreateAccount(ctx, "")

	hash := testHash("claim")
	sig, err := v.SignWith(ctx, a1, hash)
	if err != nil {
		t.Fatalf("SignWith() error: %v", err)
	}
	if crypto.AddressFromPubKey(sig.PublicKey) != a1 {
		t.Error("SignWith used the wrong account")
	}
	if _, err := v.SignWith(ctx, types.MustParseAddress("0x9"), hash); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("SignWith(unknown) error = %v, want ErrAccountNotFound", err)
	}
}

func TestVault_Export(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	mAddr, mnemonic, _ := v.CreateAccount(ctx, "")
	key, _ := crypto.GenerateKey()
	pkHex := "0x" + hex.EncodeToString(key.Serialize())
	pAddr, err := v.ImportFromPrivateKey(ctx, pkHex, "")
	if err != nil {
		t.Fatalf("ImportFromPrivateKey() error: %v", err)
	}

	got, ok, err := v.ExportMnemonic(ctx, mAddr)
	if err != nil || !ok || got != mnemonic {
		t.Errorf("ExportMnemonic(mnemonic acct) = %q, %v, %v", got, ok, err)
	}

	// Private-key accounts have no mnemonic; zero address means active.
	got, ok, err = v.ExportMnemonic(ctx, types.Address{})
	if err != nil || ok || got != "" {
		t.Errorf("ExportMnemonic(pk acct) = %q, %v, %v; want \"\", false, nil", got, ok, err)
	}

	got, ok, err = v.ExportPrivateKey(ctx, pAddr)
	if err != nil || !ok || got != pkHex {
		t.Errorf("ExportPrivateKey(pk acct) = %q, %v, %v", got, ok, err)
	}

	derived, err := KeyFromMnemonic(mnemonic)
	if err != nil {
		t.Fatalf("KeyFromMnemonic() error: %v", err)
	}
	got, ok, err = v.ExportPrivateKey(ctx, mAddr)
	if err != nil || !ok || got != types.EncodeHex(derived.Serialize()) {
		t.Errorf("ExportPrivateKey(mnemonic acct) = %q, %v, %v", got, ok, err)
	}

	if _, _, err := v.ExportMnemonic(ctx, types.MustParseAddress("0x5")); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("ExportMnemonic(unknown) error = %v, want ErrAccountNotFound", err)
	}
}

func TestVault_DeleteAccount(t *testing.T) {
	ctx := context.Background()
	v, secrets := testVault(t, storage.NewMemory())

	a1, _, _ := v.CreateAccount(ctx, "")
	a2, _, _ := v.CreateAccount(ctx, "")
	a3, _, _ := v.CreateAccount(ctx, "")

	// Deleting a non-active account keeps the selection.
	if err := v.DeleteAccount(ctx, a2); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if v.Active().Address != a3 {
		t.Error("active account should be unchanged")
	}
	if _, ok, _ := secrets.Get(secretSlot(a2)); ok {
		t.Error("secret should be removed with the account")
	}

	// Deleting the active account selects the first remaining one.
	if err := v.DeleteAccount(ctx, a3); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if v.Active() == nil || v.Active().Address != a1 {
		t.Errorf("active after delete = %v, want %s", v.Active(), a1)
	}

	if err := v.DeleteAccount(ctx, a1); err != nil {
		t.Fatalf("DeleteAccount() error: %v", err)
	}
	if v.Active() != nil {
		t.Error("active should be nil once every account is gone")
	}
	if _, err := v.Sign(testHash("x")); !errors.Is(err, ErrNoActiveAccount) {
		t.Errorf("Sign() after delete error = %v, want ErrNoActiveAccount", err)
	}
	if err := v.DeleteAccount(ctx, a1); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("second DeleteAccount() error = %v, want ErrAccountNotFound", err)
	}
}

func TestVault_DeleteAll(t *testing.T) {
	ctx := context.Background()
	v, secrets := testVault(t, storage.NewMemory())

	for i := 0; i < 3; i++ {
		v.CreateAccount(ctx, "")
	}
	// An orphaned account secret is swept too.
	secrets.Set(secretSlotPrefix+"orphan", []byte("x"))
	secrets.Set("unrelated", []byte("y"))

	if err := v.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error: %v", err)
	}
	if len(v.Accounts()) != 0 || v.Active() != nil {
		t.Error("vault should be empty after DeleteAll")
	}
	slots, _ := secrets.Slots()
	if len(slots) != 1 || slots[0] != "unrelated" {
		t.Errorf("remaining slots = %v, want [unrelated]", slots)
	}
}

func TestVault_UpdateMetadata(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())
	addr, _, _ := v.CreateAccount(ctx, "")

	name := "Daily"
	if err := v.UpdateMetadata(ctx, addr, MetadataUpdate{Name: &name}); err != nil {
		t.Fatalf("UpdateMetadata() error: %v", err)
	}
	emoji := "🚀"
	if err := v.UpdateMetadata(ctx, addr, MetadataUpdate{Emoji: &emoji}); err != nil {
		t.Fatalf("UpdateMetadata() error: %v", err)
	}
	id := v.Active()
	if id.Name != "Daily" || id.Emoji != "🚀" {
		t.Errorf("metadata = %+v", id)
	}
	if err := v.UpdateMetadata(ctx, types.MustParseAddress("0x3"), MetadataUpdate{Name: &name}); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("UpdateMetadata(unknown) error = %v, want ErrAccountNotFound", err)
	}
}

func TestVault_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	v, secrets := testVault(t, db)
	a1, _, _ := v.CreateAccount(ctx, "First")
	a2, _, _ := v.CreateAccount(ctx, "Second")
	a3, _, _ := v.CreateAccount(ctx, "Third")
	if _, err := v.SwitchActive(ctx, a2); err != nil {
		t.Fatalf("SwitchActive() error: %v", err)
	}
	v.Close()
	secrets.Close()
	db.Close()

	db2, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen NewBadger() error: %v", err)
	}
	defer db2.Close()
	secrets2, err := secretstore.Open(storage.NewNamespace(db2, storage.NSSecrets), []byte("pw"), fastParams())
	if err != nil {
		t.Fatalf("secretstore.Open() error: %v", err)
	}
	defer secrets2.Close()
	v2 := New(storage.NewNamespace(db2, storage.NSVault), secrets2)
	defer v2.Close()

	acct, err := v2.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if acct == nil || acct.Address != a2 {
		t.Fatalf("Load() active = %v, want %s", acct, a2)
	}
	v2.WaitWarm()
	for _, a := range []types.Address{a1, a3} {
		if v2.cachedKey(a) == nil {
			t.Errorf("key for %s should be warmed", a.Short())
		}
	}
	if names := fmt.Sprint(v2.Accounts()[0].Name, v2.Accounts()[2].Name); names != "FirstThird" {
		t.Errorf("names = %q", names)
	}
}

func TestVault_LoadReportsMissingActiveSecret(t *testing.T) {
	ctx := context.Background()
	db := storage.NewMemory()
	v, secrets := testVault(t, db)
	addr, _, _ := v.CreateAccount(ctx, "")
	secrets.Delete(secretSlot(addr))

	v2 := New(storage.NewNamespace(db, storage.NSVault), secrets)
	defer v2.Close()
	_, err := v2.Load(ctx)
	if !errors.Is(err, ErrSecretMissing) {
		t.Fatalf("Load() error = %v, want ErrSecretMissing", err)
	}
	if v2.State() != StateReady {
		t.Error("vault should still be ready so the account can be deleted")
	}
	if err := v2.DeleteAccount(ctx, addr); err != nil {
		t.Errorf("DeleteAccount() error: %v", err)
	}
}

func TestVault_StoreKeyForegroundWins(t *testing.T) {
	v, _ := testVault(t, storage.NewMemory())
	addr := types.MustParseAddress("0x7")
	k1, _ := crypto.GenerateKey()
	k2, _ := crypto.GenerateKey()
	k3, _ := crypto.GenerateKey()

	v.storeKey(addr, k1, true)
	v.storeKey(addr, k2, false)
	if v.cachedKey(addr) != k1 {
		t.Error("background write replaced a foreground entry")
	}
	if !bytes.Equal(k2.Serialize(), make([]byte, crypto.PrivateKeySize)) {
		t.Error("dropped background key was not wiped")
	}
	v.storeKey(addr, k3, true)
	if v.cachedKey(addr) != k3 {
		t.Error("foreground write should replace the entry")
	}
	if !bytes.Equal(k1.Serialize(), make([]byte, crypto.PrivateKeySize)) {
		t.Error("replaced key was not wiped")
	}
}

func TestVault_ReimportWipesReplacedKey(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())
	key, _ := crypto.GenerateKey()
	pk := hex.EncodeToString(key.Serialize())

	addr, err := v.ImportFromPrivateKey(ctx, pk, "")
	if err != nil {
		t.Fatalf("ImportFromPrivateKey() error: %v", err)
	}
	old := v.cachedKey(addr)
	if _, err := v.ImportFromPrivateKey(ctx, pk, ""); err != nil {
		t.Fatalf("re-import error: %v", err)
	}
	if v.cachedKey(addr) == old {
		t.Fatal("re-import kept the old cache entry")
	}
	if !bytes.Equal(old.Serialize(), make([]byte, crypto.PrivateKeySize)) {
		t.Error("replaced key still holds its scalar")
	}

	digest := testHash("after reimport")
	sig, err := v.Sign(digest)
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(digest, sig.Signature, sig.PublicKey) {
		t.Error("signature from the new cached key does not verify")
	}
}

func TestVault_UniqueAddresses(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())

	_, phrase, _ := v.CreateAccount(ctx, "")
	key, _ := crypto.GenerateKey()
	pk := hex.EncodeToString(key.Serialize())
	ops := []func() error{
		func() error { _, _, err := v.CreateAccount(ctx, ""); return err },
		func() error { _, err := v.ImportFromSeedphrase(ctx, phrase, ""); return err },
		func() error { _, err := v.ImportFromPrivateKey(ctx, pk, ""); return err },
		func() error { _, err := v.ImportFromSeedphrase(ctx, phraseAbout, ""); return err },
		func() error { _, err := v.ImportFromPrivateKey(ctx, "0x"+pk, ""); return err },
		func() error { _, err := v.ImportFromSeedphrase(ctx, phraseAbout, ""); return err },
	}
	for i, op := range ops {
		if err := op(); err != nil {
			t.Fatalf("op %d error: %v", i, err)
		}
	}

	seen := make(map[types.Address]bool)
	for _, id := range v.Accounts() {
		if seen[id.Address] {
			t.Fatalf("address %s appears twice", id.Address)
		}
		seen[id.Address] = true
	}
	if len(seen) != 4 {
		t.Errorf("distinct accounts = %d, want 4", len(seen))
	}
}

func TestVault_ConcurrentSignAndSwitch(t *testing.T) {
	ctx := context.Background()
	v, _ := testVault(t, storage.NewMemory())
	var addrs []types.Address
	for i := 0; i < 3; i++ {
		a, _, _ := v.CreateAccount(ctx, "")
		addrs = append(addrs, a)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := addrs[i%len(addrs)]
			if _, err := v.SwitchActive(ctx, a); err != nil {
				t.Errorf("SwitchActive() error: %v", err)
			}
			sig, err := v.SignWith(ctx, a, testHash(a.Hex()))
			if err != nil {
				t.Errorf("SignWith() error: %v", err)
				return
			}
			if !crypto.VerifySignature(testHash(a.Hex()), sig.Signature, sig.PublicKey) {
				t.Error("concurrent signature should verify")
			}
		}(i)
	}
	wg.Wait()
}
