package wallet

import (
	"bytes"
	"testing"

	"github.com/Klingon-tech/codewallet/pkg/crypto"
)

func masterFor(t *testing.T, phrase string) *HDKey {
	t.Helper()
	seed, err := SeedFromMnemonic(phrase, "")
	if err != nil {
		t.Fatalf("SeedFromMnemonic() error: %v", err)
	}
	master, err := NewMasterKey(seed)
	if err != nil {
		t.Fatalf("NewMasterKey() error: %v", err)
	}
	return master
}

func TestAccountPath_String(t *testing.T) {
	tests := []struct {
		account uint32
		want    string
	}{
		{0, "m/44'/637'/0'/0/0"},
		{7, "m/44'/637'/7'/0/0"},
	}
	for _, tt := range tests {
		if got := AccountPath(tt.account).String(); got != tt.want {
			t.Errorf("AccountPath(%d) = %s, want %s", tt.account, got, tt.want)
		}
	}
}

func TestNewMasterKey_SeedLength(t *testing.T) {
	for _, n := range []int{0, 32, 128} {
		if _, err := NewMasterKey(make([]byte, n)); err == nil {
			t.Errorf("NewMasterKey(%d bytes) should fail", n)
		}
	}
}

func TestDerive(t *testing.T) {
	master := masterFor(t, phraseAbout)

	node, err := master.Derive(AccountPath(0))
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	if node.Depth() != 5 {
		t.Errorf("depth = %d, want 5", node.Depth())
	}

	// Deriving in two steps reaches the same node.
	full := AccountPath(0)
	mid, err := master.Derive(full[:3])
	if err != nil {
		t.Fatalf("Derive(prefix) error: %v", err)
	}
	tail, err := mid.Derive(full[3:])
	if err != nil {
		t.Fatalf("Derive(suffix) error: %v", err)
	}
	if tail.Address() != node.Address() {
		t.Error("split derivation reached a different node")
	}

	other, _ := master.Derive(AccountPath(1))
	if other.Address() == node.Address() {
		t.Error("different accounts should give different addresses")
	}
}

func TestSigner_MatchesAddress(t *testing.T) {
	node, err := masterFor(t, phraseArt).Derive(AccountPath(0))
	if err != nil {
		t.Fatalf("Derive() error: %v", err)
	}
	signer, err := node.Signer()
	if err != nil {
		t.Fatalf("Signer() error: %v", err)
	}
	if got := crypto.AddressFromPubKey(signer.PublicKey()); got != node.Address() {
		t.Errorf("signer address %s != node address %s", got, node.Address())
	}
}

func TestKeyFromMnemonic(t *testing.T) {
	k1, err := KeyFromMnemonic(phraseAbout)
	if err != nil {
		t.Fatalf("KeyFromMnemonic() error: %v", err)
	}
	k2, err := KeyFromMnemonic("  ABANDON abandon abandon abandon abandon abandon\n abandon abandon abandon abandon abandon about ")
	if err != nil {
		t.Fatalf("KeyFromMnemonic() error: %v", err)
	}
	if !bytes.Equal(k1.Serialize(), k2.Serialize()) {
		t.Error("same phrase should derive the same key")
	}
	if _, err := KeyFromMnemonic("abandon abandon"); err == nil {
		t.Error("short phrase should fail")
	}

	digest := crypto.Hash([]byte("payload"))
	sig, err := k1.Sign(digest[:])
	if err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	if !crypto.VerifySignature(digest[:], sig, k1.PublicKey()) {
		t.Error("signature should verify")
	}
}
