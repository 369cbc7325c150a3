package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

var (
	identitiesKey = []byte("identities")
	activeKey     = []byte("active")
)

// keystoreFile is the persisted JSON format of the identity list.
type keystoreFile struct {
	Version    int        `json:"version"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Identities []Identity `json:"identities"`
}

// Keystore persists the identity list and the active-account pointer.
// Secrets are not kept here.
type Keystore struct {
	db storage.DB
}

// NewKeystore creates a keystore over db.
func NewKeystore(db storage.DB) *Keystore {
	return &Keystore{db: db}
}

// Load returns the stored identities and active address. A keystore that
// has never been written yields an empty list and a nil active pointer.
func (ks *Keystore) Load() ([]Identity, *types.Address, error) {
	data, err := ks.db.Get(identitiesKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read identities: %w", err)
	}

	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, nil, fmt.Errorf("parse identities: %w", err)
	}
	if kf.Version != 1 {
		return nil, nil, fmt.Errorf("unsupported keystore version: %d", kf.Version)
	}

	raw, err := ks.db.Get(activeKey)
	if errors.Is(err, storage.ErrNotFound) {
		return kf.Identities, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read active account: %w", err)
	}
	var active types.Address
	if len(raw) != types.AddressSize {
		return nil, nil, fmt.Errorf("active account pointer has %d bytes", len(raw))
	}
	copy(active[:], raw)
	return kf.Identities, &active, nil
}

// Save writes the identity list and active pointer in one batch.
func (ks *Keystore) Save(ids []Identity, active *types.Address) error {
	data, err := json.Marshal(keystoreFile{
		Version:    1,
		UpdatedAt:  time.Now().UTC(),
		Identities: ids,
	})
	if err != nil {
		return fmt.Errorf("marshal identities: %w", err)
	}

	batch := storage.NewBatch(ks.db)
	if err := batch.Put(identitiesKey, data); err != nil {
		return err
	}
	if active != nil {
		err = batch.Put(activeKey, active.Bytes())
	} else {
		err = batch.Delete(activeKey)
	}
	if err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("write identities: %w", err)
	}
	return nil
}

// Reset forgets every identity. A namespaced store is cleared outright.
func (ks *Keystore) Reset() error {
	if c, ok := ks.db.(interface{ Clear() error }); ok {
		if err := c.Clear(); err != nil {
			return fmt.Errorf("clear identities: %w", err)
		}
		return nil
	}
	return ks.Save(nil, nil)
}
