// Package claims keeps the wallet's pending coded transfers and reconciles
// them against the transfer viewer.
package claims

import (
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/codewallet/pkg/transfercode"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// ErrInvalidRecord is returned by Add for records missing a code or network.
var ErrInvalidRecord = errors.New("invalid claim record")

// Record is a coded transfer the wallet created or was given a code for.
type Record struct {
	Code          string            `json:"code"`
	Kind          transfercode.Kind `json:"kind"`
	TokenSymbol   string            `json:"tokenSymbol"`
	DisplayAmount string            `json:"displayAmount"`
	Sender        types.Address     `json:"sender"`
	Network       types.Network     `json:"network"`
	AssetID       string            `json:"assetId,omitempty"`
	Decimals      *int              `json:"decimals,omitempty"`
	CreatedAt     *time.Time        `json:"createdAt,omitempty"`
	Expiration    *time.Time        `json:"expiration,omitempty"`
	SavedAt       time.Time         `json:"savedAt"`
}

func (r Record) validate() error {
	if r.Code == "" {
		return fmt.Errorf("%w: empty code", ErrInvalidRecord)
	}
	if !r.Network.Valid() {
		return fmt.Errorf("%w: unknown network %q", ErrInvalidRecord, r.Network)
	}
	if r.Kind != "" && !r.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidRecord, r.Kind)
	}
	return nil
}

// Status is the outcome of reconciling one record.
type Status int

const (
	// StatusUnknown means the viewer could not be asked. The record is kept.
	StatusUnknown Status = iota
	// StatusReady means the transfer exists and can be claimed.
	StatusReady
	// StatusUnavailable means the transfer was claimed, cancelled, expired
	// or never indexed.
	StatusUnavailable
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusReady:
		return "ready"
	case StatusUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// View is a record together with what the viewer reported for it.
// Views are never persisted.
type View struct {
	Record
	Status             Status
	ChainCreatedAt     *time.Time
	ChainExpiration    *time.Time
	ChainAmountDisplay string
	// Err is the viewer error behind StatusUnknown.
	Err error
}
