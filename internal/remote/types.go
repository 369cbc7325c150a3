package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Klingon-tech/codewallet/pkg/transfercode"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// PrepareRequest asks the backend to build an unsigned transaction.
type PrepareRequest struct {
	Sender            string        `json:"sender"`
	Function          string        `json:"function"`
	TypeArguments     []string      `json:"typeArguments"`
	FunctionArguments []any         `json:"functionArguments"`
	Network           types.Network `json:"network"`
}

// Prepared is an unsigned transaction and the hash to sign.
type Prepared struct {
	Hash      string `json:"hash"`
	RawTxnHex string `json:"rawTxnHex"`
}

// SubmitRequest carries a signed transaction to the broadcaster.
type SubmitRequest struct {
	RawTxnHex string        `json:"rawTxnHex"`
	PublicKey string        `json:"publicKey"`
	Signature string        `json:"signature"`
	Network   types.Network `json:"network"`
}

// Submitted is the broadcaster's verdict.
type Submitted struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transactionHash,omitempty"`
	VMStatus        string `json:"vmStatus,omitempty"`
}

// ViewRequest looks up a coded transfer.
type ViewRequest struct {
	Code    string        `json:"code"`
	Network types.Network `json:"network"`
}

// TransferView is the on-chain state of a coded transfer.
type TransferView struct {
	Type          string    `json:"type"`
	Sender        string    `json:"sender"`
	AssetMetadata string    `json:"assetMetadata,omitempty"`
	Amount        Amount    `json:"amount"`
	CreatedAt     Timestamp `json:"createdAt"`
	Expiration    Timestamp `json:"expiration"`
	IsClaimable   bool      `json:"isClaimable"`
}

// Transaction is the subset of a ledger transaction the wallet reads.
type Transaction struct {
	Hash    string               `json:"hash"`
	Success bool                 `json:"success"`
	Events  []transfercode.Event `json:"events"`
}

// Amount is an integer amount in base units. Services send it either as a
// JSON number or as a decimal string.
type Amount string

// UnmarshalJSON implements json.Unmarshaler.
func (a *Amount) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(s)
	return nil
}

// Timestamp is a Unix time in seconds, sent as a number or numeric string.
type Timestamp int64

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s, err := unquoteNumber(b)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		*t = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp(n)
	return nil
}

// Time converts to time.Time. Zero stays zero.
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0).UTC()
}

func unquoteNumber(b []byte) (string, error) {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return "", nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
