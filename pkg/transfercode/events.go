package transfercode

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// CreatedEventSuffix identifies the event emitted when a coded transfer is created.
const CreatedEventSuffix = "::TransferCreated"

// ErrNoTransferEvent is returned when a transaction carries no creation event.
var ErrNoTransferEvent = errors.New("no transfer-created event in transaction")

// Event is an on-chain event as returned by the ledger RPC.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// createdEventData is the payload of a TransferCreated event.
type createdEventData struct {
	Sender      string `json:"sender"`
	EncodedCode string `json:"encoded_code"`
}

// CodeFromEvents finds the TransferCreated event in events and decodes its
// claim code with sender. When the event names its own sender, it must match.
func CodeFromEvents(events []Event, sender string) (string, error) {
	for _, ev := range events {
		if !strings.HasSuffix(ev.Type, CreatedEventSuffix) {
			continue
		}
		var data createdEventData
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return "", &DecodeError{Input: string(ev.Data), Reason: "malformed event data", Err: err}
		}
		if data.EncodedCode == "" {
			return "", &DecodeError{Input: string(ev.Data), Reason: "event has no encoded code"}
		}
		if data.Sender != "" && !types.Equal(data.Sender, sender) {
			return "", fmt.Errorf("event sender %s does not match %s", data.Sender, sender)
		}
		return Decode(data.EncodedCode, sender)
	}
	return "", ErrNoTransferEvent
}
