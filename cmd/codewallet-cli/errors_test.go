package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/Klingon-tech/codewallet/internal/pipeline"
	"github.com/Klingon-tech/codewallet/internal/remote"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/internal/wallet"
	"github.com/Klingon-tech/codewallet/pkg/transfercode"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("import: %w", wallet.ErrInvalidMnemonic), "recovery phrase"},
		{fmt.Errorf("%w: %w", wallet.ErrAccountNotFound, wallet.ErrSecretMissing), "Reimport"},
		{wallet.ErrNoActiveAccount, "account create"},
		{fmt.Errorf("%w after 30s", pipeline.ErrTimedOut), "Try again"},
		{&pipeline.BroadcastError{VMStatus: "EINSUFFICIENT_BALANCE"}, "EINSUFFICIENT_BALANCE"},
		{&remote.APIError{Message: "Transfer not found"}, "No transfer found"},
		{&remote.HTTPError{StatusCode: 502}, "HTTP 502"},
		{&transfercode.DecodeError{Input: "zz", Reason: "invalid hex"}, "invalid hex"},
		{fmt.Errorf("open db: %w", storage.ErrLocked), "Another wallet instance"},
		{errors.New("something else"), "something else"},
	}
	for _, tt := range tests {
		if got := userMessage(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("userMessage(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
