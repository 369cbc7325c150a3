package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Klingon-tech/codewallet/internal/claims"
	"github.com/Klingon-tech/codewallet/internal/pipeline"
	"github.com/Klingon-tech/codewallet/internal/remote"
	"github.com/Klingon-tech/codewallet/internal/secretstore"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/internal/wallet"
	"github.com/Klingon-tech/codewallet/pkg/transfercode"
)

// userMessage turns an error into what the user should read and do.
func userMessage(err error) string {
	var (
		decodeErr    *transfercode.DecodeError
		broadcastErr *pipeline.BroadcastError
		httpErr      *remote.HTTPError
	)
	switch {
	// Input problems: say what is wrong.
	case errors.Is(err, wallet.ErrInvalidKeyFormat):
		return "That is not a valid private key (expected 64 hex characters)."
	case errors.Is(err, wallet.ErrInvalidMnemonic):
		return "That recovery phrase is not valid. Check the words and their order."
	case errors.Is(err, transfercode.ErrNonASCII), errors.Is(err, transfercode.ErrEmptyCode):
		return "Codes may only contain plain letters, digits and symbols."
	case errors.Is(err, claims.ErrInvalidRecord):
		return fmt.Sprintf("Could not track that code: %v", err)
	case errors.As(err, &decodeErr):
		return fmt.Sprintf("Could not decode the transfer code: %s.", decodeErr.Reason)
	case errors.Is(err, secretstore.ErrWrongPassphrase):
		return "Wrong passphrase."
	case errors.Is(err, storage.ErrLocked):
		return "Another wallet instance is using this data directory. Close it and try again."
	case errors.Is(err, pipeline.ErrNoContract):
		return "No transfer contract configured. Set contract in the config file or pass --contract."

	// Vault integrity: the account cannot be used as is.
	case errors.Is(err, wallet.ErrSecretMissing), errors.Is(err, wallet.ErrSecretMismatch):
		return "This account's key is missing or damaged. Reimport it from its recovery phrase or key, or delete it."
	case errors.Is(err, wallet.ErrAccountNotFound):
		return "No such account. Run 'account list' to see your accounts."
	case errors.Is(err, wallet.ErrNoActiveAccount):
		return "No account yet. Create one with 'account create' or import one."

	// Remote and ambiguous states: retrying is safe.
	case errors.Is(err, pipeline.ErrTimedOut), errors.Is(err, context.DeadlineExceeded):
		return "The transaction service took too long to answer. Try again."
	case errors.As(err, &broadcastErr):
		return fmt.Sprintf("The network rejected the transaction (%s).", broadcastErr.VMStatus)
	case errors.Is(err, remote.ErrNotFound):
		return "No transfer found for that code."
	case errors.As(err, &httpErr):
		return fmt.Sprintf("The service answered with HTTP %d. Try again later.", httpErr.StatusCode)
	case errors.Is(err, remote.ErrRemote):
		return "Could not reach the network. Check your connection and try again."
	}
	return err.Error()
}

// fatalErr prints the user message for err and exits.
func fatalErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", userMessage(err))
	exit(1)
}
