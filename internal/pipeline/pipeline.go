// Package pipeline turns a contract call into a broadcast transaction:
// prepare an unsigned transaction remotely, sign its hash, submit it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/internal/remote"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// DefaultPrepareTimeout bounds the prepare step.
const DefaultPrepareTimeout = 30 * time.Second

var (
	// ErrTimedOut is returned when the prepare step exceeds its timeout. It
	// also matches context.DeadlineExceeded.
	ErrTimedOut = errors.New("transaction prepare timed out")
	// ErrMissingPublicKey is returned when a signer omits its public key.
	ErrMissingPublicKey = errors.New("signer returned no public key")
)

// BroadcastError reports a transaction the broadcaster rejected.
type BroadcastError struct {
	VMStatus string
}

func (e *BroadcastError) Error() string {
	if e.VMStatus == "" {
		return "transaction rejected"
	}
	return "transaction rejected: " + e.VMStatus
}

// Unwrap lets callers treat a rejection as a remote failure.
func (e *BroadcastError) Unwrap() error { return remote.ErrRemote }

// Preparer builds unsigned transactions.
type Preparer interface {
	Prepare(ctx context.Context, req remote.PrepareRequest) (*remote.Prepared, error)
}

// Broadcaster submits signed transactions.
type Broadcaster interface {
	Submit(ctx context.Context, req remote.SubmitRequest) (*remote.Submitted, error)
}

// TxFetcher reads committed transactions from the ledger.
type TxFetcher interface {
	TransactionByHash(ctx context.Context, hash string) (*remote.Transaction, error)
}

// Signed is a signature and the public key that verifies it.
type Signed struct {
	Signature []byte
	PublicKey []byte
}

// SignFunc signs hash on behalf of sender. The vault and custodial signers
// both fit.
type SignFunc func(ctx context.Context, sender types.Address, hash []byte) (*Signed, error)

// Request is a contract call to submit.
type Request struct {
	Sender   types.Address
	Function string
	TypeArgs []string
	Args     []any
}

// Result is a broadcast transaction.
type Result struct {
	TransactionHash string
}

// Config holds pipeline settings.
type Config struct {
	Network types.Network
	// Contract is the address that publishes the code_transfer module.
	Contract       string
	PrepareTimeout time.Duration
}

// Pipeline runs prepare, sign and broadcast against the remote services.
type Pipeline struct {
	cfg         Config
	preparer    Preparer
	broadcaster Broadcaster
	txs         TxFetcher
}

// New creates a pipeline. txs may be nil when coded-transfer creation is
// not used; the code is then never recovered.
func New(cfg Config, preparer Preparer, broadcaster Broadcaster, txs TxFetcher) *Pipeline {
	if cfg.PrepareTimeout <= 0 {
		cfg.PrepareTimeout = DefaultPrepareTimeout
	}
	return &Pipeline{
		cfg:         cfg,
		preparer:    preparer,
		broadcaster: broadcaster,
		txs:         txs,
	}
}

// Submit prepares, signs and broadcasts req. It stops at the first error and
// never retries.
func (p *Pipeline) Submit(ctx context.Context, req Request, sign SignFunc) (*Result, error) {
	logger := log.Pipeline.With().Str("function", req.Function).Str("sender", req.Sender.Short()).Logger()

	prepared, err := p.prepare(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("Prepare failed")
		return nil, err
	}

	hash, err := types.DecodeHex(prepared.Hash)
	if err != nil || len(hash) == 0 {
		return nil, fmt.Errorf("%w: prepare returned malformed hash %q", remote.ErrRemote, prepared.Hash)
	}

	signed, err := sign(ctx, req.Sender, hash)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if signed == nil || len(signed.PublicKey) == 0 {
		return nil, ErrMissingPublicKey
	}

	submitted, err := p.broadcaster.Submit(ctx, remote.SubmitRequest{
		RawTxnHex: prepared.RawTxnHex,
		PublicKey: types.EncodeHex(signed.PublicKey),
		Signature: types.EncodeHex(signed.Signature),
		Network:   p.cfg.Network,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Broadcast failed")
		return nil, fmt.Errorf("broadcast: %w", err)
	}
	if !submitted.Success {
		logger.Warn().Str("vm_status", submitted.VMStatus).Msg("Transaction rejected")
		return nil, &BroadcastError{VMStatus: submitted.VMStatus}
	}

	logger.Info().Str("tx", submitted.TransactionHash).Msg("Transaction submitted")
	return &Result{TransactionHash: submitted.TransactionHash}, nil
}

// prepare runs the prepare step under the configured timeout.
func (p *Pipeline) prepare(ctx context.Context, req Request) (*remote.Prepared, error) {
	pctx, cancel := context.WithTimeout(ctx, p.cfg.PrepareTimeout)
	defer cancel()

	typeArgs := req.TypeArgs
	if typeArgs == nil {
		typeArgs = []string{}
	}
	args := req.Args
	if args == nil {
		args = []any{}
	}
	prepared, err := p.preparer.Prepare(pctx, remote.PrepareRequest{
		Sender:            req.Sender.String(),
		Function:          req.Function,
		TypeArguments:     typeArgs,
		FunctionArguments: args,
		Network:           p.cfg.Network,
	})
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %w", ErrTimedOut, p.cfg.PrepareTimeout, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("prepare: %w", err)
	}
	return prepared, nil
}
