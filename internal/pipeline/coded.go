package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/pkg/transfercode"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// module is the contract module that escrows coded transfers.
const module = "code_transfer"

// ErrNoContract is returned by the coded-transfer calls when no contract
// address is configured.
var ErrNoContract = errors.New("coded-transfer contract not configured")

// CreateParams describes a coded transfer to create.
type CreateParams struct {
	Sender types.Address
	// Code is the plaintext claim code. A random one is generated when empty.
	Code string
	Kind transfercode.Kind
	// Asset is the coin type for KindMove or the metadata address for
	// KindFungibleAsset.
	Asset string
	// Amount is in base units.
	Amount string
	// ExpiresIn is how long the transfer stays claimable. Zero leaves the
	// contract default.
	ExpiresIn time.Duration
}

// CreateResult is a created transfer. Code is recovered from the
// transaction's events; when that fails Code is empty and CodeErr says why,
// but the transfer itself succeeded.
type CreateResult struct {
	TransactionHash string
	Code            string
	CodeErr         error
}

// ClaimParams describes a claim of a coded transfer.
type ClaimParams struct {
	Claimer types.Address
	Code    string
	Kind    transfercode.Kind
	Asset   string
}

// CancelParams describes the cancellation of an own coded transfer.
type CancelParams struct {
	Sender types.Address
	Code   string
	Kind   transfercode.Kind
	Asset  string
}

func (p *Pipeline) function(name string, kind transfercode.Kind) string {
	return fmt.Sprintf("%s::%s::%s_%s", p.cfg.Contract, module, name, kind)
}

func (p *Pipeline) kindArgs(kind transfercode.Kind, asset string) ([]string, []any, error) {
	if p.cfg.Contract == "" {
		return nil, nil, ErrNoContract
	}
	if !kind.Valid() {
		return nil, nil, fmt.Errorf("unknown transfer kind %q", kind)
	}
	if asset == "" {
		return nil, nil, fmt.Errorf("asset is required for %s transfers", kind)
	}
	if kind == transfercode.KindMove {
		return []string{asset}, nil, nil
	}
	return nil, []any{asset}, nil
}

// CreateCodedTransfer escrows funds behind a claim code. The code goes
// on-chain encoded with the sender's address.
func (p *Pipeline) CreateCodedTransfer(ctx context.Context, params CreateParams, sign SignFunc) (*CreateResult, error) {
	code := params.Code
	if code == "" {
		var err error
		if code, err = transfercode.NewCode(transfercode.DefaultCodeLength); err != nil {
			return nil, err
		}
	}
	encoded, err := transfercode.Encode(code, params.Sender.String())
	if err != nil {
		return nil, err
	}
	if _, err := strconv.ParseUint(params.Amount, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", params.Amount, err)
	}
	typeArgs, args, err := p.kindArgs(params.Kind, params.Asset)
	if err != nil {
		return nil, err
	}
	args = append(args, "0x"+encoded, params.Amount,
		strconv.FormatInt(int64(params.ExpiresIn/time.Second), 10))

	res, err := p.Submit(ctx, Request{
		Sender:   params.Sender,
		Function: p.function("create_transfer", params.Kind),
		TypeArgs: typeArgs,
		Args:     args,
	}, sign)
	if err != nil {
		return nil, err
	}

	out := &CreateResult{TransactionHash: res.TransactionHash}
	out.Code, out.CodeErr = p.recoverCode(ctx, res.TransactionHash, params.Sender)
	if out.CodeErr != nil {
		log.Pipeline.Warn().Err(out.CodeErr).Str("tx", res.TransactionHash).Msg("Transfer created but code not recovered")
	}
	return out, nil
}

// recoverCode reads the code back from the creation event, so the caller
// stores what the chain recorded.
func (p *Pipeline) recoverCode(ctx context.Context, txHash string, sender types.Address) (string, error) {
	if p.txs == nil {
		return "", fmt.Errorf("no ledger client configured")
	}
	tx, err := p.txs.TransactionByHash(ctx, txHash)
	if err != nil {
		return "", fmt.Errorf("fetch transaction: %w", err)
	}
	return transfercode.CodeFromEvents(tx.Events, sender.String())
}

// ClaimCodedTransfer redeems a transfer by presenting its plaintext code.
func (p *Pipeline) ClaimCodedTransfer(ctx context.Context, params ClaimParams, sign SignFunc) (*Result, error) {
	if params.Code == "" {
		return nil, transfercode.ErrEmptyCode
	}
	typeArgs, args, err := p.kindArgs(params.Kind, params.Asset)
	if err != nil {
		return nil, err
	}
	return p.Submit(ctx, Request{
		Sender:   params.Claimer,
		Function: p.function("claim_transfer", params.Kind),
		TypeArgs: typeArgs,
		Args:     append(args, params.Code),
	}, sign)
}

// CancelCodedTransfer returns an unclaimed transfer to its sender.
func (p *Pipeline) CancelCodedTransfer(ctx context.Context, params CancelParams, sign SignFunc) (*Result, error) {
	encoded, err := transfercode.Encode(params.Code, params.Sender.String())
	if err != nil {
		return nil, err
	}
	typeArgs, args, err := p.kindArgs(params.Kind, params.Asset)
	if err != nil {
		return nil, err
	}
	return p.Submit(ctx, Request{
		Sender:   params.Sender,
		Function: p.function("cancel_transfer", params.Kind),
		TypeArgs: typeArgs,
		Args:     append(args, "0x"+encoded),
	}, sign)
}
