package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Klingon-tech/codewallet/internal/claims"
	"github.com/Klingon-tech/codewallet/internal/pipeline"
	"github.com/Klingon-tech/codewallet/internal/remote"
	"github.com/Klingon-tech/codewallet/pkg/transfercode"
)

// Transfer describes a coded transfer sent from the active account.
type Transfer struct {
	// Code is the claim code. A random one is generated when empty.
	Code  string
	Kind  transfercode.Kind
	Asset string
	// Amount is in base units.
	Amount      string
	TokenSymbol string
	// Decimals formats Amount for display when set.
	Decimals  *int
	ExpiresIn time.Duration
}

// Created is a coded transfer that reached the chain.
type Created struct {
	TransactionHash string
	Code            string
	// Verified reports whether Code was read back from the chain.
	Verified bool
	// SaveErr is set when the transfer went through but its claim record
	// could not be stored. The code must then be shown to the user.
	SaveErr error
}

// CreateCodedTransfer sends t from the active account and records the code
// in the pending-claim ledger.
func (a *App) CreateCodedTransfer(ctx context.Context, t Transfer) (*Created, error) {
	sender, err := a.activeAddress()
	if err != nil {
		return nil, err
	}
	code := t.Code
	if code == "" {
		if code, err = transfercode.NewCode(transfercode.DefaultCodeLength); err != nil {
			return nil, err
		}
	}

	res, err := a.pipeline.CreateCodedTransfer(ctx, pipeline.CreateParams{
		Sender:    sender,
		Code:      code,
		Kind:      t.Kind,
		Asset:     t.Asset,
		Amount:    t.Amount,
		ExpiresIn: t.ExpiresIn,
	}, a.Sign)
	if err != nil {
		return nil, err
	}

	out := &Created{TransactionHash: res.TransactionHash, Code: code}
	if res.Code != "" {
		out.Verified = true
		if res.Code != code {
			a.logger.Warn().Str("tx", res.TransactionHash).Msg("Chain recorded a different code, keeping the chain's")
			out.Code = res.Code
		}
	}

	display := t.Amount
	if t.Decimals != nil {
		if s, err := claims.FormatAmount(t.Amount, *t.Decimals); err == nil {
			display = s
		}
	}
	rec := claims.Record{
		Code:          out.Code,
		Kind:          t.Kind,
		TokenSymbol:   t.TokenSymbol,
		DisplayAmount: display,
		Sender:        sender,
		Network:       a.cfg.Network,
		AssetID:       t.Asset,
		Decimals:      t.Decimals,
	}
	if err := a.ledger.Add(ctx, sender, rec); err != nil {
		a.logger.Error().Err(err).Str("tx", res.TransactionHash).Msg("Transfer sent but claim record not saved")
		out.SaveErr = err
	}
	a.cache.Invalidate(sender, a.cfg.Network)
	return out, nil
}

// ClaimCodedTransfer redeems code into the active account and forgets it.
func (a *App) ClaimCodedTransfer(ctx context.Context, code string, kind transfercode.Kind, asset string) (*pipeline.Result, error) {
	claimer, err := a.activeAddress()
	if err != nil {
		return nil, err
	}
	res, err := a.pipeline.ClaimCodedTransfer(ctx, pipeline.ClaimParams{
		Claimer: claimer,
		Code:    code,
		Kind:    kind,
		Asset:   asset,
	}, a.Sign)
	if err != nil {
		return nil, err
	}
	if err := a.ledger.Remove(ctx, claimer, a.cfg.Network, code); err != nil {
		a.logger.Warn().Err(err).Msg("Claimed transfer still listed")
	}
	a.cache.Invalidate(claimer, a.cfg.Network)
	return res, nil
}

// CancelCodedTransfer returns an unclaimed transfer of the active account
// and forgets its code.
func (a *App) CancelCodedTransfer(ctx context.Context, code string, kind transfercode.Kind, asset string) (*pipeline.Result, error) {
	sender, err := a.activeAddress()
	if err != nil {
		return nil, err
	}
	res, err := a.pipeline.CancelCodedTransfer(ctx, pipeline.CancelParams{
		Sender: sender,
		Code:   code,
		Kind:   kind,
		Asset:  asset,
	}, a.Sign)
	if err != nil {
		return nil, err
	}
	if err := a.ledger.Remove(ctx, sender, a.cfg.Network, code); err != nil {
		a.logger.Warn().Err(err).Msg("Cancelled transfer still listed")
	}
	a.cache.Invalidate(sender, a.cfg.Network)
	return res, nil
}

// TrackCode records a code received from someone else so its state is
// followed like an own transfer. The sender is unknown, so any sender the
// viewer reports is accepted.
func (a *App) TrackCode(ctx context.Context, code string) error {
	wallet, err := a.activeAddress()
	if err != nil {
		return err
	}
	if err := a.ledger.Add(ctx, wallet, claims.Record{Code: code, Network: a.cfg.Network}); err != nil {
		return err
	}
	a.cache.Invalidate(wallet, a.cfg.Network)
	return nil
}

// ForgetCode drops a code from the active account's pending claims.
func (a *App) ForgetCode(ctx context.Context, code string) error {
	wallet, err := a.activeAddress()
	if err != nil {
		return err
	}
	if err := a.ledger.Remove(ctx, wallet, a.cfg.Network, code); err != nil {
		return err
	}
	a.cache.Invalidate(wallet, a.cfg.Network)
	return nil
}

// PendingClaims returns the reconciled claims of the active account.
func (a *App) PendingClaims(ctx context.Context, force bool) ([]claims.View, error) {
	wallet, err := a.activeAddress()
	if err != nil {
		return nil, err
	}
	return a.cache.Refetch(ctx, wallet, a.cfg.Network, force)
}

// PendingCount returns how many claims the active account tracks on every
// network, without remote calls.
func (a *App) PendingCount(ctx context.Context) (int, error) {
	wallet, err := a.activeAddress()
	if err != nil {
		return 0, err
	}
	n, err := a.ledger.Count(ctx, wallet, "")
	if err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

// ViewCode looks a code up on the current network.
func (a *App) ViewCode(ctx context.Context, code string) (*TransferState, error) {
	tv, err := a.remote.ViewTransfer(ctx, remote.ViewRequest{Code: code, Network: a.cfg.Network})
	if err != nil {
		return nil, err
	}
	return &TransferState{
		Kind:       tv.Type,
		Sender:     tv.Sender,
		Asset:      tv.AssetMetadata,
		Amount:     string(tv.Amount),
		CreatedAt:  tv.CreatedAt.Time(),
		Expiration: tv.Expiration.Time(),
		Claimable:  tv.IsClaimable,
	}, nil
}

// TransferState is what the chain reports for a code.
type TransferState struct {
	Kind       string
	Sender     string
	Asset      string
	Amount     string
	CreatedAt  time.Time
	Expiration time.Time
	Claimable  bool
}
