// Package app builds the wallet core from a Config and exposes the
// operations a front end needs.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Klingon-tech/codewallet/config"
	"github.com/Klingon-tech/codewallet/internal/claimcache"
	"github.com/Klingon-tech/codewallet/internal/claims"
	klog "github.com/Klingon-tech/codewallet/internal/log"
	"github.com/Klingon-tech/codewallet/internal/pipeline"
	"github.com/Klingon-tech/codewallet/internal/remote"
	"github.com/Klingon-tech/codewallet/internal/secretstore"
	"github.com/Klingon-tech/codewallet/internal/storage"
	"github.com/Klingon-tech/codewallet/internal/wallet"
	"github.com/Klingon-tech/codewallet/pkg/types"
)

// App is a fully-initialized wallet core.
type App struct {
	cfg    *config.Config
	logger zerolog.Logger

	// Storage
	db      *storage.BadgerDB
	secrets *secretstore.Sealed

	// Accounts
	vault *wallet.Vault

	// Remote services
	remote   *remote.Client
	pipeline *pipeline.Pipeline

	// Claims
	ledger *claims.Ledger
	cache  *claimcache.Cache
}

// New opens storage, unlocks the secret store with passphrase and wires
// every component. Accounts are not loaded until Start.
func New(cfg *config.Config, passphrase []byte) (*App, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	dataDir := expandHome(cfg.DataDir)
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := filepath.Join(dataDir, "logs")
		if err := os.MkdirAll(logsDir, 0700); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "codewallet.log")
	}
	if err := klog.Init(klog.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON, File: expandHome(logFile)}); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("app")
	logger.Info().Str("network", cfg.Network.String()).Msg("Starting wallet core")

	// ── 2. Open storage ─────────────────────────────────────────────
	dbDir := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbDir, 0700); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}
	db, err := storage.NewBadger(dbDir)
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", dbDir, err)
	}
	logger.Info().Str("path", dbDir).Msg("Database opened")

	// ── 3. Secret store ─────────────────────────────────────────────
	params := secretstore.DefaultParams()
	if cfg.Vault.KDFMemory > 0 {
		params.Memory = cfg.Vault.KDFMemory
	}
	if cfg.Vault.KDFIterations > 0 {
		params.Iterations = cfg.Vault.KDFIterations
	}
	secrets, err := secretstore.Open(storage.NewNamespace(db, storage.NSSecrets), passphrase, params)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("unlock secret store: %w", err)
	}

	// ── 4. Remote services ──────────────────────────────────────────
	client := remote.NewWithTimeout(cfg.Remote.URL, cfg.Node.URL, cfg.Remote.Timeout)
	pipe := pipeline.New(pipeline.Config{
		Network:        cfg.Network,
		Contract:       cfg.Contract,
		PrepareTimeout: cfg.Pipeline.PrepareTimeout,
	}, client, client, client)

	// ── 5. Claims ───────────────────────────────────────────────────
	ledger := claims.New(storage.NewNamespace(db, storage.NSClaims), client,
		claims.WithGrace(cfg.Claims.Grace),
		claims.WithConcurrency(cfg.Claims.Concurrency),
	)
	cache := claimcache.New(ledger, claimcache.WithTTL(cfg.Cache.TTL))

	logger.Info().
		Str("remote", cfg.Remote.URL).
		Str("node", cfg.Node.URL).
		Bool("contract", cfg.Contract != "").
		Msg("Wallet core ready")

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		secrets:  secrets,
		vault:    wallet.New(storage.NewNamespace(db, storage.NSVault), secrets),
		remote:   client,
		pipeline: pipe,
		ledger:   ledger,
		cache:    cache,
	}, nil
}

// Start loads the accounts and returns the active one, or nil for an empty
// wallet. Claims of the active account are reconciled in the background.
func (a *App) Start(ctx context.Context) (*wallet.Account, error) {
	acct, err := a.vault.Load(ctx)
	if acct != nil {
		a.cache.Prefetch(acct.Address, a.cfg.Network)
	}
	return acct, err
}

// Close stops background work and releases storage.
func (a *App) Close() error {
	a.cache.Wait()
	err := errors.Join(a.vault.Close(), a.secrets.Close(), a.db.Close())
	a.logger.Info().Msg("Wallet core stopped")
	return err
}

// Config returns the resolved configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Network returns the network the app operates on.
func (a *App) Network() types.Network { return a.cfg.Network }

// Vault returns the account vault.
func (a *App) Vault() *wallet.Vault { return a.vault }

// Ledger returns the pending-claim ledger.
func (a *App) Ledger() *claims.Ledger { return a.ledger }

// Claims returns the claims cache.
func (a *App) Claims() *claimcache.Cache { return a.cache }

// Sign is a pipeline.SignFunc backed by the vault.
func (a *App) Sign(ctx context.Context, sender types.Address, hash []byte) (*pipeline.Signed, error) {
	sig, err := a.vault.SignWith(ctx, sender, hash)
	if err != nil {
		return nil, err
	}
	return &pipeline.Signed{Signature: sig.Signature, PublicKey: sig.PublicKey}, nil
}

// ChangePassphrase re-wraps the secret store under a new passphrase.
func (a *App) ChangePassphrase(oldPass, newPass []byte) error {
	return a.secrets.ChangePassphrase(oldPass, newPass)
}

// SwitchActive makes addr the active account and starts reconciling its
// claims in the background.
func (a *App) SwitchActive(ctx context.Context, addr types.Address) (*wallet.Account, error) {
	acct, err := a.vault.SwitchActive(ctx, addr)
	if err != nil {
		return nil, err
	}
	a.cache.Prefetch(acct.Address, a.cfg.Network)
	return acct, nil
}

// DeleteAccount removes an account and drops its cached claims. Its stored
// claim records are kept so a reimport finds them again.
func (a *App) DeleteAccount(ctx context.Context, addr types.Address) error {
	if err := a.vault.DeleteAccount(ctx, addr); err != nil {
		return err
	}
	a.cache.InvalidateWallet(addr)
	return nil
}

func (a *App) activeAddress() (types.Address, error) {
	id := a.vault.Active()
	if id == nil {
		return types.Address{}, wallet.ErrNoActiveAccount
	}
	return id.Address, nil
}
