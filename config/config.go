// Package config handles wallet configuration.
//
// Values are resolved in order: per-network defaults, the config file,
// CODEWALLET_* environment variables, then command-line flags.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// Config holds wallet runtime configuration.
type Config struct {
	// Core
	Network types.Network `conf:"network" envconfig:"NETWORK"`
	DataDir string        `conf:"datadir" envconfig:"DATADIR"`

	// Contract is the address publishing the code_transfer module.
	Contract string `conf:"contract" envconfig:"CONTRACT"`

	// Transaction service (prepare, submit, view)
	Remote RemoteConfig

	// Ledger RPC
	Node NodeConfig

	Pipeline PipelineConfig
	Claims   ClaimsConfig
	Cache    CacheConfig
	Vault    VaultConfig

	// Logging
	Log LogConfig
}

// RemoteConfig holds transaction service settings.
type RemoteConfig struct {
	URL string `conf:"remote.url" envconfig:"URL"`
	// Timeout bounds read-only lookups (transfer view, transaction fetch).
	// Prepare has its own timeout and broadcast has none.
	Timeout time.Duration `conf:"remote.timeout" envconfig:"TIMEOUT"`
}

// NodeConfig holds ledger RPC settings.
type NodeConfig struct {
	URL string `conf:"node.url" envconfig:"URL"`
}

// PipelineConfig holds signing pipeline settings.
type PipelineConfig struct {
	PrepareTimeout time.Duration `conf:"pipeline.prepare_timeout" envconfig:"PREPARE_TIMEOUT"`
}

// ClaimsConfig holds pending-claim ledger settings.
type ClaimsConfig struct {
	Grace       time.Duration `conf:"claims.grace" envconfig:"GRACE"`
	Concurrency int           `conf:"claims.concurrency" envconfig:"CONCURRENCY"`
}

// CacheConfig holds claims cache settings.
type CacheConfig struct {
	TTL time.Duration `conf:"cache.ttl" envconfig:"TTL"`
}

// VaultConfig holds secret store key-derivation settings.
type VaultConfig struct {
	KDFMemory     uint32 `conf:"vault.kdf_memory" envconfig:"KDF_MEMORY"` // KiB
	KDFIterations uint32 `conf:"vault.kdf_iterations" envconfig:"KDF_ITERATIONS"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level" envconfig:"LEVEL"`
	File  string `conf:"log.file" envconfig:"FILE"`
	JSON  bool   `conf:"log.json" envconfig:"JSON"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.codewallet
//	macOS:   ~/Library/Application Support/CodeWallet
//	Windows: %APPDATA%\CodeWallet
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codewallet"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "CodeWallet")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "CodeWallet")
		}
		return filepath.Join(home, "AppData", "Roaming", "CodeWallet")
	default:
		return filepath.Join(home, ".codewallet")
	}
}

// DBDir returns the database directory. Accounts are shared by all
// networks; claims are keyed by network inside it.
func (c *Config) DBDir() string {
	return filepath.Join(c.DataDir, "db")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "codewallet.conf")
}
