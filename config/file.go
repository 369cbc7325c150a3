package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// LoadFile loads configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = types.Network(strings.ToLower(value))
	case "datadir":
		cfg.DataDir = value
	case "contract":
		cfg.Contract = value

	// Remote services
	case "remote.url":
		cfg.Remote.URL = value
	case "remote.timeout":
		return setDuration(&cfg.Remote.Timeout, value)
	case "node.url":
		cfg.Node.URL = value

	// Pipeline
	case "pipeline.prepare_timeout":
		return setDuration(&cfg.Pipeline.PrepareTimeout, value)

	// Claims
	case "claims.grace":
		return setDuration(&cfg.Claims.Grace, value)
	case "claims.concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Claims.Concurrency = n
	case "cache.ttl":
		return setDuration(&cfg.Cache.TTL, value)

	// Vault
	case "vault.kdf_memory":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Vault.KDFMemory = uint32(n)
	case "vault.kdf_iterations":
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return err
		}
		cfg.Vault.KDFIterations = uint32(n)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func setDuration(dst *time.Duration, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network types.Network) error {
	d := Default(network)
	content := `# CodeWallet Configuration
#
# Every key can also be set through the environment, e.g.
# CODEWALLET_REMOTE_URL or CODEWALLET_CLAIMS_GRACE.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.codewallet)
# datadir = ~/.codewallet

# Address publishing the code_transfer module
# contract = 0x...

# ============================================================================
# Remote services
# ============================================================================

# Transaction service (prepare, submit, transfer view)
remote.url = ` + d.Remote.URL + `
# Bounds transfer views and transaction lookups only
remote.timeout = ` + d.Remote.Timeout.String() + `

# Ledger RPC, used to read back created codes
node.url = ` + d.Node.URL + `

# ============================================================================
# Transactions and claims
# ============================================================================

pipeline.prepare_timeout = ` + d.Pipeline.PrepareTimeout.String() + `

# How long a pending claim the indexer has not seen yet is kept
claims.grace = ` + d.Claims.Grace.String() + `
claims.concurrency = ` + strconv.Itoa(d.Claims.Concurrency) + `
cache.ttl = ` + d.Cache.TTL.String() + `

# ============================================================================
# Vault
# ============================================================================

# Argon2id cost for new stores (memory in KiB)
# vault.kdf_memory = 65536
# vault.kdf_iterations = 3

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0600)
}
