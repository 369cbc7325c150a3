package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// Validate checks config for obvious operator mistakes and normalizes
// the network and contract.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	cfg.Network = types.Network(strings.ToLower(string(cfg.Network)))
	if !cfg.Network.Valid() {
		return fmt.Errorf("network must be %q or %q", types.Mainnet, types.Testnet)
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("datadir is required")
	}
	if cfg.Contract != "" {
		addr, err := types.ParseAddress(cfg.Contract)
		if err != nil {
			return fmt.Errorf("contract: %w", err)
		}
		cfg.Contract = addr.String()
	}
	if err := validateURL(cfg.Remote.URL, "remote.url"); err != nil {
		return err
	}
	if err := validateURL(cfg.Node.URL, "node.url"); err != nil {
		return err
	}
	if cfg.Remote.Timeout <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if cfg.Pipeline.PrepareTimeout <= 0 {
		return fmt.Errorf("pipeline.prepare_timeout must be positive")
	}
	if cfg.Claims.Grace < 0 {
		return fmt.Errorf("claims.grace must not be negative")
	}
	if cfg.Claims.Concurrency < 1 || cfg.Claims.Concurrency > 64 {
		return fmt.Errorf("claims.concurrency must be in range [1, 64]")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}
	if cfg.Vault.KDFMemory < 8*1024 {
		return fmt.Errorf("vault.kdf_memory must be at least 8192 KiB")
	}
	if cfg.Vault.KDFIterations < 1 {
		return fmt.Errorf("vault.kdf_iterations must be at least 1")
	}
	return nil
}

func validateURL(raw, field string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", field, raw)
	}
	return nil
}
