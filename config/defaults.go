package config

import (
	"time"

	"github.com/Klingon-tech/codewallet/pkg/types"
)

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: types.Mainnet,
		DataDir: DefaultDataDir(),
		Remote: RemoteConfig{
			URL:     "http://127.0.0.1:8080",
			Timeout: 15 * time.Second,
		},
		Node: NodeConfig{
			URL: "https://fullnode.mainnet.aptoslabs.com/v1",
		},
		Pipeline: PipelineConfig{
			PrepareTimeout: 30 * time.Second,
		},
		Claims: ClaimsConfig{
			Grace:       5 * time.Minute,
			Concurrency: 8,
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Vault: VaultConfig{
			KDFMemory:     64 * 1024,
			KDFIterations: 3,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = types.Testnet
	cfg.Remote.URL = "http://127.0.0.1:8081"
	cfg.Node.URL = "https://fullnode.testnet.aptoslabs.com/v1"
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network types.Network) *Config {
	switch network {
	case types.Testnet:
		return DefaultTestnet()
	default:
		return DefaultMainnet()
	}
}
