package types

import (
	"fmt"
	"strings"
)

// Network identifies the chain a wallet operates on.
type Network string

const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
)

// Networks lists every supported network in display order.
var Networks = []Network{Mainnet, Testnet}

// Valid returns true for a supported network.
func (n Network) Valid() bool {
	return n == Mainnet || n == Testnet
}

// String implements fmt.Stringer.
func (n Network) String() string {
	return string(n)
}

// ParseNetwork parses a network name case-insensitively.
func ParseNetwork(s string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(s)))
	if !n.Valid() {
		return "", fmt.Errorf("unknown network %q (want %q or %q)", s, Mainnet, Testnet)
	}
	return n, nil
}
