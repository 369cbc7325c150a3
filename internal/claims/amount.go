package claims

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

// maxDecimals is the largest power of ten that fits in 256 bits.
const maxDecimals = 77

// FormatAmount renders an integer amount in base units as a decimal string
// with the given number of fractional digits, trimming trailing zeros.
func FormatAmount(base string, decimals int) (string, error) {
	v, err := uint256.FromDecimal(base)
	if err != nil {
		return "", fmt.Errorf("parse amount %q: %w", base, err)
	}
	if decimals < 0 || decimals > maxDecimals {
		return "", fmt.Errorf("decimals %d out of range", decimals)
	}
	if decimals == 0 {
		return v.Dec(), nil
	}

	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	quo, rem := new(uint256.Int).DivMod(v, unit, new(uint256.Int))
	frac := rem.Dec()
	if len(frac) < decimals {
		frac = strings.Repeat("0", decimals-len(frac)) + frac
	}
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return quo.Dec(), nil
	}
	return quo.Dec() + "." + frac, nil
}
