// Package units provides smallest-unit token amount arithmetic.
// All conversions are integer-exact on big.Int; floats are never used.
package units

import (
	"fmt"
	"math/big"
)

// ParseRaw parses a smallest-unit amount string into a big.Int.
// The string must be a plain base-10 non-negative integer.
func ParseRaw(s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("empty amount string")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return nil, fmt.Errorf("invalid character in amount: %c", c)
		}
	}
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", s)
	}
	return amount, nil
}

// Rescale converts an amount between two smallest-unit representations,
// e.g. an 8-decimal SPL amount into an 18-decimal ERC-20 amount.
// Scaling up is exact. Scaling down truncates toward zero, which loses
// sub-unit dust when the source has more decimals than the destination.
func Rescale(amount *big.Int, fromDecimals, toDecimals uint8) *big.Int {
	if fromDecimals == toDecimals {
		return new(big.Int).Set(amount)
	}
	if toDecimals > fromDecimals {
		factor := pow10(toDecimals - fromDecimals)
		return new(big.Int).Mul(amount, factor)
	}
	factor := pow10(fromDecimals - toDecimals)
	return new(big.Int).Quo(amount, factor)
}

// Format renders a smallest-unit amount as a decimal string.
// For example, Format(150000000, 8) returns "1.5".
func Format(amount *big.Int, decimals uint8) string {
	if decimals == 0 {
		return amount.String()
	}

	divisor := pow10(decimals)
	whole := new(big.Int).Quo(amount, divisor)
	frac := new(big.Int).Mod(amount, divisor)

	if frac.Sign() == 0 {
		return whole.String()
	}

	fracStr := fmt.Sprintf("%0*s", int(decimals), frac.String())
	for len(fracStr) > 0 && fracStr[len(fracStr)-1] == '0' {
		fracStr = fracStr[:len(fracStr)-1]
	}

	return fmt.Sprintf("%s.%s", whole.String(), fracStr)
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
