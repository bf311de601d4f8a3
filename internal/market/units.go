package market

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// EtherDecimals is the number of decimal places between ether and wei.
const EtherDecimals = 18

// ShareScale is the number of share units making up one whole share.
var ShareScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(EtherDecimals), nil)

// Amounts are uint256 on chain; inputs are bounded before any scaling.
const (
	maxAmountLen      = 96
	maxAmountExponent = 60
	minAmountExponent = -maxAmountLen
	maxWeiBits        = 256
)

// ParseEther converts a decimal ether string such as "0.01" into wei.
// Negative values, values finer than one wei and values that do not fit
// in 256 bits are rejected.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, Errorf(KindInvalidInput, "amount is required")
	}
	if len(s) > maxAmountLen {
		return nil, Errorf(KindInvalidInput, "amount is longer than %d characters", maxAmountLen)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, Errorf(KindInvalidInput, "invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, Errorf(KindInvalidInput, "amount must not be negative")
	}
	if exp := d.Exponent(); exp > maxAmountExponent || exp < minAmountExponent {
		return nil, Errorf(KindInvalidInput, "amount %q is out of range", s)
	}
	wei := d.Shift(EtherDecimals)
	if !wei.IsInteger() {
		return nil, Errorf(KindInvalidInput, "amount %q has more than %d decimals", s, EtherDecimals)
	}
	v := wei.BigInt()
	if v.BitLen() > maxWeiBits {
		return nil, Errorf(KindInvalidInput, "amount %q exceeds %d bits of wei", s, maxWeiBits)
	}
	return v, nil
}

// MustParseEther is ParseEther for constants.
func MustParseEther(s string) *big.Int {
	v, err := ParseEther(s)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatEther renders a wei amount as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).String()
}
