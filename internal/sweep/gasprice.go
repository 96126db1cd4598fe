package sweep

import (
	"fmt"
	"math/big"
	"strings"
)

// GweiDigits is the number of fractional digits a gas price input may carry:
// prices are entered in gwei, stored in wei (1 gwei = 1e9 wei).
const GweiDigits = 9

var gweiUnit = new(big.Int).Exp(big.NewInt(10), big.NewInt(GweiDigits), nil)

// ParseGwei converts a decimal gwei string ("50", "1.05") to wei. The value
// must be non-negative and carry at most GweiDigits fractional digits;
// anything else is an error. An empty string is an error, not zero.
func ParseGwei(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty gas price")
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > GweiDigits {
		return nil, fmt.Errorf("gas price %q: more than %d fractional digits", s, GweiDigits)
	}

	wi, ok := new(big.Int).SetString(whole, 10)
	if !ok || wi.Sign() < 0 {
		return nil, fmt.Errorf("invalid gas price %q", s)
	}
	wei := wi.Mul(wi, gweiUnit)

	if frac != "" {
		// Right-pad to GweiDigits so "1.05" becomes 050000000.
		fi, ok := new(big.Int).SetString(frac+strings.Repeat("0", GweiDigits-len(frac)), 10)
		if !ok || fi.Sign() < 0 {
			return nil, fmt.Errorf("invalid gas price %q", s)
		}
		wei.Add(wei, fi)
	}
	return wei, nil
}

// FormatGwei renders a wei value as a decimal gwei string, trimming
// trailing fractional zeros. It round-trips through ParseGwei.
func FormatGwei(wei *big.Int) string {
	return formatUnits(wei, GweiDigits)
}

// EtherDigits is the wei-per-ether exponent, used only for display.
const EtherDigits = 18

// FormatEther renders a wei value as a decimal ether string.
func FormatEther(wei *big.Int) string {
	return formatUnits(wei, EtherDigits)
}

func formatUnits(wei *big.Int, digits int) string {
	if wei == nil {
		return ""
	}
	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	q, r := new(big.Int).QuoRem(wei, unit, new(big.Int))
	if r.Sign() == 0 {
		return q.String()
	}
	frac := strings.TrimRight(fmt.Sprintf("%0*d", digits, r), "0")
	return q.String() + "." + frac
}
