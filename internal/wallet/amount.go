package wallet

import (
	"fmt"
	"math/big"
	"strings"
)

// ToBaseUnits converts a decimal token amount ("1.5") into its smallest-unit
// integer representation. Fractional digits beyond the token's decimals are
// truncated (floored), never rounded; transfers must not move more than the
// user asked for.
func ToBaseUnits(amount string, decimals uint8) (*big.Int, error) {
	s := strings.TrimSpace(amount)
	if s == "" {
		return nil, fmt.Errorf("amount is empty")
	}
	if strings.HasPrefix(s, "-") {
		return nil, fmt.Errorf("amount must be positive: %s", amount)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("invalid decimal amount: %s", amount)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("invalid decimal amount: %s", amount)
	}

	// Truncate or right-pad the fraction to exactly `decimals` digits.
	d := int(decimals)
	if len(frac) > d {
		frac = frac[:d]
	} else {
		frac = frac + strings.Repeat("0", d-len(frac))
	}

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount: %s", amount)
	}
	return v, nil
}

// FormatBaseUnits renders a smallest-unit value as a decimal string with
// trailing fraction zeros trimmed ("1500000000000000000" -> "1.5").
func FormatBaseUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0"
	}
	s := v.String()
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	d := int(decimals)
	if len(s) <= d {
		s = strings.Repeat("0", d-len(s)+1) + s
	}
	whole, frac := s[:len(s)-d], s[len(s)-d:]
	frac = strings.TrimRight(frac, "0")

	out := whole
	if frac != "" {
		out = whole + "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
