package amount

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// WeiPerEther is the number of base units in one whole token.
var WeiPerEther = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

const etherDecimals = 18

var (
	ErrEmptyAmount    = errors.New("amount: empty value")
	ErrMalformed      = errors.New("amount: malformed decimal value")
	ErrNegativeAmount = errors.New("amount: negative values not allowed")
	ErrTooPrecise     = errors.New("amount: more than 18 fractional digits")
)

// ParseEther converts a decimal ether string such as "0.5" into wei. The
// contracts only ever see base-unit integers, so conversion happens exactly
// once at the submission boundary.
func ParseEther(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, ErrEmptyAmount
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, ErrNegativeAmount
	}
	whole := trimmed
	frac := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		whole = trimmed[:idx]
		frac = trimmed[idx+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return nil, ErrMalformed
		}
	}
	if whole == "" && frac == "" {
		return nil, ErrMalformed
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > etherDecimals {
		return nil, ErrTooPrecise
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	wei, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, value)
	}
	wei.Mul(wei, WeiPerEther)
	if frac != "" {
		// Right-pad the fraction to 18 digits before conversion.
		padded := frac + strings.Repeat("0", etherDecimals-len(frac))
		fracWei, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMalformed, value)
		}
		wei.Add(wei, fracWei)
	}
	return wei, nil
}

// FormatEther renders a wei amount as a decimal ether string with trailing
// zeros trimmed, e.g. 500000000000000000 -> "0.5".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	sign := ""
	abs := new(big.Int).Set(wei)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	whole, frac := new(big.Int).QuoRem(abs, WeiPerEther, new(big.Int))
	if frac.Sign() == 0 {
		return sign + whole.String()
	}
	fracStr := fmt.Sprintf("%018s", frac.String())
	fracStr = strings.TrimRight(fracStr, "0")
	return sign + whole.String() + "." + fracStr
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
