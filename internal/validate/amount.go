package validate

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	minAmount = decimal.RequireFromString("0.01")
	maxAmount = decimal.RequireFromString("999999999.99")
)

// NormalizeAmount parses a locale-ambiguous money string.
//
// Everything except digits, '.' and ',' is discarded. When both separators
// appear the rightmost one is the decimal separator and the other is
// grouping. A lone ',' is decimal only when exactly two digits follow the
// last comma. A bare leading or trailing separator is accepted. The result
// must lie in [0.01, 999999999.99].
func NormalizeAmount(raw string) (decimal.Decimal, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			return r
		}
		return -1
	}, raw)
	if cleaned == "" {
		return decimal.Zero, false
	}

	lastDot := strings.LastIndexByte(cleaned, '.')
	lastComma := strings.LastIndexByte(cleaned, ',')

	var num string
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			num = strings.ReplaceAll(cleaned, ".", "")
			num = strings.Replace(num, ",", ".", 1)
		} else {
			num = strings.ReplaceAll(cleaned, ",", "")
		}
	case lastComma >= 0:
		frac := cleaned[lastComma+1:]
		intPart := strings.ReplaceAll(cleaned[:lastComma], ",", "")
		if len(frac) == 2 {
			num = intPart + "." + frac
		} else {
			num = intPart + frac
		}
	default:
		num = cleaned
	}

	if strings.Count(num, ".") > 1 {
		return decimal.Zero, false
	}
	// ".50" and "5." are read as 0.50 and 5.
	num = strings.TrimSuffix(num, ".")
	if strings.HasPrefix(num, ".") {
		num = "0" + num
	}
	d, err := decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, false
	}
	if d.LessThan(minAmount) || d.GreaterThan(maxAmount) {
		return decimal.Zero, false
	}
	return d, true
}

// FormatAmount renders an amount in canonical form with two decimals.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}
