package normalizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/ledgerbook/internal/domain/ledger"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a raw amount into signed minor units.
//
// This is the only place in the codebase that converts between major and
// minor units. Callers declare the unit explicitly; UnitAuto treats a value as
// major units only when it carries a fractional separator (or is a float with
// a fractional part), so an integer that is already in minor units is never
// multiplied a second time.
func ParseAmount(raw any, unit ledger.Unit) (int64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, errors.New("amount is empty")
	case int:
		return intAmount(int64(v), unit)
	case int32:
		return intAmount(int64(v), unit)
	case int64:
		return intAmount(v, unit)
	case json.Number:
		return parseJSONNumber(v, unit)
	case float64:
		return floatAmount(v, unit)
	case float32:
		return floatAmount(float64(v), unit)
	case string:
		return parseAmountString(v, unit)
	default:
		return 0, fmt.Errorf("unsupported amount type %T", raw)
	}
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

func intAmount(v int64, unit ledger.Unit) (int64, error) {
	if unit != ledger.UnitMajor {
		return v, nil
	}
	if v > math.MaxInt64/100 || v < math.MinInt64/100 {
		return 0, fmt.Errorf("amount %d is out of range", v)
	}
	return v * 100, nil
}

func floatAmount(v float64, unit ledger.Unit) (int64, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("amount is not a finite number")
	}
	d := decimal.NewFromFloat(v)
	switch unit {
	case ledger.UnitMinor:
		if !d.IsInteger() {
			return 0, fmt.Errorf("minor-unit amount %v has a fractional part", v)
		}
		return checkedInt(d)
	case ledger.UnitMajor:
		return toMinor(d)
	default:
		if d.IsInteger() {
			return checkedInt(d)
		}
		return toMinor(d)
	}
}

// parseJSONNumber skips separator guessing: a JSON number always uses '.'
// as its decimal point.
func parseJSONNumber(n json.Number, unit ledger.Unit) (int64, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return 0, fmt.Errorf("amount %q is not numeric", n.String())
	}
	return decimalAmount(d, n.String(), strings.Contains(n.String(), "."), unit)
}

func parseAmountString(s string, unit ledger.Unit) (int64, error) {
	cleaned, fractional, err := cleanAmountString(s)
	if err != nil {
		return 0, err
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not numeric", s)
	}
	return decimalAmount(d, s, fractional, unit)
}

func decimalAmount(d decimal.Decimal, s string, fractional bool, unit ledger.Unit) (int64, error) {
	switch unit {
	case ledger.UnitMinor:
		if !d.IsInteger() {
			return 0, fmt.Errorf("minor-unit amount %q has a fractional part", s)
		}
		return checkedInt(d)
	case ledger.UnitMajor:
		return toMinor(d)
	default:
		if fractional {
			return toMinor(d)
		}
		return checkedInt(d)
	}
}

// toMinor multiplies by 100 and rounds half away from zero.
func toMinor(d decimal.Decimal) (int64, error) {
	return checkedInt(d.Mul(hundred).Round(0))
}

// checkedInt refuses values that do not fit in int64 minor units.
func checkedInt(d decimal.Decimal) (int64, error) {
	if d.GreaterThan(maxMinor) || d.LessThan(minMinor) {
		return 0, fmt.Errorf("amount %s is out of range", d.String())
	}
	return d.IntPart(), nil
}

// cleanAmountString strips currency symbols, whitespace and thousands
// separators, and rewrites the decimal separator to '.'. It reports whether
// the value carried a fractional separator.
func cleanAmountString(s string) (string, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false, errors.New("amount is empty")
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == ',':
			b.WriteRune(r)
		case r == '-' || r == '−':
			negative = !negative
		case r == '+':
		default:
			// currency codes/symbols, spaces, NBSP, apostrophes
		}
	}
	digits := b.String()
	if digits == "" {
		return "", false, fmt.Errorf("amount %q has no digits", s)
	}

	lastDot := strings.LastIndex(digits, ".")
	lastComma := strings.LastIndex(digits, ",")

	var decimalSep rune
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastDot > lastComma {
			decimalSep = '.'
		} else {
			decimalSep = ','
		}
	case lastComma >= 0:
		if !grouped(digits, ',') {
			decimalSep = ','
		}
	case lastDot >= 0:
		if !grouped(digits, '.') {
			decimalSep = '.'
		}
	}

	var out strings.Builder
	if negative {
		out.WriteByte('-')
	}
	sepIndex := -1
	if decimalSep == '.' {
		sepIndex = lastDot
	} else if decimalSep == ',' {
		sepIndex = lastComma
	}
	for i, r := range digits {
		if r == '.' || r == ',' {
			if i == sepIndex {
				out.WriteByte('.')
			}
			continue
		}
		out.WriteRune(r)
	}

	return out.String(), sepIndex >= 0, nil
}

// grouped reports whether a lone separator kind is thousands grouping:
// repeated ("1.234.567"), or once with exactly three trailing digits after a
// non-zero integer part ("1,234" but not "0.125").
func grouped(digits string, sep rune) bool {
	if strings.Count(digits, string(sep)) > 1 {
		return true
	}
	i := strings.IndexRune(digits, sep)
	lead := strings.TrimLeft(digits[:i], "0")
	return len(digits)-i-1 == 3 && lead != ""
}

// formatAmount renders minor units as a plain integer string, used in
// composite keys.
func formatAmount(minor int64) string {
	return strconv.FormatInt(minor, 10)
}
