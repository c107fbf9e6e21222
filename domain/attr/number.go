package attr

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// numeralPattern is the accepted spelling of an N payload: optional sign,
// digits with an optional fraction, optional exponent.
var numeralPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// ParseNumber validates and parses an N numeral. The original spelling is
// preserved by callers; the decimal form is used only for comparison and
// arithmetic.
func ParseNumber(n string) (decimal.Decimal, error) {
	if !numeralPattern.MatchString(n) {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q", n)
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid number %q: %w", n, err)
	}
	return d, nil
}

// ValidNumber reports whether n is an acceptable N payload.
func ValidNumber(n string) bool {
	_, err := ParseNumber(n)
	return err == nil
}

// NumbersEqual compares two numerals numerically, so "1" equals "1.0".
// Malformed numerals fall back to spelling equality; they are rejected at
// the codec boundary, so this path only sees valid input in practice.
func NumbersEqual(a, b string) bool {
	da, errA := ParseNumber(a)
	db, errB := ParseNumber(b)
	if errA != nil || errB != nil {
		return a == b
	}
	return da.Equal(db)
}

// CompareNumbers orders two numerals numerically, returning -1, 0 or 1.
func CompareNumbers(a, b string) (int, error) {
	da, err := ParseNumber(a)
	if err != nil {
		return 0, err
	}
	db, err := ParseNumber(b)
	if err != nil {
		return 0, err
	}
	return da.Cmp(db), nil
}

// AddNumbers returns the exact sum of two numerals. The result is the
// decimal library's canonical spelling; no truncation occurs.
func AddNumbers(a, b string) (string, error) {
	da, err := ParseNumber(a)
	if err != nil {
		return "", err
	}
	db, err := ParseNumber(b)
	if err != nil {
		return "", err
	}
	return da.Add(db).String(), nil
}

// SubtractNumbers returns the exact difference a - b.
func SubtractNumbers(a, b string) (string, error) {
	da, err := ParseNumber(a)
	if err != nil {
		return "", err
	}
	db, err := ParseNumber(b)
	if err != nil {
		return "", err
	}
	return da.Sub(db).String(), nil
}

// NormalizeNumber returns the canonical spelling of a numeral, used where a
// single representation is required (key columns, lock ordering).
func NormalizeNumber(n string) (string, error) {
	d, err := ParseNumber(n)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}
