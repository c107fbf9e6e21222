package attr

import (
	"bytes"
	"fmt"
	"strings"
)

// Compare orders two values of the same scalar variant: numerically for N,
// by code point for S, bytewise for B. Mixed or non-scalar variants are not
// comparable.
func Compare(a, b Value) (int, error) {
	if a.kind != b.kind {
		return 0, fmt.Errorf("cannot compare %s with %s", a.kind, b.kind)
	}
	switch a.kind {
	case TypeString:
		return strings.Compare(a.str, b.str), nil
	case TypeNumber:
		return CompareNumbers(a.str, b.str)
	case TypeBinary:
		return bytes.Compare(a.bin, b.bin), nil
	}
	return 0, fmt.Errorf("type %s is not orderable", a.kind)
}

// KeyBytes produces a deterministic byte form of a scalar key value, used
// to sort transaction lock targets. N values are normalized first so two
// spellings of the same number map to the same bytes.
func KeyBytes(v Value) ([]byte, error) {
	switch v.kind {
	case TypeString:
		return append([]byte{'S', 0}, v.str...), nil
	case TypeNumber:
		n, err := NormalizeNumber(v.str)
		if err != nil {
			return nil, err
		}
		return append([]byte{'N', 0}, n...), nil
	case TypeBinary:
		return append([]byte{'B', 0}, v.bin...), nil
	}
	return nil, fmt.Errorf("type %s is not a key type", v.kind)
}
