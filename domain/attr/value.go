// Package attr implements the DynamoDB attribute-value data model: the
// tagged sum type, its canonical JSON wire encoding, equality and ordering,
// and document-path navigation over items.
package attr

import (
	"bytes"
	"sort"
)

// Type tags the variant held by a Value.
type Type string

const (
	TypeString    Type = "S"
	TypeNumber    Type = "N"
	TypeBinary    Type = "B"
	TypeBool      Type = "BOOL"
	TypeNull      Type = "NULL"
	TypeStringSet Type = "SS"
	TypeNumberSet Type = "NS"
	TypeBinarySet Type = "BS"
	TypeList      Type = "L"
	TypeMap       Type = "M"
)

// ScalarKeyType reports whether t is usable as a key attribute type.
func ScalarKeyType(t Type) bool {
	return t == TypeString || t == TypeNumber || t == TypeBinary
}

// Value is one DynamoDB attribute value. The zero Value is invalid and
// stands for "absent" in path resolution.
type Value struct {
	kind Type
	str  string   // S and N payloads
	bin  []byte   // B payload
	flag bool     // BOOL payload
	strs []string // SS and NS elements
	bins [][]byte // BS elements
	list []Value  // L elements
	m    map[string]Value // M entries
}

// Item is a named collection of attribute values, the unit of storage.
type Item map[string]Value

// Type returns the variant tag, or "" for the zero Value.
func (v Value) Type() Type { return v.kind }

// IsValid reports whether v holds a variant.
func (v Value) IsValid() bool { return v.kind != "" }

// String creates an S value.
func String(s string) Value { return Value{kind: TypeString, str: s} }

// Number creates an N value carrying the decimal numeral verbatim. The
// caller is expected to have validated the numeral (see ParseNumber).
func Number(n string) Value { return Value{kind: TypeNumber, str: n} }

// Binary creates a B value.
func Binary(b []byte) Value { return Value{kind: TypeBinary, bin: b} }

// Bool creates a BOOL value.
func Bool(b bool) Value { return Value{kind: TypeBool, flag: b} }

// Null creates the NULL value.
func Null() Value { return Value{kind: TypeNull, flag: true} }

// StringSet creates an SS value. Elements are deduplicated.
func StringSet(elems ...string) Value {
	return Value{kind: TypeStringSet, strs: dedupStrings(elems)}
}

// NumberSet creates an NS value. Elements are deduplicated numerically, the
// first spelling of each number wins.
func NumberSet(elems ...string) Value {
	return Value{kind: TypeNumberSet, strs: dedupNumbers(elems)}
}

// BinarySet creates a BS value. Elements are deduplicated bytewise.
func BinarySet(elems ...[]byte) Value {
	return Value{kind: TypeBinarySet, bins: dedupBinaries(elems)}
}

// List creates an L value.
func List(elems ...Value) Value {
	return Value{kind: TypeList, list: elems}
}

// Map creates an M value.
func Map(entries map[string]Value) Value {
	if entries == nil {
		entries = map[string]Value{}
	}
	return Value{kind: TypeMap, m: entries}
}

// StringValue returns the S payload.
func (v Value) StringValue() (string, bool) {
	return v.str, v.kind == TypeString
}

// NumberValue returns the N numeral verbatim.
func (v Value) NumberValue() (string, bool) {
	return v.str, v.kind == TypeNumber
}

// BinaryValue returns the B payload.
func (v Value) BinaryValue() ([]byte, bool) {
	return v.bin, v.kind == TypeBinary
}

// BoolValue returns the BOOL payload.
func (v Value) BoolValue() (bool, bool) {
	return v.flag, v.kind == TypeBool
}

// IsNull reports whether v is the NULL value.
func (v Value) IsNull() bool { return v.kind == TypeNull }

// SetElements returns the elements of an SS or NS value.
func (v Value) SetElements() ([]string, bool) {
	return v.strs, v.kind == TypeStringSet || v.kind == TypeNumberSet
}

// BinarySetElements returns the elements of a BS value.
func (v Value) BinarySetElements() ([][]byte, bool) {
	return v.bins, v.kind == TypeBinarySet
}

// ListElements returns the elements of an L value.
func (v Value) ListElements() ([]Value, bool) {
	return v.list, v.kind == TypeList
}

// MapEntries returns the entries of an M value. The returned map must not
// be mutated; use Clone for a writable copy.
func (v Value) MapEntries() (map[string]Value, bool) {
	return v.m, v.kind == TypeMap
}

// Equal reports structural equality: same variant and same payload. N
// compares numerically, sets compare as unordered collections, L and M
// recurse.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case TypeString:
		return v.str == o.str
	case TypeNumber:
		return NumbersEqual(v.str, o.str)
	case TypeBinary:
		return bytes.Equal(v.bin, o.bin)
	case TypeBool:
		return v.flag == o.flag
	case TypeNull:
		return true
	case TypeStringSet:
		return stringSetsEqual(v.strs, o.strs)
	case TypeNumberSet:
		return numberSetsEqual(v.strs, o.strs)
	case TypeBinarySet:
		return binarySetsEqual(v.bins, o.bins)
	case TypeList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case TypeMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, ev := range v.m {
			ov, ok := o.m[k]
			if !ok || !ev.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	out := v
	switch v.kind {
	case TypeBinary:
		out.bin = bytes.Clone(v.bin)
	case TypeStringSet, TypeNumberSet:
		out.strs = append([]string(nil), v.strs...)
	case TypeBinarySet:
		out.bins = make([][]byte, len(v.bins))
		for i, b := range v.bins {
			out.bins[i] = bytes.Clone(b)
		}
	case TypeList:
		out.list = make([]Value, len(v.list))
		for i, e := range v.list {
			out.list[i] = e.Clone()
		}
	case TypeMap:
		out.m = make(map[string]Value, len(v.m))
		for k, e := range v.m {
			out.m[k] = e.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the item.
func (it Item) Clone() Item {
	if it == nil {
		return nil
	}
	out := make(Item, len(it))
	for k, v := range it {
		out[k] = v.Clone()
	}
	return out
}

// Equal reports attribute-wise equality between two items.
func (it Item) Equal(o Item) bool {
	if len(it) != len(o) {
		return false
	}
	for k, v := range it {
		ov, ok := o[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func dedupStrings(elems []string) []string {
	seen := make(map[string]struct{}, len(elems))
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}

func dedupNumbers(elems []string) []string {
	out := make([]string, 0, len(elems))
	for _, e := range elems {
		dup := false
		for _, have := range out {
			if NumbersEqual(have, e) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}

func dedupBinaries(elems [][]byte) [][]byte {
	out := make([][]byte, 0, len(elems))
	for _, e := range elems {
		dup := false
		for _, have := range out {
			if bytes.Equal(have, e) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, e)
		}
	}
	return out
}

func stringSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string(nil), a...)
	bs := append([]string(nil), b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

func numberSetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, e := range a {
		found := false
		for _, o := range b {
			if NumbersEqual(e, o) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func binarySetsEqual(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for _, e := range a {
		found := false
		for _, o := range b {
			if bytes.Equal(e, o) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
