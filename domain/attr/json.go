package attr

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// MarshalJSON encodes v in the DynamoDB wire shape: a single-key object
// whose key is the variant tag.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case TypeString:
		return marshalTagged("S", v.str)
	case TypeNumber:
		return marshalTagged("N", v.str)
	case TypeBinary:
		return marshalTagged("B", base64.StdEncoding.EncodeToString(v.bin))
	case TypeBool:
		return marshalTagged("BOOL", v.flag)
	case TypeNull:
		return marshalTagged("NULL", true)
	case TypeStringSet:
		return marshalTagged("SS", v.strs)
	case TypeNumberSet:
		return marshalTagged("NS", v.strs)
	case TypeBinarySet:
		encoded := make([]string, len(v.bins))
		for i, b := range v.bins {
			encoded[i] = base64.StdEncoding.EncodeToString(b)
		}
		return marshalTagged("BS", encoded)
	case TypeList:
		elems := v.list
		if elems == nil {
			elems = []Value{}
		}
		return marshalTagged("L", elems)
	case TypeMap:
		entries := v.m
		if entries == nil {
			entries = map[string]Value{}
		}
		return marshalTagged("M", entries)
	}
	return nil, fmt.Errorf("cannot encode invalid attribute value")
}

func marshalTagged(tag string, payload interface{}) ([]byte, error) {
	return json.Marshal(map[string]interface{}{tag: payload})
}

// UnmarshalJSON decodes the wire shape, rejecting objects that carry zero
// or more than one variant tag and validating N payloads as numerals.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("attribute value must be an object: %w", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("attribute value must carry exactly one type tag, got %d", len(raw))
	}
	for tag, payload := range raw {
		decoded, err := decodeTagged(tag, payload)
		if err != nil {
			return err
		}
		*v = decoded
	}
	return nil
}

func decodeTagged(tag string, payload json.RawMessage) (Value, error) {
	switch tag {
	case "S":
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return Value{}, fmt.Errorf("S payload: %w", err)
		}
		return String(s), nil
	case "N":
		var n string
		if err := json.Unmarshal(payload, &n); err != nil {
			return Value{}, fmt.Errorf("N payload: %w", err)
		}
		if !ValidNumber(n) {
			return Value{}, fmt.Errorf("N payload %q is not a decimal numeral", n)
		}
		return Number(n), nil
	case "B":
		var encoded string
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return Value{}, fmt.Errorf("B payload: %w", err)
		}
		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return Value{}, fmt.Errorf("B payload: %w", err)
		}
		return Binary(b), nil
	case "BOOL":
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, fmt.Errorf("BOOL payload: %w", err)
		}
		return Bool(b), nil
	case "NULL":
		var b bool
		if err := json.Unmarshal(payload, &b); err != nil {
			return Value{}, fmt.Errorf("NULL payload: %w", err)
		}
		if !b {
			return Value{}, fmt.Errorf("NULL payload must be true")
		}
		return Null(), nil
	case "SS":
		var elems []string
		if err := json.Unmarshal(payload, &elems); err != nil {
			return Value{}, fmt.Errorf("SS payload: %w", err)
		}
		if len(elems) == 0 {
			return Value{}, fmt.Errorf("SS must not be empty")
		}
		return StringSet(elems...), nil
	case "NS":
		var elems []string
		if err := json.Unmarshal(payload, &elems); err != nil {
			return Value{}, fmt.Errorf("NS payload: %w", err)
		}
		if len(elems) == 0 {
			return Value{}, fmt.Errorf("NS must not be empty")
		}
		for _, e := range elems {
			if !ValidNumber(e) {
				return Value{}, fmt.Errorf("NS element %q is not a decimal numeral", e)
			}
		}
		return NumberSet(elems...), nil
	case "BS":
		var encoded []string
		if err := json.Unmarshal(payload, &encoded); err != nil {
			return Value{}, fmt.Errorf("BS payload: %w", err)
		}
		if len(encoded) == 0 {
			return Value{}, fmt.Errorf("BS must not be empty")
		}
		elems := make([][]byte, len(encoded))
		for i, e := range encoded {
			b, err := base64.StdEncoding.DecodeString(e)
			if err != nil {
				return Value{}, fmt.Errorf("BS element: %w", err)
			}
			elems[i] = b
		}
		return BinarySet(elems...), nil
	case "L":
		var elems []Value
		if err := json.Unmarshal(payload, &elems); err != nil {
			return Value{}, fmt.Errorf("L payload: %w", err)
		}
		if elems == nil {
			elems = []Value{}
		}
		return List(elems...), nil
	case "M":
		var entries map[string]Value
		if err := json.Unmarshal(payload, &entries); err != nil {
			return Value{}, fmt.Errorf("M payload: %w", err)
		}
		return Map(entries), nil
	}
	return Value{}, fmt.Errorf("unknown attribute value type %q", tag)
}

// MarshalItem encodes an item as a JSON object of attribute values, the
// storage payload form.
func MarshalItem(it Item) ([]byte, error) {
	if it == nil {
		it = Item{}
	}
	return json.Marshal(it)
}

// UnmarshalItem decodes a storage payload back into an item.
func UnmarshalItem(data []byte) (Item, error) {
	var it Item
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, err
	}
	if it == nil {
		it = Item{}
	}
	return it, nil
}
