// Package awscompat converts between the engine's attribute values and
// the aws-sdk-go-v2 DynamoDB type families, so SDK-oriented code can
// drive the engine in-process with the shapes it already uses.
package awscompat

import (
	"fmt"

	dynamodbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"pretenderdb/domain/attr"
)

// FromSDK converts one SDK attribute value into the engine model.
func FromSDK(av dynamodbtypes.AttributeValue) (attr.Value, error) {
	switch v := av.(type) {
	case *dynamodbtypes.AttributeValueMemberS:
		return attr.String(v.Value), nil
	case *dynamodbtypes.AttributeValueMemberN:
		if !attr.ValidNumber(v.Value) {
			return attr.Value{}, fmt.Errorf("invalid number %q", v.Value)
		}
		return attr.Number(v.Value), nil
	case *dynamodbtypes.AttributeValueMemberB:
		return attr.Binary(v.Value), nil
	case *dynamodbtypes.AttributeValueMemberBOOL:
		return attr.Bool(v.Value), nil
	case *dynamodbtypes.AttributeValueMemberNULL:
		return attr.Null(), nil
	case *dynamodbtypes.AttributeValueMemberSS:
		return attr.StringSet(v.Value...), nil
	case *dynamodbtypes.AttributeValueMemberNS:
		for _, n := range v.Value {
			if !attr.ValidNumber(n) {
				return attr.Value{}, fmt.Errorf("invalid number %q in number set", n)
			}
		}
		return attr.NumberSet(v.Value...), nil
	case *dynamodbtypes.AttributeValueMemberBS:
		return attr.BinarySet(v.Value...), nil
	case *dynamodbtypes.AttributeValueMemberL:
		elems := make([]attr.Value, 0, len(v.Value))
		for _, el := range v.Value {
			converted, err := FromSDK(el)
			if err != nil {
				return attr.Value{}, err
			}
			elems = append(elems, converted)
		}
		return attr.List(elems...), nil
	case *dynamodbtypes.AttributeValueMemberM:
		return fromSDKMap(v.Value)
	default:
		return attr.Value{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func fromSDKMap(m map[string]dynamodbtypes.AttributeValue) (attr.Value, error) {
	entries := make(map[string]attr.Value, len(m))
	for name, el := range m {
		converted, err := FromSDK(el)
		if err != nil {
			return attr.Value{}, err
		}
		entries[name] = converted
	}
	return attr.Map(entries), nil
}

// FromSDKItem converts a full SDK item map.
func FromSDKItem(item map[string]dynamodbtypes.AttributeValue) (attr.Item, error) {
	out := make(attr.Item, len(item))
	for name, av := range item {
		converted, err := FromSDK(av)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = converted
	}
	return out, nil
}

// ToSDK converts one engine value into the SDK model.
func ToSDK(v attr.Value) (dynamodbtypes.AttributeValue, error) {
	switch v.Type() {
	case attr.TypeString:
		s, _ := v.StringValue()
		return &dynamodbtypes.AttributeValueMemberS{Value: s}, nil
	case attr.TypeNumber:
		n, _ := v.NumberValue()
		return &dynamodbtypes.AttributeValueMemberN{Value: n}, nil
	case attr.TypeBinary:
		b, _ := v.BinaryValue()
		return &dynamodbtypes.AttributeValueMemberB{Value: b}, nil
	case attr.TypeBool:
		b, _ := v.BoolValue()
		return &dynamodbtypes.AttributeValueMemberBOOL{Value: b}, nil
	case attr.TypeNull:
		return &dynamodbtypes.AttributeValueMemberNULL{Value: true}, nil
	case attr.TypeStringSet:
		elems, _ := v.SetElements()
		return &dynamodbtypes.AttributeValueMemberSS{Value: elems}, nil
	case attr.TypeNumberSet:
		elems, _ := v.SetElements()
		return &dynamodbtypes.AttributeValueMemberNS{Value: elems}, nil
	case attr.TypeBinarySet:
		elems, _ := v.BinarySetElements()
		return &dynamodbtypes.AttributeValueMemberBS{Value: elems}, nil
	case attr.TypeList:
		elems, _ := v.ListElements()
		out := make([]dynamodbtypes.AttributeValue, 0, len(elems))
		for _, el := range elems {
			converted, err := ToSDK(el)
			if err != nil {
				return nil, err
			}
			out = append(out, converted)
		}
		return &dynamodbtypes.AttributeValueMemberL{Value: out}, nil
	case attr.TypeMap:
		entries, _ := v.MapEntries()
		out := make(map[string]dynamodbtypes.AttributeValue, len(entries))
		for name, el := range entries {
			converted, err := ToSDK(el)
			if err != nil {
				return nil, err
			}
			out[name] = converted
		}
		return &dynamodbtypes.AttributeValueMemberM{Value: out}, nil
	}
	return nil, fmt.Errorf("cannot convert invalid attribute value")
}

// ToSDKItem converts a full engine item.
func ToSDKItem(item attr.Item) (map[string]dynamodbtypes.AttributeValue, error) {
	out := make(map[string]dynamodbtypes.AttributeValue, len(item))
	for name, v := range item {
		converted, err := ToSDK(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", name, err)
		}
		out[name] = converted
	}
	return out, nil
}
