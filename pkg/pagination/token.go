// Package pagination encodes and decodes the Query/Scan continuation
// tokens. The wire form is the DynamoDB attribute-value map itself: the
// primary key of the last row returned, plus the index key for GSI reads.
package pagination

import (
	"fmt"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/schema"
)

// StartKey is a decoded ExclusiveStartKey / LastEvaluatedKey.
type StartKey struct {
	Key attr.Item
}

// BuildLastEvaluatedKey assembles the token for the last returned item:
// the table's primary key and, when reading through a GSI, the index key
// attributes as well.
func BuildLastEvaluatedKey(def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, item attr.Item) attr.Item {
	token := attr.Item{}
	token[def.Keys.HashKey] = item[def.Keys.HashKey].Clone()
	if def.Keys.HasRange() {
		token[def.Keys.RangeKey] = item[def.Keys.RangeKey].Clone()
	}
	if gsi != nil {
		token[gsi.Keys.HashKey] = item[gsi.Keys.HashKey].Clone()
		if gsi.Keys.HasRange() {
			token[gsi.Keys.RangeKey] = item[gsi.Keys.RangeKey].Clone()
		}
	}
	return token
}

// DecodeStartKey validates an ExclusiveStartKey against the target table
// and index: every expected key attribute must be present with the
// declared type, and nothing else may appear.
func DecodeStartKey(def schema.TableDefinition, gsi *schema.GlobalSecondaryIndex, raw attr.Item) (*StartKey, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	expected := map[string]attr.Type{
		def.Keys.HashKey: def.AttributeTypes[def.Keys.HashKey],
	}
	if def.Keys.HasRange() {
		expected[def.Keys.RangeKey] = def.AttributeTypes[def.Keys.RangeKey]
	}
	if gsi != nil {
		expected[gsi.Keys.HashKey] = def.AttributeTypes[gsi.Keys.HashKey]
		if gsi.Keys.HasRange() {
			expected[gsi.Keys.RangeKey] = def.AttributeTypes[gsi.Keys.RangeKey]
		}
	}
	if len(raw) != len(expected) {
		return nil, fmt.Errorf("exclusive start key does not match the key schema")
	}
	key := attr.Item{}
	for name, wantType := range expected {
		v, ok := raw[name]
		if !ok {
			return nil, fmt.Errorf("exclusive start key is missing attribute %s", name)
		}
		if v.Type() != wantType {
			return nil, fmt.Errorf("exclusive start key attribute %s has type %s, schema requires %s", name, v.Type(), wantType)
		}
		key[name] = v.Clone()
	}
	return &StartKey{Key: key}, nil
}
