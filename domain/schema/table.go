// Package schema holds the table metadata model: key schemas, attribute
// type hints, secondary indexes, TTL and stream settings.
package schema

import (
	"fmt"
	"time"

	"pretenderdb/domain/attr"
)

// ProjectionType selects which attributes a GSI stores beside its keys.
type ProjectionType string

const (
	ProjectionAll      ProjectionType = "ALL"
	ProjectionKeysOnly ProjectionType = "KEYS_ONLY"
	ProjectionInclude  ProjectionType = "INCLUDE"
)

// StreamViewType selects which images a stream record carries.
type StreamViewType string

const (
	StreamViewKeysOnly       StreamViewType = "KEYS_ONLY"
	StreamViewNewImage       StreamViewType = "NEW_IMAGE"
	StreamViewOldImage       StreamViewType = "OLD_IMAGE"
	StreamViewNewAndOldImages StreamViewType = "NEW_AND_OLD_IMAGES"
)

// KeySchema names the hash attribute and, optionally, the range attribute.
type KeySchema struct {
	HashKey  string `json:"hashKey"`
	RangeKey string `json:"rangeKey,omitempty"`
}

// HasRange reports whether the schema declares a range key.
func (k KeySchema) HasRange() bool { return k.RangeKey != "" }

// GlobalSecondaryIndex describes one GSI on a table.
type GlobalSecondaryIndex struct {
	Name        string         `json:"name"`
	Keys        KeySchema      `json:"keys"`
	Projection  ProjectionType `json:"projection"`
	NonKeyAttrs []string       `json:"nonKeyAttrs,omitempty"`
}

// TTLSpec describes the table's time-to-live configuration.
type TTLSpec struct {
	Enabled   bool   `json:"enabled"`
	Attribute string `json:"attribute,omitempty"`
}

// StreamSpec describes the table's change stream configuration.
type StreamSpec struct {
	Enabled  bool           `json:"enabled"`
	ViewType StreamViewType `json:"viewType,omitempty"`
	StreamID string         `json:"streamId,omitempty"`
	Label    string         `json:"label,omitempty"`
}

// TableDefinition is the catalog entry for one table.
type TableDefinition struct {
	Name           string                `json:"name"`
	Keys           KeySchema             `json:"keys"`
	AttributeTypes map[string]attr.Type  `json:"attributeTypes"`
	GSIs           []GlobalSecondaryIndex `json:"gsis,omitempty"`
	TTL            TTLSpec               `json:"ttl"`
	Stream         StreamSpec            `json:"stream"`
	CreatedAt      time.Time             `json:"createdAt"`
}

// Validate checks the definition's internal consistency: declared key
// attributes must carry scalar type hints, GSI names must be unique, and
// INCLUDE projections must name their non-key attributes.
func (t TableDefinition) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("table name must not be empty")
	}
	if err := t.validateKeySchema(t.Keys); err != nil {
		return err
	}
	seen := map[string]struct{}{}
	for _, gsi := range t.GSIs {
		if gsi.Name == "" {
			return fmt.Errorf("global secondary index name must not be empty")
		}
		if _, dup := seen[gsi.Name]; dup {
			return fmt.Errorf("duplicate global secondary index %q", gsi.Name)
		}
		seen[gsi.Name] = struct{}{}
		if err := t.validateKeySchema(gsi.Keys); err != nil {
			return fmt.Errorf("index %q: %w", gsi.Name, err)
		}
		switch gsi.Projection {
		case ProjectionAll, ProjectionKeysOnly:
		case ProjectionInclude:
			if len(gsi.NonKeyAttrs) == 0 {
				return fmt.Errorf("index %q: INCLUDE projection requires non-key attributes", gsi.Name)
			}
		default:
			return fmt.Errorf("index %q: unknown projection type %q", gsi.Name, gsi.Projection)
		}
	}
	if t.Stream.Enabled {
		switch t.Stream.ViewType {
		case StreamViewKeysOnly, StreamViewNewImage, StreamViewOldImage, StreamViewNewAndOldImages:
		default:
			return fmt.Errorf("unknown stream view type %q", t.Stream.ViewType)
		}
	}
	return nil
}

func (t TableDefinition) validateKeySchema(k KeySchema) error {
	if k.HashKey == "" {
		return fmt.Errorf("no hash key specified in schema")
	}
	ht, ok := t.AttributeTypes[k.HashKey]
	if !ok {
		return fmt.Errorf("hash key %q not specified in attribute definitions", k.HashKey)
	}
	if !attr.ScalarKeyType(ht) {
		return fmt.Errorf("hash key %q has non-scalar type %s", k.HashKey, ht)
	}
	if k.RangeKey != "" {
		rt, ok := t.AttributeTypes[k.RangeKey]
		if !ok {
			return fmt.Errorf("range key %q not specified in attribute definitions", k.RangeKey)
		}
		if !attr.ScalarKeyType(rt) {
			return fmt.Errorf("range key %q has non-scalar type %s", k.RangeKey, rt)
		}
	}
	return nil
}

// GSI returns the named index.
func (t TableDefinition) GSI(name string) (GlobalSecondaryIndex, bool) {
	for _, gsi := range t.GSIs {
		if gsi.Name == name {
			return gsi, true
		}
	}
	return GlobalSecondaryIndex{}, false
}

// KeyAttributeNames lists every attribute that is a key of the table or of
// one of its indexes.
func (t TableDefinition) KeyAttributeNames() map[string]struct{} {
	names := map[string]struct{}{t.Keys.HashKey: {}}
	if t.Keys.HasRange() {
		names[t.Keys.RangeKey] = struct{}{}
	}
	for _, gsi := range t.GSIs {
		names[gsi.Keys.HashKey] = struct{}{}
		if gsi.Keys.HasRange() {
			names[gsi.Keys.RangeKey] = struct{}{}
		}
	}
	return names
}

// ExtractKey pulls the primary key out of an item, validating presence and
// declared types.
func (t TableDefinition) ExtractKey(item attr.Item) (attr.Item, error) {
	return extractKey(item, t.Keys, t.AttributeTypes)
}

// ValidateKey checks that key is exactly the table's primary key: the hash
// attribute, the range attribute iff declared, and nothing else.
func (t TableDefinition) ValidateKey(key attr.Item) error {
	expected := 1
	if t.Keys.HasRange() {
		expected = 2
	}
	if len(key) != expected {
		return fmt.Errorf("the provided key element does not match the schema")
	}
	_, err := extractKey(key, t.Keys, t.AttributeTypes)
	return err
}

func extractKey(item attr.Item, keys KeySchema, types map[string]attr.Type) (attr.Item, error) {
	out := attr.Item{}
	hv, ok := item[keys.HashKey]
	if !ok {
		return nil, fmt.Errorf("missing the key %s in the item", keys.HashKey)
	}
	if hv.Type() != types[keys.HashKey] {
		return nil, fmt.Errorf("type mismatch for key %s, expected %s, actual %s", keys.HashKey, types[keys.HashKey], hv.Type())
	}
	out[keys.HashKey] = hv
	if keys.HasRange() {
		rv, ok := item[keys.RangeKey]
		if !ok {
			return nil, fmt.Errorf("missing the key %s in the item", keys.RangeKey)
		}
		if rv.Type() != types[keys.RangeKey] {
			return nil, fmt.Errorf("type mismatch for key %s, expected %s, actual %s", keys.RangeKey, types[keys.RangeKey], rv.Type())
		}
		out[keys.RangeKey] = rv
	}
	return out, nil
}

// QualifiesForGSI reports whether the item owns every key attribute of the
// index with a matching scalar type. Items that do not qualify have no row
// in that index.
func (t TableDefinition) QualifiesForGSI(gsi GlobalSecondaryIndex, item attr.Item) bool {
	hv, ok := item[gsi.Keys.HashKey]
	if !ok || hv.Type() != t.AttributeTypes[gsi.Keys.HashKey] {
		return false
	}
	if gsi.Keys.HasRange() {
		rv, ok := item[gsi.Keys.RangeKey]
		if !ok || rv.Type() != t.AttributeTypes[gsi.Keys.RangeKey] {
			return false
		}
	}
	return true
}

// ProjectForGSI restricts an item to the attributes the index stores: the
// index and table keys always, plus the named attributes for INCLUDE, or
// everything for ALL.
func (t TableDefinition) ProjectForGSI(gsi GlobalSecondaryIndex, item attr.Item) attr.Item {
	if gsi.Projection == ProjectionAll {
		return item.Clone()
	}
	out := attr.Item{}
	keep := []string{t.Keys.HashKey, t.Keys.RangeKey, gsi.Keys.HashKey, gsi.Keys.RangeKey}
	if gsi.Projection == ProjectionInclude {
		keep = append(keep, gsi.NonKeyAttrs...)
	}
	for _, name := range keep {
		if name == "" {
			continue
		}
		if v, ok := item[name]; ok {
			out[name] = v.Clone()
		}
	}
	return out
}

// IncludesOldImage reports whether the view type captures pre-images.
func (v StreamViewType) IncludesOldImage() bool {
	return v == StreamViewOldImage || v == StreamViewNewAndOldImages
}

// IncludesNewImage reports whether the view type captures post-images.
func (v StreamViewType) IncludesNewImage() bool {
	return v == StreamViewNewImage || v == StreamViewNewAndOldImages
}
