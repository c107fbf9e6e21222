package postgres

import (
	"fmt"

	"pretenderdb/domain/attr"
	"pretenderdb/domain/schema"
)

// columnFor maps a key column prefix and a declared key type onto the
// typed SQL column holding it.
func columnFor(prefix string, t attr.Type) string {
	switch t {
	case attr.TypeString:
		return prefix + "_s"
	case attr.TypeNumber:
		return prefix + "_n"
	case attr.TypeBinary:
		return prefix + "_b"
	}
	return prefix + "_s"
}

// keyParam converts a scalar key value into its SQL parameter form. N
// values are normalized so the NUMERIC column sees one spelling per
// number.
func keyParam(v attr.Value) (interface{}, error) {
	switch v.Type() {
	case attr.TypeString:
		s, _ := v.StringValue()
		return s, nil
	case attr.TypeNumber:
		n, _ := v.NumberValue()
		return attr.NormalizeNumber(n)
	case attr.TypeBinary:
		b, _ := v.BinaryValue()
		return b, nil
	}
	return nil, fmt.Errorf("value of type %s cannot be a key", v.Type())
}

// predicateBuilder accumulates WHERE clauses and their parameters.
type predicateBuilder struct {
	clauses []string
	args    []interface{}
}

func (b *predicateBuilder) add(column string, value interface{}) {
	b.args = append(b.args, value)
	b.clauses = append(b.clauses, fmt.Sprintf("%s = $%d", column, len(b.args)))
}

func (b *predicateBuilder) addRaw(clause string, values ...interface{}) {
	b.args = append(b.args, values...)
	b.clauses = append(b.clauses, clause)
}

// next returns the placeholder index the next argument will take.
func (b *predicateBuilder) next() int { return len(b.args) + 1 }

// primaryKeyPredicate builds the WHERE fragment locating one item row.
func primaryKeyPredicate(b *predicateBuilder, def schema.TableDefinition, key attr.Item) error {
	hv := key[def.Keys.HashKey]
	hp, err := keyParam(hv)
	if err != nil {
		return err
	}
	b.add(columnFor("hash", def.AttributeTypes[def.Keys.HashKey]), hp)
	if def.Keys.HasRange() {
		rv := key[def.Keys.RangeKey]
		rp, err := keyParam(rv)
		if err != nil {
			return err
		}
		b.add(columnFor("range", def.AttributeTypes[def.Keys.RangeKey]), rp)
	}
	return nil
}
