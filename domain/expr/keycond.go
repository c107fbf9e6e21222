package expr

import (
	"fmt"

	"pretenderdb/domain/attr"
)

// RangeOp is the operator of a range-key constraint in a key condition.
type RangeOp string

const (
	RangeEq         RangeOp = "="
	RangeLt         RangeOp = "<"
	RangeLe         RangeOp = "<="
	RangeGt         RangeOp = ">"
	RangeGe         RangeOp = ">="
	RangeBetween    RangeOp = "BETWEEN"
	RangeBeginsWith RangeOp = "begins_with"
)

// KeyCondition is the compiled form of a KeyConditionExpression: the hash
// key pinned to one value, and at most one range-key constraint.
type KeyCondition struct {
	HashAttribute string
	HashValue     attr.Value

	RangeAttribute string
	RangeOp        RangeOp
	RangeValue     attr.Value
	RangeUpper     attr.Value // BETWEEN only
}

// HasRangeCondition reports whether a range constraint is present.
func (k *KeyCondition) HasRangeCondition() bool { return k.RangeOp != "" }

// ParseKeyCondition parses and structurally validates a key condition:
// "hash = :v", optionally AND-ed with exactly one range constraint using
// =, <, <=, >, >=, BETWEEN or begins_with. Any other shape is invalid.
func ParseKeyCondition(input string, env *Env) (*KeyCondition, error) {
	cond, err := ParseCondition(input, env)
	if err != nil {
		return nil, err
	}

	kc := &KeyCondition{}
	switch c := cond.(type) {
	case AndCondition:
		if err := kc.absorb(c.Left); err != nil {
			return nil, err
		}
		if err := kc.absorb(c.Right); err != nil {
			return nil, err
		}
	default:
		if err := kc.absorb(cond); err != nil {
			return nil, err
		}
	}
	if kc.HashAttribute == "" {
		return nil, fmt.Errorf("query key condition must include an equality on the hash key")
	}
	return kc, nil
}

// absorb classifies one predicate of the key condition as either the hash
// equality or the range constraint.
func (kc *KeyCondition) absorb(cond Condition) error {
	switch c := cond.(type) {
	case CompareCondition:
		name, value, op, err := keyComparison(c)
		if err != nil {
			return err
		}
		if op == RangeEq && kc.HashAttribute == "" {
			kc.HashAttribute = name
			kc.HashValue = value
			return nil
		}
		return kc.setRange(name, op, value, attr.Value{})
	case BetweenCondition:
		path, ok := c.Operand.(PathOperand)
		if !ok || len(path.Path) != 1 {
			return fmt.Errorf("key condition BETWEEN must apply to a key attribute")
		}
		lower, lok := c.Lower.(ValueOperand)
		upper, uok := c.Upper.(ValueOperand)
		if !lok || !uok {
			return fmt.Errorf("key condition BETWEEN bounds must be expression attribute values")
		}
		return kc.setRange(path.Path.Root(), RangeBetween, lower.Value, upper.Value)
	case FuncCondition:
		if c.Name != "begins_with" {
			return fmt.Errorf("function %s is not allowed in a key condition", c.Name)
		}
		path, ok := c.Args[0].(PathOperand)
		if !ok || len(path.Path) != 1 {
			return fmt.Errorf("begins_with in a key condition must apply to a key attribute")
		}
		prefix, ok := c.Args[1].(ValueOperand)
		if !ok {
			return fmt.Errorf("begins_with prefix must be an expression attribute value")
		}
		return kc.setRange(path.Path.Root(), RangeBeginsWith, prefix.Value, attr.Value{})
	default:
		return fmt.Errorf("key condition supports only comparisons, BETWEEN and begins_with")
	}
}

func keyComparison(c CompareCondition) (string, attr.Value, RangeOp, error) {
	path, ok := c.Left.(PathOperand)
	if !ok || len(path.Path) != 1 {
		return "", attr.Value{}, "", fmt.Errorf("key condition comparisons must name a key attribute on the left")
	}
	value, ok := c.Right.(ValueOperand)
	if !ok {
		return "", attr.Value{}, "", fmt.Errorf("key condition comparisons must compare against an expression attribute value")
	}
	switch c.Op {
	case OpEq:
		return path.Path.Root(), value.Value, RangeEq, nil
	case OpLt, OpLe, OpGt, OpGe:
		return path.Path.Root(), value.Value, RangeOp(c.Op), nil
	default:
		return "", attr.Value{}, "", fmt.Errorf("operator %s is not allowed in a key condition", c.Op)
	}
}

func (kc *KeyCondition) setRange(name string, op RangeOp, value, upper attr.Value) error {
	if kc.RangeOp != "" {
		return fmt.Errorf("key condition may constrain the range key at most once")
	}
	kc.RangeAttribute = name
	kc.RangeOp = op
	kc.RangeValue = value
	kc.RangeUpper = upper
	return nil
}

// BindSchema validates the compiled condition against the queried key
// schema: the hash predicate must name the hash key, the range predicate
// the range key, with value types matching the declared key types.
func (kc *KeyCondition) BindSchema(hashKey, rangeKey string, types map[string]attr.Type) error {
	if kc.HashAttribute != hashKey {
		return fmt.Errorf("query condition missed key schema element: %s", hashKey)
	}
	if kc.HashValue.Type() != types[hashKey] {
		return fmt.Errorf("condition parameter type does not match schema type for key %s", hashKey)
	}
	if !kc.HasRangeCondition() {
		return nil
	}
	if rangeKey == "" || kc.RangeAttribute != rangeKey {
		return fmt.Errorf("query condition missed key schema element: %s", kc.RangeAttribute)
	}
	if kc.RangeValue.Type() != types[rangeKey] {
		return fmt.Errorf("condition parameter type does not match schema type for key %s", rangeKey)
	}
	if kc.RangeOp == RangeBetween && kc.RangeUpper.Type() != types[rangeKey] {
		return fmt.Errorf("condition parameter type does not match schema type for key %s", rangeKey)
	}
	if kc.RangeOp == RangeBeginsWith && types[rangeKey] == attr.TypeNumber {
		return fmt.Errorf("begins_with is not supported for the number key %s", rangeKey)
	}
	return nil
}
