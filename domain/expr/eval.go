package expr

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"pretenderdb/domain/attr"
)

// Evaluate runs a condition against an item. Operands that do not resolve
// make their enclosing predicate false rather than failing, matching
// DynamoDB's missing-attribute semantics (size of an unsized variant
// counts as missing too); genuinely malformed constructs such as a bad
// attribute_type argument surface as errors.
func Evaluate(cond Condition, item attr.Item) (bool, error) {
	switch c := cond.(type) {
	case AndCondition:
		left, err := Evaluate(c.Left, item)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return Evaluate(c.Right, item)
	case OrCondition:
		left, err := Evaluate(c.Left, item)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return Evaluate(c.Right, item)
	case NotCondition:
		inner, err := Evaluate(c.Inner, item)
		if err != nil {
			return false, err
		}
		return !inner, nil
	case CompareCondition:
		return evalCompare(c, item)
	case BetweenCondition:
		return evalBetween(c, item)
	case InCondition:
		return evalIn(c, item)
	case FuncCondition:
		return evalBoolFunc(c, item)
	}
	return false, fmt.Errorf("unknown condition node %T", cond)
}

// resolveOperand produces the operand's value against the item; ok is
// false when a path does not resolve.
func resolveOperand(op Operand, item attr.Item) (attr.Value, bool, error) {
	switch o := op.(type) {
	case ValueOperand:
		return o.Value, true, nil
	case PathOperand:
		v, ok := o.Path.Resolve(item)
		return v, ok, nil
	case FuncOperand:
		if o.Name != "size" {
			return attr.Value{}, false, fmt.Errorf("function %s is not allowed here", o.Name)
		}
		arg, ok, err := resolveOperand(o.Args[0], item)
		if err != nil || !ok {
			return attr.Value{}, false, err
		}
		n, sized := sizeOf(arg)
		if !sized {
			return attr.Value{}, false, nil
		}
		return attr.Number(fmt.Sprintf("%d", n)), true, nil
	case ArithmeticOperand:
		return attr.Value{}, false, fmt.Errorf("arithmetic is only allowed in SET actions")
	}
	return attr.Value{}, false, fmt.Errorf("unknown operand node %T", op)
}

// sizeOf returns element/byte/character count per variant.
func sizeOf(v attr.Value) (int, bool) {
	switch v.Type() {
	case attr.TypeString:
		s, _ := v.StringValue()
		return utf8.RuneCountInString(s), true
	case attr.TypeBinary:
		b, _ := v.BinaryValue()
		return len(b), true
	case attr.TypeStringSet, attr.TypeNumberSet:
		elems, _ := v.SetElements()
		return len(elems), true
	case attr.TypeBinarySet:
		elems, _ := v.BinarySetElements()
		return len(elems), true
	case attr.TypeList:
		elems, _ := v.ListElements()
		return len(elems), true
	case attr.TypeMap:
		entries, _ := v.MapEntries()
		return len(entries), true
	}
	return 0, false
}

func evalCompare(c CompareCondition, item attr.Item) (bool, error) {
	left, lok, err := resolveOperand(c.Left, item)
	if err != nil {
		return false, err
	}
	right, rok, err := resolveOperand(c.Right, item)
	if err != nil {
		return false, err
	}
	if !lok || !rok {
		return false, nil
	}
	switch c.Op {
	case OpEq:
		return left.Equal(right), nil
	case OpNe:
		return !left.Equal(right), nil
	}
	cmp, err := attr.Compare(left, right)
	if err != nil {
		// Ordering across mismatched or unorderable variants is false,
		// not an error.
		return false, nil
	}
	switch c.Op {
	case OpLt:
		return cmp < 0, nil
	case OpLe:
		return cmp <= 0, nil
	case OpGt:
		return cmp > 0, nil
	case OpGe:
		return cmp >= 0, nil
	}
	return false, fmt.Errorf("unknown comparator %q", c.Op)
}

func evalBetween(c BetweenCondition, item attr.Item) (bool, error) {
	v, vok, err := resolveOperand(c.Operand, item)
	if err != nil {
		return false, err
	}
	lower, lok, err := resolveOperand(c.Lower, item)
	if err != nil {
		return false, err
	}
	upper, uok, err := resolveOperand(c.Upper, item)
	if err != nil {
		return false, err
	}
	if !vok || !lok || !uok {
		return false, nil
	}
	lo, err := attr.Compare(v, lower)
	if err != nil {
		return false, nil
	}
	hi, err := attr.Compare(v, upper)
	if err != nil {
		return false, nil
	}
	return lo >= 0 && hi <= 0, nil
}

func evalIn(c InCondition, item attr.Item) (bool, error) {
	v, ok, err := resolveOperand(c.Operand, item)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	for _, candidate := range c.List {
		cv, cok, err := resolveOperand(candidate, item)
		if err != nil {
			return false, err
		}
		if cok && v.Equal(cv) {
			return true, nil
		}
	}
	return false, nil
}

func evalBoolFunc(c FuncCondition, item attr.Item) (bool, error) {
	switch c.Name {
	case "attribute_exists":
		_, ok, err := resolveOperand(c.Args[0], item)
		return ok, err
	case "attribute_not_exists":
		_, ok, err := resolveOperand(c.Args[0], item)
		return !ok, err
	case "attribute_type":
		v, ok, err := resolveOperand(c.Args[0], item)
		if err != nil {
			return false, err
		}
		want, wok, err := resolveOperand(c.Args[1], item)
		if err != nil {
			return false, err
		}
		if !wok {
			return false, fmt.Errorf("attribute_type requires a type name argument")
		}
		name, isStr := want.StringValue()
		if !isStr || !validTypeName(name) {
			return false, fmt.Errorf("attribute_type argument must be one of S, N, B, BOOL, NULL, SS, NS, BS, L, M")
		}
		return ok && string(v.Type()) == name, nil
	case "begins_with":
		v, vok, err := resolveOperand(c.Args[0], item)
		if err != nil {
			return false, err
		}
		prefix, pok, err := resolveOperand(c.Args[1], item)
		if err != nil {
			return false, err
		}
		if !vok || !pok {
			return false, nil
		}
		return beginsWith(v, prefix), nil
	case "contains":
		hay, hok, err := resolveOperand(c.Args[0], item)
		if err != nil {
			return false, err
		}
		needle, nok, err := resolveOperand(c.Args[1], item)
		if err != nil {
			return false, err
		}
		if !hok || !nok {
			return false, nil
		}
		return contains(hay, needle), nil
	}
	return false, fmt.Errorf("unknown function %q", c.Name)
}

func validTypeName(name string) bool {
	switch attr.Type(name) {
	case attr.TypeString, attr.TypeNumber, attr.TypeBinary, attr.TypeBool,
		attr.TypeNull, attr.TypeStringSet, attr.TypeNumberSet,
		attr.TypeBinarySet, attr.TypeList, attr.TypeMap:
		return true
	}
	return false
}

func beginsWith(v, prefix attr.Value) bool {
	if s, ok := v.StringValue(); ok {
		p, pok := prefix.StringValue()
		return pok && strings.HasPrefix(s, p)
	}
	if b, ok := v.BinaryValue(); ok {
		p, pok := prefix.BinaryValue()
		return pok && bytes.HasPrefix(b, p)
	}
	return false
}

func contains(hay, needle attr.Value) bool {
	switch hay.Type() {
	case attr.TypeString:
		s, _ := hay.StringValue()
		sub, ok := needle.StringValue()
		return ok && strings.Contains(s, sub)
	case attr.TypeStringSet:
		elems, _ := hay.SetElements()
		want, ok := needle.StringValue()
		if !ok {
			return false
		}
		for _, e := range elems {
			if e == want {
				return true
			}
		}
	case attr.TypeNumberSet:
		elems, _ := hay.SetElements()
		want, ok := needle.NumberValue()
		if !ok {
			return false
		}
		for _, e := range elems {
			if attr.NumbersEqual(e, want) {
				return true
			}
		}
	case attr.TypeBinarySet:
		elems, _ := hay.BinarySetElements()
		want, ok := needle.BinaryValue()
		if !ok {
			return false
		}
		for _, e := range elems {
			if bytes.Equal(e, want) {
				return true
			}
		}
	case attr.TypeList:
		elems, _ := hay.ListElements()
		for _, e := range elems {
			if e.Equal(needle) {
				return true
			}
		}
	}
	return false
}
