package expr

import (
	"fmt"

	"pretenderdb/domain/attr"
)

// Apply runs the update expression against a pre-image and returns the
// post-image. Operands are evaluated against the pre-image, so actions in
// one expression do not observe each other's writes.
func (u *UpdateExpression) Apply(pre attr.Item) (attr.Item, error) {
	post := pre.Clone()
	if post == nil {
		post = attr.Item{}
	}
	for _, action := range u.Actions {
		var err error
		switch action.Kind {
		case ActionSet:
			err = applySet(action, pre, post)
		case ActionRemove:
			action.Path.Remove(post)
		case ActionAdd:
			err = applyAdd(action, post)
		case ActionDelete:
			err = applyDelete(action, post)
		}
		if err != nil {
			return nil, err
		}
	}
	return post, nil
}

// TouchedRoots lists the top-level attribute names the expression writes,
// in first-seen order. Used for UPDATED_OLD / UPDATED_NEW return values.
func (u *UpdateExpression) TouchedRoots() []string {
	var roots []string
	seen := map[string]struct{}{}
	for _, action := range u.Actions {
		root := action.Path.Root()
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	return roots
}

func applySet(action UpdateAction, pre, post attr.Item) error {
	v, err := evalSetOperand(action.Value, pre)
	if err != nil {
		return err
	}
	return action.Path.Set(post, v)
}

// evalSetOperand evaluates the right-hand side of a SET action against the
// pre-image. Unlike condition evaluation, an unresolved path here is an
// error, not "missing".
func evalSetOperand(op Operand, pre attr.Item) (attr.Value, error) {
	switch o := op.(type) {
	case ValueOperand:
		return o.Value, nil
	case PathOperand:
		v, ok := o.Path.Resolve(pre)
		if !ok {
			return attr.Value{}, fmt.Errorf("the provided expression refers to an attribute that does not exist in the item: %s", o.Path)
		}
		return v, nil
	case FuncOperand:
		switch o.Name {
		case "if_not_exists":
			path := o.Args[0].(PathOperand)
			if v, ok := path.Path.Resolve(pre); ok {
				return v, nil
			}
			return evalSetOperand(o.Args[1], pre)
		case "list_append":
			left, err := evalSetOperand(o.Args[0], pre)
			if err != nil {
				return attr.Value{}, err
			}
			right, err := evalSetOperand(o.Args[1], pre)
			if err != nil {
				return attr.Value{}, err
			}
			le, lok := left.ListElements()
			re, rok := right.ListElements()
			if !lok || !rok {
				return attr.Value{}, fmt.Errorf("list_append operands must both be lists")
			}
			out := make([]attr.Value, 0, len(le)+len(re))
			out = append(out, le...)
			out = append(out, re...)
			return attr.List(out...), nil
		default:
			return attr.Value{}, fmt.Errorf("function %s is not allowed in a SET action", o.Name)
		}
	case ArithmeticOperand:
		left, err := evalSetOperand(o.Left, pre)
		if err != nil {
			return attr.Value{}, err
		}
		right, err := evalSetOperand(o.Right, pre)
		if err != nil {
			return attr.Value{}, err
		}
		ln, lok := left.NumberValue()
		rn, rok := right.NumberValue()
		if !lok || !rok {
			return attr.Value{}, fmt.Errorf("arithmetic operands must both be numbers")
		}
		var result string
		if o.Plus {
			result, err = attr.AddNumbers(ln, rn)
		} else {
			result, err = attr.SubtractNumbers(ln, rn)
		}
		if err != nil {
			return attr.Value{}, err
		}
		return attr.Number(result), nil
	}
	return attr.Value{}, fmt.Errorf("unknown operand node %T", op)
}

// applyAdd implements ADD: numeric addition for N, set union for SS/NS/BS.
// A missing target is created from the operand as if added to zero or the
// empty set.
func applyAdd(action UpdateAction, post attr.Item) error {
	operand := action.Value.(ValueOperand).Value
	existing, exists := action.Path.Resolve(post)

	switch operand.Type() {
	case attr.TypeNumber:
		n, _ := operand.NumberValue()
		if !exists {
			return action.Path.Set(post, attr.Number(n))
		}
		en, ok := existing.NumberValue()
		if !ok {
			return fmt.Errorf("ADD requires a number when the existing attribute %s is not a set", action.Path)
		}
		sum, err := attr.AddNumbers(en, n)
		if err != nil {
			return err
		}
		return action.Path.Set(post, attr.Number(sum))
	case attr.TypeStringSet, attr.TypeNumberSet, attr.TypeBinarySet:
		if !exists {
			return action.Path.Set(post, operand.Clone())
		}
		if existing.Type() != operand.Type() {
			return fmt.Errorf("ADD set operand type %s does not match existing attribute type %s", operand.Type(), existing.Type())
		}
		return action.Path.Set(post, setUnion(existing, operand))
	default:
		return fmt.Errorf("ADD action supports only number and set operands, got %s", operand.Type())
	}
}

// applyDelete implements DELETE: set difference. Deleting every element
// removes the attribute.
func applyDelete(action UpdateAction, post attr.Item) error {
	operand := action.Value.(ValueOperand).Value
	switch operand.Type() {
	case attr.TypeStringSet, attr.TypeNumberSet, attr.TypeBinarySet:
	default:
		return fmt.Errorf("DELETE action supports only set operands, got %s", operand.Type())
	}
	existing, exists := action.Path.Resolve(post)
	if !exists {
		return nil
	}
	if existing.Type() != operand.Type() {
		return fmt.Errorf("DELETE set operand type %s does not match existing attribute type %s", operand.Type(), existing.Type())
	}
	remaining := setDifference(existing, operand)
	if n, _ := sizeOf(remaining); n == 0 {
		action.Path.Remove(post)
		return nil
	}
	return action.Path.Set(post, remaining)
}

func setUnion(a, b attr.Value) attr.Value {
	if a.Type() == attr.TypeBinarySet {
		ae, _ := a.BinarySetElements()
		be, _ := b.BinarySetElements()
		return attr.BinarySet(append(append([][]byte{}, ae...), be...)...)
	}
	ae, _ := a.SetElements()
	be, _ := b.SetElements()
	merged := append(append([]string{}, ae...), be...)
	if a.Type() == attr.TypeNumberSet {
		return attr.NumberSet(merged...)
	}
	return attr.StringSet(merged...)
}

func setDifference(a, b attr.Value) attr.Value {
	if a.Type() == attr.TypeBinarySet {
		ae, _ := a.BinarySetElements()
		var kept [][]byte
		for _, e := range ae {
			if !contains(b, attr.Binary(e)) {
				kept = append(kept, e)
			}
		}
		return attr.BinarySet(kept...)
	}
	ae, _ := a.SetElements()
	var kept []string
	for _, e := range ae {
		var needle attr.Value
		if a.Type() == attr.TypeNumberSet {
			needle = attr.Number(e)
		} else {
			needle = attr.String(e)
		}
		if !contains(b, needle) {
			kept = append(kept, e)
		}
	}
	if a.Type() == attr.TypeNumberSet {
		return attr.NumberSet(kept...)
	}
	return attr.StringSet(kept...)
}
