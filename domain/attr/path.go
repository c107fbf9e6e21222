package attr

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSegment is one step of a document path: a map field or a list index.
type PathSegment struct {
	Field string
	Index int
	IsIndex bool
}

// Path navigates nested maps and lists inside an item. The first segment
// is always a field (the top-level attribute name).
type Path []PathSegment

// FieldSegment creates a map-field step.
func FieldSegment(name string) PathSegment {
	return PathSegment{Field: name}
}

// IndexSegment creates a list-index step.
func IndexSegment(i int) PathSegment {
	return PathSegment{Index: i, IsIndex: true}
}

// String renders the path in expression syntax, e.g. "a.b[2].c".
func (p Path) String() string {
	var b strings.Builder
	for i, seg := range p {
		if seg.IsIndex {
			b.WriteString("[" + strconv.Itoa(seg.Index) + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(seg.Field)
	}
	return b.String()
}

// Root returns the top-level attribute name the path starts at.
func (p Path) Root() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].Field
}

// Resolve walks the path through the item. Navigation into an absent
// attribute, a wrong variant or an out-of-range index yields "missing"
// rather than an error.
func (p Path) Resolve(item Item) (Value, bool) {
	if len(p) == 0 || p[0].IsIndex {
		return Value{}, false
	}
	cur, ok := item[p[0].Field]
	if !ok {
		return Value{}, false
	}
	for _, seg := range p[1:] {
		if seg.IsIndex {
			elems, isList := cur.ListElements()
			if !isList || seg.Index < 0 || seg.Index >= len(elems) {
				return Value{}, false
			}
			cur = elems[seg.Index]
			continue
		}
		entries, isMap := cur.MapEntries()
		if !isMap {
			return Value{}, false
		}
		next, present := entries[seg.Field]
		if !present {
			return Value{}, false
		}
		cur = next
	}
	return cur, true
}

// Set writes v at the path, creating intermediate maps as needed. Setting
// an index beyond the end of a list appends; setting an index on a
// non-list is an error.
func (p Path) Set(item Item, v Value) error {
	if len(p) == 0 || p[0].IsIndex {
		return fmt.Errorf("document path must start with an attribute name")
	}
	if len(p) == 1 {
		item[p[0].Field] = v
		return nil
	}
	cur, ok := item[p[0].Field]
	if !ok {
		cur = emptyContainerFor(p[1])
	}
	updated, err := setInValue(cur, p[1:], v)
	if err != nil {
		return fmt.Errorf("document path %s: %w", p, err)
	}
	item[p[0].Field] = updated
	return nil
}

// emptyContainerFor picks the container created for a missing
// intermediate: a list when the next step indexes, a map otherwise.
func emptyContainerFor(next PathSegment) Value {
	if next.IsIndex {
		return List()
	}
	return Map(map[string]Value{})
}

func setInValue(cur Value, rest Path, v Value) (Value, error) {
	seg := rest[0]
	if seg.IsIndex {
		elems, isList := cur.ListElements()
		if !isList {
			return Value{}, fmt.Errorf("index applied to non-list value")
		}
		out := make([]Value, len(elems))
		copy(out, elems)
		idx := seg.Index
		if idx < 0 {
			return Value{}, fmt.Errorf("negative list index")
		}
		if idx >= len(out) {
			// DynamoDB appends when the index is past the end.
			idx = len(out)
			out = append(out, Value{})
		}
		if len(rest) == 1 {
			out[idx] = v
		} else {
			child := out[idx]
			if !child.IsValid() {
				child = emptyContainerFor(rest[1])
			}
			updated, err := setInValue(child, rest[1:], v)
			if err != nil {
				return Value{}, err
			}
			out[idx] = updated
		}
		return List(out...), nil
	}

	entries, isMap := cur.MapEntries()
	if !isMap {
		if cur.IsValid() {
			return Value{}, fmt.Errorf("field %q applied to non-map value", seg.Field)
		}
		entries = map[string]Value{}
	}
	out := make(map[string]Value, len(entries)+1)
	for k, e := range entries {
		out[k] = e
	}
	if len(rest) == 1 {
		out[seg.Field] = v
	} else {
		child, present := out[seg.Field]
		if !present {
			child = emptyContainerFor(rest[1])
		}
		updated, err := setInValue(child, rest[1:], v)
		if err != nil {
			return Value{}, err
		}
		out[seg.Field] = updated
	}
	return Map(out), nil
}

// Remove deletes the value at the path. A path that does not resolve is a
// no-op, matching REMOVE semantics.
func (p Path) Remove(item Item) {
	if len(p) == 0 || p[0].IsIndex {
		return
	}
	if len(p) == 1 {
		delete(item, p[0].Field)
		return
	}
	cur, ok := item[p[0].Field]
	if !ok {
		return
	}
	updated, changed := removeInValue(cur, p[1:])
	if changed {
		item[p[0].Field] = updated
	}
}

func removeInValue(cur Value, rest Path) (Value, bool) {
	seg := rest[0]
	if seg.IsIndex {
		elems, isList := cur.ListElements()
		if !isList || seg.Index < 0 || seg.Index >= len(elems) {
			return cur, false
		}
		out := make([]Value, 0, len(elems))
		if len(rest) == 1 {
			out = append(out, elems[:seg.Index]...)
			out = append(out, elems[seg.Index+1:]...)
			return List(out...), true
		}
		updated, changed := removeInValue(elems[seg.Index], rest[1:])
		if !changed {
			return cur, false
		}
		out = append(out, elems...)
		out[seg.Index] = updated
		return List(out...), true
	}

	entries, isMap := cur.MapEntries()
	if !isMap {
		return cur, false
	}
	child, present := entries[seg.Field]
	if !present {
		return cur, false
	}
	out := make(map[string]Value, len(entries))
	for k, e := range entries {
		out[k] = e
	}
	if len(rest) == 1 {
		delete(out, seg.Field)
		return Map(out), true
	}
	updated, changed := removeInValue(child, rest[1:])
	if !changed {
		return cur, false
	}
	out[seg.Field] = updated
	return Map(out), true
}
