package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pretenderdb/domain/attr"
)

func env(values map[string]attr.Value, names map[string]string) *Env {
	return NewEnv(names, values)
}

func evalFilter(t *testing.T, input string, e *Env, item attr.Item) bool {
	t.Helper()
	cond, err := ParseCondition(input, e)
	require.NoError(t, err)
	ok, err := Evaluate(cond, item)
	require.NoError(t, err)
	return ok
}

func TestComparisons(t *testing.T) {
	item := attr.Item{
		"age":  attr.Number("30"),
		"nickname": attr.String("carol"),
	}
	e := env(map[string]attr.Value{
		":min":  attr.Number("18"),
		":max":  attr.Number("65"),
		":name": attr.String("carol"),
	}, nil)

	assert.True(t, evalFilter(t, "age >= :min AND age < :max", e, item))
	assert.True(t, evalFilter(t, "#n = :name", env(map[string]attr.Value{":name": attr.String("carol")}, map[string]string{"#n": "nickname"}), item))
	assert.False(t, evalFilter(t, "age < :min", env(map[string]attr.Value{":min": attr.Number("18")}, nil), item))
}

func TestNumericComparisonIsNumeric(t *testing.T) {
	item := attr.Item{"v": attr.Number("9")}
	e := env(map[string]attr.Value{":v": attr.Number("10")}, nil)
	// Lexicographically "9" > "10"; numerically 9 < 10.
	assert.True(t, evalFilter(t, "v < :v", e, item))
}

func TestMissingAttributeComparesFalse(t *testing.T) {
	e := env(map[string]attr.Value{":v": attr.Number("1")}, nil)
	assert.False(t, evalFilter(t, "absent = :v", e, attr.Item{}))
	assert.False(t, evalFilter(t, "absent <> :v", e, attr.Item{}), "even <> is false on missing")
}

func TestMismatchedTypesOrderFalse(t *testing.T) {
	item := attr.Item{"v": attr.String("5")}
	e := env(map[string]attr.Value{":v": attr.Number("4")}, nil)
	assert.False(t, evalFilter(t, "v > :v", e, item))
}

func TestBetweenAndIn(t *testing.T) {
	item := attr.Item{"n": attr.Number("5"), "s": attr.String("b")}

	e := env(map[string]attr.Value{":lo": attr.Number("1"), ":hi": attr.Number("10")}, nil)
	assert.True(t, evalFilter(t, "n BETWEEN :lo AND :hi", e, item))

	e = env(map[string]attr.Value{":a": attr.String("a"), ":b": attr.String("b")}, nil)
	assert.True(t, evalFilter(t, "s IN (:a, :b)", e, item))

	e = env(map[string]attr.Value{":a": attr.String("x")}, nil)
	assert.False(t, evalFilter(t, "s IN (:a)", e, item))
}

func TestBooleanFunctions(t *testing.T) {
	item := attr.Item{
		"tags": attr.StringSet("red", "blue"),
		"nums": attr.NumberSet("1", "2"),
		"nickname": attr.String("carpenter"),
		"elems": attr.List(attr.Number("7")),
		"bin":  attr.Binary([]byte{0xDE, 0xAD}),
	}

	e := env(nil, nil)
	assert.True(t, evalFilter(t, "attribute_exists(nickname)", e, item))
	assert.True(t, evalFilter(t, "attribute_not_exists(ghost)", e, item))

	e = env(map[string]attr.Value{":t": attr.String("SS")}, nil)
	assert.True(t, evalFilter(t, "attribute_type(tags, :t)", e, item))

	e = env(map[string]attr.Value{":p": attr.String("carp")}, nil)
	assert.True(t, evalFilter(t, "begins_with(nickname, :p)", e, item))

	e = env(map[string]attr.Value{":p": attr.Binary([]byte{0xDE})}, nil)
	assert.True(t, evalFilter(t, "begins_with(bin, :p)", e, item))

	e = env(map[string]attr.Value{":n": attr.String("pen")}, nil)
	assert.True(t, evalFilter(t, "contains(nickname, :n)", e, item), "substring")

	e = env(map[string]attr.Value{":n": attr.String("red")}, nil)
	assert.True(t, evalFilter(t, "contains(tags, :n)", e, item), "set membership")

	e = env(map[string]attr.Value{":n": attr.Number("2.0")}, nil)
	assert.True(t, evalFilter(t, "contains(nums, :n)", e, item), "numeric set membership")

	e = env(map[string]attr.Value{":n": attr.Number("7")}, nil)
	assert.True(t, evalFilter(t, "contains(elems, :n)", e, item), "list membership")
}

func TestSizeFunction(t *testing.T) {
	item := attr.Item{
		"nickname": attr.String("héllo"),
		"bin":  attr.Binary(make([]byte, 4)),
		"elems": attr.List(attr.Number("1"), attr.Number("2")),
	}
	e := env(map[string]attr.Value{":five": attr.Number("5")}, nil)
	assert.True(t, evalFilter(t, "size(nickname) = :five", e, item), "character count, not bytes")

	e = env(map[string]attr.Value{":n": attr.Number("4")}, nil)
	assert.True(t, evalFilter(t, "size(bin) = :n", e, item))

	e = env(map[string]attr.Value{":n": attr.Number("1")}, nil)
	assert.True(t, evalFilter(t, "size(elems) > :n", e, item))
}

func TestBooleanConnectivesAndParens(t *testing.T) {
	item := attr.Item{"a": attr.Number("1"), "b": attr.Number("2")}
	e := env(map[string]attr.Value{":one": attr.Number("1"), ":two": attr.Number("2")}, nil)
	assert.True(t, evalFilter(t, "a = :one AND (b = :two OR b = :one)", e, item))
	assert.True(t, evalFilter(t, "NOT a = :two", e, item))
}

func TestNestedPaths(t *testing.T) {
	item := attr.Item{
		"purchase": attr.Map(map[string]attr.Value{
			"lines": attr.List(attr.Map(map[string]attr.Value{"sku": attr.String("x1")})),
		}),
	}
	e := env(map[string]attr.Value{":sku": attr.String("x1")}, nil)
	assert.True(t, evalFilter(t, "purchase.lines[0].sku = :sku", e, item))
	assert.False(t, evalFilter(t, "purchase.lines[9].sku = :sku", env(map[string]attr.Value{":sku": attr.String("x1")}, nil), item))
}

func TestReservedWordRejected(t *testing.T) {
	e := env(map[string]attr.Value{":v": attr.String("open")}, nil)
	_, err := ParseCondition("status = :v", e)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reserved")

	// The placeholder form is fine.
	e = env(map[string]attr.Value{":v": attr.String("open")}, map[string]string{"#s": "status"})
	_, err = ParseCondition("#s = :v", e)
	assert.NoError(t, err)
}

func TestUndefinedAndUnusedPlaceholders(t *testing.T) {
	_, err := ParseCondition("a = :missing", env(nil, nil))
	assert.Error(t, err)

	_, err = ParseCondition("#missing = #missing", env(nil, nil))
	assert.Error(t, err)

	e := env(map[string]attr.Value{":v": attr.Number("1"), ":unused": attr.Number("2")}, nil)
	_, err = ParseCondition("a = :v", e)
	require.NoError(t, err)
	assert.Error(t, e.CheckFullyUsed())

	e = env(map[string]attr.Value{":v": attr.Number("1")}, nil)
	_, err = ParseCondition("a = :v", e)
	require.NoError(t, err)
	assert.NoError(t, e.CheckFullyUsed())
}

func TestParseErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"a =",
		"a = :v AND",
		"a ! :v",
		"a = :v extra",
		"unknown_func(a) = :v",
		"size(a)",
		"a BETWEEN :v",
	} {
		_, err := ParseCondition(input, env(map[string]attr.Value{":v": attr.Number("1")}, nil))
		assert.Error(t, err, "input %q", input)
	}
}

func TestParseKeyCondition(t *testing.T) {
	e := env(map[string]attr.Value{":h": attr.String("u1")}, nil)
	kc, err := ParseKeyCondition("pk = :h", e)
	require.NoError(t, err)
	assert.Equal(t, "pk", kc.HashAttribute)
	assert.False(t, kc.HasRangeCondition())

	e = env(map[string]attr.Value{":h": attr.String("u1"), ":lo": attr.Number("1"), ":hi": attr.Number("9")}, nil)
	kc, err = ParseKeyCondition("pk = :h AND sk BETWEEN :lo AND :hi", e)
	require.NoError(t, err)
	assert.Equal(t, RangeBetween, kc.RangeOp)

	e = env(map[string]attr.Value{":h": attr.String("u1"), ":p": attr.String("2024-")}, nil)
	kc, err = ParseKeyCondition("begins_with(sk, :p) AND pk = :h", e)
	require.NoError(t, err)
	assert.Equal(t, RangeBeginsWith, kc.RangeOp)
	assert.Equal(t, "sk", kc.RangeAttribute)
}

func TestParseKeyConditionRejectsOtherShapes(t *testing.T) {
	for _, input := range []string{
		"pk > :h",                       // no hash equality
		"pk = :h OR sk = :h",            // OR
		"pk = :h AND NOT sk = :h",       // NOT
		"pk = :h AND contains(sk, :h)",  // non-key function
		"pk = :h AND sk = :h AND x = :h", // three predicates
		"attribute_exists(pk)",          // bare function
	} {
		e := env(map[string]attr.Value{":h": attr.String("x")}, nil)
		_, err := ParseKeyCondition(input, e)
		assert.Error(t, err, "input %q", input)
	}
}

func TestKeyConditionBindSchema(t *testing.T) {
	types := map[string]attr.Type{"pk": attr.TypeString, "sk": attr.TypeNumber}

	e := env(map[string]attr.Value{":h": attr.String("x"), ":r": attr.Number("1")}, nil)
	kc, err := ParseKeyCondition("pk = :h AND sk >= :r", e)
	require.NoError(t, err)
	assert.NoError(t, kc.BindSchema("pk", "sk", types))
	assert.Error(t, kc.BindSchema("other", "sk", types))

	e = env(map[string]attr.Value{":h": attr.Number("1")}, nil)
	kc, err = ParseKeyCondition("pk = :h", e)
	require.NoError(t, err)
	assert.Error(t, kc.BindSchema("pk", "sk", types), "hash type mismatch")

	e = env(map[string]attr.Value{":h": attr.String("x"), ":p": attr.Number("1")}, nil)
	kc, err = ParseKeyCondition("pk = :h AND begins_with(sk, :p)", e)
	require.NoError(t, err)
	assert.Error(t, kc.BindSchema("pk", "sk", types), "begins_with on N range key")
}

func applyUpdate(t *testing.T, input string, e *Env, pre attr.Item) attr.Item {
	t.Helper()
	upd, err := ParseUpdate(input, e)
	require.NoError(t, err)
	post, err := upd.Apply(pre)
	require.NoError(t, err)
	return post
}

func TestUpdateSet(t *testing.T) {
	pre := attr.Item{"id": attr.String("x"), "qty": attr.Number("10")}

	e := env(map[string]attr.Value{":v": attr.String("hello"), ":inc": attr.Number("5")}, nil)
	post := applyUpdate(t, "SET greeting = :v, subtotal = qty + :inc", e, pre)
	assert.True(t, post["greeting"].Equal(attr.String("hello")))
	assert.True(t, post["subtotal"].Equal(attr.Number("15")))
	_, stillThere := post["qty"]
	assert.True(t, stillThere)
}

func TestUpdateSetIfNotExists(t *testing.T) {
	pre := attr.Item{"present": attr.Number("1")}
	e := env(map[string]attr.Value{":d": attr.Number("99"), ":d2": attr.Number("42")}, nil)
	post := applyUpdate(t, "SET present = if_not_exists(present, :d), fresh = if_not_exists(fresh, :d2)", e, pre)
	assert.True(t, post["present"].Equal(attr.Number("1")))
	assert.True(t, post["fresh"].Equal(attr.Number("42")))
}

func TestUpdateSetListAppend(t *testing.T) {
	pre := attr.Item{"l": attr.List(attr.Number("1"))}
	e := env(map[string]attr.Value{":more": attr.List(attr.Number("2"))}, nil)
	post := applyUpdate(t, "SET l = list_append(l, :more)", e, pre)
	elems, _ := post["l"].ListElements()
	assert.Len(t, elems, 2)
}

func TestUpdateSetMissingSourcePathFails(t *testing.T) {
	e := env(nil, nil)
	upd, err := ParseUpdate("SET a = ghost", e)
	require.NoError(t, err)
	_, err = upd.Apply(attr.Item{})
	assert.Error(t, err)
}

func TestUpdateRemoveAddDelete(t *testing.T) {
	pre := attr.Item{
		"id":      attr.String("x"),
		"counter": attr.Number("10"),
		"tags":    attr.StringSet("a", "b"),
		"unused":  attr.Bool(true),
	}
	e := env(map[string]attr.Value{
		":five": attr.Number("5"),
		":c":    attr.StringSet("c"),
	}, nil)
	post := applyUpdate(t, "ADD counter :five, tags :c REMOVE unused", e, pre)

	assert.True(t, post["counter"].Equal(attr.Number("15")))
	assert.True(t, post["tags"].Equal(attr.StringSet("a", "b", "c")))
	_, there := post["unused"]
	assert.False(t, there)

	e = env(map[string]attr.Value{":b": attr.StringSet("b")}, nil)
	post = applyUpdate(t, "DELETE tags :b", e, post)
	assert.True(t, post["tags"].Equal(attr.StringSet("a", "c")))

	// Deleting the rest removes the attribute entirely.
	e = env(map[string]attr.Value{":rest": attr.StringSet("a", "c")}, nil)
	post = applyUpdate(t, "DELETE tags :rest", e, post)
	_, there = post["tags"]
	assert.False(t, there)
}

func TestUpdateAddCreatesMissing(t *testing.T) {
	e := env(map[string]attr.Value{":n": attr.Number("3")}, nil)
	post := applyUpdate(t, "ADD counter :n", e, attr.Item{})
	assert.True(t, post["counter"].Equal(attr.Number("3")))

	e = env(map[string]attr.Value{":s": attr.StringSet("x")}, nil)
	post = applyUpdate(t, "ADD tags :s", e, attr.Item{})
	assert.True(t, post["tags"].Equal(attr.StringSet("x")))
}

func TestUpdateAddTypeMismatch(t *testing.T) {
	e := env(map[string]attr.Value{":n": attr.Number("1")}, nil)
	upd, err := ParseUpdate("ADD nickname :n", e)
	require.NoError(t, err)
	_, err = upd.Apply(attr.Item{"nickname": attr.String("bob")})
	assert.Error(t, err)
}

func TestUpdateDoesNotMutatePreImage(t *testing.T) {
	pre := attr.Item{"n": attr.Number("1")}
	e := env(map[string]attr.Value{":v": attr.Number("2")}, nil)
	_ = applyUpdate(t, "SET n = :v", e, pre)
	assert.True(t, pre["n"].Equal(attr.Number("1")))
}

func TestUpdateParseErrors(t *testing.T) {
	for _, input := range []string{
		"",
		"SET",
		"SET a = :v SET b = :v",      // duplicate clause
		"SET a = :v, a = :v",         // duplicate path
		"SET a.b = :v, a = :v",       // overlapping paths
		"BOGUS a :v",
		"ADD a b",                    // ADD needs a value placeholder
	} {
		e := env(map[string]attr.Value{":v": attr.Number("1")}, nil)
		_, err := ParseUpdate(input, e)
		assert.Error(t, err, "input %q", input)
	}
}

func TestUpdateTouchedRoots(t *testing.T) {
	e := env(map[string]attr.Value{":v": attr.Number("1"), ":s": attr.StringSet("x")}, nil)
	upd, err := ParseUpdate("SET a = :v ADD b :s REMOVE c", e)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, upd.TouchedRoots())
}

func TestProjection(t *testing.T) {
	item := attr.Item{
		"id": attr.String("x"),
		"m":  attr.Map(map[string]attr.Value{"keep": attr.Number("1"), "drop": attr.Number("2")}),
		"l":  attr.List(attr.String("zero"), attr.String("one")),
	}
	e := env(nil, nil)
	proj, err := ParseProjection("id, m.keep, l[1], ghost", e)
	require.NoError(t, err)

	out := proj.Apply(item)
	assert.Len(t, out, 3)
	assert.True(t, out["id"].Equal(attr.String("x")))

	entries, _ := out["m"].MapEntries()
	assert.Len(t, entries, 1)
	assert.True(t, entries["keep"].Equal(attr.Number("1")))

	elems, _ := out["l"].ListElements()
	require.Len(t, elems, 1)
	assert.True(t, elems[0].Equal(attr.String("one")))
}

func TestProjectionWithPlaceholders(t *testing.T) {
	e := env(nil, map[string]string{"#s": "status"})
	proj, err := ParseProjection("#s, id", e)
	require.NoError(t, err)
	out := proj.Apply(attr.Item{"status": attr.String("ok"), "id": attr.String("1"), "extra": attr.Bool(true)})
	assert.Len(t, out, 2)
}
