package attr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqualNumericSemantics(t *testing.T) {
	assert.True(t, Number("1").Equal(Number("1.0")))
	assert.True(t, Number("1e2").Equal(Number("100")))
	assert.False(t, Number("1").Equal(Number("1.01")))
	assert.False(t, Number("1").Equal(String("1")))
}

func TestEqualSets(t *testing.T) {
	assert.True(t, StringSet("a", "b").Equal(StringSet("b", "a")))
	assert.False(t, StringSet("a").Equal(StringSet("a", "b")))
	assert.True(t, NumberSet("1", "2").Equal(NumberSet("2.0", "1.0")))
	assert.True(t, BinarySet([]byte{1}, []byte{2}).Equal(BinarySet([]byte{2}, []byte{1})))
}

func TestSetConstructorsDeduplicate(t *testing.T) {
	elems, ok := StringSet("a", "b", "a").SetElements()
	require.True(t, ok)
	assert.Len(t, elems, 2)

	elems, ok = NumberSet("1", "1.0", "2").SetElements()
	require.True(t, ok)
	assert.Len(t, elems, 2)
	assert.Equal(t, "1", elems[0], "first spelling wins")
}

func TestEqualNested(t *testing.T) {
	a := Map(map[string]Value{
		"l": List(Number("1"), String("x")),
		"b": Bool(true),
	})
	b := Map(map[string]Value{
		"l": List(Number("1.0"), String("x")),
		"b": Bool(true),
	})
	assert.True(t, a.Equal(b))
}

func TestWireRoundTrip(t *testing.T) {
	item := Item{
		"id":     String("a"),
		"n":      Number("3.14"),
		"bin":    Binary([]byte("raw")),
		"ok":     Bool(true),
		"nothing": Null(),
		"ss":     StringSet("x", "y"),
		"ns":     NumberSet("1", "2"),
		"bs":     BinarySet([]byte{0x1}, []byte{0x2}),
		"list":   List(Number("1"), Map(map[string]Value{"deep": String("v")})),
		"m":      Map(map[string]Value{"k": String("v")}),
	}
	data, err := MarshalItem(item)
	require.NoError(t, err)

	decoded, err := UnmarshalItem(data)
	require.NoError(t, err)
	assert.True(t, item.Equal(decoded))
}

func TestNumberSpellingPreservedOnRoundTrip(t *testing.T) {
	data, err := json.Marshal(Number("1.0"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"N":"1.0"}`, string(data))

	var v Value
	require.NoError(t, json.Unmarshal(data, &v))
	n, ok := v.NumberValue()
	require.True(t, ok)
	assert.Equal(t, "1.0", n)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"no tag":        `{}`,
		"two tags":      `{"S":"a","N":"1"}`,
		"unknown tag":   `{"X":"a"}`,
		"bad numeral":   `{"N":"abc"}`,
		"hex numeral":   `{"N":"0x10"}`,
		"empty SS":      `{"SS":[]}`,
		"bad NS elem":   `{"NS":["1","nope"]}`,
		"bad base64":    `{"B":"%%%"}`,
		"null not true": `{"NULL":false}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var v Value
			assert.Error(t, json.Unmarshal([]byte(raw), &v))
		})
	}
}

func TestEmptyContainersSurviveEncoding(t *testing.T) {
	data, err := json.Marshal(List())
	require.NoError(t, err)
	assert.JSONEq(t, `{"L":[]}`, string(data))

	data, err = json.Marshal(Map(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"M":{}}`, string(data))
}

func TestCompare(t *testing.T) {
	cmp, err := Compare(Number("2"), Number("10"))
	require.NoError(t, err)
	assert.Equal(t, -1, cmp)

	cmp, err = Compare(String("b"), String("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, cmp)

	cmp, err = Compare(Binary([]byte{0x01}), Binary([]byte{0x01}))
	require.NoError(t, err)
	assert.Equal(t, 0, cmp)

	_, err = Compare(Number("1"), String("1"))
	assert.Error(t, err)

	_, err = Compare(Bool(true), Bool(false))
	assert.Error(t, err)
}

func TestKeyBytesNormalizesNumbers(t *testing.T) {
	a, err := KeyBytes(Number("1.0"))
	require.NoError(t, err)
	b, err := KeyBytes(Number("1"))
	require.NoError(t, err)
	assert.Equal(t, a, b)

	_, err = KeyBytes(Bool(true))
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	orig := Item{"m": Map(map[string]Value{"k": List(Number("1"))})}
	cp := orig.Clone()

	entries, _ := cp["m"].MapEntries()
	entries["k"] = String("mutated")

	inner, _ := orig["m"].MapEntries()
	_, isList := inner["k"].ListElements()
	assert.True(t, isList, "mutating the clone must not touch the original")
}

func TestArithmetic(t *testing.T) {
	sum, err := AddNumbers("10", "5")
	require.NoError(t, err)
	assert.Equal(t, "15", sum)

	sum, err = AddNumbers("0.1", "0.2")
	require.NoError(t, err)
	assert.Equal(t, "0.3", sum, "decimal arithmetic is exact")

	diff, err := SubtractNumbers("500", "100")
	require.NoError(t, err)
	assert.Equal(t, "400", diff)
}

func TestPathResolve(t *testing.T) {
	item := Item{
		"a": Map(map[string]Value{
			"b": List(String("zero"), Map(map[string]Value{"c": Number("7")})),
		}),
	}

	p := Path{FieldSegment("a"), FieldSegment("b"), IndexSegment(1), FieldSegment("c")}
	v, ok := p.Resolve(item)
	require.True(t, ok)
	assert.True(t, v.Equal(Number("7")))

	// Out-of-range and wrong-variant navigation is "missing", not an error.
	_, ok = Path{FieldSegment("a"), FieldSegment("b"), IndexSegment(9)}.Resolve(item)
	assert.False(t, ok)
	_, ok = Path{FieldSegment("a"), IndexSegment(0)}.Resolve(item)
	assert.False(t, ok)
	_, ok = Path{FieldSegment("missing")}.Resolve(item)
	assert.False(t, ok)
}

func TestPathSetCreatesIntermediates(t *testing.T) {
	item := Item{}
	p := Path{FieldSegment("a"), FieldSegment("b"), FieldSegment("c")}
	require.NoError(t, p.Set(item, String("v")))

	v, ok := p.Resolve(item)
	require.True(t, ok)
	assert.True(t, v.Equal(String("v")))
}

func TestPathSetListAppendPastEnd(t *testing.T) {
	item := Item{"l": List(String("a"))}
	require.NoError(t, Path{FieldSegment("l"), IndexSegment(5)}.Set(item, String("b")))

	elems, _ := item["l"].ListElements()
	require.Len(t, elems, 2)
	assert.True(t, elems[1].Equal(String("b")))
}

func TestPathRemove(t *testing.T) {
	item := Item{
		"a": Map(map[string]Value{"b": String("x"), "keep": String("y")}),
		"l": List(String("a"), String("b"), String("c")),
	}
	Path{FieldSegment("a"), FieldSegment("b")}.Remove(item)
	Path{FieldSegment("l"), IndexSegment(1)}.Remove(item)
	Path{FieldSegment("nope"), FieldSegment("deep")}.Remove(item)

	entries, _ := item["a"].MapEntries()
	_, present := entries["b"]
	assert.False(t, present)
	assert.Contains(t, entries, "keep")

	elems, _ := item["l"].ListElements()
	require.Len(t, elems, 2)
	assert.True(t, elems[0].Equal(String("a")))
	assert.True(t, elems[1].Equal(String("c")))
}

func TestPathString(t *testing.T) {
	p := Path{FieldSegment("a"), FieldSegment("b"), IndexSegment(2), FieldSegment("c")}
	assert.Equal(t, "a.b[2].c", p.String())
}
