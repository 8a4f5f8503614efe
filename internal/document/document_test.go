package document

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAnyNumbers(t *testing.T) {
	for _, x := range []any{int(7), int8(7), int32(7), int64(7), uint16(7), float32(7), 7.0, json.Number("7")} {
		v, err := FromAny(x)
		require.NoError(t, err)
		assert.Equal(t, KindNumber, v.Kind())
		assert.True(t, Equal(Int(7), v), "%T", x)
	}

	_, err := FromAny(struct{}{})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestGetPaths(t *testing.T) {
	d := MustFromMap(map[string]any{
		"title": "Dune",
		"meta":  map[string]any{"isbn": "978-0441013593", "ratings": []any{4, 5}},
	})

	v, ok := d.Get("title")
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "Dune", s)

	v, ok = d.Get("meta.isbn")
	require.True(t, ok)
	assert.Equal(t, "978-0441013593", v.Any())

	v, ok = d.Get("meta.ratings.1")
	require.True(t, ok)
	assert.Equal(t, 5.0, v.Any())

	for _, p := range []string{"missing", "meta.missing", "title.x", "meta.ratings.9", "meta.ratings.x"} {
		_, ok := d.Get(p)
		assert.False(t, ok, p)
	}
}

func TestSetUnset(t *testing.T) {
	orig := MustFromMap(map[string]any{"a": map[string]any{"b": 1}, "s": "x"})
	d := orig.Clone()

	require.NoError(t, d.Set("a.c", Int(2)))
	require.NoError(t, d.Set("x.y.z", Bool(true)))
	assert.ErrorIs(t, d.Set("s.t", Int(1)), ErrPathConflict)
	assert.ErrorIs(t, d.Set("", Int(1)), ErrInvalidPath)

	v, ok := d.Get("x.y.z")
	require.True(t, ok)
	assert.Equal(t, true, v.Any())

	_, ok = orig.Get("a.c")
	assert.False(t, ok, "clone shares nested storage")

	assert.True(t, d.Unset("a.b"))
	assert.False(t, d.Unset("a.b"))
	assert.False(t, d.Unset("s.t"))
	_, ok = orig.Get("a.b")
	assert.True(t, ok)
}

func TestCompareOrder(t *testing.T) {
	ordered := []Value{
		Null(),
		Number(math.NaN()),
		Number(-1),
		Int(0),
		Number(2.5),
		String(""),
		String("a"),
		String("b"),
		Object(Document{"a": Int(1)}),
		Array(),
		Array(Int(1)),
		Array(Int(1), Int(2)),
		Bool(false),
		Bool(true),
	}
	for i := range ordered {
		for j := range ordered {
			want := cmpInt(i, j)
			assert.Equal(t, want, Compare(ordered[i], ordered[j]), "%s vs %s", ordered[i], ordered[j])
		}
	}
	assert.Equal(t, 0, Compare(Value{}, Null()))
}

func TestKey(t *testing.T) {
	assert.Equal(t, Number(0).Key(), Number(math.Copysign(0, -1)).Key())
	assert.Equal(t, Number(math.NaN()).Key(), Number(-math.NaN()).Key())
	assert.Equal(t, Int(3).Key(), Number(3.0).Key())
	a, b := 0.1, 0.2
	assert.NotEqual(t, Number(a+b).Key(), Number(0.3).Key())
	assert.NotEqual(t, String("1").Key(), Int(1).Key())
	assert.NotEqual(t, TupleKey(String("ab"), String("c")), TupleKey(String("a"), String("bc")))
	assert.Equal(t,
		Object(Document{"a": Int(1), "b": Int(2)}).Key(),
		Object(Document{"b": Int(2), "a": Int(1)}).Key())
}

func TestJSONRoundTrip(t *testing.T) {
	d := MustFromMap(map[string]any{
		"title": "Emma",
		"year":  1815,
		"tags":  []any{"classic", nil, true},
		"meta":  map[string]any{"x": 1.5},
	})
	data, err := json.Marshal(d)
	require.NoError(t, err)

	var back Document
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, d.Equal(back))
}

func TestSortStable(t *testing.T) {
	docs := []Document{
		MustFromMap(map[string]any{"n": 1, "p": 10}),
		MustFromMap(map[string]any{"n": 2, "p": 5}),
		MustFromMap(map[string]any{"n": 3, "p": 10}),
		MustFromMap(map[string]any{"n": 4}),
		MustFromMap(map[string]any{"n": 5, "p": 5}),
	}

	SortStable(docs, []SortField{Desc("p")})
	var order []any
	for _, d := range docs {
		order = append(order, d["n"].Any())
	}
	assert.Equal(t, []any{1.0, 3.0, 2.0, 5.0, 4.0}, order)
}

func TestParseSort(t *testing.T) {
	fields, err := ParseSort(map[string]any{"price": -1, "author": 1})
	require.NoError(t, err)
	assert.Equal(t, []SortField{Asc("author"), Desc("price")}, fields)

	_, err = ParseSort(map[string]any{"price": 2})
	assert.ErrorIs(t, err, ErrInvalidSort)

	fields, err = ParseSortString("price:desc, title,-published_year")
	require.NoError(t, err)
	assert.Equal(t, []SortField{Desc("price"), Asc("title"), Desc("published_year")}, fields)
	assert.Equal(t, "price:desc,title:asc,published_year:desc", FormatSort(fields))

	_, err = ParseSortString("price:sideways")
	assert.ErrorIs(t, err, ErrInvalidSort)
}

func TestFormatNumber(t *testing.T) {
	assert.Equal(t, "1930", FormatNumber(1930))
	assert.Equal(t, "19.99", FormatNumber(19.99))
	assert.Equal(t, "-0.5", FormatNumber(-0.5))
}
