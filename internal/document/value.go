// Package document defines the schema-less data model shared by the query,
// index and aggregation layers: a tagged Value variant and the Document
// field map built from it.
package document

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindMissing marks the zero Value. It is returned for absent fields and
	// is never stored inside a Document.
	KindMissing Kind = iota
	KindNull
	KindNumber
	KindString
	KindObject
	KindArray
	KindBool
)

var kindNames = [...]string{
	KindMissing: "missing",
	KindNull:    "null",
	KindNumber:  "number",
	KindString:  "string",
	KindObject:  "object",
	KindArray:   "array",
	KindBool:    "bool",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ErrUnsupportedType is returned when a Go value has no Value representation.
var ErrUnsupportedType = errors.New("unsupported value type")

// Value is one field value of a Document.
//
// Values are treated as immutable once built. Arrays and objects share their
// backing storage between copies, so callers that need to modify nested data
// must Clone first.
type Value struct {
	kind Kind
	num  float64
	str  string
	b    bool
	arr  []Value
	obj  Document
}

// Null returns a null Value.
func Null() Value { return Value{kind: KindNull} }

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// Int returns a numeric Value holding i.
func Int(i int64) Value { return Value{kind: KindNumber, num: float64(i)} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Array returns an array Value.
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindArray, arr: items}
}

// Object returns a nested document Value.
func Object(d Document) Value {
	if d == nil {
		d = Document{}
	}
	return Value{kind: KindObject, obj: d}
}

// Kind reports the type held by v.
func (v Value) Kind() Kind { return v.kind }

// IsMissing reports whether v is the zero Value.
func (v Value) IsMissing() bool { return v.kind == KindMissing }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsNumber returns the numeric value if v is a number.
func (v Value) AsNumber() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// AsString returns the string value if v is a string.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// AsBool returns the boolean value if v is a bool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsArray returns the elements if v is an array.
func (v Value) AsArray() ([]Value, bool) {
	if v.kind != KindArray {
		return nil, false
	}
	return v.arr, true
}

// AsObject returns the nested document if v is an object.
func (v Value) AsObject() (Document, bool) {
	if v.kind != KindObject {
		return nil, false
	}
	return v.obj, true
}

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	switch v.kind {
	case KindArray:
		items := make([]Value, len(v.arr))
		for i := range v.arr {
			items[i] = v.arr[i].Clone()
		}
		return Value{kind: KindArray, arr: items}
	case KindObject:
		return Value{kind: KindObject, obj: v.obj.Clone()}
	default:
		return v
	}
}

// FromAny converts a Go or JSON-decoded value into a Value.
//
// All integer and floating point types become numbers. Maps must be keyed by
// string.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case Document:
		return Object(t), nil
	case []Value:
		return Array(t...), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case float64:
		return Number(t), nil
	case float32:
		return Number(float64(t)), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint8:
		return Number(float64(t)), nil
	case uint16:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrUnsupportedType, err)
		}
		return Number(f), nil
	case []string:
		items := make([]Value, len(t))
		for i, s := range t {
			items[i] = String(s)
		}
		return Array(items...), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			item, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = item
		}
		return Array(items...), nil
	case map[string]any:
		d, err := FromMap(t)
		if err != nil {
			return Value{}, err
		}
		return Object(d), nil
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupportedType, x)
	}
}

// MustFromAny is like FromAny but panics on unsupported types.
func MustFromAny(x any) Value {
	v, err := FromAny(x)
	if err != nil {
		panic(err)
	}
	return v
}

// Any converts v back to plain Go values (nil, bool, float64, string,
// []any, map[string]any).
func (v Value) Any() any {
	switch v.kind {
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindBool:
		return v.b
	case KindArray:
		out := make([]any, len(v.arr))
		for i := range v.arr {
			out[i] = v.arr[i].Any()
		}
		return out
	case KindObject:
		return v.obj.Map()
	default:
		return nil
	}
}

// String renders v as compact JSON.
func (v Value) String() string {
	data, err := json.Marshal(v)
	if err != nil {
		return "<" + v.kind.String() + ">"
	}
	return string(data)
}

// MarshalJSON implements json.Marshaler. Missing values encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindNumber && (math.IsNaN(v.num) || math.IsInf(v.num, 0)) {
		return json.Marshal(strconv.FormatFloat(v.num, 'g', -1, 64))
	}
	return json.Marshal(v.Any())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// Key returns an exact, self-delimiting encoding of v for use as a map key.
//
// Two values share a key exactly when Equal reports true for them, with two
// exceptions: missing and null share a key, and numbers are keyed by their
// IEEE-754 bits (with -0 folded into +0 and every NaN into one canonical NaN).
func (v Value) Key() string {
	var sb strings.Builder
	v.appendKey(&sb)
	return sb.String()
}

func (v Value) appendKey(sb *strings.Builder) {
	switch v.kind {
	case KindMissing, KindNull:
		sb.WriteByte('n')
	case KindNumber:
		sb.WriteByte('f')
		fmt.Fprintf(sb, "%016x", numberBits(v.num))
	case KindString:
		sb.WriteByte('s')
		sb.WriteString(strconv.Itoa(len(v.str)))
		sb.WriteByte(':')
		sb.WriteString(v.str)
	case KindBool:
		if v.b {
			sb.WriteString("b1")
		} else {
			sb.WriteString("b0")
		}
	case KindArray:
		sb.WriteByte('a')
		sb.WriteString(strconv.Itoa(len(v.arr)))
		sb.WriteByte(':')
		for i := range v.arr {
			v.arr[i].appendKey(sb)
		}
	case KindObject:
		keys := v.obj.Keys()
		sb.WriteByte('o')
		sb.WriteString(strconv.Itoa(len(keys)))
		sb.WriteByte(':')
		for _, k := range keys {
			sb.WriteString(strconv.Itoa(len(k)))
			sb.WriteByte(':')
			sb.WriteString(k)
			v.obj[k].appendKey(sb)
		}
	}
}

func numberBits(f float64) uint64 {
	switch {
	case f == 0:
		return 0
	case math.IsNaN(f):
		return 0x7ff8000000000001
	default:
		return math.Float64bits(f)
	}
}

// TupleKey concatenates the keys of values. Each element key is
// self-delimiting, so distinct tuples never collide.
func TupleKey(values ...Value) string {
	var sb strings.Builder
	for i := range values {
		values[i].appendKey(&sb)
	}
	return sb.String()
}

func rank(k Kind) int {
	switch k {
	case KindMissing, KindNull:
		return 1
	case KindNumber:
		return 2
	case KindString:
		return 3
	case KindObject:
		return 4
	case KindArray:
		return 5
	case KindBool:
		return 6
	default:
		return 0
	}
}

// Compare defines a total order over values: null (and missing) < numbers <
// strings < objects < arrays < booleans. It returns -1, 0 or +1.
func Compare(a, b Value) int {
	ra, rb := rank(a.kind), rank(b.kind)
	if ra != rb {
		return cmpInt(ra, rb)
	}
	switch a.kind {
	case KindNumber:
		return compareNumbers(a.num, b.num)
	case KindString:
		return strings.Compare(a.str, b.str)
	case KindBool:
		switch {
		case a.b == b.b:
			return 0
		case !a.b:
			return -1
		default:
			return 1
		}
	case KindArray:
		for i := 0; i < len(a.arr) && i < len(b.arr); i++ {
			if c := Compare(a.arr[i], b.arr[i]); c != 0 {
				return c
			}
		}
		return cmpInt(len(a.arr), len(b.arr))
	case KindObject:
		ka, kb := a.obj.Keys(), b.obj.Keys()
		for i := 0; i < len(ka) && i < len(kb); i++ {
			if c := strings.Compare(ka[i], kb[i]); c != 0 {
				return c
			}
			if c := Compare(a.obj[ka[i]], b.obj[kb[i]]); c != 0 {
				return c
			}
		}
		return cmpInt(len(ka), len(kb))
	default:
		return 0
	}
}

// Equal reports whether a and b hold the same value. Missing and null are
// distinct here; filters that treat them alike do so explicitly.
func Equal(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	return Compare(a, b) == 0
}

func compareNumbers(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func sortedKeys(d Document) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
