package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// IDField is the name of the identifier field carried by every stored document.
const IDField = "_id"

var (
	// ErrInvalidPath is returned for malformed dotted field paths.
	ErrInvalidPath = errors.New("invalid field path")
	// ErrPathConflict is returned when Set has to descend through a value
	// that is not an object.
	ErrPathConflict = errors.New("field path conflicts with existing value")
)

// Document is a schema-less record: a mapping from field name to Value.
type Document map[string]Value

// FromMap converts a generic JSON-style map into a Document.
func FromMap(m map[string]any) (Document, error) {
	d := make(Document, len(m))
	for k, raw := range m {
		v, err := FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		d[k] = v
	}
	return d, nil
}

// MustFromMap is like FromMap but panics on error. Intended for literals.
func MustFromMap(m map[string]any) Document {
	d, err := FromMap(m)
	if err != nil {
		panic(err)
	}
	return d
}

// Map converts d into plain Go values.
func (d Document) Map() map[string]any {
	out := make(map[string]any, len(d))
	for k, v := range d {
		out[k] = v.Any()
	}
	return out
}

// Clone returns a deep copy of d.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = v.Clone()
	}
	return out
}

// Keys returns the field names of d in sorted order.
func (d Document) Keys() []string {
	return sortedKeys(d)
}

// ID returns the document identifier, if present and a string.
func (d Document) ID() (string, bool) {
	return d[IDField].AsString()
}

// ValidatePath checks that path is a usable dotted field path: non-empty,
// no empty segments, and not starting with '$'.
func ValidatePath(path string) error {
	if path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if strings.HasPrefix(path, "$") {
		return fmt.Errorf("%w: %q starts with '$'", ErrInvalidPath, path)
	}
	for _, seg := range strings.Split(path, ".") {
		if seg == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// Get resolves a dotted path. Numeric segments index into arrays.
func (d Document) Get(path string) (Value, bool) {
	if v, ok := d[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return Value{}, false
	}
	segs := strings.Split(path, ".")
	cur := Object(d)
	for _, seg := range segs {
		switch cur.kind {
		case KindObject:
			next, ok := cur.obj[seg]
			if !ok {
				return Value{}, false
			}
			cur = next
		case KindArray:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(cur.arr) {
				return Value{}, false
			}
			cur = cur.arr[i]
		default:
			return Value{}, false
		}
	}
	return cur, true
}

// Set assigns v at path, creating intermediate objects as needed. It
// modifies d in place; nested objects along the path are replaced by
// copies so values shared with other documents are left untouched.
func (d Document) Set(path string, v Value) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	segs := strings.Split(path, ".")
	cur := d
	for i, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		switch {
		case !ok:
			child := Document{}
			cur[seg] = Object(child)
			cur = child
		case next.kind == KindObject:
			child := make(Document, len(next.obj)+1)
			for k, cv := range next.obj {
				child[k] = cv
			}
			cur[seg] = Object(child)
			cur = child
		default:
			return fmt.Errorf("%w: %q is a %s", ErrPathConflict, strings.Join(segs[:i+1], "."), next.kind)
		}
	}
	cur[segs[len(segs)-1]] = v
	return nil
}

// Unset removes the field at path and reports whether it existed.
func (d Document) Unset(path string) bool {
	segs := strings.Split(path, ".")
	cur := d
	for _, seg := range segs[:len(segs)-1] {
		next, ok := cur[seg]
		if !ok || next.kind != KindObject {
			return false
		}
		child := make(Document, len(next.obj))
		for k, cv := range next.obj {
			child[k] = cv
		}
		cur[seg] = Object(child)
		cur = child
	}
	last := segs[len(segs)-1]
	if _, ok := cur[last]; !ok {
		return false
	}
	delete(cur, last)
	return true
}

// Equal reports whether two documents hold the same fields and values.
func (d Document) Equal(other Document) bool {
	if len(d) != len(other) {
		return false
	}
	return Object(d).Key() == Object(other).Key()
}

// String renders d as compact JSON.
func (d Document) String() string {
	return Object(d).String()
}
