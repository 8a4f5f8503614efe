// Package filter implements the predicate tree used by queries and the
// $match stage: field comparisons combined with AND/OR.
package filter

import (
	"errors"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// ErrInvalidQuery is returned for malformed filters.
var ErrInvalidQuery = errors.New("invalid query")

// Op is a field comparison operator.
type Op string

// Comparison operators
const (
	OpEq  Op = "$eq"
	OpNe  Op = "$ne"
	OpGt  Op = "$gt"
	OpGte Op = "$gte"
	OpLt  Op = "$lt"
	OpLte Op = "$lte"
	OpIn  Op = "$in"
	OpNin Op = "$nin"
)

var knownOps = map[Op]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true,
	OpLt: true, OpLte: true, OpIn: true, OpNin: true,
}

// LogicalOp combines child nodes.
type LogicalOp string

// Logical operators
const (
	And LogicalOp = "$and"
	Or  LogicalOp = "$or"
)

// Node is one node of a filter tree.
type Node interface {
	// Match reports whether d satisfies the predicate.
	Match(d document.Document) bool
	String() string
}

// Field compares the value at Path against Value.
type Field struct {
	Path  string
	Op    Op
	Value document.Value
}

// Match implements Node.
func (f *Field) Match(d document.Document) bool {
	v, ok := d.Get(f.Path)
	switch f.Op {
	case OpEq:
		return equals(v, ok, f.Value)
	case OpNe:
		return !equals(v, ok, f.Value)
	case OpIn:
		return in(v, ok, f.Value)
	case OpNin:
		return !in(v, ok, f.Value)
	}

	if !ok || v.Kind() != f.Value.Kind() || v.IsNull() {
		return false
	}
	c := document.Compare(v, f.Value)
	switch f.Op {
	case OpGt:
		return c > 0
	case OpGte:
		return c >= 0
	case OpLt:
		return c < 0
	case OpLte:
		return c <= 0
	default:
		return false
	}
}

func (f *Field) String() string {
	var sb strings.Builder
	sb.WriteString(`{"`)
	sb.WriteString(f.Path)
	sb.WriteString(`":{"`)
	sb.WriteString(string(f.Op))
	sb.WriteString(`":`)
	sb.WriteString(f.Value.String())
	sb.WriteString("}}")
	return sb.String()
}

// equals treats a null operand as matching both null and missing fields.
func equals(v document.Value, present bool, want document.Value) bool {
	if want.IsNull() {
		return !present || v.IsNull()
	}
	return present && document.Equal(v, want)
}

func in(v document.Value, present bool, list document.Value) bool {
	items, _ := list.AsArray()
	for _, item := range items {
		if equals(v, present, item) {
			return true
		}
	}
	return false
}

// Logical is an AND or OR over child nodes. An AND with no children matches
// every document.
type Logical struct {
	Op       LogicalOp
	Children []Node
}

// Match implements Node. Evaluation stops at the first child that decides
// the result.
func (l *Logical) Match(d document.Document) bool {
	if l.Op == Or {
		for _, c := range l.Children {
			if c.Match(d) {
				return true
			}
		}
		return false
	}
	for _, c := range l.Children {
		if !c.Match(d) {
			return false
		}
	}
	return true
}

func (l *Logical) String() string {
	if l.Op == And && len(l.Children) == 0 {
		return "{}"
	}
	parts := make([]string, len(l.Children))
	for i, c := range l.Children {
		parts[i] = c.String()
	}
	return `{"` + string(l.Op) + `":[` + strings.Join(parts, ",") + "]}"
}

// Match is a nil-safe helper: a nil node matches everything.
func Match(n Node, d document.Document) bool {
	if n == nil {
		return true
	}
	return n.Match(d)
}
