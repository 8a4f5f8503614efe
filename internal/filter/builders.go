package filter

import "github.com/skshohagmiah/flindoc/internal/document"

// Builders panic when given a value that has no document representation;
// they are meant for filters written in code.

func field(path string, op Op, v any) Node {
	return &Field{Path: path, Op: op, Value: document.MustFromAny(v)}
}

// Eq matches documents whose path equals v.
func Eq(path string, v any) Node { return field(path, OpEq, v) }

// Ne matches documents whose path does not equal v.
func Ne(path string, v any) Node { return field(path, OpNe, v) }

// Gt matches values greater than v within the same kind.
func Gt(path string, v any) Node { return field(path, OpGt, v) }

// Gte matches values greater than or equal to v within the same kind.
func Gte(path string, v any) Node { return field(path, OpGte, v) }

// Lt matches values less than v within the same kind.
func Lt(path string, v any) Node { return field(path, OpLt, v) }

// Lte matches values less than or equal to v within the same kind.
func Lte(path string, v any) Node { return field(path, OpLte, v) }

// In matches documents whose path equals any of vs.
func In(path string, vs ...any) Node {
	items := make([]document.Value, len(vs))
	for i, v := range vs {
		items[i] = document.MustFromAny(v)
	}
	return &Field{Path: path, Op: OpIn, Value: document.Array(items...)}
}

// Nin matches documents whose path equals none of vs.
func Nin(path string, vs ...any) Node {
	n := In(path, vs...).(*Field)
	n.Op = OpNin
	return n
}

// AndOf matches when every child matches.
func AndOf(children ...Node) Node { return &Logical{Op: And, Children: children} }

// OrOf matches when any child matches.
func OrOf(children ...Node) Node { return &Logical{Op: Or, Children: children} }

// All matches every document.
func All() Node { return &Logical{Op: And} }
