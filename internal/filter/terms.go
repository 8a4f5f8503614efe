package filter

import "github.com/skshohagmiah/flindoc/internal/document"

// EqualityTerms returns the equality constraints that every matching
// document must satisfy: $eq leaves directly under the root AND, or the
// root itself when it is an $eq leaf. The first term per path wins.
func EqualityTerms(n Node) map[string]document.Value {
	terms := make(map[string]document.Value)
	switch t := n.(type) {
	case *Field:
		if t.Op == OpEq {
			terms[t.Path] = t.Value
		}
	case *Logical:
		if t.Op != And {
			break
		}
		for _, c := range t.Children {
			f, ok := c.(*Field)
			if !ok || f.Op != OpEq {
				continue
			}
			if _, seen := terms[f.Path]; !seen {
				terms[f.Path] = f.Value
			}
		}
	}
	return terms
}
