package filter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// Parse converts a Mongo-style filter map into a Node.
//
// Supported syntax: implicit equality ({f: v}), operator maps
// ({f: {$gt: 1, $lt: 5}}), and $and / $or over arrays of filters. Keys are
// processed in sorted order so the resulting tree is deterministic.
func Parse(spec map[string]any) (Node, error) {
	children, err := parseClauses(spec)
	if err != nil {
		return nil, err
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Logical{Op: And, Children: children}, nil
}

// ParseJSON parses a filter from its JSON text. Empty input matches all.
func ParseJSON(data []byte) (Node, error) {
	if strings.TrimSpace(string(data)) == "" {
		return All(), nil
	}
	var spec map[string]any
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return Parse(spec)
}

func parseClauses(spec map[string]any) ([]Node, error) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	children := make([]Node, 0, len(keys))
	for _, key := range keys {
		raw := spec[key]
		switch {
		case key == string(And) || key == string(Or):
			n, err := parseLogical(LogicalOp(key), raw)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		case strings.HasPrefix(key, "$"):
			return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, key)
		default:
			nodes, err := parseField(key, raw)
			if err != nil {
				return nil, err
			}
			children = append(children, nodes...)
		}
	}
	return children, nil
}

func parseLogical(op LogicalOp, raw any) (Node, error) {
	var items []map[string]any
	switch t := raw.(type) {
	case []any:
		for _, e := range t {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s elements must be objects", ErrInvalidQuery, op)
			}
			items = append(items, m)
		}
	case []map[string]any:
		items = t
	default:
		return nil, fmt.Errorf("%w: %s requires an array", ErrInvalidQuery, op)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %s requires a non-empty array", ErrInvalidQuery, op)
	}

	l := &Logical{Op: op, Children: make([]Node, 0, len(items))}
	for _, item := range items {
		n, err := Parse(item)
		if err != nil {
			return nil, err
		}
		l.Children = append(l.Children, n)
	}
	return l, nil
}

func parseField(path string, raw any) ([]Node, error) {
	if err := document.ValidatePath(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}

	ops, isOps, err := operatorMap(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, path, err)
	}
	if !isOps {
		v, err := document.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, path, err)
		}
		return []Node{&Field{Path: path, Op: OpEq, Value: v}}, nil
	}

	names := make([]string, 0, len(ops))
	for k := range ops {
		names = append(names, k)
	}
	sort.Strings(names)

	nodes := make([]Node, 0, len(names))
	for _, name := range names {
		op := Op(name)
		if !knownOps[op] {
			return nil, fmt.Errorf("%w: unknown operator %q on field %q", ErrInvalidQuery, name, path)
		}
		v, err := document.FromAny(ops[name])
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, path, err)
		}
		if (op == OpIn || op == OpNin) && v.Kind() != document.KindArray {
			return nil, fmt.Errorf("%w: %s on field %q requires an array", ErrInvalidQuery, name, path)
		}
		nodes = append(nodes, &Field{Path: path, Op: op, Value: v})
	}
	return nodes, nil
}

// operatorMap reports whether raw is an operator object such as
// {"$gt": 3}. Objects mixing operators and plain fields are rejected.
func operatorMap(raw any) (map[string]any, bool, error) {
	m, ok := raw.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, false, nil
	}
	dollar := 0
	for k := range m {
		if strings.HasPrefix(k, "$") {
			dollar++
		}
	}
	switch dollar {
	case 0:
		return nil, false, nil
	case len(m):
		return m, true, nil
	default:
		return nil, false, fmt.Errorf("operators mixed with field names")
	}
}
