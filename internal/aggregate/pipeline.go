package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Pipeline is an ordered list of stages.
type Pipeline []Stage

// String lists the stage names, e.g. "$match|$group|$sort".
func (p Pipeline) String() string {
	names := make([]string, len(p))
	for i, s := range p {
		names[i] = s.Name()
	}
	return strings.Join(names, "|")
}

// Run composes p over src. Nothing is evaluated until the returned
// iterator is advanced, and the source is checked for cancellation of ctx
// before every document it produces.
func Run(ctx context.Context, src Iterator, p Pipeline) Iterator {
	var it Iterator = &contextIterator{ctx: ctx, src: src}
	for _, stage := range p {
		it = stage.Apply(ctx, it)
	}
	return it
}

// ParsePipelineJSON parses a JSON array of stages.
func ParsePipelineJSON(data []byte) (Pipeline, error) {
	var stages []map[string]any
	if err := json.Unmarshal(data, &stages); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return ParsePipeline(stages)
}

// ParsePipeline parses Mongo stage syntax. Each stage is an object with a
// single key naming the stage.
func ParsePipeline(stages []map[string]any) (Pipeline, error) {
	p := make(Pipeline, 0, len(stages))
	for i, raw := range stages {
		if len(raw) != 1 {
			return nil, fmt.Errorf("%w: stage %d must have exactly one key", ErrInvalidExpression, i)
		}
		for name, body := range raw {
			stage, err := parseStage(name, body)
			if err != nil {
				return nil, fmt.Errorf("stage %d: %w", i, err)
			}
			p = append(p, stage)
		}
	}
	return p, nil
}

func parseStage(name string, body any) (Stage, error) {
	switch name {
	case "$match":
		m, ok := body.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: $match requires an object", ErrInvalidExpression)
		}
		n, err := filter.Parse(m)
		if err != nil {
			return nil, fmt.Errorf("%w: $match: %w", ErrInvalidExpression, err)
		}
		return Match{Filter: n}, nil
	case "$project":
		return parseProject(body)
	case "$group":
		return parseGroup(body)
	case "$sort":
		m, ok := body.(map[string]any)
		if !ok || len(m) == 0 {
			return nil, fmt.Errorf("%w: $sort requires a non-empty object", ErrInvalidExpression)
		}
		fields, err := document.ParseSort(m)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
		return Sort{Fields: fields}, nil
	case "$skip":
		n, err := count(name, body, 0)
		if err != nil {
			return nil, err
		}
		return Skip{N: n}, nil
	case "$limit":
		n, err := count(name, body, 1)
		if err != nil {
			return nil, err
		}
		return Limit{N: n}, nil
	default:
		return nil, fmt.Errorf("%w: unknown stage %q", ErrInvalidExpression, name)
	}
}

func count(name string, body any, least int) (int, error) {
	v, err := document.FromAny(body)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidExpression, name, err)
	}
	n, ok := document.ParseInt(v)
	if !ok || n < least {
		return 0, fmt.Errorf("%w: %s requires an integer >= %d", ErrInvalidExpression, name, least)
	}
	return n, nil
}

func parseProject(body any) (Stage, error) {
	m, ok := body.(map[string]any)
	if !ok || len(m) == 0 {
		return nil, fmt.Errorf("%w: $project requires a non-empty object", ErrInvalidExpression)
	}

	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)

	var p Project
	for _, name := range names {
		if err := document.ValidatePath(name); err != nil {
			return nil, fmt.Errorf("%w: $project: %v", ErrInvalidExpression, err)
		}
		switch flag, isFlag := projectionFlag(m[name]); {
		case isFlag && flag:
			p.Include = append(p.Include, name)
		case isFlag:
			p.Exclude = append(p.Exclude, name)
		default:
			e, err := ParseExpr(m[name])
			if err != nil {
				return nil, err
			}
			if p.Computed == nil {
				p.Computed = make(map[string]Expr)
			}
			p.Computed[name] = e
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// projectionFlag reports whether raw is an include/exclude marker
// (1, 0, true or false).
func projectionFlag(raw any) (include bool, ok bool) {
	v, err := document.FromAny(raw)
	if err != nil {
		return false, false
	}
	if b, isBool := v.AsBool(); isBool {
		return b, true
	}
	if n, isNum := v.AsNumber(); isNum && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

func parseGroup(body any) (Stage, error) {
	m, ok := body.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: $group requires an object", ErrInvalidExpression)
	}
	rawKey, ok := m[document.IDField]
	if !ok {
		return nil, fmt.Errorf("%w: $group requires an _id", ErrInvalidExpression)
	}

	var g Group
	if rawKey != nil {
		key, err := ParseExpr(rawKey)
		if err != nil {
			return nil, err
		}
		g.Key = key
	}

	names := make([]string, 0, len(m))
	for k := range m {
		if k != document.IDField {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	for _, name := range names {
		spec, ok := m[name].(map[string]any)
		if !ok || len(spec) != 1 {
			return nil, fmt.Errorf("%w: $group field %q must be a single accumulator", ErrInvalidExpression, name)
		}
		for op, arg := range spec {
			acc := Accumulator{Name: name, Op: AccumulatorOp(op)}
			if !knownAccumulators[acc.Op] {
				return nil, fmt.Errorf("%w: unknown accumulator %q", ErrInvalidExpression, op)
			}
			if acc.Op != AccCount {
				e, err := ParseExpr(arg)
				if err != nil {
					return nil, err
				}
				acc.Expr = e
			}
			g.Accumulators = append(g.Accumulators, acc)
		}
	}
	if err := g.validate(); err != nil {
		return nil, err
	}
	return g, nil
}
