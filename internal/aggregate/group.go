package aggregate

import (
	"context"
	"fmt"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// AccumulatorOp names a group accumulator.
type AccumulatorOp string

// Accumulators
const (
	AccSum   AccumulatorOp = "$sum"
	AccAvg   AccumulatorOp = "$avg"
	AccCount AccumulatorOp = "$count"
	AccMin   AccumulatorOp = "$min"
	AccMax   AccumulatorOp = "$max"
	AccFirst AccumulatorOp = "$first"
	AccLast  AccumulatorOp = "$last"
)

var knownAccumulators = map[AccumulatorOp]bool{
	AccSum: true, AccAvg: true, AccCount: true, AccMin: true,
	AccMax: true, AccFirst: true, AccLast: true,
}

// Accumulator computes the output field Name of every group. Expr is
// ignored by $count.
type Accumulator struct {
	Name string
	Op   AccumulatorOp
	Expr Expr
}

// Sum, Avg, Count, Min, Max, First and Last build accumulators.
func Sum(name string, e Expr) Accumulator   { return Accumulator{Name: name, Op: AccSum, Expr: e} }
func Avg(name string, e Expr) Accumulator   { return Accumulator{Name: name, Op: AccAvg, Expr: e} }
func Count(name string) Accumulator         { return Accumulator{Name: name, Op: AccCount} }
func Min(name string, e Expr) Accumulator   { return Accumulator{Name: name, Op: AccMin, Expr: e} }
func Max(name string, e Expr) Accumulator   { return Accumulator{Name: name, Op: AccMax, Expr: e} }
func First(name string, e Expr) Accumulator { return Accumulator{Name: name, Op: AccFirst, Expr: e} }
func Last(name string, e Expr) Accumulator  { return Accumulator{Name: name, Op: AccLast, Expr: e} }

// Group partitions its input by the exact value of Key and emits one
// document per distinct key, in order of first appearance:
// {_id: key, <accumulator name>: value, ...}. A nil Key puts every document
// into a single group keyed null.
type Group struct {
	Key          Expr
	Accumulators []Accumulator
}

func (Group) Name() string { return "$group" }

func (g Group) validate() error {
	seen := make(map[string]bool, len(g.Accumulators))
	for _, acc := range g.Accumulators {
		if acc.Name == "" || acc.Name == document.IDField {
			return fmt.Errorf("%w: $group field name %q", ErrInvalidExpression, acc.Name)
		}
		if seen[acc.Name] {
			return fmt.Errorf("%w: $group field %q defined twice", ErrInvalidExpression, acc.Name)
		}
		seen[acc.Name] = true
		if !knownAccumulators[acc.Op] {
			return fmt.Errorf("%w: unknown accumulator %q", ErrInvalidExpression, acc.Op)
		}
		if acc.Op != AccCount && acc.Expr == nil {
			return fmt.Errorf("%w: %s for %q needs an expression", ErrInvalidExpression, acc.Op, acc.Name)
		}
	}
	return nil
}

func (g Group) Apply(_ context.Context, src Iterator) Iterator {
	if err := g.validate(); err != nil {
		return &errIterator{src: src, err: err}
	}
	return &bufferedIterator{src: src, fill: g.group}
}

type groupState struct {
	key  document.Value
	accs []accState
}

type accState struct {
	count int     // documents seen ($count) or numeric inputs ($avg)
	sum   float64 // running sum or running mean
	val   document.Value
	set   bool
}

func (g Group) group(docs []document.Document) ([]document.Document, error) {
	groups := make(map[string]*groupState)
	var order []*groupState

	for _, d := range docs {
		key := document.Null()
		if g.Key != nil {
			k, err := g.Key.Eval(d)
			if err != nil {
				return nil, err
			}
			key = k
		}

		gk := key.Key()
		st, ok := groups[gk]
		if !ok {
			st = &groupState{key: key, accs: make([]accState, len(g.Accumulators))}
			groups[gk] = st
			order = append(order, st)
		}
		for i, acc := range g.Accumulators {
			if err := accumulate(&st.accs[i], acc, d); err != nil {
				return nil, err
			}
		}
	}

	out := make([]document.Document, 0, len(order))
	for _, st := range order {
		d := make(document.Document, len(g.Accumulators)+1)
		d[document.IDField] = st.key
		for i, acc := range g.Accumulators {
			d[acc.Name] = result(st.accs[i], acc.Op)
		}
		out = append(out, d)
	}
	return out, nil
}

func accumulate(st *accState, acc Accumulator, d document.Document) error {
	if acc.Op == AccCount {
		st.count++
		return nil
	}

	v, err := acc.Expr.Eval(d)
	if err != nil {
		return err
	}

	switch acc.Op {
	case AccSum:
		if n, ok := v.AsNumber(); ok {
			st.sum += n
		}
	case AccAvg:
		if n, ok := v.AsNumber(); ok {
			st.count++
			st.sum += (n - st.sum) / float64(st.count)
		}
	case AccMin, AccMax:
		if v.IsNull() {
			return nil
		}
		c := document.Compare(v, st.val)
		if !st.set || (acc.Op == AccMin && c < 0) || (acc.Op == AccMax && c > 0) {
			st.val, st.set = v, true
		}
	case AccFirst:
		if !st.set {
			st.val, st.set = v, true
		}
	case AccLast:
		st.val, st.set = v, true
	}
	return nil
}

func result(st accState, op AccumulatorOp) document.Value {
	switch op {
	case AccSum:
		return document.Number(st.sum)
	case AccCount:
		return document.Int(int64(st.count))
	case AccAvg:
		if st.count == 0 {
			return document.Null()
		}
		return document.Number(st.sum)
	default:
		if !st.set {
			return document.Null()
		}
		return st.val
	}
}
