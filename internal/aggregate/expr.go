package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// ErrInvalidExpression is returned for malformed pipelines and for
// expressions that cannot be evaluated against a document.
var ErrInvalidExpression = errors.New("invalid expression")

// Expr computes a value from a document.
type Expr interface {
	Eval(d document.Document) (document.Value, error)
}

// FieldRef reads the value at Path. An absent field is an error.
type FieldRef struct {
	Path string
}

func (f FieldRef) Eval(d document.Document) (document.Value, error) {
	v, ok := d.Get(f.Path)
	if !ok {
		return document.Value{}, fmt.Errorf("%w: field %q is not defined", ErrInvalidExpression, f.Path)
	}
	return v, nil
}

// Literal evaluates to a constant.
type Literal struct {
	Value document.Value
}

func (l Literal) Eval(document.Document) (document.Value, error) { return l.Value, nil }

// ObjectExpr builds a nested document from named sub-expressions.
type ObjectExpr struct {
	Fields map[string]Expr
}

func (o ObjectExpr) Eval(d document.Document) (document.Value, error) {
	out := make(document.Document, len(o.Fields))
	for name, e := range o.Fields {
		v, err := e.Eval(d)
		if err != nil {
			return document.Value{}, err
		}
		out[name] = v
	}
	return document.Object(out), nil
}

// Call applies a named operator to its evaluated arguments.
type Call struct {
	Op   string
	Args []Expr
}

func (c Call) Eval(d document.Document) (document.Value, error) {
	spec, ok := operators[c.Op]
	if !ok {
		return document.Value{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, c.Op)
	}
	args := make([]document.Value, len(c.Args))
	for i, a := range c.Args {
		v, err := a.Eval(d)
		if err != nil {
			return document.Value{}, err
		}
		args[i] = v
	}
	v, err := spec.fn(args)
	if err != nil {
		return document.Value{}, fmt.Errorf("%w: %s: %v", ErrInvalidExpression, c.Op, err)
	}
	return v, nil
}

// Field returns a reference to path.
func Field(path string) Expr { return FieldRef{Path: path} }

// Lit returns a constant expression. It panics on unsupported values.
func Lit(v any) Expr { return Literal{Value: document.MustFromAny(v)} }

// Apply returns a call of op on args.
func Apply(op string, args ...Expr) Expr { return Call{Op: op, Args: args} }

type operator struct {
	minArgs, maxArgs int // maxArgs < 0 means variadic
	fn               func(args []document.Value) (document.Value, error)
}

var operators map[string]operator

func init() {
	operators = map[string]operator{
		"$add":      {1, -1, foldNumbers(func(a, b float64) float64 { return a + b })},
		"$multiply": {1, -1, foldNumbers(func(a, b float64) float64 { return a * b })},
		"$subtract": {2, 2, binaryNumbers(func(a, b float64) (float64, error) { return a - b, nil })},
		"$divide": {2, 2, binaryNumbers(func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("division by zero")
			}
			return a / b, nil
		})},
		"$mod": {2, 2, binaryNumbers(func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errors.New("modulo by zero")
			}
			return math.Mod(a, b), nil
		})},
		"$floor":    {1, 1, unaryNumber(math.Floor)},
		"$ceil":     {1, 1, unaryNumber(math.Ceil)},
		"$abs":      {1, 1, unaryNumber(math.Abs)},
		"$concat":   {1, -1, concat},
		"$toString": {1, 1, toString},
		"$toLower":  {1, 1, mapString(strings.ToLower)},
		"$toUpper":  {1, 1, mapString(strings.ToUpper)},
	}
}

func anyNull(args []document.Value) bool {
	for _, a := range args {
		if a.IsNull() {
			return true
		}
	}
	return false
}

func numbers(args []document.Value) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		n, ok := a.AsNumber()
		if !ok {
			return nil, fmt.Errorf("argument %d is a %s, not a number", i+1, a.Kind())
		}
		out[i] = n
	}
	return out, nil
}

func foldNumbers(f func(a, b float64) float64) func([]document.Value) (document.Value, error) {
	return func(args []document.Value) (document.Value, error) {
		if anyNull(args) {
			return document.Null(), nil
		}
		ns, err := numbers(args)
		if err != nil {
			return document.Value{}, err
		}
		acc := ns[0]
		for _, n := range ns[1:] {
			acc = f(acc, n)
		}
		return document.Number(acc), nil
	}
}

func binaryNumbers(f func(a, b float64) (float64, error)) func([]document.Value) (document.Value, error) {
	return func(args []document.Value) (document.Value, error) {
		if anyNull(args) {
			return document.Null(), nil
		}
		ns, err := numbers(args)
		if err != nil {
			return document.Value{}, err
		}
		r, err := f(ns[0], ns[1])
		if err != nil {
			return document.Value{}, err
		}
		return document.Number(r), nil
	}
}

func unaryNumber(f func(float64) float64) func([]document.Value) (document.Value, error) {
	return func(args []document.Value) (document.Value, error) {
		if anyNull(args) {
			return document.Null(), nil
		}
		ns, err := numbers(args)
		if err != nil {
			return document.Value{}, err
		}
		return document.Number(f(ns[0])), nil
	}
}

func concat(args []document.Value) (document.Value, error) {
	if anyNull(args) {
		return document.Null(), nil
	}
	var sb strings.Builder
	for i, a := range args {
		s, ok := a.AsString()
		if !ok {
			return document.Value{}, fmt.Errorf("argument %d is a %s, not a string", i+1, a.Kind())
		}
		sb.WriteString(s)
	}
	return document.String(sb.String()), nil
}

func toString(args []document.Value) (document.Value, error) {
	a := args[0]
	switch a.Kind() {
	case document.KindNull:
		return a, nil
	case document.KindString:
		return a, nil
	case document.KindNumber:
		n, _ := a.AsNumber()
		return document.String(document.FormatNumber(n)), nil
	case document.KindBool:
		b, _ := a.AsBool()
		if b {
			return document.String("true"), nil
		}
		return document.String("false"), nil
	default:
		return document.Value{}, fmt.Errorf("cannot convert %s to string", a.Kind())
	}
}

func mapString(f func(string) string) func([]document.Value) (document.Value, error) {
	return func(args []document.Value) (document.Value, error) {
		if args[0].IsNull() {
			return document.Null(), nil
		}
		s, ok := args[0].AsString()
		if !ok {
			return document.Value{}, fmt.Errorf("argument is a %s, not a string", args[0].Kind())
		}
		return document.String(f(s)), nil
	}
}

// ParseExpr converts Mongo expression syntax into an Expr:
// "$path" is a field reference, {"$op": args} an operator call,
// {"$literal": v} a constant, any other object an object expression and
// everything else a literal.
func ParseExpr(raw any) (Expr, error) {
	switch t := raw.(type) {
	case string:
		if strings.HasPrefix(t, "$") {
			path := t[1:]
			if err := document.ValidatePath(path); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
			}
			return FieldRef{Path: path}, nil
		}
		return Literal{Value: document.String(t)}, nil
	case map[string]any:
		return parseObjectExpr(t)
	case []any:
		items := make([]Expr, len(t))
		for i, e := range t {
			x, err := ParseExpr(e)
			if err != nil {
				return nil, err
			}
			items[i] = x
		}
		return arrayExpr(items), nil
	default:
		v, err := document.FromAny(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
		}
		return Literal{Value: v}, nil
	}
}

func parseObjectExpr(m map[string]any) (Expr, error) {
	if len(m) == 1 {
		for op, rawArgs := range m {
			if !strings.HasPrefix(op, "$") {
				break
			}
			return parseCall(op, rawArgs)
		}
	}

	names := make([]string, 0, len(m))
	for k := range m {
		if strings.HasPrefix(k, "$") {
			return nil, fmt.Errorf("%w: operator %q must be the only key of its object", ErrInvalidExpression, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	fields := make(map[string]Expr, len(names))
	for _, name := range names {
		e, err := ParseExpr(m[name])
		if err != nil {
			return nil, err
		}
		fields[name] = e
	}
	return ObjectExpr{Fields: fields}, nil
}

func parseCall(op string, rawArgs any) (Expr, error) {
	if op == "$literal" {
		v, err := document.FromAny(rawArgs)
		if err != nil {
			return nil, fmt.Errorf("%w: $literal: %v", ErrInvalidExpression, err)
		}
		return Literal{Value: v}, nil
	}

	spec, ok := operators[op]
	if !ok {
		return nil, fmt.Errorf("%w: unknown operator %q", ErrInvalidExpression, op)
	}

	list, isList := rawArgs.([]any)
	if !isList {
		list = []any{rawArgs}
	}
	if len(list) < spec.minArgs || (spec.maxArgs >= 0 && len(list) > spec.maxArgs) {
		return nil, fmt.Errorf("%w: %s takes %s, got %d", ErrInvalidExpression, op, arity(spec), len(list))
	}

	args := make([]Expr, len(list))
	for i, a := range list {
		e, err := ParseExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}
	return Call{Op: op, Args: args}, nil
}

func arity(op operator) string {
	switch {
	case op.maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", op.minArgs)
	case op.minArgs == op.maxArgs:
		return fmt.Sprintf("%d argument(s)", op.minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", op.minArgs, op.maxArgs)
	}
}

// arrayExpr evaluates each element into an array value.
type arrayExpr []Expr

func (a arrayExpr) Eval(d document.Document) (document.Value, error) {
	items := make([]document.Value, len(a))
	for i, e := range a {
		v, err := e.Eval(d)
		if err != nil {
			return document.Value{}, err
		}
		items[i] = v
	}
	return document.Array(items...), nil
}
