package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Operator constants accepted by the builders' Where. The leading '$' is
// optional.
const (
	OpEq  = "eq"
	OpNe  = "ne"
	OpGt  = "gt"
	OpGte = "gte"
	OpLt  = "lt"
	OpLte = "lte"
	OpIn  = "in"
	OpNin = "nin"
)

// Sort direction constants
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// conditions accumulates Where clauses. The first malformed clause is
// kept and reported by the terminal call.
type conditions struct {
	nodes []filter.Node
	err   error
}

func (cs *conditions) add(field, operator string, value any) {
	if cs.err != nil {
		return
	}
	if err := document.ValidatePath(field); err != nil {
		cs.err = fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		return
	}
	op := filter.Op("$" + strings.TrimPrefix(operator, "$"))
	v, err := document.FromAny(value)
	if err != nil {
		cs.err = fmt.Errorf("%w: field %q: %v", ErrInvalidQuery, field, err)
		return
	}
	switch op {
	case filter.OpIn, filter.OpNin:
		if v.Kind() != document.KindArray {
			cs.err = fmt.Errorf("%w: %s on %q requires a list", ErrInvalidQuery, op, field)
			return
		}
	case filter.OpEq, filter.OpNe, filter.OpGt, filter.OpGte, filter.OpLt, filter.OpLte:
	default:
		cs.err = fmt.Errorf("%w: unknown operator %q", ErrInvalidQuery, operator)
		return
	}
	cs.nodes = append(cs.nodes, &filter.Field{Path: field, Op: op, Value: v})
}

func (cs *conditions) node() (filter.Node, error) {
	switch {
	case cs.err != nil:
		return nil, cs.err
	case len(cs.nodes) == 0:
		return filter.All(), nil
	case len(cs.nodes) == 1:
		return cs.nodes[0], nil
	default:
		return filter.AndOf(cs.nodes...), nil
	}
}

// QueryBuilder provides a fluent interface for building queries
type QueryBuilder struct {
	coll  *Collection
	conds conditions
	opts  FindOptions
}

// Query starts a query on c.
func (c *Collection) Query() *QueryBuilder {
	return &QueryBuilder{coll: c}
}

// Where adds a filter condition
func (qb *QueryBuilder) Where(field, operator string, value any) *QueryBuilder {
	qb.conds.add(field, operator, value)
	return qb
}

// Filter adds an arbitrary filter node
func (qb *QueryBuilder) Filter(n filter.Node) *QueryBuilder {
	if n != nil {
		qb.conds.nodes = append(qb.conds.nodes, n)
	}
	return qb
}

// WhereEq adds an equality filter (shorthand)
func (qb *QueryBuilder) WhereEq(field string, value any) *QueryBuilder {
	return qb.Where(field, OpEq, value)
}

// WhereNe adds a not-equal filter (shorthand)
func (qb *QueryBuilder) WhereNe(field string, value any) *QueryBuilder {
	return qb.Where(field, OpNe, value)
}

// WhereGt adds a greater-than filter (shorthand)
func (qb *QueryBuilder) WhereGt(field string, value any) *QueryBuilder {
	return qb.Where(field, OpGt, value)
}

// WhereGte adds a greater-than-or-equal filter (shorthand)
func (qb *QueryBuilder) WhereGte(field string, value any) *QueryBuilder {
	return qb.Where(field, OpGte, value)
}

// WhereLt adds a less-than filter (shorthand)
func (qb *QueryBuilder) WhereLt(field string, value any) *QueryBuilder {
	return qb.Where(field, OpLt, value)
}

// WhereLte adds a less-than-or-equal filter (shorthand)
func (qb *QueryBuilder) WhereLte(field string, value any) *QueryBuilder {
	return qb.Where(field, OpLte, value)
}

// WhereIn adds an in-list filter (shorthand)
func (qb *QueryBuilder) WhereIn(field string, values ...any) *QueryBuilder {
	return qb.Where(field, OpIn, values)
}

// OrderBy appends a sort key. Later keys break ties of earlier ones.
func (qb *QueryBuilder) OrderBy(field, direction string) *QueryBuilder {
	qb.opts.Sort = append(qb.opts.Sort, SortField{Path: field, Desc: direction == SortDesc})
	return qb
}

// OrderByAsc sorts by field in ascending order (shorthand)
func (qb *QueryBuilder) OrderByAsc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortAsc)
}

// OrderByDesc sorts by field in descending order (shorthand)
func (qb *QueryBuilder) OrderByDesc(field string) *QueryBuilder {
	return qb.OrderBy(field, SortDesc)
}

// Select restricts the returned fields
func (qb *QueryBuilder) Select(p *Projection) *QueryBuilder {
	qb.opts.Projection = p
	return qb
}

// Skip sets the number of documents to skip
func (qb *QueryBuilder) Skip(n int) *QueryBuilder {
	qb.opts.Skip = n
	return qb
}

// Limit sets the maximum number of documents to return
func (qb *QueryBuilder) Limit(n int) *QueryBuilder {
	qb.opts.Limit = n
	return qb
}

// Take is an alias for Limit (Prisma-style)
func (qb *QueryBuilder) Take(n int) *QueryBuilder {
	return qb.Limit(n)
}

// Hint forces an access path: an index name or NaturalHint
func (qb *QueryBuilder) Hint(name string) *QueryBuilder {
	qb.opts.Hint = name
	return qb
}

// Build returns the filter and options for this query
func (qb *QueryBuilder) Build() (filter.Node, FindOptions, error) {
	n, err := qb.conds.node()
	if err != nil {
		return nil, FindOptions{}, err
	}
	return n, qb.opts, nil
}

// Cursor runs the query
func (qb *QueryBuilder) Cursor(ctx context.Context) (*Cursor, error) {
	n, opts, err := qb.Build()
	if err != nil {
		return nil, err
	}
	return qb.coll.Find(ctx, n, opts)
}

// All runs the query and collects every result
func (qb *QueryBuilder) All(ctx context.Context) ([]Document, error) {
	cur, err := qb.Cursor(ctx)
	if err != nil {
		return nil, err
	}
	return cur.All()
}

// One returns the first result, or ErrNotFound
func (qb *QueryBuilder) One(ctx context.Context) (Document, error) {
	n, opts, err := qb.Build()
	if err != nil {
		return nil, err
	}
	return qb.coll.FindOne(ctx, n, opts)
}

// Count counts matching documents, ignoring pagination
func (qb *QueryBuilder) Count(ctx context.Context) (int, error) {
	n, _, err := qb.Build()
	if err != nil {
		return 0, err
	}
	return qb.coll.Count(ctx, n)
}

// Explain reports the plan for the query's filter
func (qb *QueryBuilder) Explain(ctx context.Context) (Explanation, error) {
	n, opts, err := qb.Build()
	if err != nil {
		return Explanation{}, err
	}
	return qb.coll.ExplainWith(ctx, n, opts)
}

// String returns a string representation of the query
func (qb *QueryBuilder) String() string {
	n, _, err := qb.Build()
	if err != nil {
		return fmt.Sprintf("Query{collection=%s, err=%v}", qb.coll.name, err)
	}
	return fmt.Sprintf("Query{collection=%s, filter=%s, sort=%s, skip=%d, limit=%d}",
		qb.coll.name, n, document.FormatSort(qb.opts.Sort), qb.opts.Skip, qb.opts.Limit)
}

// UpdateBuilder provides a fluent interface for building updates
type UpdateBuilder struct {
	coll   *Collection
	conds  conditions
	update Update
	err    error
}

// UpdateWhere starts an update on c.
func (c *Collection) UpdateWhere() *UpdateBuilder {
	return &UpdateBuilder{coll: c}
}

// Where adds a filter condition
func (ub *UpdateBuilder) Where(field, operator string, value any) *UpdateBuilder {
	ub.conds.add(field, operator, value)
	return ub
}

// Set sets a field value
func (ub *UpdateBuilder) Set(field string, value any) *UpdateBuilder {
	v, err := document.FromAny(value)
	if err != nil {
		ub.fail(fmt.Errorf("%w: $set %q: %v", ErrInvalidQuery, field, err))
		return ub
	}
	if ub.update.Set == nil {
		ub.update.Set = make(map[string]document.Value)
	}
	ub.update.Set[field] = v
	return ub
}

// SetMany sets multiple field values
func (ub *UpdateBuilder) SetMany(fields map[string]any) *UpdateBuilder {
	for k, v := range fields {
		ub.Set(k, v)
	}
	return ub
}

// Unset removes a field
func (ub *UpdateBuilder) Unset(field string) *UpdateBuilder {
	ub.update.Unset = append(ub.update.Unset, field)
	return ub
}

// UnsetMany removes multiple fields
func (ub *UpdateBuilder) UnsetMany(fields []string) *UpdateBuilder {
	ub.update.Unset = append(ub.update.Unset, fields...)
	return ub
}

// Inc adds delta to a numeric field
func (ub *UpdateBuilder) Inc(field string, delta float64) *UpdateBuilder {
	if ub.update.Inc == nil {
		ub.update.Inc = make(map[string]float64)
	}
	ub.update.Inc[field] += delta
	return ub
}

func (ub *UpdateBuilder) fail(err error) {
	if ub.err == nil {
		ub.err = err
	}
}

// Build returns the filter and update
func (ub *UpdateBuilder) Build() (filter.Node, Update, error) {
	n, err := ub.conds.node()
	if err = errors.Join(ub.err, err); err != nil {
		return nil, Update{}, err
	}
	return n, ub.update, nil
}

// One updates the first matching document
func (ub *UpdateBuilder) One(ctx context.Context) (UpdateResult, error) {
	n, u, err := ub.Build()
	if err != nil {
		return UpdateResult{}, err
	}
	return ub.coll.UpdateOne(ctx, n, u)
}

// Many updates every matching document
func (ub *UpdateBuilder) Many(ctx context.Context) (UpdateResult, error) {
	n, u, err := ub.Build()
	if err != nil {
		return UpdateResult{}, err
	}
	return ub.coll.UpdateMany(ctx, n, u)
}

// DeleteBuilder provides a fluent interface for building deletes
type DeleteBuilder struct {
	coll  *Collection
	conds conditions
}

// DeleteWhere starts a delete on c.
func (c *Collection) DeleteWhere() *DeleteBuilder {
	return &DeleteBuilder{coll: c}
}

// Where adds a filter condition
func (db *DeleteBuilder) Where(field, operator string, value any) *DeleteBuilder {
	db.conds.add(field, operator, value)
	return db
}

// Build returns the filter for deletion
func (db *DeleteBuilder) Build() (filter.Node, error) {
	return db.conds.node()
}

// One deletes the first matching document
func (db *DeleteBuilder) One(ctx context.Context) (DeleteResult, error) {
	n, err := db.Build()
	if err != nil {
		return DeleteResult{}, err
	}
	return db.coll.DeleteOne(ctx, n)
}

// Many deletes every matching document
func (db *DeleteBuilder) Many(ctx context.Context) (DeleteResult, error) {
	n, err := db.Build()
	if err != nil {
		return DeleteResult{}, err
	}
	return db.coll.DeleteMany(ctx, n)
}
