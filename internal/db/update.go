package db

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Update describes field changes applied to matching documents.
type Update struct {
	Set   map[string]document.Value // path -> new value; intermediate objects are created
	Unset []string                  // paths to remove
	Inc   map[string]float64        // path -> increment; a missing field counts as 0
}

// ParseUpdate accepts {$set: {...}, $unset: {...}, $inc: {...}} or a plain
// field map, which is treated as $set.
func ParseUpdate(spec map[string]any) (Update, error) {
	var u Update
	if len(spec) == 0 {
		return u, fmt.Errorf("%w: empty update", ErrInvalidQuery)
	}

	operators := 0
	for k := range spec {
		if strings.HasPrefix(k, "$") {
			operators++
		}
	}
	if operators == 0 {
		spec = map[string]any{"$set": spec}
	} else if operators != len(spec) {
		return u, fmt.Errorf("%w: update mixes operators and fields", ErrInvalidQuery)
	}

	for op, raw := range spec {
		fields, ok := raw.(map[string]any)
		if !ok {
			return u, fmt.Errorf("%w: %s requires an object", ErrInvalidQuery, op)
		}
		switch op {
		case "$set":
			if u.Set == nil {
				u.Set = make(map[string]document.Value, len(fields))
			}
			for path, rv := range fields {
				v, err := document.FromAny(rv)
				if err != nil {
					return u, fmt.Errorf("%w: $set %q: %v", ErrInvalidQuery, path, err)
				}
				u.Set[path] = v
			}
		case "$unset":
			for path := range fields {
				u.Unset = append(u.Unset, path)
			}
			sort.Strings(u.Unset)
		case "$inc":
			if u.Inc == nil {
				u.Inc = make(map[string]float64, len(fields))
			}
			for path, rv := range fields {
				v, err := document.FromAny(rv)
				if err != nil {
					return u, fmt.Errorf("%w: $inc %q: %v", ErrInvalidQuery, path, err)
				}
				n, ok := v.AsNumber()
				if !ok {
					return u, fmt.Errorf("%w: $inc %q requires a number", ErrInvalidQuery, path)
				}
				u.Inc[path] = n
			}
		default:
			return u, fmt.Errorf("%w: unknown update operator %q", ErrInvalidQuery, op)
		}
	}
	return u, u.validate()
}

func (u Update) validate() error {
	seen := make(map[string]string)
	check := func(op, path string) error {
		if err := document.ValidatePath(path); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidQuery, op, err)
		}
		if path == document.IDField || strings.HasPrefix(path, document.IDField+".") {
			return fmt.Errorf("%w: %s cannot modify _id", ErrInvalidQuery, op)
		}
		if prev, dup := seen[path]; dup {
			return fmt.Errorf("%w: %q is changed by both %s and %s", ErrInvalidQuery, path, prev, op)
		}
		seen[path] = op
		return nil
	}

	if len(u.Set) == 0 && len(u.Unset) == 0 && len(u.Inc) == 0 {
		return fmt.Errorf("%w: empty update", ErrInvalidQuery)
	}
	for path := range u.Set {
		if err := check("$set", path); err != nil {
			return err
		}
	}
	for _, path := range u.Unset {
		if err := check("$unset", path); err != nil {
			return err
		}
	}
	for path := range u.Inc {
		if err := check("$inc", path); err != nil {
			return err
		}
	}
	return nil
}

// apply returns the updated copy of doc.
func (u Update) apply(doc Document) (Document, error) {
	out := doc.Clone()

	for _, path := range sortedPaths(u.Set) {
		v := u.Set[path]
		if err := validateNested(path, v); err != nil {
			return nil, err
		}
		if err := out.Set(path, v.Clone()); err != nil {
			return nil, fmt.Errorf("%w: $set: %v", ErrInvalidQuery, err)
		}
	}
	for _, path := range sortedPaths(u.Inc) {
		cur := 0.0
		if v, ok := out.Get(path); ok {
			n, isNum := v.AsNumber()
			if !isNum {
				return nil, fmt.Errorf("%w: $inc %q: field is a %s", ErrInvalidQuery, path, v.Kind())
			}
			cur = n
		}
		if err := out.Set(path, document.Number(cur+u.Inc[path])); err != nil {
			return nil, fmt.Errorf("%w: $inc: %v", ErrInvalidQuery, err)
		}
	}
	for _, path := range u.Unset {
		out.Unset(path)
	}
	return out, nil
}

func sortedPaths[V any](m map[string]V) []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// UpdateOne applies u to the first document matching f in insertion order.
func (c *Collection) UpdateOne(ctx context.Context, f filter.Node, u Update) (UpdateResult, error) {
	return c.update(ctx, f, u, 1)
}

// UpdateMany applies u to every document matching f.
func (c *Collection) UpdateMany(ctx context.Context, f filter.Node, u Update) (UpdateResult, error) {
	return c.update(ctx, f, u, 0)
}

// update computes every replacement before installing any, so a failing
// document leaves the collection unchanged.
func (c *Collection) update(ctx context.Context, f filter.Node, u Update, limit int) (res UpdateResult, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordUpdate(res.MatchedCount, res.ModifiedCount, time.Since(start), err) }()

	if err := u.validate(); err != nil {
		return UpdateResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return UpdateResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := c.matchLocked(ctx, "update", f, limit)
	if err != nil {
		return UpdateResult{}, err
	}

	type change struct{ before, after *record }
	var changes []change
	for _, rec := range matches {
		doc, err := u.apply(rec.doc)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("document %s: %w", rec.id, err)
		}
		if doc.Equal(rec.doc) {
			continue
		}
		changes = append(changes, change{rec, &record{seq: rec.seq, id: rec.id, doc: doc}})
	}

	if len(changes) > 0 {
		records := slices.Clone(c.records)
		for _, ch := range changes {
			records[c.positionLocked(ch.before.seq)] = ch.after
			c.byID[ch.after.id] = ch.after
			c.bySeq[ch.after.seq] = ch.after
			c.indexUpdate(ch.before, ch.after)
		}
		c.records = records
	}
	return UpdateResult{MatchedCount: len(matches), ModifiedCount: len(changes)}, nil
}

// DeleteOne removes the first document matching f in insertion order.
func (c *Collection) DeleteOne(ctx context.Context, f filter.Node) (DeleteResult, error) {
	return c.remove(ctx, f, 1)
}

// DeleteMany removes every document matching f.
func (c *Collection) DeleteMany(ctx context.Context, f filter.Node) (DeleteResult, error) {
	return c.remove(ctx, f, 0)
}

func (c *Collection) remove(ctx context.Context, f filter.Node, limit int) (res DeleteResult, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordDelete(res.DeletedCount, time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return DeleteResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	matches, err := c.matchLocked(ctx, "delete", f, limit)
	if err != nil {
		return DeleteResult{}, err
	}
	if len(matches) == 0 {
		return DeleteResult{}, nil
	}

	gone := make(map[uint32]bool, len(matches))
	for _, rec := range matches {
		gone[rec.seq] = true
		delete(c.byID, rec.id)
		delete(c.bySeq, rec.seq)
		c.indexDelete(rec)
	}
	records := make([]*record, 0, len(c.records)-len(matches))
	for _, rec := range c.records {
		if !gone[rec.seq] {
			records = append(records, rec)
		}
	}
	c.records = records
	c.metrics.SetDocuments(c.name, len(c.records))
	return DeleteResult{DeletedCount: len(matches)}, nil
}

// matchLocked returns up to limit records matching f (all when limit <= 0) in
// insertion order. Callers hold c.mu for writing.
func (c *Collection) matchLocked(ctx context.Context, op string, f filter.Node, limit int) ([]*record, error) {
	p, err := c.planLocked(f, "")
	if err != nil {
		return nil, err
	}
	c.logPlan(ctx, op, f, p)

	var matches []*record
	for _, rec := range c.resolveLocked(p) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if filter.Match(f, rec.doc) {
			matches = append(matches, rec)
			if limit > 0 && len(matches) == limit {
				break
			}
		}
	}
	return matches, nil
}
