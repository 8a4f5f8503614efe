package db

import (
	"context"
	"fmt"
	"time"

	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Find returns a cursor over the documents matching f, which may be nil to
// match everything. Documents are produced lazily in insertion order unless
// opts.Sort is set, in which case the matches are sorted stably before the
// first one is returned. Skip and Limit apply after filtering and sorting.
func (c *Collection) Find(ctx context.Context, f filter.Node, opts FindOptions) (*Cursor, error) {
	if err := validateFindOptions(opts); err != nil {
		return nil, err
	}

	c.mu.RLock()
	p, err := c.planLocked(f, opts.Hint)
	if err != nil {
		c.mu.RUnlock()
		return nil, err
	}
	c.logPlan(ctx, "find", f, p)
	recs := c.resolveLocked(p)
	keys := p.keysExamined()
	c.mu.RUnlock()

	return &Cursor{
		ctx:     ctx,
		metrics: c.metrics,
		filter:  f,
		opts:    opts,
		path:    p.path,
		index:   p.handle(),
		keys:    keys,
		recs:    recs,
		start:   time.Now(),
	}, nil
}

// FindOne returns the first document matching f, or ErrNotFound.
func (c *Collection) FindOne(ctx context.Context, f filter.Node, opts FindOptions) (Document, error) {
	opts.Limit = 1
	docs, err := c.FindAll(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no document matches %s", ErrNotFound, filterString(f))
	}
	return docs[0], nil
}

// FindAll runs Find and collects every result.
func (c *Collection) FindAll(ctx context.Context, f filter.Node, opts FindOptions) ([]Document, error) {
	cur, err := c.Find(ctx, f, opts)
	if err != nil {
		return nil, err
	}
	return cur.All()
}

func filterString(f filter.Node) string {
	if f == nil {
		return "{}"
	}
	return f.String()
}

// Cursor iterates over query results. It is not safe for concurrent use.
//
// The cursor works on the records captured when it was created: documents
// inserted, updated or deleted afterwards are not observed. Every returned
// document is a copy.
type Cursor struct {
	ctx     context.Context
	metrics MetricsCollector
	filter  filter.Node
	opts    FindOptions
	path    AccessPath
	index   *IndexHandle
	keys    int

	recs   []*record
	pos    int
	sorted bool

	skipped  int
	returned int
	examined int
	cur      Document
	err      error
	done     bool
	start    time.Time
}

// Next advances to the next result.
func (cur *Cursor) Next() bool {
	if cur.done {
		return false
	}
	for {
		if cur.opts.Limit > 0 && cur.returned >= cur.opts.Limit {
			cur.finish()
			return false
		}
		rec, ok := cur.advance()
		if !ok {
			cur.finish()
			return false
		}
		if cur.skipped < cur.opts.Skip {
			cur.skipped++
			continue
		}
		doc, err := cur.emit(rec)
		if err != nil {
			cur.err = err
			cur.finish()
			return false
		}
		cur.cur = doc
		cur.returned++
		return true
	}
}

// advance returns the next matching record in output order.
func (cur *Cursor) advance() (*record, bool) {
	if len(cur.opts.Sort) > 0 && !cur.sorted {
		if !cur.sortMatches() {
			return nil, false
		}
	}
	if cur.sorted {
		if cur.pos >= len(cur.recs) {
			return nil, false
		}
		rec := cur.recs[cur.pos]
		cur.pos++
		return rec, true
	}
	return cur.nextMatch()
}

// nextMatch examines records until one satisfies the filter.
func (cur *Cursor) nextMatch() (*record, bool) {
	for cur.pos < len(cur.recs) {
		if err := cur.ctx.Err(); err != nil {
			cur.err = err
			return nil, false
		}
		rec := cur.recs[cur.pos]
		cur.pos++
		cur.examined++
		if filter.Match(cur.filter, rec.doc) {
			return rec, true
		}
	}
	return nil, false
}

// sortMatches replaces recs with the sorted matches.
func (cur *Cursor) sortMatches() bool {
	var matches []*record
	for {
		rec, ok := cur.nextMatch()
		if !ok {
			break
		}
		matches = append(matches, rec)
	}
	if cur.err != nil {
		return false
	}
	sortRecords(matches, cur.opts.Sort)
	cur.recs, cur.pos, cur.sorted = matches, 0, true
	return true
}

func (cur *Cursor) emit(rec *record) (Document, error) {
	if cur.opts.Projection == nil {
		return rec.doc.Clone(), nil
	}
	return cur.opts.Projection.Apply(rec.doc)
}

func (cur *Cursor) finish() {
	if cur.done {
		return
	}
	cur.done = true
	cur.recs = nil
	cur.metrics.RecordFind(cur.path, cur.examined, cur.returned, time.Since(cur.start), cur.err)
}

// Document returns the current result.
func (cur *Cursor) Document() Document { return cur.cur }

// Err returns the error that stopped iteration, if any.
func (cur *Cursor) Err() error { return cur.err }

// Close releases the cursor. It is safe to call more than once.
func (cur *Cursor) Close() error {
	cur.finish()
	return nil
}

// All drains the cursor.
func (cur *Cursor) All() ([]Document, error) {
	defer cur.Close()
	var docs []Document
	for cur.Next() {
		docs = append(docs, cur.cur)
	}
	if cur.err != nil {
		return nil, cur.err
	}
	return docs, nil
}

// AccessPath reports how the cursor's candidates were produced.
func (cur *Cursor) AccessPath() AccessPath { return cur.path }

// Index reports the index used, or nil for a full scan.
func (cur *Cursor) Index() *IndexHandle { return cur.index }

// Examined reports how many documents have been checked against the filter.
func (cur *Cursor) Examined() int { return cur.examined }

// KeysExamined reports how many index entries produced candidates.
func (cur *Cursor) KeysExamined() int { return cur.keys }
