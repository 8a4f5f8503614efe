package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Stage transforms a document stream.
type Stage interface {
	// Name returns the stage operator, e.g. "$group".
	Name() string
	// Apply wraps src. The returned iterator owns src and closes it.
	Apply(ctx context.Context, src Iterator) Iterator
}

// Match keeps documents satisfying Filter.
type Match struct {
	Filter filter.Node
}

func (Match) Name() string { return "$match" }

func (m Match) Apply(_ context.Context, src Iterator) Iterator {
	return &matchIterator{src: src, node: m.Filter}
}

type matchIterator struct {
	src  Iterator
	node filter.Node
}

func (it *matchIterator) Next() bool {
	for it.src.Next() {
		if filter.Match(it.node, it.src.Document()) {
			return true
		}
	}
	return false
}

func (it *matchIterator) Document() document.Document { return it.src.Document() }
func (it *matchIterator) Err() error                  { return it.src.Err() }
func (it *matchIterator) Close() error                { return it.src.Close() }

// Project reshapes each document.
//
// Inclusion mode copies Include paths and adds Computed fields; exclusion
// mode copies everything except Exclude. _id is carried over unless listed
// in Exclude. Exclude may not be combined with Include or Computed, except
// for excluding _id.
type Project struct {
	Include  []string
	Exclude  []string
	Computed map[string]Expr
}

func (Project) Name() string { return "$project" }

// Validate reports whether p mixes inclusion and exclusion.
func (p Project) Validate() error {
	others := 0
	for _, path := range p.Exclude {
		if path != document.IDField {
			others++
		}
	}
	if others > 0 && (len(p.Include) > 0 || len(p.Computed) > 0) {
		return fmt.Errorf("%w: $project cannot mix inclusion and exclusion", ErrInvalidExpression)
	}
	return nil
}

func (p Project) exclusion() bool {
	return len(p.Include) == 0 && len(p.Computed) == 0
}

func (p Project) excludesID() bool {
	for _, path := range p.Exclude {
		if path == document.IDField {
			return true
		}
	}
	return false
}

func (p Project) Apply(_ context.Context, src Iterator) Iterator {
	if err := p.Validate(); err != nil {
		return &errIterator{src: src, err: err}
	}
	return &projectIterator{src: src, p: p, computed: p.computedNames()}
}

// Reshape applies p to a single document.
func (p Project) Reshape(d document.Document) (document.Document, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p.reshape(d, p.computedNames())
}

func (p Project) computedNames() []string {
	names := make([]string, 0, len(p.Computed))
	for name := range p.Computed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reshape applies p to d, returning a new document.
func (p Project) reshape(d document.Document, computed []string) (document.Document, error) {
	if p.exclusion() {
		out := d.Clone()
		for _, path := range p.Exclude {
			out.Unset(path)
		}
		return out, nil
	}

	out := make(document.Document, len(p.Include)+len(computed)+1)
	if id, ok := d[document.IDField]; ok && !p.excludesID() {
		out[document.IDField] = id.Clone()
	}
	for _, path := range p.Include {
		if v, ok := d.Get(path); ok {
			if err := out.Set(path, v.Clone()); err != nil {
				return nil, fmt.Errorf("%w: $project %q: %v", ErrInvalidExpression, path, err)
			}
		}
	}
	for _, name := range computed {
		v, err := p.Computed[name].Eval(d)
		if err != nil {
			return nil, err
		}
		if err := out.Set(name, v); err != nil {
			return nil, fmt.Errorf("%w: $project %q: %v", ErrInvalidExpression, name, err)
		}
	}
	return out, nil
}

type projectIterator struct {
	src      Iterator
	p        Project
	computed []string
	cur      document.Document
	err      error
}

func (it *projectIterator) Next() bool {
	if it.err != nil || !it.src.Next() {
		return false
	}
	out, err := it.p.reshape(it.src.Document(), it.computed)
	if err != nil {
		it.err = err
		return false
	}
	it.cur = out
	return true
}

func (it *projectIterator) Document() document.Document { return it.cur }

func (it *projectIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.src.Err()
}

func (it *projectIterator) Close() error { return it.src.Close() }

// Sort orders the whole input stably by Fields.
type Sort struct {
	Fields []document.SortField
}

func (Sort) Name() string { return "$sort" }

func (s Sort) Apply(_ context.Context, src Iterator) Iterator {
	return &bufferedIterator{src: src, fill: func(docs []document.Document) ([]document.Document, error) {
		document.SortStable(docs, s.Fields)
		return docs, nil
	}}
}

// bufferedIterator drains src on first use, transforms the buffer with
// fill, then replays it.
type bufferedIterator struct {
	src    Iterator
	fill   func([]document.Document) ([]document.Document, error)
	docs   []document.Document
	pos    int
	loaded bool
	err    error
}

func (it *bufferedIterator) load() {
	it.loaded = true
	it.pos = -1
	var docs []document.Document
	for it.src.Next() {
		docs = append(docs, it.src.Document())
	}
	if err := it.src.Err(); err != nil {
		it.err = err
		return
	}
	it.docs, it.err = it.fill(docs)
}

func (it *bufferedIterator) Next() bool {
	if !it.loaded {
		it.load()
	}
	if it.err != nil || it.pos+1 >= len(it.docs) {
		return false
	}
	it.pos++
	return true
}

func (it *bufferedIterator) Document() document.Document {
	if it.pos < 0 || it.pos >= len(it.docs) {
		return nil
	}
	return it.docs[it.pos]
}

func (it *bufferedIterator) Err() error   { return it.err }
func (it *bufferedIterator) Close() error { return it.src.Close() }

// Skip drops the first N documents.
type Skip struct {
	N int
}

func (Skip) Name() string { return "$skip" }

func (s Skip) Apply(_ context.Context, src Iterator) Iterator {
	return &skipIterator{src: src, remaining: s.N}
}

type skipIterator struct {
	src       Iterator
	remaining int
}

func (it *skipIterator) Next() bool {
	for it.remaining > 0 {
		if !it.src.Next() {
			return false
		}
		it.remaining--
	}
	return it.src.Next()
}

func (it *skipIterator) Document() document.Document { return it.src.Document() }
func (it *skipIterator) Err() error                  { return it.src.Err() }
func (it *skipIterator) Close() error                { return it.src.Close() }

// Limit passes at most N documents and then stops pulling from its source.
// N <= 0 passes everything.
type Limit struct {
	N int
}

func (Limit) Name() string { return "$limit" }

func (l Limit) Apply(_ context.Context, src Iterator) Iterator {
	if l.N <= 0 {
		return src
	}
	return &limitIterator{src: src, remaining: l.N}
}

type limitIterator struct {
	src       Iterator
	remaining int
}

func (it *limitIterator) Next() bool {
	if it.remaining <= 0 {
		return false
	}
	if !it.src.Next() {
		return false
	}
	it.remaining--
	return true
}

func (it *limitIterator) Document() document.Document { return it.src.Document() }
func (it *limitIterator) Err() error                  { return it.src.Err() }
func (it *limitIterator) Close() error                { return it.src.Close() }
