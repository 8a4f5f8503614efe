package db

import (
	"fmt"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// index is a secondary index over an ordered field list.
//
// levels[k-1] maps the tuple key of a document's first k field values to the
// set of record sequence numbers holding them, so every leftmost prefix of
// the field list can be looked up directly. Missing fields are indexed as
// null.
type index struct {
	name   string
	fields []string
	levels []map[string]*roaring.Bitmap
}

// indexName builds the conventional name, e.g. author_1_published_year_1.
func indexName(fields []string) string {
	parts := make([]string, 0, len(fields)*2)
	for _, f := range fields {
		parts = append(parts, f, "1")
	}
	return strings.Join(parts, "_")
}

func validateIndexFields(fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: index needs at least one field", ErrInvalidQuery)
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if err := document.ValidatePath(f); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
		if seen[f] {
			return fmt.Errorf("%w: field %q listed twice", ErrInvalidQuery, f)
		}
		seen[f] = true
	}
	return nil
}

func sameFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func newIndex(fields []string) *index {
	ix := &index{
		name:   indexName(fields),
		fields: append([]string(nil), fields...),
		levels: make([]map[string]*roaring.Bitmap, len(fields)),
	}
	for i := range ix.levels {
		ix.levels[i] = make(map[string]*roaring.Bitmap)
	}
	return ix
}

func (ix *index) handle() IndexHandle {
	return IndexHandle{Name: ix.name, Fields: append([]string(nil), ix.fields...)}
}

// keys returns the tuple key of doc for every prefix length.
func (ix *index) keys(doc document.Document) []string {
	values := make([]document.Value, len(ix.fields))
	for i, f := range ix.fields {
		values[i], _ = doc.Get(f)
	}
	keys := make([]string, len(values))
	for k := range values {
		keys[k] = document.TupleKey(values[:k+1]...)
	}
	return keys
}

func (ix *index) add(seq uint32, doc document.Document) {
	for k, key := range ix.keys(doc) {
		bm, ok := ix.levels[k][key]
		if !ok {
			bm = roaring.New()
			ix.levels[k][key] = bm
		}
		bm.Add(seq)
	}
}

func (ix *index) remove(seq uint32, doc document.Document) {
	for k, key := range ix.keys(doc) {
		bm, ok := ix.levels[k][key]
		if !ok {
			continue
		}
		bm.Remove(seq)
		if bm.IsEmpty() {
			delete(ix.levels[k], key)
		}
	}
}

// update moves seq from the keys of before to the keys of after. Levels
// whose key did not change are left alone.
func (ix *index) update(seq uint32, before, after document.Document) {
	oldKeys, newKeys := ix.keys(before), ix.keys(after)
	for k := range oldKeys {
		if oldKeys[k] == newKeys[k] {
			continue
		}
		if bm, ok := ix.levels[k][oldKeys[k]]; ok {
			bm.Remove(seq)
			if bm.IsEmpty() {
				delete(ix.levels[k], oldKeys[k])
			}
		}
		bm, ok := ix.levels[k][newKeys[k]]
		if !ok {
			bm = roaring.New()
			ix.levels[k][newKeys[k]] = bm
		}
		bm.Add(seq)
	}
}

// coveredPrefix returns how many leading fields have an equality term.
func (ix *index) coveredPrefix(terms map[string]document.Value) int {
	n := 0
	for _, f := range ix.fields {
		if _, ok := terms[f]; !ok {
			break
		}
		n++
	}
	return n
}

// lookup returns the sequence numbers whose first len(values) fields equal
// values. The bitmap is owned by the index; callers must not modify it.
func (ix *index) lookup(values []document.Value) *roaring.Bitmap {
	if len(values) == 0 || len(values) > len(ix.fields) {
		return nil
	}
	if bm, ok := ix.levels[len(values)-1][document.TupleKey(values...)]; ok {
		return bm
	}
	return roaring.New()
}

// CreateIndex builds a secondary index on fields from the current
// documents. Creating an index whose field list matches an existing one is
// a no-op that returns the existing handle.
func (c *Collection) CreateIndex(fields ...string) (IndexHandle, error) {
	if err := validateIndexFields(fields); err != nil {
		return IndexHandle{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	name := indexName(fields)
	if existing, ok := c.indexes[name]; ok {
		if !sameFields(existing.fields, fields) {
			return IndexHandle{}, fmt.Errorf("%w: index name %s already used for fields %v", ErrInvalidQuery, name, existing.fields)
		}
		return existing.handle(), nil
	}

	ix := newIndex(fields)
	for _, rec := range c.records {
		ix.add(rec.seq, rec.doc)
	}
	c.indexes[name] = ix

	c.logger.Info("index created",
		"collection", c.name,
		"index", name,
		"fields", strings.Join(fields, ","),
		"documents", len(c.records))
	return ix.handle(), nil
}

// DropIndex removes the index called name.
func (c *Collection) DropIndex(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.indexes[name]; !ok {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, name)
	}
	delete(c.indexes, name)
	c.logger.Info("index dropped", "collection", c.name, "index", name)
	return nil
}

// Indexes lists the secondary indexes sorted by name.
func (c *Collection) Indexes() []IndexHandle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexHandlesLocked()
}

func (c *Collection) indexHandlesLocked() []IndexHandle {
	out := make([]IndexHandle, 0, len(c.indexes))
	for _, ix := range c.indexes {
		out = append(out, ix.handle())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// The following hooks run with c.mu held for writing.

func (c *Collection) indexInsert(rec *record) {
	for _, ix := range c.indexes {
		ix.add(rec.seq, rec.doc)
	}
}

func (c *Collection) indexUpdate(before, after *record) {
	for _, ix := range c.indexes {
		ix.update(after.seq, before.doc, after.doc)
	}
}

func (c *Collection) indexDelete(rec *record) {
	for _, ix := range c.indexes {
		ix.remove(rec.seq, rec.doc)
	}
}
