package db

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// plan is the access path chosen for one filter.
type plan struct {
	path   AccessPath
	index  *index
	prefix int             // leading index fields matched by equality terms
	seqs   *roaring.Bitmap // candidates for IndexSeek; owned by the index
}

func (p plan) handle() *IndexHandle {
	if p.index == nil {
		return nil
	}
	h := p.index.handle()
	return &h
}

// keysExamined counts the index entries read by an IndexSeek.
func (p plan) keysExamined() int {
	if p.seqs == nil {
		return 0
	}
	return int(p.seqs.GetCardinality())
}

// planLocked picks an access path for f. Equality terms of the top-level
// conjunction are matched against every index's leftmost prefix; the index
// covering the longest prefix wins, ties going to the smaller candidate set
// and then to the index name. Without a usable index the plan is a full
// scan. hint may force a full scan (NaturalHint) or a named index.
//
// Callers hold c.mu.
func (c *Collection) planLocked(f filter.Node, hint string) (plan, error) {
	full := plan{path: FullScan}
	if hint == NaturalHint {
		return full, nil
	}

	var terms map[string]document.Value
	if f != nil {
		terms = filter.EqualityTerms(f)
	}

	if hint != "" {
		ix, ok := c.indexes[hint]
		if !ok {
			return plan{}, fmt.Errorf("%w: hint %s", ErrIndexNotFound, hint)
		}
		k := ix.coveredPrefix(terms)
		if k == 0 {
			return plan{}, fmt.Errorf("%w: index %s cannot serve this filter", ErrInvalidQuery, hint)
		}
		return seek(ix, k, terms), nil
	}

	if len(terms) == 0 || len(c.indexes) == 0 {
		return full, nil
	}

	names := make([]string, 0, len(c.indexes))
	for name := range c.indexes {
		names = append(names, name)
	}
	sort.Strings(names)

	best := full
	for _, name := range names {
		ix := c.indexes[name]
		k := ix.coveredPrefix(terms)
		if k == 0 {
			continue
		}
		cand := seek(ix, k, terms)
		switch {
		case best.index == nil,
			cand.prefix > best.prefix,
			cand.prefix == best.prefix && cand.seqs.GetCardinality() < best.seqs.GetCardinality():
			best = cand
		}
	}
	return best, nil
}

func seek(ix *index, k int, terms map[string]document.Value) plan {
	values := make([]document.Value, k)
	for i := 0; i < k; i++ {
		values[i] = terms[ix.fields[i]]
	}
	return plan{path: IndexSeek, index: ix, prefix: k, seqs: ix.lookup(values)}
}

// resolveLocked returns the records p will examine, in insertion order.
// Callers hold c.mu; the result stays valid after it is released.
func (c *Collection) resolveLocked(p plan) []*record {
	if p.path == FullScan {
		return c.snapshotLocked()
	}
	recs := make([]*record, 0, p.seqs.GetCardinality())
	it := p.seqs.Iterator()
	for it.HasNext() {
		if rec, ok := c.bySeq[it.Next()]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

func (c *Collection) logPlan(ctx context.Context, op string, f filter.Node, p plan) {
	if !c.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	attrs := []any{"collection", c.name, "op", op, "path", string(p.path)}
	if p.index != nil {
		attrs = append(attrs, "index", p.index.name, "prefix", p.prefix, "keys", p.keysExamined())
	}
	if f != nil {
		attrs = append(attrs, "filter", f.String())
	}
	c.logger.DebugContext(ctx, "query plan", attrs...)
}
