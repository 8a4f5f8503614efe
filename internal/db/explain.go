package db

import (
	"context"
	"time"

	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Explain plans f exactly as Find would and executes the plan, counting
// examined and matching documents instead of returning them.
func (c *Collection) Explain(ctx context.Context, f filter.Node) (Explanation, error) {
	return c.ExplainWith(ctx, f, FindOptions{})
}

// ExplainWith is Explain honoring the Hint of opts.
func (c *Collection) ExplainWith(ctx context.Context, f filter.Node, opts FindOptions) (Explanation, error) {
	start := time.Now()

	c.mu.RLock()
	p, err := c.planLocked(f, opts.Hint)
	if err != nil {
		c.mu.RUnlock()
		return Explanation{}, err
	}
	c.logPlan(ctx, "explain", f, p)
	recs := c.resolveLocked(p)
	keys := p.keysExamined()
	c.mu.RUnlock()

	examined, returned, err := countMatches(ctx, recs, f)
	if err != nil {
		return Explanation{}, err
	}
	return Explanation{
		AccessPath:        p.path,
		Index:             p.handle(),
		KeysExamined:      keys,
		DocumentsExamined: examined,
		DocumentsReturned: returned,
		Duration:          time.Since(start),
	}, nil
}
