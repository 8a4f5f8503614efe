package db

import (
	"context"
	"time"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
)

// Aggregate runs pipeline over the collection. When the first stage is a
// $match it is planned like a Find, so an index can serve it.
func (c *Collection) Aggregate(ctx context.Context, pipeline aggregate.Pipeline) (aggregate.Iterator, error) {
	start := time.Now()

	var (
		src  *Cursor
		rest = pipeline
		err  error
	)
	if len(pipeline) > 0 {
		if m, ok := pipeline[0].(aggregate.Match); ok {
			src, err = c.Find(ctx, m.Filter, FindOptions{})
			rest = pipeline[1:]
		}
	}
	if src == nil && err == nil {
		src, err = c.Find(ctx, nil, FindOptions{})
	}
	if err != nil {
		c.metrics.RecordAggregate(len(pipeline), time.Since(start), err)
		return nil, err
	}

	return &measuredIterator{
		Iterator: aggregate.Run(ctx, src, rest),
		done: func(err error) {
			c.metrics.RecordAggregate(len(pipeline), time.Since(start), err)
		},
	}, nil
}

// AggregateAll runs pipeline and collects the results.
func (c *Collection) AggregateAll(ctx context.Context, pipeline aggregate.Pipeline) ([]Document, error) {
	it, err := c.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return aggregate.Collect(it)
}

// measuredIterator reports once when iteration ends or the iterator is
// closed.
type measuredIterator struct {
	aggregate.Iterator
	done     func(error)
	reported bool
}

func (it *measuredIterator) Next() bool {
	if it.Iterator.Next() {
		return true
	}
	it.report()
	return false
}

func (it *measuredIterator) Close() error {
	it.report()
	return it.Iterator.Close()
}

func (it *measuredIterator) report() {
	if !it.reported {
		it.reported = true
		it.done(it.Iterator.Err())
	}
}
