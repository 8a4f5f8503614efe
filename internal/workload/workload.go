// Package workload is the bookstore exercise run by "flindoc run": queries,
// mutations, aggregations and index explains against the books collection.
package workload

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/db"
	"github.com/skshohagmiah/flindoc/internal/filter"
	"github.com/skshohagmiah/flindoc/internal/shell"
)

// Result is what a task produced. Exactly one of the fields is meaningful
// for a given task.
type Result struct {
	Documents   []db.Document
	Explanation *db.Explanation
	Count       int
	Index       *db.IndexHandle
}

// Write prints r after its heading.
func (r Result) Write(w io.Writer) error {
	switch {
	case r.Explanation != nil:
		shell.WriteExplanation(w, *r.Explanation)
		return nil
	case r.Index != nil:
		_, err := fmt.Fprintln(w, r.Index.Name)
		return err
	case r.Documents != nil:
		if len(r.Documents) == 0 {
			_, err := fmt.Fprintln(w, "(no documents)")
			return err
		}
		return shell.WriteDocuments(w, r.Documents)
	default:
		_, err := fmt.Fprintln(w, r.Count)
		return err
	}
}

// Task is one numbered step of the workload.
type Task struct {
	ID    string
	Title string
	run   func(ctx context.Context, c *db.Collection) (Result, error)
}

// Run executes t against c.
func (t Task) Run(ctx context.Context, c *db.Collection) (Result, error) {
	res, err := t.run(ctx, c)
	if err != nil {
		return Result{}, fmt.Errorf("task %s: %w", t.ID, err)
	}
	return res, nil
}

var summary = db.Include("title", "author", "price").WithoutID()

const (
	avgPriceByGenre = `[{"$group": {"_id": "$genre", "averagePrice": {"$avg": "$price"}}}]`
	topAuthor       = `[
		{"$group": {"_id": "$author", "totalBooks": {"$sum": 1}}},
		{"$sort": {"totalBooks": -1}},
		{"$limit": 1}
	]`
	byDecade = `[
		{"$project": {"decade": {"$concat": [
			{"$toString": {"$multiply": [{"$floor": {"$divide": ["$published_year", 10]}}, 10]}},
			"s"
		]}}},
		{"$group": {"_id": "$decade", "count": {"$sum": 1}}},
		{"$sort": {"_id": 1}}
	]`
)

func find(f filter.Node, opts db.FindOptions) func(context.Context, *db.Collection) (Result, error) {
	return func(ctx context.Context, c *db.Collection) (Result, error) {
		docs, err := c.FindAll(ctx, f, opts)
		if docs == nil {
			docs = []db.Document{}
		}
		return Result{Documents: docs}, err
	}
}

func query(build func(*db.QueryBuilder) *db.QueryBuilder) func(context.Context, *db.Collection) (Result, error) {
	return func(ctx context.Context, c *db.Collection) (Result, error) {
		docs, err := build(c.Query()).All(ctx)
		if docs == nil {
			docs = []db.Document{}
		}
		return Result{Documents: docs}, err
	}
}

func pipeline(src string) func(context.Context, *db.Collection) (Result, error) {
	return func(ctx context.Context, c *db.Collection) (Result, error) {
		p, err := aggregate.ParsePipelineJSON([]byte(src))
		if err != nil {
			return Result{}, err
		}
		docs, err := c.AggregateAll(ctx, p)
		if docs == nil {
			docs = []db.Document{}
		}
		return Result{Documents: docs}, err
	}
}

func createIndex(fields ...string) func(context.Context, *db.Collection) (Result, error) {
	return func(_ context.Context, c *db.Collection) (Result, error) {
		h, err := c.CreateIndex(fields...)
		if err != nil {
			return Result{}, err
		}
		return Result{Index: &h}, nil
	}
}

func explain(f filter.Node) func(context.Context, *db.Collection) (Result, error) {
	return func(ctx context.Context, c *db.Collection) (Result, error) {
		exp, err := c.Explain(ctx, f)
		if err != nil {
			return Result{}, err
		}
		return Result{Explanation: &exp}, nil
	}
}

// Tasks returns the workload in execution order. Later tasks observe the
// mutations and indexes of earlier ones.
func Tasks() []Task {
	return []Task{
		{"3.1", "Books in Fantasy", find(filter.Eq("genre", "Fantasy"), db.FindOptions{})},
		{"3.2", "Books after 2015", find(filter.Gt("published_year", 2015), db.FindOptions{})},
		{"3.3", "Books by J.K. Rowling", find(filter.Eq("author", "J.K. Rowling"), db.FindOptions{})},
		{"3.4", "Price updated", func(ctx context.Context, c *db.Collection) (Result, error) {
			res, err := c.UpdateWhere().Where("title", db.OpEq, "The Hobbit").Set("price", 19.99).One(ctx)
			return Result{Count: res.ModifiedCount}, err
		}},
		{"3.5", "Twilight deleted", func(ctx context.Context, c *db.Collection) (Result, error) {
			res, err := c.DeleteWhere().Where("title", db.OpEq, "Twilight").One(ctx)
			return Result{Count: res.DeletedCount}, err
		}},
		{"3.6", "In-stock and recent books", find(filter.AndOf(
			filter.Eq("in_stock", true),
			filter.Gt("published_year", 2010),
		), db.FindOptions{})},
		{"3.7", "Projection (all books)", find(filter.All(), db.FindOptions{Projection: summary})},
		{"3.8", "Filtered projection", query(func(q *db.QueryBuilder) *db.QueryBuilder {
			return q.WhereEq("in_stock", true).WhereGt("published_year", 2010).Select(summary)
		})},
		{"3.9", "Sorted ascending by price", query(func(q *db.QueryBuilder) *db.QueryBuilder {
			return q.OrderByAsc("price")
		})},
		{"3.10", "Sorted descending by price", query(func(q *db.QueryBuilder) *db.QueryBuilder {
			return q.OrderByDesc("price")
		})},
		{"3.11", "Page 1", query(func(q *db.QueryBuilder) *db.QueryBuilder {
			return q.Limit(5)
		})},
		{"3.12", "Page 2", query(func(q *db.QueryBuilder) *db.QueryBuilder {
			return q.Skip(5).Limit(5)
		})},
		{"4.1", "Average price by genre", pipeline(avgPriceByGenre)},
		{"4.2", "Top author by book count", pipeline(topAuthor)},
		{"4.3", "Books by decade", pipeline(byDecade)},
		{"5.1", "Index on title created", createIndex("title")},
		{"5.2", "Compound index created", createIndex("author", "published_year")},
		{"5.3", "Explain on title search", explain(filter.Eq("title", "The Hobbit"))},
		{"5.4", "Explain on compound index search", explain(filter.AndOf(
			filter.Eq("author", "J.K. Rowling"),
			filter.Eq("published_year", 2007),
		))},
	}
}

// Run executes every task in order, printing each result under its heading.
// It stops at the first failing task.
func Run(ctx context.Context, c *db.Collection, w io.Writer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	for _, t := range Tasks() {
		start := time.Now()
		res, err := t.Run(ctx, c)
		if err != nil {
			return err
		}
		logger.Debug("task finished", "task", t.ID, "duration", time.Since(start))
		if _, err := fmt.Fprintf(w, "%s %s:\n", t.ID, t.Title); err != nil {
			return err
		}
		if err := res.Write(w); err != nil {
			return err
		}
	}
	return nil
}
