// Package aggregate evaluates aggregation pipelines over document streams.
//
// Every stage is an Iterator pulling from the one before it, so a Limit at
// the end of a pipeline stops the scan as soon as it is satisfied. Sort and
// Group are blocking: they drain their input on the first call to Next.
package aggregate

import (
	"context"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// Iterator is a pull-based sequence of documents.
//
// Next advances and reports whether a document is available. Document
// returns the current document. Err reports the error that ended the
// sequence, if any. Close releases the source.
type Iterator interface {
	Next() bool
	Document() document.Document
	Err() error
	Close() error
}

// SliceIterator iterates over an in-memory slice.
type SliceIterator struct {
	docs []document.Document
	pos  int
}

// NewSliceIterator returns an iterator over docs.
func NewSliceIterator(docs []document.Document) *SliceIterator {
	return &SliceIterator{docs: docs, pos: -1}
}

func (it *SliceIterator) Next() bool {
	if it.pos+1 >= len(it.docs) {
		it.pos = len(it.docs)
		return false
	}
	it.pos++
	return true
}

func (it *SliceIterator) Document() document.Document {
	if it.pos < 0 || it.pos >= len(it.docs) {
		return nil
	}
	return it.docs[it.pos]
}

func (it *SliceIterator) Err() error   { return nil }
func (it *SliceIterator) Close() error { return nil }

// Collect drains it into a slice and closes it.
func Collect(it Iterator) ([]document.Document, error) {
	defer it.Close()
	var out []document.Document
	for it.Next() {
		out = append(out, it.Document())
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// errIterator yields nothing and reports err.
type errIterator struct {
	src Iterator
	err error
}

func (it *errIterator) Next() bool                  { return false }
func (it *errIterator) Document() document.Document { return nil }
func (it *errIterator) Err() error                  { return it.err }
func (it *errIterator) Close() error {
	if it.src != nil {
		return it.src.Close()
	}
	return nil
}

// contextIterator stops the source once ctx is done.
type contextIterator struct {
	ctx context.Context
	src Iterator
	err error
}

func (it *contextIterator) Next() bool {
	if it.err != nil {
		return false
	}
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	return it.src.Next()
}

func (it *contextIterator) Document() document.Document { return it.src.Document() }

func (it *contextIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.src.Err()
}

func (it *contextIterator) Close() error { return it.src.Close() }
