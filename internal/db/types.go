package db

import (
	"errors"
	"time"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// Common errors
var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrNotFound          = ErrDocumentNotFound
	ErrInvalidQuery      = filter.ErrInvalidQuery
	ErrInvalidExpression = aggregate.ErrInvalidExpression
	ErrInvalidDocument   = errors.New("invalid document")
	ErrDuplicateID       = errors.New("duplicate document id")
	ErrIndexNotFound     = errors.New("index not found")
)

// Document represents a single document in a collection
type Document = document.Document

// SortField is one key of a multi-key sort
type SortField = document.SortField

// NaturalHint forces a full collection scan.
const NaturalHint = "$natural"

// FindOptions represents options for find operations
type FindOptions struct {
	Projection *Projection
	Sort       []SortField
	Skip       int
	Limit      int    // <= 0 means unlimited
	Hint       string // index name, or NaturalHint
}

// UpdateResult reports the outcome of an update
type UpdateResult struct {
	MatchedCount  int
	ModifiedCount int
}

// DeleteResult reports the outcome of a delete
type DeleteResult struct {
	DeletedCount int
}

// IndexHandle identifies a secondary index
type IndexHandle struct {
	Name   string
	Fields []string
}

// AccessPath is the strategy used to produce candidate documents
type AccessPath string

// Access paths
const (
	IndexSeek AccessPath = "IndexSeek"
	FullScan  AccessPath = "FullScan"
)

// Explanation describes how a filter was executed
type Explanation struct {
	AccessPath        AccessPath
	Index             *IndexHandle
	KeysExamined      int
	DocumentsExamined int
	DocumentsReturned int
	Duration          time.Duration
}
