package db

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/filter"
)

// record is one stored document. Records are never modified after they are
// installed; an update replaces the record.
type record struct {
	seq uint32
	id  string
	doc Document
}

// Collection is an in-memory, insertion-ordered set of documents with
// secondary indexes.
//
// Writers hold mu exclusively while they change records and indexes.
// Readers hold it shared only long enough to capture the records they will
// evaluate, so a scan sees either all or none of a mutation.
type Collection struct {
	name string

	mu      sync.RWMutex
	records []*record // ascending seq, replaced on every update or delete
	byID    map[string]*record
	bySeq   map[uint32]*record
	nextSeq uint32
	indexes map[string]*index

	logger  *slog.Logger
	metrics MetricsCollector
	newID   func() string
}

// Option configures a Collection.
type Option func(*Collection)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *Collection) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(c *Collection) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithIDGenerator replaces the UUID generator used for documents without
// an _id.
func WithIDGenerator(f func() string) Option {
	return func(c *Collection) {
		if f != nil {
			c.newID = f
		}
	}
}

// Open creates an empty collection.
func Open(name string, opts ...Option) *Collection {
	c := &Collection{
		name:    name,
		byID:    make(map[string]*record),
		bySeq:   make(map[uint32]*record),
		nextSeq: 1,
		indexes: make(map[string]*index),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: NoopMetricsCollector{},
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Len returns the number of stored documents.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Insert adds a document and returns its _id. The input is copied; a
// string _id supplied by the caller is kept, otherwise a UUID is assigned.
func (c *Collection) Insert(ctx context.Context, doc Document) (string, error) {
	ids, err := c.InsertMany(ctx, []Document{doc})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// InsertMany adds all docs or, on any error, none of them.
func (c *Collection) InsertMany(ctx context.Context, docs []Document) (ids []string, err error) {
	start := time.Now()
	defer func() { c.metrics.RecordInsert(len(docs), time.Since(start), err) }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	prepared := make([]Document, len(docs))
	for i, doc := range docs {
		p, err := c.prepare(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", i, err)
		}
		prepared[i] = p
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids = make([]string, len(prepared))
	batch := make(map[string]bool, len(prepared))
	for i, doc := range prepared {
		id, _ := doc.ID()
		if _, exists := c.byID[id]; exists || batch[id] {
			return nil, fmt.Errorf("document %d: %w: %s", i, ErrDuplicateID, id)
		}
		batch[id] = true
		ids[i] = id
	}
	if uint64(c.nextSeq)+uint64(len(prepared)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: collection %s is out of sequence numbers", ErrInvalidDocument, c.name)
	}

	for i, doc := range prepared {
		rec := &record{seq: c.nextSeq, id: ids[i], doc: doc}
		c.nextSeq++
		c.records = append(c.records, rec)
		c.byID[rec.id] = rec
		c.bySeq[rec.seq] = rec
		c.indexInsert(rec)
	}
	c.metrics.SetDocuments(c.name, len(c.records))
	return ids, nil
}

// prepare validates and copies doc, assigning an _id when absent.
func (c *Collection) prepare(doc Document) (Document, error) {
	if err := validateDocument(doc); err != nil {
		return nil, err
	}
	out := doc.Clone()
	if out == nil {
		out = Document{}
	}
	idVal, ok := out[document.IDField]
	switch {
	case !ok:
		out[document.IDField] = document.String(c.newID())
	case idVal.Kind() != document.KindString:
		return nil, fmt.Errorf("%w: _id must be a string, got %s", ErrInvalidDocument, idVal.Kind())
	default:
		if id, _ := idVal.AsString(); id == "" {
			return nil, fmt.Errorf("%w: _id must not be empty", ErrInvalidDocument)
		}
	}
	return out, nil
}

// Get returns a copy of the document with the given _id.
func (c *Collection) Get(ctx context.Context, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	rec, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return rec.doc.Clone(), nil
}

// Count returns the number of documents matching f.
func (c *Collection) Count(ctx context.Context, f filter.Node) (int, error) {
	c.mu.RLock()
	p, err := c.planLocked(f, "")
	if err != nil {
		c.mu.RUnlock()
		return 0, err
	}
	c.logPlan(ctx, "count", f, p)
	recs := c.resolveLocked(p)
	c.mu.RUnlock()

	_, n, err := countMatches(ctx, recs, f)
	return n, err
}

// Scan returns a cursor over every document in insertion order.
func (c *Collection) Scan(ctx context.Context) *Cursor {
	cur, _ := c.Find(ctx, nil, FindOptions{})
	return cur
}

// snapshotLocked returns the current record list. The slice is never
// written in place, so it stays valid after the lock is released.
func (c *Collection) snapshotLocked() []*record {
	return c.records[:len(c.records):len(c.records)]
}

// positionLocked returns the index of seq in c.records.
func (c *Collection) positionLocked(seq uint32) int {
	i := sort.Search(len(c.records), func(i int) bool { return c.records[i].seq >= seq })
	if i < len(c.records) && c.records[i].seq == seq {
		return i
	}
	return -1
}

func countMatches(ctx context.Context, recs []*record, f filter.Node) (examined, matched int, err error) {
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return examined, matched, err
		}
		examined++
		if filter.Match(f, rec.doc) {
			matched++
		}
	}
	return examined, matched, nil
}
