package db

import (
	"context"
	"fmt"
)

// Snapshotter stores and restores collection contents. internal/storage
// implements it on top of BadgerDB.
type Snapshotter interface {
	SaveCollection(name string, docs []Document, indexes [][]string) error
	LoadCollection(name string) ([]Document, [][]string, error)
}

// SaveTo writes every document, in insertion order, and every index
// definition to s.
func (c *Collection) SaveTo(s Snapshotter) error {
	c.mu.RLock()
	recs := c.snapshotLocked()
	indexes := make([][]string, 0, len(c.indexes))
	for _, h := range c.indexHandlesLocked() {
		indexes = append(indexes, h.Fields)
	}
	c.mu.RUnlock()

	docs := make([]Document, len(recs))
	for i, rec := range recs {
		docs[i] = rec.doc
	}
	if err := s.SaveCollection(c.name, docs, indexes); err != nil {
		return fmt.Errorf("save collection %s: %w", c.name, err)
	}
	c.logger.Info("collection saved", "collection", c.name, "documents", len(docs), "indexes", len(indexes))
	return nil
}

// LoadFrom inserts the documents stored in s and recreates its indexes.
func (c *Collection) LoadFrom(ctx context.Context, s Snapshotter) error {
	docs, indexes, err := s.LoadCollection(c.name)
	if err != nil {
		return fmt.Errorf("load collection %s: %w", c.name, err)
	}
	if _, err := c.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("load collection %s: %w", c.name, err)
	}
	for _, fields := range indexes {
		if _, err := c.CreateIndex(fields...); err != nil {
			return fmt.Errorf("load collection %s: %w", c.name, err)
		}
	}
	c.logger.Info("collection loaded", "collection", c.name, "documents", len(docs), "indexes", len(indexes))
	return nil
}
