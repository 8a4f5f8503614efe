package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"golang.org/x/sync/errgroup"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// Key layout:
//
//	coll:<name>            collection marker, value is the document count
//	doc:<name>:<position>  one zstd compressed JSON document, position is zero padded
//	idx:<name>             JSON list of index field lists
const (
	collPrefix  = "coll:"
	docPrefix   = "doc:"
	indexPrefix = "idx:"
)

// ErrInvalidName is returned for collection names that cannot be stored.
var ErrInvalidName = errors.New("invalid collection name")

// Options configures a DocStorage.
type Options struct {
	Path       string
	InMemory   bool // keep everything in memory; Path is ignored
	SyncWrites bool
}

// DocStorage keeps collection snapshots in BadgerDB.
type DocStorage struct {
	db    *badger.DB
	codec *codec
}

// NewDocStorage opens the store at path.
func NewDocStorage(path string) (*DocStorage, error) {
	return Open(Options{Path: path})
}

// Open opens a store with opts.
func Open(opts Options) (*DocStorage, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts.Logger = nil

	// Sized for snapshot files of a few hundred megabytes
	bopts.NumVersionsToKeep = 1
	bopts.ValueThreshold = 1024
	bopts.BlockCacheSize = 64 << 20
	bopts.IndexCacheSize = 16 << 20
	bopts.MemTableSize = 32 << 20
	bopts.SyncWrites = opts.SyncWrites
	bopts.DetectConflicts = false

	badgerDB, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}
	c, err := newCodec()
	if err != nil {
		badgerDB.Close()
		return nil, err
	}
	return &DocStorage{db: badgerDB, codec: c}, nil
}

// Close closes the BadgerDB instance
func (ds *DocStorage) Close() error {
	ds.codec.close()
	return ds.db.Close()
}

func validateName(name string) error {
	if name == "" || strings.Contains(name, ":") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

func docKey(name string, pos int) []byte {
	return []byte(fmt.Sprintf("%s%s:%012d", docPrefix, name, pos))
}

// SaveCollection replaces the stored contents of collection name. Keys sort
// in position order, so LoadCollection returns docs in the order given.
func (ds *DocStorage) SaveCollection(name string, docs []document.Document, indexes [][]string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ds.db.DropPrefix([]byte(docPrefix + name + ":")); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", name, err)
	}

	wb := ds.db.NewWriteBatch()
	defer wb.Cancel()

	for i, doc := range docs {
		data, err := ds.codec.encode(doc)
		if err != nil {
			return fmt.Errorf("failed to encode document %d: %w", i, err)
		}
		if err := wb.Set(docKey(name, i), data); err != nil {
			return err
		}
	}

	if indexes == nil {
		indexes = [][]string{}
	}
	data, err := json.Marshal(indexes)
	if err != nil {
		return fmt.Errorf("failed to marshal indexes: %w", err)
	}
	if err := wb.Set([]byte(indexPrefix+name), data); err != nil {
		return err
	}
	if err := wb.Set([]byte(collPrefix+name), []byte(fmt.Sprint(len(docs)))); err != nil {
		return err
	}
	return wb.Flush()
}

// LoadCollection returns the documents and index definitions saved for
// name. A collection that was never saved is empty.
func (ds *DocStorage) LoadCollection(name string) ([]document.Document, [][]string, error) {
	if err := validateName(name); err != nil {
		return nil, nil, err
	}

	var (
		keys    []string
		values  [][]byte
		indexes [][]string
	)
	err := ds.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexPrefix + name))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &indexes)
			}); err != nil {
				return fmt.Errorf("failed to decode indexes: %w", err)
			}
		}

		prefix := []byte(docPrefix + name + ":")
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.Valid(); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keys = append(keys, string(item.Key()))
			values = append(values, val)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	// Decoding is CPU bound, so it runs outside the transaction.
	docs := make([]document.Document, len(values))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, val := range values {
		g.Go(func() error {
			doc, err := ds.codec.decode(val)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", keys[i], err)
			}
			docs[i] = doc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return docs, indexes, nil
}

// Collections lists the saved collection names.
func (ds *DocStorage) Collections() ([]string, error) {
	var names []string
	err := ds.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(collPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.Valid(); it.Next() {
			names = append(names, strings.TrimPrefix(string(it.Item().Key()), collPrefix))
		}
		return nil
	})
	sort.Strings(names)
	return names, err
}

// DropCollection removes everything saved for name.
func (ds *DocStorage) DropCollection(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ds.db.DropPrefix([]byte(docPrefix + name + ":")); err != nil {
		return err
	}
	return ds.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(indexPrefix + name)); err != nil {
			return err
		}
		return txn.Delete([]byte(collPrefix + name))
	})
}
