// Package loader reads documents from JSON files.
//
// Input is either a JSON array of objects or a stream of objects separated
// by whitespace (NDJSON). Records may be checked against a JSON Schema
// before they are converted.
package loader

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// ErrInvalidRecord is returned for records that are not JSON objects or
// that fail schema validation.
var ErrInvalidRecord = errors.New("invalid record")

// Loader decodes documents.
type Loader struct {
	schema *gojsonschema.Schema
}

// Option configures a Loader.
type Option func(*Loader) error

// WithSchema validates every record against the JSON Schema in data.
func WithSchema(data []byte) Option {
	return func(l *Loader) error {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return fmt.Errorf("invalid json schema: %w", err)
		}
		l.schema = schema
		return nil
	}
}

// WithSchemaFile is WithSchema reading the schema from path.
func WithSchemaFile(path string) Option {
	return func(l *Loader) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		return WithSchema(data)(l)
	}
}

// New creates a Loader.
func New(opts ...Option) (*Loader, error) {
	l := &Loader{}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// LoadFile reads the documents in path.
func LoadFile(path string, opts ...Option) ([]document.Document, error) {
	l, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return l.LoadFile(path)
}

// LoadFile reads the documents in path.
func (l *Loader) LoadFile(path string) ([]document.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	docs, err := l.Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}

// Load reads every document from r. Nothing is returned if any record is
// invalid.
func (l *Loader) Load(r io.Reader) ([]document.Document, error) {
	br := bufio.NewReader(r)
	first, err := firstByte(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var records []json.RawMessage
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		docs := make([]document.Document, 0, len(records))
		for i, raw := range records {
			doc, err := l.record(i+1, raw)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		return docs, nil
	}

	var docs []document.Document
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == io.EOF {
			return docs, nil
		} else if err != nil {
			return nil, fmt.Errorf("record %d: %w", n, err)
		}
		doc, err := l.record(n, raw)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// firstByte peeks at the first non-space byte.
func firstByte(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func (l *Loader) record(n int, raw json.RawMessage) (document.Document, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return nil, fmt.Errorf("%w: record %d is not an object", ErrInvalidRecord, n)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, n, err)
	}
	if err := l.validate(m); err != nil {
		return nil, fmt.Errorf("record %d: %w", n, err)
	}
	doc, err := document.FromMap(m)
	if err != nil {
		return nil, fmt.Errorf("%w: record %d: %v", ErrInvalidRecord, n, err)
	}
	return doc, nil
}

func (l *Loader) validate(m map[string]any) error {
	if l.schema == nil {
		return nil
	}
	result, err := l.schema.Validate(gojsonschema.NewGoLoader(m))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return fmt.Errorf("%w: %s", ErrInvalidRecord, strings.Join(errs, "; "))
	}
	return nil
}
