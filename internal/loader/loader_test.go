package loader

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skshohagmiah/flindoc/internal/document"
)

const bookSchema = `{
	"type": "object",
	"required": ["title", "price"],
	"properties": {
		"title": {"type": "string"},
		"price": {"type": "number", "minimum": 0}
	}
}`

func TestLoadArray(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	docs, err := l.Load(strings.NewReader(`
		[{"title": "Dune", "price": 16.99, "tags": ["sf"]},
		 {"title": "Emma", "meta": {"pages": 474}}]`))
	require.NoError(t, err)
	require.Len(t, docs, 2)

	price, ok := docs[0].Get("price")
	require.True(t, ok)
	assert.Equal(t, document.Number(16.99), price)
	pages, ok := docs[1].Get("meta.pages")
	require.True(t, ok)
	assert.Equal(t, document.Number(474), pages)
}

func TestLoadNDJSON(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	docs, err := l.Load(strings.NewReader("{\"n\": 1}\n{\"n\": 2}\n\n{\"n\": 3}\n"))
	require.NoError(t, err)
	require.Len(t, docs, 3)
	n, _ := docs[2].Get("n")
	assert.Equal(t, document.Number(3), n)
}

func TestLoadEmpty(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	docs, err := l.Load(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = l.Load(strings.NewReader("[]"))
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestLoadRejectsNonObjects(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	for _, in := range []string{`[1, 2]`, `{"a": 1} "x"`, `[{"a": 1}, null]`} {
		_, err := l.Load(strings.NewReader(in))
		assert.ErrorIs(t, err, ErrInvalidRecord, "input %s", in)
	}

	_, err = l.Load(strings.NewReader(`[{"a": 1}`))
	assert.Error(t, err)
}

func TestSchemaValidation(t *testing.T) {
	l, err := New(WithSchema([]byte(bookSchema)))
	require.NoError(t, err)

	docs, err := l.Load(strings.NewReader(`[{"title": "Dune", "price": 16.99}]`))
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = l.Load(strings.NewReader(`[{"title": "Dune", "price": 16.99}, {"title": "Emma", "price": -1}]`))
	require.ErrorIs(t, err, ErrInvalidRecord)
	assert.Contains(t, err.Error(), "record 2")

	_, err = l.Load(strings.NewReader(`{"price": 3}`))
	assert.ErrorIs(t, err, ErrInvalidRecord)

	_, err = New(WithSchema([]byte(`{"type": 12}`)))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	data := filepath.Join(dir, "books.ndjson")
	schema := filepath.Join(dir, "book.schema.json")
	require.NoError(t, os.WriteFile(data, []byte("{\"title\": \"Dune\", \"price\": 1}\n"), 0o644))
	require.NoError(t, os.WriteFile(schema, []byte(bookSchema), 0o644))

	docs, err := LoadFile(data, WithSchemaFile(schema))
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadFile(data, WithSchemaFile(filepath.Join(dir, "missing.schema.json")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
