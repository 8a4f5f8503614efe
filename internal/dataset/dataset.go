// Package dataset embeds the sample bookstore collection.
package dataset

import (
	"bytes"
	_ "embed"

	"github.com/skshohagmiah/flindoc/internal/document"
	"github.com/skshohagmiah/flindoc/internal/loader"
)

// Collection is the name the sample is loaded under.
const Collection = "books"

//go:embed books.json
var booksJSON []byte

//go:embed books.schema.json
var booksSchema []byte

// BooksJSON returns the raw sample data.
func BooksJSON() []byte { return bytes.Clone(booksJSON) }

// BooksSchema returns the JSON Schema every sample book satisfies.
func BooksSchema() []byte { return bytes.Clone(booksSchema) }

// Books decodes the sample, validating it against BooksSchema.
func Books() ([]document.Document, error) {
	l, err := loader.New(loader.WithSchema(booksSchema))
	if err != nil {
		return nil, err
	}
	return l.Load(bytes.NewReader(booksJSON))
}
