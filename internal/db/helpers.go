package db

import (
	"fmt"
	"sort"
	"strings"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// validateDocument checks that every field name, at any depth, is non-empty,
// contains no '.' and does not start with '$'.
func validateDocument(doc Document) error {
	for name, v := range doc {
		if err := validateFieldName(name); err != nil {
			return err
		}
		if err := validateNested(name, v); err != nil {
			return err
		}
	}
	return nil
}

func validateFieldName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty field name", ErrInvalidDocument)
	case strings.HasPrefix(name, "$"):
		return fmt.Errorf("%w: field name %q starts with '$'", ErrInvalidDocument, name)
	case strings.Contains(name, "."):
		return fmt.Errorf("%w: field name %q contains '.'", ErrInvalidDocument, name)
	}
	return nil
}

func validateNested(path string, v document.Value) error {
	switch v.Kind() {
	case document.KindObject:
		obj, _ := v.AsObject()
		for name, child := range obj {
			if err := validateFieldName(name); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if err := validateNested(path+"."+name, child); err != nil {
				return err
			}
		}
	case document.KindArray:
		items, _ := v.AsArray()
		for _, item := range items {
			if err := validateNested(path, item); err != nil {
				return err
			}
		}
	}
	return nil
}

// sortRecords orders recs stably by fields.
func sortRecords(recs []*record, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return document.CompareBy(recs[i].doc, recs[j].doc, fields) < 0
	})
}

// validateFindOptions rejects malformed pagination and sort keys.
func validateFindOptions(opts FindOptions) error {
	if opts.Skip < 0 {
		return fmt.Errorf("%w: negative skip %d", ErrInvalidQuery, opts.Skip)
	}
	for _, f := range opts.Sort {
		if err := document.ValidatePath(f.Path); err != nil {
			return fmt.Errorf("%w: sort: %v", ErrInvalidQuery, err)
		}
	}
	return nil
}
