package db

import (
	"fmt"
	"sort"

	"github.com/skshohagmiah/flindoc/internal/document"
)

// ParseFindOptions accepts {sort, skip, limit, projection, hint}, e.g.
// {"sort": {"price": -1}, "limit": 3, "projection": {"title": 1}}.
func ParseFindOptions(spec map[string]any) (FindOptions, error) {
	var opts FindOptions

	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		raw := spec[k]
		switch k {
		case "sort":
			m, ok := raw.(map[string]any)
			if !ok {
				return opts, fmt.Errorf("%w: sort must be an object", ErrInvalidQuery)
			}
			fields, err := document.ParseSort(m)
			if err != nil {
				return opts, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
			}
			opts.Sort = fields
		case "skip", "limit":
			v, err := document.FromAny(raw)
			if err != nil {
				return opts, fmt.Errorf("%w: %s: %v", ErrInvalidQuery, k, err)
			}
			n, ok := document.ParseInt(v)
			if !ok || n < 0 {
				return opts, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidQuery, k)
			}
			if k == "skip" {
				opts.Skip = n
			} else {
				opts.Limit = n
			}
		case "projection":
			m, ok := raw.(map[string]any)
			if !ok {
				return opts, fmt.Errorf("%w: projection must be an object", ErrInvalidQuery)
			}
			p, err := ParseProjection(m)
			if err != nil {
				return opts, err
			}
			opts.Projection = p
		case "hint":
			s, ok := raw.(string)
			if !ok {
				return opts, fmt.Errorf("%w: hint must be a string", ErrInvalidQuery)
			}
			opts.Hint = s
		default:
			return opts, fmt.Errorf("%w: unknown find option %q", ErrInvalidQuery, k)
		}
	}
	return opts, nil
}
