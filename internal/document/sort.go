package document

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ErrInvalidSort is returned for malformed sort specifications.
var ErrInvalidSort = errors.New("invalid sort specification")

// SortField is one key of a sort specification.
type SortField struct {
	Path string
	Desc bool
}

func (f SortField) String() string {
	if f.Desc {
		return f.Path + ":desc"
	}
	return f.Path + ":asc"
}

// Asc returns an ascending sort key.
func Asc(path string) SortField { return SortField{Path: path} }

// Desc returns a descending sort key.
func Desc(path string) SortField { return SortField{Path: path, Desc: true} }

// CompareBy orders a and b by fields. Missing values sort as null.
func CompareBy(a, b Document, fields []SortField) int {
	for _, f := range fields {
		av, _ := a.Get(f.Path)
		bv, _ := b.Get(f.Path)
		c := Compare(av, bv)
		if c == 0 {
			continue
		}
		if f.Desc {
			return -c
		}
		return c
	}
	return 0
}

// SortStable sorts docs by fields. Documents with equal keys keep their
// relative order.
func SortStable(docs []Document, fields []SortField) {
	if len(fields) == 0 {
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return CompareBy(docs[i], docs[j], fields) < 0
	})
}

// ParseSort converts a Mongo-style {field: 1|-1} map into sort keys.
//
// Map iteration order is undefined, so multiple keys are applied in
// lexicographic order of their paths. Use ParseSortString when the key order
// matters.
func ParseSort(spec map[string]any) ([]SortField, error) {
	paths := make([]string, 0, len(spec))
	for p := range spec {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	fields := make([]SortField, 0, len(paths))
	for _, p := range paths {
		if err := ValidatePath(p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSort, err)
		}
		dir, err := FromAny(spec[p])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSort, err)
		}
		n, ok := dir.AsNumber()
		switch {
		case ok && n == 1:
			fields = append(fields, Asc(p))
		case ok && n == -1:
			fields = append(fields, Desc(p))
		default:
			return nil, fmt.Errorf("%w: direction for %q must be 1 or -1", ErrInvalidSort, p)
		}
	}
	return fields, nil
}

// ParseSortString parses "price:desc,title" style specifications. A
// leading '-' also means descending.
func ParseSortString(s string) ([]SortField, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var fields []SortField
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		desc := false
		if strings.HasPrefix(part, "-") {
			desc = true
			part = part[1:]
		}
		if path, dir, ok := strings.Cut(part, ":"); ok {
			part = path
			switch strings.ToLower(dir) {
			case "asc", "1":
			case "desc", "-1":
				desc = true
			default:
				return nil, fmt.Errorf("%w: unknown direction %q", ErrInvalidSort, dir)
			}
		}
		if err := ValidatePath(part); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSort, err)
		}
		fields = append(fields, SortField{Path: part, Desc: desc})
	}
	return fields, nil
}

// FormatSort renders fields in the syntax accepted by ParseSortString.
func FormatSort(fields []SortField) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ",")
}

// ParseInt converts a numeric Value to a non-fractional int.
func ParseInt(v Value) (int, bool) {
	n, ok := v.AsNumber()
	if !ok || n != float64(int(n)) {
		return 0, false
	}
	return int(n), true
}

// FormatNumber renders a number the way $toString does: integral values
// without a fractional part, others in shortest round-trip form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
