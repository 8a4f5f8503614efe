package db

import (
	"fmt"
	"sort"

	"github.com/skshohagmiah/flindoc/internal/aggregate"
	"github.com/skshohagmiah/flindoc/internal/document"
)

// Projection selects the fields returned by Find.
//
// In inclusion mode only the listed paths are returned; in exclusion mode
// everything but the listed paths. _id is returned unless excluded
// explicitly, and may be excluded in either mode.
type Projection struct {
	p aggregate.Project
}

// Include returns an inclusion projection.
func Include(paths ...string) *Projection {
	return &Projection{p: aggregate.Project{Include: append([]string(nil), paths...)}}
}

// Exclude returns an exclusion projection.
func Exclude(paths ...string) *Projection {
	return &Projection{p: aggregate.Project{Exclude: append([]string(nil), paths...)}}
}

// WithoutID returns a copy of p that also drops _id.
func (p *Projection) WithoutID() *Projection {
	out := &Projection{p: aggregate.Project{
		Include: append([]string(nil), p.p.Include...),
		Exclude: append([]string(nil), p.p.Exclude...),
	}}
	out.p.Exclude = append(out.p.Exclude, document.IDField)
	return out
}

// ParseProjection accepts {field: 1|0|true|false}.
func ParseProjection(spec map[string]any) (*Projection, error) {
	if len(spec) == 0 {
		return nil, nil
	}

	paths := make([]string, 0, len(spec))
	for k := range spec {
		paths = append(paths, k)
	}
	sort.Strings(paths)

	var p aggregate.Project
	for _, path := range paths {
		if err := document.ValidatePath(path); err != nil {
			return nil, fmt.Errorf("%w: projection: %v", ErrInvalidQuery, err)
		}
		v, err := document.FromAny(spec[path])
		if err != nil {
			return nil, fmt.Errorf("%w: projection of %q: %v", ErrInvalidQuery, path, err)
		}
		include, ok := flag(v)
		if !ok {
			return nil, fmt.Errorf("%w: projection of %q must be 0, 1, true or false", ErrInvalidQuery, path)
		}
		if include {
			p.Include = append(p.Include, path)
		} else {
			p.Exclude = append(p.Exclude, path)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return &Projection{p: p}, nil
}

func flag(v document.Value) (bool, bool) {
	if b, ok := v.AsBool(); ok {
		return b, true
	}
	if n, ok := v.AsNumber(); ok && (n == 0 || n == 1) {
		return n == 1, true
	}
	return false, false
}

// Apply returns the projected copy of d.
func (p *Projection) Apply(d Document) (Document, error) {
	out, err := p.p.Reshape(d)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return out, nil
}

// Stage returns p as a $project pipeline stage.
func (p *Projection) Stage() aggregate.Stage { return p.p }
