package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// ErrEmptyKind is returned when a request does not name a record kind.
var ErrEmptyKind = errors.New("query: kind must not be empty")

// SortDescriptor orders rows by the value at a key path.
type SortDescriptor struct {
	Key        string `json:"key" yaml:"key"`
	Descending bool   `json:"descending,omitempty" yaml:"descending,omitempty"`
}

// Asc builds an ascending sort descriptor.
func Asc(key string) SortDescriptor {
	return SortDescriptor{Key: key}
}

// Desc builds a descending sort descriptor.
func Desc(key string) SortDescriptor {
	return SortDescriptor{Key: key, Descending: true}
}

// ParseSort parses "field" or "field:desc" / "field:asc".
func ParseSort(s string) (SortDescriptor, error) {
	key, dir, found := strings.Cut(s, ":")
	if key == "" {
		return SortDescriptor{}, fmt.Errorf("sort %q: empty key", s)
	}
	if !found {
		return Asc(key), nil
	}
	switch strings.ToLower(dir) {
	case "asc":
		return Asc(key), nil
	case "desc":
		return Desc(key), nil
	default:
		return SortDescriptor{}, fmt.Errorf("sort %q: direction must be asc or desc", s)
	}
}

// Request describes a fetch.
type Request struct {
	// Kind is the record kind to fetch. Required.
	Kind string

	// Predicate filters rows. Empty means all records of Kind.
	Predicate string

	// Sort orders the results. Ties fall back to seq, then id.
	Sort []SortDescriptor

	// SectionKeyPath groups results for live queries. Ignored by plain fetches.
	SectionKeyPath string

	// Limit caps the number of results. Zero means no limit.
	Limit int
}

// All returns a request for every record of kind.
func All(kind string) Request {
	return Request{Kind: kind}
}

// Where returns a request for the records of kind matching predicate.
func Where(kind, predicate string) Request {
	return Request{Kind: kind, Predicate: predicate}
}

// Validate checks the request is well formed.
func (r Request) Validate() error {
	if r.Kind == "" {
		return ErrEmptyKind
	}
	if r.Limit < 0 {
		return fmt.Errorf("query: negative limit %d", r.Limit)
	}
	for _, sd := range r.Sort {
		if sd.Key == "" {
			return fmt.Errorf("query: sort descriptor with empty key")
		}
	}
	return nil
}

// Unsorted returns a copy of the request without sort, limit or sections.
// A parent answers an unsorted request; the asking context merges its own
// pending changes before ordering and truncating.
func (r Request) Unsorted() Request {
	return Request{Kind: r.Kind, Predicate: r.Predicate}
}

// Lookup resolves a dotted key path ("customer.name") inside fields.
// Returns nil when any segment is missing or not an object.
func Lookup(fields ir.Object, keyPath string) ir.Value {
	var current ir.Value = fields
	for _, segment := range strings.Split(keyPath, ".") {
		obj, ok := current.(ir.Object)
		if !ok {
			return nil
		}
		current, ok = obj[segment]
		if !ok {
			return nil
		}
	}
	return current
}
