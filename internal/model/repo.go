package model

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/roach88/strata/internal/coordinator"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/observe"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
)

// Repo is typed access to one kind.
type Repo[T any] struct {
	kind  string
	coord *coordinator.Coordinator
}

// Register maps T to the kind derived from its type name and returns a
// repository for it.
func Register[T any](reg *Registry, coord *coordinator.Coordinator) (*Repo[T], error) {
	t := reflect.TypeOf((*T)(nil)).Elem()
	kind, err := TypeKind(t)
	if err != nil {
		return nil, err
	}
	if err := reg.add(t, kind); err != nil {
		return nil, err
	}
	return &Repo[T]{kind: kind, coord: coord}, nil
}

// RegisterAs maps T to an explicit kind name.
func RegisterAs[T any](reg *Registry, coord *coordinator.Coordinator, kind string) (*Repo[T], error) {
	if kind == "" {
		return nil, query.ErrEmptyKind
	}
	if err := reg.add(reflect.TypeOf((*T)(nil)).Elem(), kind); err != nil {
		return nil, err
	}
	return &Repo[T]{kind: kind, coord: coord}, nil
}

// Kind returns the record kind the repository works on.
func (r *Repo[T]) Kind() string {
	return r.kind
}

// Insert creates a record from v in the selected context.
func (r *Repo[T]) Insert(ctx context.Context, v T, into coordinator.Selector) (*stage.Record, error) {
	fields, err := Encode(v)
	if err != nil {
		return nil, fmt.Errorf("insert %s: %w", r.kind, err)
	}
	return r.coord.Insert(ctx, r.kind, fields, into)
}

// Fetch returns the records matching predicate, ordered by sort.
func (r *Repo[T]) Fetch(ctx context.Context, predicate string, from coordinator.Selector, sort ...query.SortDescriptor) ([]*stage.Record, error) {
	return r.coord.Fetch(ctx, query.Request{Kind: r.kind, Predicate: predicate, Sort: sort}, from)
}

// First returns the first record matching predicate, or nil.
func (r *Repo[T]) First(ctx context.Context, predicate string, from coordinator.Selector) (*stage.Record, error) {
	return r.coord.FirstMatch(ctx, r.kind, predicate, from)
}

// Count returns the number of records matching predicate.
func (r *Repo[T]) Count(ctx context.Context, predicate string, from coordinator.Selector) (int, error) {
	return r.coord.Count(ctx, r.kind, predicate, from)
}

// DeleteAll deletes the records matching predicate in the selected context.
func (r *Repo[T]) DeleteAll(ctx context.Context, predicate string, from coordinator.Selector) (int, error) {
	return r.coord.DeleteAll(ctx, r.kind, predicate, from)
}

// Purge batch-deletes matching records straight from the store.
func (r *Repo[T]) Purge(ctx context.Context, predicate string, mergeInto coordinator.Selector) ([]ir.ObjectID, error) {
	return r.coord.DeleteDirectFromStore(ctx, r.kind, predicate, mergeInto)
}

// LiveQuery binds a query over the kind to the selected context.
func (r *Repo[T]) LiveQuery(predicate, sectionKeyPath string, on coordinator.Selector, sort ...query.SortDescriptor) (*observe.LiveQuery, error) {
	return r.coord.LiveQuery(query.Request{
		Kind:           r.kind,
		Predicate:      predicate,
		Sort:           sort,
		SectionKeyPath: sectionKeyPath,
	}, on)
}

// Load fetches matching records and decodes each into T.
func (r *Repo[T]) Load(ctx context.Context, predicate string, from coordinator.Selector, sort ...query.SortDescriptor) ([]T, error) {
	recs, err := r.Fetch(ctx, predicate, from, sort...)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		v, err := Decode[T](rec)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode converts v to record fields through its JSON form.
// v must encode as a JSON object.
func Encode[T any](v T) (ir.Object, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	var fields ir.Object
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return fields, nil
}

// Decode converts a record's fields into T.
func Decode[T any](rec *stage.Record) (T, error) {
	var v T
	data, err := json.Marshal(rec.Fields())
	if err != nil {
		return v, fmt.Errorf("decode %s: %w", rec, err)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", rec, err)
	}
	return v, nil
}
