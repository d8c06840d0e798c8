package coordinator

import (
	"context"
	"log/slog"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/observe"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
)

// Insert creates a record of kind in the selected context. It has a
// temporary identity until saved and is invisible to other contexts until
// committed into a context they read through.
func (c *Coordinator) Insert(ctx context.Context, kind string, fields ir.Object, into Selector) (*stage.Record, error) {
	target, err := c.Resolve(into)
	if err != nil {
		return nil, err
	}
	return target.Insert(ctx, kind, fields)
}

// Fetch runs req in the selected context and blocks until the records are
// materialized. A query that cannot be executed (a malformed predicate, for
// one) yields an empty non-nil slice together with ErrFetchFailed.
func (c *Coordinator) Fetch(ctx context.Context, req query.Request, from Selector) ([]*stage.Record, error) {
	target, err := c.Resolve(from)
	if err != nil {
		return []*stage.Record{}, err
	}

	recs, err := target.Fetch(ctx, req)
	if err != nil {
		slog.Warn("fetch failed",
			"context", target.Name(),
			"kind", req.Kind,
			"predicate", req.Predicate,
			"error", err,
		)
		return []*stage.Record{}, &Error{Code: CodeFetchFailed, Op: "fetch", Context: target.Name(), Kind: req.Kind, Err: err}
	}
	return recs, nil
}

// FirstMatch returns the first record of kind matching predicate in the
// selected context, or nil.
func (c *Coordinator) FirstMatch(ctx context.Context, kind, predicate string, from Selector) (*stage.Record, error) {
	recs, err := c.Fetch(ctx, query.Request{Kind: kind, Predicate: predicate, Limit: 1}, from)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Count returns the number of records of kind matching predicate in the
// selected context.
func (c *Coordinator) Count(ctx context.Context, kind, predicate string, from Selector) (int, error) {
	target, err := c.Resolve(from)
	if err != nil {
		return 0, err
	}
	n, err := target.Count(ctx, query.Where(kind, predicate))
	if err != nil {
		return 0, &Error{Code: CodeFetchFailed, Op: "count", Context: target.Name(), Kind: kind, Err: err}
	}
	return n, nil
}

// LiveQuery binds req to the selected context. It is refreshed whenever a
// commit or batch delete notifies that context.
func (c *Coordinator) LiveQuery(req query.Request, on Selector) (*observe.LiveQuery, error) {
	target, err := c.Resolve(on)
	if err != nil {
		return nil, err
	}
	return c.hub.LiveQuery(req, target)
}

// Adopt looks rec's identity up directly in the store and materializes it in
// the selected context. Returns nil when the identity is not stored: the
// record was never saved, or it has been deleted since. Adopting the same
// identity twice returns the same record.
func (c *Coordinator) Adopt(ctx context.Context, rec *stage.Record, into Selector) (*stage.Record, error) {
	if rec == nil {
		return nil, nil
	}
	target, err := c.Resolve(into)
	if err != nil {
		return nil, err
	}
	return c.AdoptID(ctx, rec.ID(), target)
}

// AdoptID is Adopt by identity, into an already resolved context.
func (c *Coordinator) AdoptID(ctx context.Context, id ir.ObjectID, into *stage.Context) (*stage.Record, error) {
	if id.IsTemporary() {
		slog.Debug("adopt of unsaved record", "context", into.Name(), "id", id)
		return nil, nil
	}

	row, found, err := c.store.Lookup(ctx, id)
	if err != nil {
		return nil, &Error{Code: CodeFetchFailed, Op: "adopt", Context: into.Name(), Err: err}
	}
	if !found {
		slog.Debug("adopt of missing record", "context", into.Name(), "id", id)
		return nil, nil
	}
	return into.Materialize(ctx, row)
}
