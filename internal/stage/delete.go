package stage

import (
	"context"
	"log/slog"

	"github.com/roach88/strata/internal/ir"
)

// Delete removes rec in this context.
//
// The record need not belong to this context: deleting by identity is
// permissive, and a record fetched elsewhere is deleted here by its id.
// Deleting a record inserted here simply forgets it. A temporary identity
// unknown to this context is a no-op.
func (c *Context) Delete(ctx context.Context, rec *Record) error {
	if rec == nil {
		return nil
	}
	return c.perform(ctx, func(ctx context.Context) error {
		id := rec.ID()
		if _, ok := c.records[id]; !ok && rec.owner != c {
			if id.IsTemporary() {
				slog.Debug("delete of foreign temporary record ignored",
					"context", c.name,
					"kind", rec.Kind(),
					"id", id,
				)
				return nil
			}
		}
		c.deleteID(id)

		slog.Debug("record deleted",
			"context", c.name,
			"kind", rec.Kind(),
			"id", id,
		)
		return nil
	})
}

// MergeDeletions evicts identities already removed from the store by a batch
// delete. Matching records are detached and nothing is left to commit for
// them. Returns the number of records evicted.
func (c *Context) MergeDeletions(ctx context.Context, ids []ir.ObjectID) (int, error) {
	var evicted int
	err := c.perform(ctx, func(ctx context.Context) error {
		for _, id := range ids {
			if rec, ok := c.records[id]; ok {
				rec.setState(stateDetached)
				delete(c.records, id)
				delete(c.inserted, id)
				evicted++
			}
			if rec := c.deleted[id]; rec != nil {
				rec.setState(stateDetached)
			}
			delete(c.deleted, id)
		}
		return nil
	})
	if evicted > 0 {
		slog.Debug("deletions merged",
			"context", c.name,
			"evicted", evicted,
		)
	}
	return evicted, err
}

// deleteID marks id deleted in the working set.
func (c *Context) deleteID(id ir.ObjectID) {
	if id.IsTemporary() {
		if rec, ok := c.inserted[id]; ok {
			rec.setState(stateDetached)
			delete(c.inserted, id)
			delete(c.records, id)
		}
		return
	}

	if rec, ok := c.inserted[id]; ok {
		// Inserted here with a permanent identity (absorbed from a child):
		// the parent never saw it, so forgetting it is enough.
		rec.setState(stateDetached)
		delete(c.inserted, id)
		delete(c.records, id)
		return
	}

	rec, ok := c.records[id]
	if ok {
		rec.setState(stateDeleted)
		delete(c.records, id)
	}
	if _, already := c.deleted[id]; !already || rec != nil {
		c.deleted[id] = rec
	}
}
