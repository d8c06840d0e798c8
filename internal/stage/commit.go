package stage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// Save commits the working set into the parent.
//
// Inserted records receive permanent identities (obtained up the chain) and
// are re-keyed before the parent sees them. The parent absorbs the change
// set synchronously. On success the working set is clean and the committed
// change set is returned; on failure the working set is left as it was.
// An empty working set is a no-op returning an empty change set.
func (c *Context) Save(ctx context.Context) (ir.ChangeSet, error) {
	var committed ir.ChangeSet
	err := c.perform(ctx, func(ctx context.Context) error {
		if !c.hasChanges() {
			return nil
		}

		if err := c.assignPermanentIDs(ctx); err != nil {
			return err
		}

		cs := c.changeSet()
		if err := c.parent.Absorb(ctx, cs); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrCommit, c.name, err)
		}

		c.settle(cs)
		committed = cs

		slog.Debug("context saved",
			"context", c.name,
			"inserted", len(cs.Inserted),
			"updated", len(cs.Updated),
			"deleted", len(cs.Deleted),
		)
		return nil
	})
	return committed, err
}

// Rollback discards the working set. Inserted records are detached, changed
// records revert to the parent's current values, deleted records come back
// if the parent still holds them. The parent is never touched.
// Returns false when there was nothing to discard.
func (c *Context) Rollback(ctx context.Context) (bool, error) {
	var rolled bool
	err := c.perform(ctx, func(ctx context.Context) error {
		if !c.hasChanges() {
			return nil
		}
		rolled = true

		for id, rec := range c.inserted {
			rec.setState(stateDetached)
			delete(c.records, id)
		}
		clear(c.inserted)

		for id, rec := range c.records {
			if !rec.pending() {
				continue
			}
			if err := c.restore(ctx, id, rec); err != nil {
				return err
			}
		}

		for id, rec := range c.deleted {
			delete(c.deleted, id)
			if rec == nil {
				continue
			}
			if err := c.restore(ctx, id, rec); err != nil {
				return err
			}
		}

		slog.Debug("context rolled back", "context", c.name)
		return nil
	})
	return rolled, err
}

// restore re-reads id from the parent into rec, detaching it when the parent
// no longer has it.
func (c *Context) restore(ctx context.Context, id ir.ObjectID, rec *Record) error {
	row, found, err := c.parent.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("rollback %s: %w", id, err)
	}
	if !found {
		rec.setState(stateDetached)
		delete(c.records, id)
		return nil
	}
	rec.revert(row)
	c.records[id] = rec
	return nil
}

// Absorb implements Parent: it applies a child's change set to this
// context's working set. Nothing reaches this context's parent until this
// context is itself saved.
func (c *Context) Absorb(ctx context.Context, cs ir.ChangeSet) error {
	return c.perform(ctx, func(ctx context.Context) error {
		for _, row := range cs.Inserted {
			if row.ID.IsTemporary() {
				return fmt.Errorf("absorb into %s: insert %s: temporary identity", c.name, row.ID)
			}
			rec := newRecord(c, row, stateInserted)
			c.records[row.ID] = rec
			c.inserted[row.ID] = rec
		}

		for _, row := range cs.Updated {
			if _, gone := c.deleted[row.ID]; gone {
				slog.Debug("absorbed update of deleted record dropped",
					"context", c.name,
					"kind", row.Kind,
					"id", row.ID,
				)
				continue
			}
			if rec, ok := c.records[row.ID]; ok {
				rec.absorbUpdate(row.Fields)
				continue
			}
			// First sight here: the baseline is whatever our parent holds.
			base, found, err := c.parent.Lookup(ctx, row.ID)
			if err != nil {
				return fmt.Errorf("absorb into %s: update %s: %w", c.name, row.ID, err)
			}
			if !found {
				base = ir.Row{ID: row.ID, Kind: row.Kind, Seq: row.Seq, Fields: ir.Object{}}
			}
			rec := newRecord(c, base, stateRegistered)
			if !found {
				rec.baseline = "" // nothing upstream to compare against
			}
			rec.absorbUpdate(row.Fields)
			c.records[row.ID] = rec
		}

		for _, id := range cs.Deleted {
			c.deleteID(id)
		}
		return nil
	})
}

// assignPermanentIDs replaces temporary identities of inserted records.
func (c *Context) assignPermanentIDs(ctx context.Context) error {
	var temp []*Record
	for _, rec := range c.inserted {
		if rec.ID().IsTemporary() {
			temp = append(temp, rec)
		}
	}
	if len(temp) == 0 {
		return nil
	}
	slices.SortFunc(temp, compareRecords)

	ids, err := c.parent.ObtainPermanentIDs(ctx, len(temp))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPermanentIDs, c.name, err)
	}
	if len(ids) != len(temp) {
		return fmt.Errorf("%w: %s: asked for %d, got %d", ErrPermanentIDs, c.name, len(temp), len(ids))
	}

	for i, rec := range temp {
		old := rec.ID()
		rec.rekey(ids[i])
		delete(c.records, old)
		delete(c.inserted, old)
		c.records[ids[i]] = rec
		c.inserted[ids[i]] = rec
	}
	return nil
}

// changeSet snapshots the working set. Rows are ordered by seq, then id.
func (c *Context) changeSet() ir.ChangeSet {
	cs := ir.ChangeSet{
		Inserted: []ir.Row{},
		Updated:  []ir.Row{},
		Deleted:  make([]ir.ObjectID, 0, len(c.deleted)),
	}

	for _, rec := range c.sortedRecords() {
		switch rec.currentState() {
		case stateInserted:
			cs.Inserted = append(cs.Inserted, rec.Row())
		case stateRegistered:
			if rec.pending() {
				cs.Updated = append(cs.Updated, rec.Row())
			}
		}
	}

	for id := range c.deleted {
		cs.Deleted = append(cs.Deleted, id)
	}
	slices.Sort(cs.Deleted)
	return cs
}

// settle marks cs committed. Deleted records are detached. Records are
// compared against the rows in cs, not their current fields, so a change
// made while the parent was absorbing stays pending.
// A root context forgets its records entirely: it never presents them, and
// the store now holds the truth.
func (c *Context) settle(cs ir.ChangeSet) {
	committed := make(map[ir.ObjectID]ir.Object, len(cs.Inserted)+len(cs.Updated))
	for _, row := range cs.Inserted {
		committed[row.ID] = row.Fields
	}
	for _, row := range cs.Updated {
		committed[row.ID] = row.Fields
	}
	for id, rec := range c.records {
		fields, ok := committed[id]
		rec.settle(fields, ok)
	}
	for id, rec := range c.deleted {
		if rec != nil {
			rec.setState(stateDetached)
		}
		delete(c.deleted, id)
	}
	clear(c.inserted)

	if c.role == RoleRoot {
		for id, rec := range c.records {
			rec.setState(stateDetached)
			delete(c.records, id)
		}
	}
}

func (c *Context) sortedRecords() []*Record {
	recs := make([]*Record, 0, len(c.records))
	for _, rec := range c.records {
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, compareRecords)
	return recs
}

func compareRecords(a, b *Record) int {
	sa, sb := a.Seq(), b.Seq()
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	}
	return strings.Compare(string(a.ID()), string(b.ID()))
}
