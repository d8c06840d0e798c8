package coordinator

import (
	"context"
	"log/slog"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
)

// Delete removes rec. With a nil selector the record is deleted in its own
// context. With a selector it is deleted by identity in that context,
// whatever context it was fetched from.
//
// A record deleted through a foreign context stays live in its owner. If
// both contexts save, the one committed last wins.
func (c *Coordinator) Delete(ctx context.Context, rec *stage.Record, from *Selector) error {
	if rec == nil {
		return nil
	}
	target := rec.Context()
	if from != nil {
		var err error
		if target, err = c.Resolve(*from); err != nil {
			return err
		}
	}
	return target.Delete(ctx, rec)
}

// DeleteAll fetches the records of kind matching predicate in the selected
// context and deletes each one there. It is not atomic: an error part way
// leaves the earlier deletions pending. Returns the number deleted.
func (c *Coordinator) DeleteAll(ctx context.Context, kind, predicate string, from Selector) (int, error) {
	recs, err := c.Fetch(ctx, query.Where(kind, predicate), from)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range recs {
		if err := rec.Context().Delete(ctx, rec); err != nil {
			return deleted, err
		}
		deleted++
	}

	slog.Debug("delete all",
		"kind", kind,
		"predicate", predicate,
		"deleted", deleted,
	)
	return deleted, nil
}

// DeleteDirectFromStore deletes every stored record of kind matching
// predicate in one store transaction, bypassing all staging contexts. The
// deleted identities are then merged into the selected context so its
// in-memory copies are evicted. Other contexts are not told; records they
// hold for deleted identities linger until they fetch again.
func (c *Coordinator) DeleteDirectFromStore(ctx context.Context, kind, predicate string, mergeInto Selector) ([]ir.ObjectID, error) {
	target, err := c.Resolve(mergeInto)
	if err != nil {
		return nil, err
	}

	ids, err := c.store.BatchDelete(ctx, kind, predicate)
	if err != nil {
		slog.Error("batch delete failed",
			"kind", kind,
			"predicate", predicate,
			"error", err,
		)
		return nil, &Error{Code: CodeBatchDelete, Op: "delete_direct", Context: target.Name(), Kind: kind, Err: err}
	}

	if _, err := target.MergeDeletions(ctx, ids); err != nil {
		return ids, err
	}
	c.notify(ctx, ir.ChangeNotification{Deleted: ids}, target)
	return ids, nil
}
