package coordinator

import (
	"context"
	"errors"
	"log/slog"

	"github.com/roach88/strata/internal/stage"
)

// Save commits the selected context into its parent. When the parent is
// root, root is committed to the store before Save returns; otherwise the
// change stops at the parent. Saving an unchanged context is a no-op.
//
// Failing to obtain permanent identities, or failing to write the store, is
// fatal-class.
func (c *Coordinator) Save(ctx context.Context, sel Selector) error {
	target, err := c.Resolve(sel)
	if err != nil {
		return err
	}

	cs, err := target.Save(ctx)
	if err != nil {
		return c.commitError(target, err)
	}
	if cs.IsEmpty() {
		return nil
	}

	if target == c.root {
		c.notify(ctx, cs.Notification(), c.contexts()...)
		return nil
	}

	if target.Parent() != stage.Parent(c.root) {
		// Stopped at primary; only its live queries saw a change.
		c.notify(ctx, cs.Notification(), c.primary)
		return nil
	}

	if _, err := c.root.Save(ctx); err != nil {
		return c.commitError(c.root, err)
	}

	slog.Info("commit reached store",
		"context", target.Name(),
		"inserted", len(cs.Inserted),
		"updated", len(cs.Updated),
		"deleted", len(cs.Deleted),
	)
	c.notify(ctx, cs.Notification(), c.contexts()...)
	return nil
}

// commitError classifies a save failure.
func (c *Coordinator) commitError(target *stage.Context, err error) error {
	switch {
	case errors.Is(err, stage.ErrPermanentIDs):
		return fatal(c.fatal, &Error{Code: CodePermanentIDs, Op: "save", Context: target.Name(), Err: err})
	case target == c.root:
		return fatal(c.fatal, &Error{Code: CodeStoreCommit, Op: "save", Context: target.Name(), Err: err})
	default:
		return &Error{Code: CodeCommit, Op: "save", Context: target.Name(), Err: err}
	}
}

// Rollback discards the selected context's pending changes. The parent is
// never touched. Rolling back an unchanged context is a no-op.
func (c *Coordinator) Rollback(ctx context.Context, sel Selector) error {
	target, err := c.Resolve(sel)
	if err != nil {
		return err
	}
	_, err = target.Rollback(ctx)
	return err
}

// HasChanges reports whether the selected context holds uncommitted changes.
func (c *Coordinator) HasChanges(ctx context.Context, sel Selector) (bool, error) {
	target, err := c.Resolve(sel)
	if err != nil {
		return false, err
	}
	return target.HasChanges(ctx)
}
