package stage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
)

// Parent is what a staging context commits into and reads through.
// Implemented by *store.Store and by *Context itself.
type Parent interface {
	// View returns the rows of req.Kind matching req.Predicate as the parent
	// currently sees them, including its own pending changes.
	View(ctx context.Context, req query.Request) ([]ir.Row, error)

	// Lookup returns one row by identity.
	Lookup(ctx context.Context, id ir.ObjectID) (ir.Row, bool, error)

	// ObtainPermanentIDs issues n permanent identities.
	ObtainPermanentIDs(ctx context.Context, n int) ([]ir.ObjectID, error)

	// Absorb applies a child's change set.
	Absorb(ctx context.Context, cs ir.ChangeSet) error
}

// Role labels a context's position in the hierarchy.
type Role int

const (
	RoleRoot Role = iota + 1
	RolePrimary
	RoleSupplementary
)

// String implements fmt.Stringer.
func (r Role) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RolePrimary:
		return "primary"
	case RoleSupplementary:
		return "supplementary"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Context is a staging context.
//
// The working set fields are only touched from tasks running on queue.
type Context struct {
	role     Role
	name     string
	parent   Parent
	queue    *Queue
	ownQueue bool
	clock    Clock
	compiler *query.Compiler

	records  map[ir.ObjectID]*Record // identity map: inserted and registered
	inserted map[ir.ObjectID]*Record
	deleted  map[ir.ObjectID]*Record // nil value: deleted without being materialized
}

// Option configures a Context.
type Option func(*Context)

// WithQueue serves the context from an existing queue instead of its own.
// The context does not close a queue it was given.
func WithQueue(q *Queue) Option {
	return func(c *Context) {
		if q != nil {
			c.queue = q
		}
	}
}

// WithClock shares a logical clock. Default: a fresh LogicalClock.
func WithClock(clock Clock) Option {
	return func(c *Context) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithCompiler shares a predicate compiler.
func WithCompiler(compiler *query.Compiler) Option {
	return func(c *Context) {
		if compiler != nil {
			c.compiler = compiler
		}
	}
}

// WithName overrides the name used in logs. Default: the role name.
func WithName(name string) Option {
	return func(c *Context) {
		if name != "" {
			c.name = name
		}
	}
}

// New creates a staging context over parent. The parent is fixed for the
// context's lifetime.
func New(role Role, parent Parent, opts ...Option) *Context {
	c := &Context{
		role:     role,
		name:     role.String(),
		parent:   parent,
		records:  make(map[ir.ObjectID]*Record),
		inserted: make(map[ir.ObjectID]*Record),
		deleted:  make(map[ir.ObjectID]*Record),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		c.clock = NewClock()
	}
	if c.compiler == nil {
		c.compiler = query.NewCompiler(query.DefaultCacheSize)
	}
	if c.queue == nil {
		c.queue = NewQueue(c.name)
		c.ownQueue = true
	}
	return c
}

// Role returns the context's role.
func (c *Context) Role() Role {
	return c.role
}

// Name returns the context's diagnostic name.
func (c *Context) Name() string {
	return c.name
}

// Parent returns the parent fixed at construction.
func (c *Context) Parent() Parent {
	return c.parent
}

// Queue returns the queue serving the context.
func (c *Context) Queue() *Queue {
	return c.queue
}

// Close stops the context's queue if the context owns it.
func (c *Context) Close() {
	if c.ownQueue {
		c.queue.Close()
	}
}

// perform runs fn on the context's queue.
func (c *Context) perform(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.queue.Do(ctx, fn)
}

// Insert creates a record of kind with a temporary identity. It is visible in
// this context immediately and nowhere else until saved.
func (c *Context) Insert(ctx context.Context, kind string, fields ir.Object) (*Record, error) {
	if kind == "" {
		return nil, query.ErrEmptyKind
	}
	for k, v := range fields {
		if v == nil {
			return nil, fmt.Errorf("insert %s: field %q has nil value, use ir.Null{}", kind, k)
		}
	}

	var rec *Record
	err := c.perform(ctx, func(ctx context.Context) error {
		row := ir.Row{
			ID:     ir.NewTemporaryID(),
			Kind:   kind,
			Fields: fields,
			Seq:    c.clock.Next(),
		}
		rec = newRecord(c, row, stateInserted)
		c.records[row.ID] = rec
		c.inserted[row.ID] = rec

		slog.Debug("record inserted",
			"context", c.name,
			"kind", kind,
			"id", row.ID,
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Fetch returns the records matching req as this context sees them.
//
// Records already materialized here are returned as the same pointer.
// Unchanged ones are refreshed from the parent first; changed ones keep
// their local values. Zero matches yield an empty, non-nil slice.
func (c *Context) Fetch(ctx context.Context, req query.Request) ([]*Record, error) {
	out := []*Record{}
	err := c.perform(ctx, func(ctx context.Context) error {
		rows, err := c.view(ctx, req)
		if err != nil {
			return err
		}
		for _, row := range rows {
			out = append(out, c.materialize(row))
		}
		return nil
	})
	if err != nil {
		return []*Record{}, err
	}

	slog.Debug("fetch",
		"context", c.name,
		"kind", req.Kind,
		"predicate", req.Predicate,
		"count", len(out),
	)
	return out, nil
}

// FirstMatch returns the first record matching req, or nil.
func (c *Context) FirstMatch(ctx context.Context, req query.Request) (*Record, error) {
	req.Limit = 1
	recs, err := c.Fetch(ctx, req)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// Count returns the number of records matching req without materializing them.
func (c *Context) Count(ctx context.Context, req query.Request) (int, error) {
	req.Limit = 0
	var n int
	err := c.perform(ctx, func(ctx context.Context) error {
		rows, err := c.view(ctx, req)
		n = len(rows)
		return err
	})
	return n, err
}

// View implements Parent.
func (c *Context) View(ctx context.Context, req query.Request) ([]ir.Row, error) {
	var rows []ir.Row
	err := c.perform(ctx, func(ctx context.Context) error {
		var err error
		rows, err = c.view(ctx, req)
		return err
	})
	return rows, err
}

// Lookup implements Parent. Records deleted here are not found.
func (c *Context) Lookup(ctx context.Context, id ir.ObjectID) (ir.Row, bool, error) {
	var (
		row   ir.Row
		found bool
	)
	err := c.perform(ctx, func(ctx context.Context) error {
		var err error
		row, found, err = c.lookup(ctx, id)
		return err
	})
	return row, found, err
}

// ObtainPermanentIDs implements Parent by asking up the chain. It touches no
// working set, so it does not go through the queue.
func (c *Context) ObtainPermanentIDs(ctx context.Context, n int) ([]ir.ObjectID, error) {
	return c.parent.ObtainPermanentIDs(ctx, n)
}

// Materialize registers a row obtained elsewhere (typically a direct store
// lookup) in this context and returns its record. Returns nil when the
// identity is deleted in this context.
func (c *Context) Materialize(ctx context.Context, row ir.Row) (*Record, error) {
	var rec *Record
	err := c.perform(ctx, func(ctx context.Context) error {
		if _, gone := c.deleted[row.ID]; gone {
			return nil
		}
		rec = c.materialize(row)
		return nil
	})
	return rec, err
}

// HasChanges reports whether the working set holds anything to commit.
func (c *Context) HasChanges(ctx context.Context) (bool, error) {
	var changed bool
	err := c.perform(ctx, func(ctx context.Context) error {
		changed = c.hasChanges()
		return nil
	})
	return changed, err
}

// Registered returns the number of records in the identity map.
func (c *Context) Registered(ctx context.Context) (int, error) {
	var n int
	err := c.perform(ctx, func(ctx context.Context) error {
		n = len(c.records)
		return nil
	})
	return n, err
}

func (c *Context) hasChanges() bool {
	if len(c.inserted) > 0 || len(c.deleted) > 0 {
		return true
	}
	for _, rec := range c.records {
		if rec.pending() {
			return true
		}
	}
	return false
}

// lookup resolves id against the working set, falling back to the parent.
func (c *Context) lookup(ctx context.Context, id ir.ObjectID) (ir.Row, bool, error) {
	if _, gone := c.deleted[id]; gone {
		return ir.Row{}, false, nil
	}
	if rec, ok := c.records[id]; ok && rec.pending() {
		return rec.Row(), true, nil
	}
	if id.IsTemporary() {
		return ir.Row{}, false, nil
	}
	return c.parent.Lookup(ctx, id)
}

// materialize returns the record for row, creating it on first sight.
func (c *Context) materialize(row ir.Row) *Record {
	if rec, ok := c.records[row.ID]; ok {
		rec.refresh(row)
		return rec
	}
	rec := newRecord(c, row, stateRegistered)
	c.records[row.ID] = rec
	return rec
}
