package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/observe"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
	"github.com/roach88/strata/internal/store"
)

// Selector picks a publicly selectable staging context.
// Any other value resolves to root.
type Selector int

const (
	Primary Selector = iota + 1
	Supplementary
)

// String implements fmt.Stringer.
func (s Selector) String() string {
	switch s {
	case Primary:
		return "primary"
	case Supplementary:
		return "supplementary"
	default:
		return fmt.Sprintf("Selector(%d)", int(s))
	}
}

// ParseSelector parses "primary" or "supplementary".
func ParseSelector(s string) (Selector, error) {
	switch s {
	case "primary", "":
		return Primary, nil
	case "supplementary":
		return Supplementary, nil
	default:
		return 0, fmt.Errorf("unknown context %q: must be primary or supplementary", s)
	}
}

// Ptr returns a pointer to s, for the optional selector of Delete.
func (s Selector) Ptr() *Selector {
	return &s
}

// Coordinator resolves selectors to staging contexts and runs the
// cross-context protocols.
//
// Thread-safety: all methods are safe for concurrent use.
type Coordinator struct {
	cfg      config.Config
	store    *store.Store
	clock    stage.Clock
	compiler *query.Compiler
	hub      *observe.Hub
	fatal    FatalHandler

	root    *stage.Context
	primary *stage.Context

	mu     sync.Mutex
	supp   *stage.Context
	closed bool
}

// Option configures a Coordinator.
type Option func(*options)

type options struct {
	fatal FatalHandler
	ids   store.IDGenerator
	clock stage.Clock
}

// WithFatalHandler overrides ExitOnFatal.
func WithFatalHandler(h FatalHandler) Option {
	return func(o *options) {
		o.fatal = h
	}
}

// WithIDGenerator sets the store's permanent identity generator.
func WithIDGenerator(g store.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithClock sets the logical clock. Default: resume after the store's
// highest seq.
func WithClock(c stage.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// AttachOption configures AttachSupplementary.
type AttachOption func(*attachOptions)

type attachOptions struct {
	sharePrimaryQueue bool
}

// SharePrimaryQueue serves the supplementary context from primary's queue
// instead of a private one.
func SharePrimaryQueue() AttachOption {
	return func(o *attachOptions) {
		o.sharePrimaryQueue = true
	}
}

// Open opens (or seeds) the store named by cfg and builds root and primary.
// A supplementary context is attached too when cfg asks for one.
func Open(ctx context.Context, cfg config.Config, opts ...Option) (*Coordinator, error) {
	o := options{fatal: ExitOnFatal}
	for _, opt := range opts {
		opt(&o)
	}

	path := cfg.StorePath()
	compiler := query.NewCompiler(cfg.CacheSize)

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fatal(o.fatal, &Error{Code: CodeStoreOpen, Op: "open", Err: err})
	}

	storeOpts := []store.Option{store.WithCompiler(compiler)}
	if cfg.Seed != "" {
		storeOpts = append(storeOpts, store.WithSeed(cfg.Seed))
	}
	if o.ids != nil {
		storeOpts = append(storeOpts, store.WithIDGenerator(o.ids))
	}
	s, err := store.Open(path, storeOpts...)
	if err != nil {
		return nil, fatal(o.fatal, &Error{Code: CodeStoreOpen, Op: "open", Err: err})
	}

	clock := o.clock
	if clock == nil {
		last, err := s.LastSeq(ctx)
		if err != nil {
			s.Close()
			return nil, fatal(o.fatal, &Error{Code: CodeStoreOpen, Op: "open", Err: err})
		}
		clock = stage.NewClockAt(last)
	}

	c := &Coordinator{
		cfg:      cfg,
		store:    s,
		clock:    clock,
		compiler: compiler,
		hub:      observe.NewHub(),
		fatal:    o.fatal,
	}
	c.root = stage.New(stage.RoleRoot, s, c.contextOptions()...)
	c.primary = stage.New(stage.RolePrimary, c.root, c.contextOptions()...)

	slog.Debug("coordinator opened",
		"path", path,
		"seq", clock.Current(),
	)

	if cfg.Supplementary == config.AttachRoot || cfg.Supplementary == config.AttachPrimary {
		var attach []AttachOption
		if cfg.SharePrimaryQueue {
			attach = append(attach, SharePrimaryQueue())
		}
		if _, err := c.AttachSupplementary(ctx, cfg.Supplementary == config.AttachPrimary, attach...); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Coordinator) contextOptions(extra ...stage.Option) []stage.Option {
	return append([]stage.Option{stage.WithClock(c.clock), stage.WithCompiler(c.compiler)}, extra...)
}

// Config returns the configuration the coordinator was opened with.
func (c *Coordinator) Config() config.Config {
	return c.cfg
}

// Store returns the durable store.
func (c *Coordinator) Store() *store.Store {
	return c.store
}

// Hub returns the live query hub.
func (c *Coordinator) Hub() *observe.Hub {
	return c.hub
}

// AttachSupplementary builds a fresh, empty supplementary context as a child
// of primary (asChildOfPrimary) or root. An existing supplementary context
// is replaced unless it holds uncommitted changes, in which case
// ErrPendingChanges is returned and the existing context stays.
func (c *Coordinator) AttachSupplementary(ctx context.Context, asChildOfPrimary bool, opts ...AttachOption) (*stage.Context, error) {
	var o attachOptions
	for _, opt := range opts {
		opt(&o)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, &Error{Code: CodeClosed, Op: "attach"}
	}

	if c.supp != nil {
		if err := c.releaseSupplementaryLocked(ctx, "attach"); err != nil {
			return nil, err
		}
	}

	parent := c.root
	if asChildOfPrimary {
		parent = c.primary
	}
	extra := []stage.Option{}
	if o.sharePrimaryQueue {
		extra = append(extra, stage.WithQueue(c.primary.Queue()))
	}
	c.supp = stage.New(stage.RoleSupplementary, parent, c.contextOptions(extra...)...)

	slog.Debug("supplementary context attached",
		"parent", parent.Name(),
		"shared_queue", o.sharePrimaryQueue,
	)
	return c.supp, nil
}

// DetachSupplementary destroys the supplementary context. Fails with
// ErrPendingChanges when it holds uncommitted changes. Detaching when
// nothing is attached is a no-op.
func (c *Coordinator) DetachSupplementary(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.supp == nil {
		return nil
	}
	return c.releaseSupplementaryLocked(ctx, "detach")
}

func (c *Coordinator) releaseSupplementaryLocked(ctx context.Context, op string) error {
	pending, err := c.supp.HasChanges(ctx)
	if err != nil {
		return &Error{Code: CodePendingChanges, Op: op, Context: c.supp.Name(), Err: err}
	}
	if pending {
		return &Error{Code: CodePendingChanges, Op: op, Context: c.supp.Name()}
	}
	c.hub.Forget(c.supp)
	c.supp.Close()
	c.supp = nil
	return nil
}

// Resolve returns the staging context for sel. Values other than Primary
// and Supplementary resolve to root. Selecting Supplementary before it is
// attached is fatal-class.
func (c *Coordinator) Resolve(sel Selector) (*stage.Context, error) {
	switch sel {
	case Primary:
		return c.primary, nil
	case Supplementary:
		c.mu.Lock()
		supp := c.supp
		c.mu.Unlock()
		if supp == nil {
			return nil, fatal(c.fatal, &Error{Code: CodeNotAttached, Op: "resolve", Context: sel.String()})
		}
		return supp, nil
	default:
		return c.root, nil
	}
}

// contexts returns every context the coordinator manages, leaves first.
func (c *Coordinator) contexts() []*stage.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*stage.Context, 0, 3)
	if c.supp != nil {
		out = append(out, c.supp)
	}
	return append(out, c.primary, c.root)
}

// Close stops all task queues and closes the store. Safe to call twice.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	supp := c.supp
	c.supp = nil
	c.mu.Unlock()

	if supp != nil {
		supp.Close()
	}
	c.primary.Close()
	c.root.Close()
	return c.store.Close()
}

// notify delivers a change to the live queries of the given contexts.
// Refresh failures stay on the live queries and do not fail the operation.
func (c *Coordinator) notify(ctx context.Context, change ir.ChangeNotification, contexts ...*stage.Context) {
	if change.IsEmpty() {
		return
	}
	c.hub.Notify(ctx, change, contexts...)
}
