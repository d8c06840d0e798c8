package stage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
)

// hierarchy is a store with Root and Primary contexts over it.
type hierarchy struct {
	store   *store.Store
	root    *Context
	primary *Context
	clock   Clock
}

func newHierarchy(t *testing.T) *hierarchy {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithIDGenerator(testutil.NewSequentialIDs()))
	require.NoError(t, err)

	clock := testutil.NewDeterministicClock()
	root := New(RoleRoot, s, WithClock(clock), WithCompiler(s.Compiler()))
	primary := New(RolePrimary, root, WithClock(clock), WithCompiler(s.Compiler()))

	t.Cleanup(func() {
		primary.Close()
		root.Close()
		s.Close()
	})
	return &hierarchy{store: s, root: root, primary: primary, clock: clock}
}

// child creates a supplementary context over parent.
func (h *hierarchy) child(t *testing.T, parent *Context, opts ...Option) *Context {
	t.Helper()
	opts = append([]Option{WithClock(h.clock)}, opts...)
	c := New(RoleSupplementary, parent, opts...)
	t.Cleanup(c.Close)
	return c
}

// commit saves c and cascades through root to the store.
func (h *hierarchy) commit(t *testing.T, c *Context) {
	t.Helper()
	ctx := context.Background()
	_, err := c.Save(ctx)
	require.NoError(t, err)
	if c != h.root {
		_, err = h.root.Save(ctx)
		require.NoError(t, err)
	}
}

func insert(t *testing.T, c *Context, kind string, pairs ...ir.Pair) *Record {
	t.Helper()
	rec, err := c.Insert(context.Background(), kind, ir.NewObject(pairs...))
	require.NoError(t, err)
	return rec
}

func fetch(t *testing.T, c *Context, req query.Request) []*Record {
	t.Helper()
	recs, err := c.Fetch(context.Background(), req)
	require.NoError(t, err)
	return recs
}

func storeCount(t *testing.T, s *store.Store, kind string) int {
	t.Helper()
	n, err := s.Count(context.Background(), kind)
	require.NoError(t, err)
	return n
}
