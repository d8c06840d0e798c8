package observe

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
	"github.com/roach88/strata/internal/store"
)

func newPrimary(t *testing.T) (*stage.Context, *stage.Context) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	root := stage.New(stage.RoleRoot, s)
	primary := stage.New(stage.RolePrimary, root)
	t.Cleanup(func() {
		primary.Close()
		root.Close()
		s.Close()
	})
	return root, primary
}

func insertOrder(t *testing.T, c *stage.Context, status string, total int64) *stage.Record {
	t.Helper()
	rec, err := c.Insert(context.Background(), "Order", ir.NewObject(
		ir.O("status", ir.String(status)),
		ir.O("total", ir.Int(total)),
	))
	require.NoError(t, err)
	return rec
}

func TestLiveQuery_PerformGroupsSections(t *testing.T) {
	_, primary := newPrimary(t)
	hub := NewHub()
	insertOrder(t, primary, "open", 1)
	insertOrder(t, primary, "paid", 2)
	insertOrder(t, primary, "open", 3)

	lq, err := hub.LiveQuery(query.Request{
		Kind:           "Order",
		Sort:           []query.SortDescriptor{query.Asc("status"), query.Asc("total")},
		SectionKeyPath: "status",
	}, primary)
	require.NoError(t, err)

	sections, err := lq.Perform(context.Background())
	require.NoError(t, err)
	require.Len(t, sections, 2)
	assert.Equal(t, "open", sections[0].Name)
	assert.Len(t, sections[0].Records, 2)
	assert.Equal(t, "paid", sections[1].Name)
	assert.Equal(t, sections, lq.Sections())
}

func TestLiveQuery_UnsectionedIsOneSection(t *testing.T) {
	_, primary := newPrimary(t)
	hub := NewHub()
	insertOrder(t, primary, "open", 1)

	lq, err := hub.LiveQuery(query.All("Order"), primary)
	require.NoError(t, err)
	sections, err := lq.Perform(context.Background())
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Equal(t, "", sections[0].Name)
	assert.Len(t, sections[0].Records, 1)
}

func TestHub_NotifyRefreshesAndCallsHandlers(t *testing.T) {
	root, primary := newPrimary(t)
	hub := NewHub()
	ctx := context.Background()

	lq, err := hub.LiveQuery(query.Where("Order", "total > 1"), primary)
	require.NoError(t, err)
	_, err = lq.Perform(ctx)
	require.NoError(t, err)

	var (
		calls   int
		last    []Section
		lastChg ir.ChangeNotification
	)
	lq.Subscribe(func(sections []Section, change ir.ChangeNotification) {
		calls++
		last = sections
		lastChg = change
	})

	insertOrder(t, primary, "open", 5)
	cs, err := primary.Save(ctx)
	require.NoError(t, err)
	_, err = root.Save(ctx)
	require.NoError(t, err)

	hub.Notify(ctx, cs.Notification(), primary, root)
	assert.NoError(t, lq.Err())
	assert.Equal(t, 1, calls)
	require.Len(t, last, 1)
	assert.Len(t, last[0].Records, 1)
	assert.Equal(t, cs.Notification(), lastChg)

	lq.Close()
	assert.Equal(t, 0, hub.Len(primary))
	hub.Notify(ctx, cs.Notification(), primary)
	assert.Equal(t, 1, calls, "closed live queries are not refreshed")
}

func TestHub_LiveQueryValidates(t *testing.T) {
	_, primary := newPrimary(t)
	_, err := NewHub().LiveQuery(query.Request{}, primary)
	assert.ErrorIs(t, err, query.ErrEmptyKind)
}

func TestHub_NotifyKeepsFailures(t *testing.T) {
	_, primary := newPrimary(t)
	hub := NewHub()

	bad, err := hub.LiveQuery(query.Where("Order", "total >"), primary)
	require.NoError(t, err)
	good, err := hub.LiveQuery(query.All("Order"), primary)
	require.NoError(t, err)
	refreshed := false
	good.Subscribe(func([]Section, ir.ChangeNotification) { refreshed = true })

	hub.Notify(context.Background(), ir.ChangeNotification{}, primary)
	assert.ErrorIs(t, bad.Err(), query.ErrPredicate)
	assert.NoError(t, good.Err())
	assert.True(t, refreshed, "one failing live query does not stop the others")
}

func TestHub_Forget(t *testing.T) {
	_, primary := newPrimary(t)
	hub := NewHub()

	lq, err := hub.LiveQuery(query.All("Order"), primary)
	require.NoError(t, err)
	called := false
	lq.Subscribe(func([]Section, ir.ChangeNotification) { called = true })

	hub.Forget(primary)
	assert.Equal(t, 0, hub.Len(primary))
	hub.Notify(context.Background(), ir.ChangeNotification{}, primary)
	assert.False(t, called)
	lq.Close() // safe after Forget
}

func TestGroup_NonStringKeys(t *testing.T) {
	_, primary := newPrimary(t)
	a := insertOrder(t, primary, "open", 1)
	b := insertOrder(t, primary, "open", 2)

	sections := Group([]*stage.Record{a, b}, "total")
	require.Len(t, sections, 2)
	assert.Equal(t, "1", sections[0].Name)
	assert.Equal(t, "2", sections[1].Name)

	missing := Group([]*stage.Record{a}, "customer.name")
	require.Len(t, missing, 1)
	assert.Equal(t, "", missing[0].Name)
}
