package query

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/strata/internal/ir"
)

func TestCompiler_EmptyPredicateMatchesAll(t *testing.T) {
	c := NewCompiler(0)

	m, err := c.Compile("")
	require.NoError(t, err)

	ok, err := m.Match(ir.Object{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, c.Len(), "empty predicates are not cached")
}

func TestMatcher_NilMatchesAll(t *testing.T) {
	var m *Matcher
	ok, err := m.Match(ir.Object{"total": ir.Int(1)})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "", m.Source())
}

func TestMatcher_Match(t *testing.T) {
	fields := ir.Object{
		"total":    ir.Int(10),
		"status":   ir.String("open"),
		"tags":     ir.Array{ir.String("rush")},
		"customer": ir.Object{"name": ir.String("Ada")},
	}

	tests := []struct {
		predicate string
		want      bool
	}{
		{"total == 10", true},
		{"total > 5 && status == 'open'", true},
		{"total < 5", false},
		{"'rush' in tags", true},
		{"customer.name startsWith 'A'", true},
		{"missing == nil", true},
		{"status != 'closed'", true},
	}

	c := NewCompiler(8)
	for _, tt := range tests {
		t.Run(tt.predicate, func(t *testing.T) {
			m, err := c.Compile(tt.predicate)
			require.NoError(t, err)

			got, err := m.Match(fields)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompiler_CachesPrograms(t *testing.T) {
	c := NewCompiler(2)

	_, err := c.Compile("total > 1")
	require.NoError(t, err)
	_, err = c.Compile("total > 1")
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	_, err = c.Compile("total > 2")
	require.NoError(t, err)
	_, err = c.Compile("total > 3")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len(), "LRU evicts beyond its size")
}

func TestCompiler_MalformedPredicate(t *testing.T) {
	c := NewCompiler(0)

	_, err := c.Compile("total >")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPredicate))
}

func TestMatcher_NonBoolResult(t *testing.T) {
	c := NewCompiler(0)

	m, err := c.Compile("total + 1")
	require.NoError(t, err)

	_, err = m.Match(ir.Object{"total": ir.Int(1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPredicate))
	assert.Contains(t, err.Error(), "want bool")
}

func TestMatcher_Filter(t *testing.T) {
	c := NewCompiler(0)
	m, err := c.Compile("total >= 10")
	require.NoError(t, err)

	rows := []ir.Row{
		{ID: "a", Fields: ir.Object{"total": ir.Int(5)}},
		{ID: "b", Fields: ir.Object{"total": ir.Int(10)}},
		{ID: "c", Fields: ir.Object{"total": ir.Int(20)}},
	}

	out, err := m.Filter(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, ir.ObjectID("b"), out[0].ID)
	assert.Equal(t, ir.ObjectID("c"), out[1].ID)
}

func TestMatcher_MissingFieldIsNoMatch(t *testing.T) {
	c := NewCompiler(0)
	sparse := ir.Object{"note": ir.String("x")}

	for _, predicate := range []string{
		"total > 5",
		"total + 1 == 2",
		"customer.name == 'Ada'",
		"missing",
	} {
		t.Run(predicate, func(t *testing.T) {
			m, err := c.Compile(predicate)
			require.NoError(t, err)

			got, err := m.Match(sparse)
			require.NoError(t, err)
			assert.False(t, got)
		})
	}
}

func TestMatcher_FilterSparseRows(t *testing.T) {
	c := NewCompiler(0)
	m, err := c.Compile("total > 5")
	require.NoError(t, err)

	rows := []ir.Row{
		{ID: "a", Fields: ir.Object{"total": ir.Int(10)}},
		{ID: "b", Fields: ir.Object{"note": ir.String("x")}},
		{ID: "c", Fields: ir.Object{"total": ir.Null{}}},
	}

	out, err := m.Filter(rows)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, ir.ObjectID("a"), out[0].ID)
}
