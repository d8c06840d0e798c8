package query

import (
	"errors"
	"fmt"
	"log/slog"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/strata/internal/ir"
)

// DefaultCacheSize is the number of compiled predicates a Compiler keeps.
const DefaultCacheSize = 256

// ErrPredicate marks predicates that do not compile or do not yield a bool.
var ErrPredicate = errors.New("query: invalid predicate")

// Compiler compiles predicate sources to programs and caches them.
//
// Thread-safety: Compiler is safe for concurrent use; the LRU is internally
// locked and compiled programs are immutable.
type Compiler struct {
	cache *lru.Cache[string, *exprvm.Program]
}

// NewCompiler creates a compiler caching up to size programs.
// A non-positive size uses DefaultCacheSize.
func NewCompiler(size int) *Compiler {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *exprvm.Program](size)
	if err != nil {
		// Only returned for a non-positive size, excluded above.
		panic(err)
	}
	return &Compiler{cache: cache}
}

// Matcher evaluates a compiled predicate against record fields.
// The zero Matcher (and a nil *Matcher) matches everything.
type Matcher struct {
	source  string
	program *exprvm.Program
}

// Compile returns a Matcher for predicate. An empty predicate matches all rows.
func (c *Compiler) Compile(predicate string) (*Matcher, error) {
	if predicate == "" {
		return &Matcher{}, nil
	}
	if program, ok := c.cache.Get(predicate); ok {
		return &Matcher{source: predicate, program: program}, nil
	}

	program, err := exprlang.Compile(predicate,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %q: %v", ErrPredicate, predicate, err)
	}
	c.cache.Add(predicate, program)

	return &Matcher{source: predicate, program: program}, nil
}

// Len returns the number of cached programs.
func (c *Compiler) Len() int {
	return c.cache.Len()
}

// Source returns the predicate text the matcher was compiled from.
func (m *Matcher) Source() string {
	if m == nil {
		return ""
	}
	return m.source
}

// Match reports whether fields satisfy the predicate.
//
// Records of one kind need not share fields, so an evaluation that fails on
// this record's values ("total > 5" where total is absent) is a non-match,
// not an error. Only a predicate yielding a non-boolean value fails.
func (m *Matcher) Match(fields ir.Object) (bool, error) {
	if m == nil || m.program == nil {
		return true, nil
	}

	out, err := exprlang.Run(m.program, fields.Native())
	if err != nil {
		slog.Debug("predicate did not evaluate, treated as no match",
			"predicate", m.source,
			"error", err,
		)
		return false, nil
	}
	switch v := out.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q evaluated to %T, want bool", ErrPredicate, m.source, out)
	}
}

// Filter returns the rows whose fields satisfy the matcher, in input order.
func (m *Matcher) Filter(rows []ir.Row) ([]ir.Row, error) {
	out := make([]ir.Row, 0, len(rows))
	for _, r := range rows {
		ok, err := m.Match(r.Fields)
		if err != nil {
			return nil, fmt.Errorf("row %s: %w", r.ID, err)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}
