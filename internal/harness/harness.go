package harness

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync/atomic"

	"github.com/roach88/strata/internal/config"
	"github.com/roach88/strata/internal/coordinator"
	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
	"github.com/roach88/strata/internal/testutil"
)

// Harness runs one scenario against one coordinator.
type Harness struct {
	cfg     config.Config
	coord   *coordinator.Coordinator
	ids     *testutil.SequentialIDs
	aliases map[string]*stage.Record
	fatals  atomic.Int64
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh store in a temporary directory that is
// removed afterwards. Permanent identities come from a sequential generator,
// so traces are reproducible. Fatal errors are recorded in the trace instead
// of exiting the process.
//
// A returned error means the harness itself could not run (the store could
// not be opened, for one). Failed expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "strata-harness-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	cfg := config.Default()
	cfg.Name = scenario.Name
	cfg.Dir = dir
	cfg.Seed = scenario.Seed

	h := &Harness{
		cfg:     cfg,
		ids:     testutil.NewSequentialIDs(),
		aliases: make(map[string]*stage.Record),
	}

	ctx := context.Background()
	if err := h.open(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if h.coord != nil {
			h.coord.Close()
		}
	}()

	result := NewResult()
	for i, st := range scenario.Steps {
		if err := h.executeStep(ctx, i, st, result); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, st.Op, err)
		}
	}
	return result, nil
}

func (h *Harness) open(ctx context.Context) error {
	c, err := coordinator.Open(ctx, h.cfg,
		coordinator.WithFatalHandler(func(error) { h.fatals.Add(1) }),
		coordinator.WithIDGenerator(h.ids),
	)
	if err != nil {
		return fmt.Errorf("failed to open coordinator: %w", err)
	}
	h.coord = c
	return nil
}

// executeStep runs one step and appends its trace event. Step failures are
// expectation failures. Only a failure to reopen aborts the run.
func (h *Harness) executeStep(ctx context.Context, index int, st Step, result *Result) error {
	fatalsBefore := h.fatals.Load()
	ev := TraceEvent{Step: index, Op: st.Op, Kind: st.Kind}
	if st.Context != "" {
		ev.Context = st.Context
	}

	var (
		err  error
		recs []*stage.Record
	)

	switch st.Op {
	case OpAttach:
		var opts []coordinator.AttachOption
		if st.ShareQueue {
			opts = append(opts, coordinator.SharePrimaryQueue())
		}
		_, err = h.coord.AttachSupplementary(ctx, st.ChildOfPrimary, opts...)

	case OpDetach:
		err = h.coord.DetachSupplementary(ctx)

	case OpInsert:
		var fields ir.Object
		if fields, err = toObject(st.Fields); err != nil {
			return err
		}
		var rec *stage.Record
		if rec, err = h.coord.Insert(ctx, st.Kind, fields, selector(st.Context)); err == nil {
			h.bind(st.As, rec)
			ev.Ref = h.ref(rec)
		}

	case OpSet:
		var rec *stage.Record
		if rec, err = h.lookup(st.Record); err != nil {
			return err
		}
		var fields ir.Object
		if fields, err = toObject(st.Fields); err != nil {
			return err
		}
		err = rec.Update(fields)
		ev.Ref = h.ref(rec)

	case OpSave:
		err = h.coord.Save(ctx, selector(st.Context))

	case OpRollback:
		err = h.coord.Rollback(ctx, selector(st.Context))

	case OpFetch:
		req := query.Where(st.Kind, st.Where)
		for _, s := range st.Sort {
			var sd query.SortDescriptor
			if sd, err = query.ParseSort(s); err != nil {
				return err
			}
			req.Sort = append(req.Sort, sd)
		}
		recs, err = h.coord.Fetch(ctx, req, selector(st.Context))
		if len(recs) > 0 {
			h.bind(st.As, recs[0])
		}
		ev.Count = intPtr(len(recs))
		ev.Records = make([]RecordSnapshot, len(recs))
		for i, rec := range recs {
			ev.Records[i] = RecordSnapshot{Ref: h.ref(rec), Fields: rec.Fields()}
		}

	case OpAdopt:
		var src, rec *stage.Record
		if src, err = h.lookup(st.Record); err != nil {
			return err
		}
		rec, err = h.coord.Adopt(ctx, src, selector(st.Context))
		found := 0
		if rec != nil {
			found = 1
			h.bind(st.As, rec)
			ev.Ref = h.ref(rec)
		}
		ev.Count = intPtr(found)

	case OpDelete:
		var rec *stage.Record
		if rec, err = h.lookup(st.Record); err != nil {
			return err
		}
		var from *coordinator.Selector
		if st.Context != "" {
			from = selector(st.Context).Ptr()
		}
		err = h.coord.Delete(ctx, rec, from)
		ev.Ref = h.ref(rec)

	case OpDeleteAll:
		var n int
		n, err = h.coord.DeleteAll(ctx, st.Kind, st.Where, selector(st.Context))
		ev.Count = intPtr(n)

	case OpPurge:
		var ids []ir.ObjectID
		ids, err = h.coord.DeleteDirectFromStore(ctx, st.Kind, st.Where, selector(st.Context))
		ev.Count = intPtr(len(ids))
		ev.Refs = make([]string, len(ids))
		for i, id := range ids {
			ev.Refs[i] = h.refID(id)
		}

	case OpReopen:
		if err := h.reopen(ctx); err != nil {
			return err
		}
	}

	if err != nil {
		ev.Error = errorCode(err)
	}
	ev.Fatal = h.fatals.Load() > fatalsBefore
	result.AddEvent(ev)

	for _, msg := range checkStep(index, st, ev, recs) {
		result.AddError(msg)
	}
	if err != nil && st.ExpectError == "" {
		result.AddError(fmt.Sprintf("steps[%d] %s: unexpected error: %v", index, st.Op, err))
	}
	return nil
}

// reopen closes the coordinator and opens the same store again. Aliases of
// saved records are rebound to primary in the new coordinator. Aliases of
// unsaved or deleted records are dropped.
func (h *Harness) reopen(ctx context.Context) error {
	if err := h.coord.Close(); err != nil {
		return fmt.Errorf("failed to close coordinator: %w", err)
	}
	h.coord = nil
	if err := h.open(ctx); err != nil {
		return err
	}

	primary, err := h.coord.Resolve(coordinator.Primary)
	if err != nil {
		return err
	}
	for _, alias := range h.sortedAliases() {
		rec, err := h.coord.AdoptID(ctx, h.aliases[alias].ID(), primary)
		if err != nil {
			return fmt.Errorf("rebind %s: %w", alias, err)
		}
		if rec == nil {
			delete(h.aliases, alias)
			continue
		}
		h.aliases[alias] = rec
	}
	return nil
}

func (h *Harness) bind(alias string, rec *stage.Record) {
	if alias != "" && rec != nil {
		h.aliases[alias] = rec
	}
}

func (h *Harness) lookup(alias string) (*stage.Record, error) {
	rec, ok := h.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("unknown record alias %q", alias)
	}
	return rec, nil
}

func (h *Harness) sortedAliases() []string {
	names := make([]string, 0, len(h.aliases))
	for name := range h.aliases {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ref names a record in the trace.
func (h *Harness) ref(rec *stage.Record) string {
	return h.refID(rec.ID())
}

// refID names an identity in the trace: the first alias (in name order)
// bound to a record with that identity, else the permanent identity itself.
func (h *Harness) refID(id ir.ObjectID) string {
	for _, alias := range h.sortedAliases() {
		if h.aliases[alias].ID() == id {
			return alias
		}
	}
	if id.IsTemporary() {
		return "temporary"
	}
	return id.String()
}

func selector(name string) coordinator.Selector {
	sel, err := coordinator.ParseSelector(name)
	if err != nil {
		// Rejected by validateStep.
		return coordinator.Primary
	}
	return sel
}

// errorCode reduces an error to the stable code a scenario can expect.
func errorCode(err error) string {
	var cerr *coordinator.Error
	switch {
	case errors.As(err, &cerr):
		return string(cerr.Code)
	case errors.Is(err, stage.ErrRecordDeleted):
		return "RECORD_DELETED"
	case errors.Is(err, query.ErrPredicate):
		return "PREDICATE"
	case errors.Is(err, query.ErrEmptyKind):
		return "EMPTY_KIND"
	default:
		return "ERROR"
	}
}

func toObject(fields map[string]any) (ir.Object, error) {
	obj := make(ir.Object, len(fields))
	for k, v := range fields {
		val, err := ir.FromNative(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		obj[k] = val
	}
	return obj, nil
}

func intPtr(n int) *int {
	return &n
}
