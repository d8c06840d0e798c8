package observe

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
)

// Section is a run of records sharing the same value at the request's
// section key path.
type Section struct {
	Name    string
	Records []*stage.Record
}

// Handler receives the new sections after a notification refreshed a live
// query, along with the notification that caused it.
type Handler func(sections []Section, change ir.ChangeNotification)

// LiveQuery is a request bound to a context.
//
// Thread-safety: all methods are safe for concurrent use. Handlers run on
// the goroutine that delivered the notification.
type LiveQuery struct {
	req query.Request
	on  *stage.Context
	hub *Hub

	mu       sync.Mutex
	sections []Section
	handlers []Handler
	err      error // last refresh failure
	closed   bool
}

// Request returns the query the live query runs.
func (lq *LiveQuery) Request() query.Request {
	return lq.req
}

// Context returns the staging context the live query reads from.
func (lq *LiveQuery) Context() *stage.Context {
	return lq.on
}

// Perform fetches and groups the results.
func (lq *LiveQuery) Perform(ctx context.Context) ([]Section, error) {
	recs, err := lq.on.Fetch(ctx, lq.req)
	if err != nil {
		return nil, fmt.Errorf("live query %s: %w", lq.req.Kind, err)
	}
	sections := Group(recs, lq.req.SectionKeyPath)

	lq.mu.Lock()
	lq.sections = sections
	lq.mu.Unlock()
	return sections, nil
}

// Sections returns the result of the last Perform.
func (lq *LiveQuery) Sections() []Section {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return lq.sections
}

// Err returns the error of the last refresh, or nil once a later refresh
// succeeded.
func (lq *LiveQuery) Err() error {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	return lq.err
}

// Subscribe registers fn to run after every refresh.
func (lq *LiveQuery) Subscribe(fn Handler) {
	lq.mu.Lock()
	defer lq.mu.Unlock()
	lq.handlers = append(lq.handlers, fn)
}

// Close unregisters the live query. It will not be refreshed again.
func (lq *LiveQuery) Close() {
	lq.mu.Lock()
	if lq.closed {
		lq.mu.Unlock()
		return
	}
	lq.closed = true
	lq.handlers = nil
	lq.mu.Unlock()

	lq.hub.unregister(lq)
}

// refresh re-runs the query and calls the handlers.
func (lq *LiveQuery) refresh(ctx context.Context, change ir.ChangeNotification) error {
	lq.mu.Lock()
	closed := lq.closed
	lq.mu.Unlock()
	if closed {
		return nil
	}

	sections, err := lq.Perform(ctx)

	lq.mu.Lock()
	lq.err = err
	if err != nil {
		lq.mu.Unlock()
		return err
	}
	handlers := append([]Handler(nil), lq.handlers...)
	lq.mu.Unlock()
	for _, fn := range handlers {
		fn(sections, change)
	}
	return nil
}

// Group splits records into sections by the value at keyPath, keeping the
// record order. Each distinct value opens a section the first time it is
// seen. An empty keyPath yields a single unnamed section.
func Group(recs []*stage.Record, keyPath string) []Section {
	if keyPath == "" {
		return []Section{{Records: recs}}
	}

	var (
		sections []Section
		index    = make(map[string]int)
	)
	for _, rec := range recs {
		name := sectionName(query.Lookup(rec.Fields(), keyPath))
		i, ok := index[name]
		if !ok {
			i = len(sections)
			index[name] = i
			sections = append(sections, Section{Name: name})
		}
		sections[i].Records = append(sections[i].Records, rec)
	}
	if sections == nil {
		sections = []Section{}
	}
	return sections
}

func sectionName(v ir.Value) string {
	switch val := v.(type) {
	case nil, ir.Null:
		return ""
	case ir.String:
		return string(val)
	default:
		b, err := ir.MarshalCanonical(val)
		if err != nil {
			return fmt.Sprint(ir.ToNative(val))
		}
		return string(b)
	}
}
