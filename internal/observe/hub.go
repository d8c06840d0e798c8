package observe

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/stage"
)

// Hub tracks live queries per staging context.
//
// Thread-safety: Hub is safe for concurrent use.
type Hub struct {
	mu      sync.Mutex
	queries map[*stage.Context][]*LiveQuery
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{queries: make(map[*stage.Context][]*LiveQuery)}
}

// LiveQuery creates a live query on a context and registers it.
// Call Perform for the first results.
func (h *Hub) LiveQuery(req query.Request, on *stage.Context) (*LiveQuery, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lq := &LiveQuery{req: req, on: on, hub: h}

	h.mu.Lock()
	h.queries[on] = append(h.queries[on], lq)
	h.mu.Unlock()
	return lq, nil
}

// Len returns the number of live queries registered on a context.
func (h *Hub) Len(on *stage.Context) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queries[on])
}

// Notify refreshes every live query registered on the given contexts.
// A failing refresh is logged and kept on its live query (see
// LiveQuery.Err); it does not stop the others.
func (h *Hub) Notify(ctx context.Context, change ir.ChangeNotification, contexts ...*stage.Context) {
	for _, on := range contexts {
		for _, lq := range h.snapshot(on) {
			if err := lq.refresh(ctx, change); err != nil {
				slog.Warn("live query refresh failed",
					"context", on.Name(),
					"kind", lq.req.Kind,
					"error", err,
				)
			}
		}
	}
}

// Forget drops every live query registered on a context, for a context
// that is going away.
func (h *Hub) Forget(on *stage.Context) {
	h.mu.Lock()
	queries := h.queries[on]
	delete(h.queries, on)
	h.mu.Unlock()

	for _, lq := range queries {
		lq.mu.Lock()
		lq.closed = true
		lq.handlers = nil
		lq.mu.Unlock()
	}
}

func (h *Hub) snapshot(on *stage.Context) []*LiveQuery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*LiveQuery(nil), h.queries[on]...)
}

func (h *Hub) unregister(lq *LiveQuery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.queries[lq.on]
	for i, q := range list {
		if q == lq {
			h.queries[lq.on] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(h.queries[lq.on]) == 0 {
		delete(h.queries, lq.on)
	}
}
