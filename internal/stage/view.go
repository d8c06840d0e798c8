package stage

import (
	"context"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
)

// view merges the parent's rows with this context's pending changes.
//
// The parent answers the predicate for rows it holds. Rows changed or
// inserted here are evaluated locally instead, so a local edit can move a
// record into or out of the result. Deleted rows are dropped. Sort and limit
// apply to the merged result.
func (c *Context) view(ctx context.Context, req query.Request) ([]ir.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	matcher, err := c.compiler.Compile(req.Predicate)
	if err != nil {
		return nil, err
	}

	parentRows, err := c.parent.View(ctx, req.Unsorted())
	if err != nil {
		return nil, err
	}

	out := make([]ir.Row, 0, len(parentRows)+len(c.inserted))
	for _, row := range parentRows {
		if _, gone := c.deleted[row.ID]; gone {
			continue
		}
		if rec, ok := c.records[row.ID]; ok && rec.pending() {
			continue
		}
		out = append(out, row)
	}

	for _, rec := range c.records {
		if rec.kind != req.Kind || !rec.pending() {
			continue
		}
		row := rec.Row()
		ok, err := matcher.Match(row.Fields)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}

	query.SortRows(out, req.Sort)
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}
