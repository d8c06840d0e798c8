package query

import (
	"slices"
	"strings"

	"github.com/roach88/strata/internal/ir"
)

// SortRows orders rows in place by the descriptors, then seq ASC, id ASC.
func SortRows(rows []ir.Row, descriptors []SortDescriptor) {
	slices.SortStableFunc(rows, func(a, b ir.Row) int {
		return CompareRows(a, b, descriptors)
	})
}

// CompareRows compares two rows by the descriptors, then seq, then id.
func CompareRows(a, b ir.Row, descriptors []SortDescriptor) int {
	for _, sd := range descriptors {
		c := ir.Compare(Lookup(a.Fields, sd.Key), Lookup(b.Fields, sd.Key))
		if sd.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	switch {
	case a.Seq < b.Seq:
		return -1
	case a.Seq > b.Seq:
		return 1
	}
	return strings.Compare(string(a.ID), string(b.ID))
}

// Apply filters, sorts and truncates rows according to the request.
// Rows are not copied; the returned slice is new.
func Apply(c *Compiler, req Request, rows []ir.Row) ([]ir.Row, error) {
	m, err := c.Compile(req.Predicate)
	if err != nil {
		return nil, err
	}
	out, err := m.Filter(rows)
	if err != nil {
		return nil, err
	}
	SortRows(out, req.Sort)
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}
