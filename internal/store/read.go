package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/strata/internal/ir"
	"github.com/roach88/strata/internal/query"
)

// View returns every row of req.Kind matching req.Predicate.
//
// Rows come back ORDER BY seq ASC, id ASC; sort descriptors and limits are
// applied here too so the store answers a request the same way a staging
// context does. Predicates are evaluated in process against decoded fields,
// not translated to SQL.
func (s *Store) View(ctx context.Context, req query.Request) ([]ir.Row, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	matcher, err := s.compiler.Compile(req.Predicate)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, fields, seq
		FROM records
		WHERE kind = ?
		ORDER BY seq ASC, id ASC
	`, req.Kind)
	if err != nil {
		return nil, fmt.Errorf("query records of kind %q: %w", req.Kind, err)
	}
	defer rows.Close()

	all, err := scanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("scan records of kind %q: %w", req.Kind, err)
	}

	out, err := matcher.Filter(all)
	if err != nil {
		return nil, err
	}
	if len(req.Sort) > 0 {
		query.SortRows(out, req.Sort)
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

// Lookup returns the stored row for id.
// Returns found=false (and no error) when no row has that identity.
func (s *Store) Lookup(ctx context.Context, id ir.ObjectID) (ir.Row, bool, error) {
	if id.IsTemporary() {
		return ir.Row{}, false, nil
	}

	var (
		r      ir.Row
		fields string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, kind, fields, seq
		FROM records
		WHERE id = ?
	`, string(id)).Scan(&r.ID, &r.Kind, &fields, &r.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Row{}, false, nil
	}
	if err != nil {
		return ir.Row{}, false, fmt.Errorf("lookup %s: %w", id, err)
	}

	if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
		return ir.Row{}, false, fmt.Errorf("decode fields of %s: %w", id, err)
	}
	return r, true, nil
}

// LastSeq returns the highest sequence number in the store, or 0 when empty.
// A logical clock resumes from here after reopening.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(seq) FROM records").Scan(&seq); err != nil {
		return 0, fmt.Errorf("query max seq: %w", err)
	}
	return seq.Int64, nil
}

// Count returns the number of stored records of kind.
func (s *Store) Count(ctx context.Context, kind string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM records WHERE kind = ?", kind,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %q: %w", kind, err)
	}
	return n, nil
}

// Kinds returns the distinct record kinds in the store, sorted by name.
func (s *Store) Kinds(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT kind FROM records ORDER BY kind ASC")
	if err != nil {
		return nil, fmt.Errorf("query kinds: %w", err)
	}
	defer rows.Close()

	kinds := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan kind: %w", err)
		}
		kinds = append(kinds, k)
	}
	return kinds, rows.Err()
}

// scanRows decodes a (id, kind, fields, seq) result set.
func scanRows(rows *sql.Rows) ([]ir.Row, error) {
	out := []ir.Row{}
	for rows.Next() {
		var (
			r      ir.Row
			fields string
		)
		if err := rows.Scan(&r.ID, &r.Kind, &fields, &r.Seq); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("decode fields of %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
