package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/roach88/strata/internal/ir"
)

// Absorb commits a change set in one transaction.
//
// Inserted rows must carry permanent identities. An insert whose identity is
// already stored is an error and aborts the whole change set. An update whose
// row no longer exists (removed by a batch delete since it was fetched) is
// skipped with a warning. Deleting a missing row is a no-op.
func (s *Store) Absorb(ctx context.Context, cs ir.ChangeSet) error {
	if cs.IsEmpty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	for _, r := range cs.Inserted {
		if r.ID.IsTemporary() {
			return fmt.Errorf("insert %s: temporary identity reached the store", r.ID)
		}
		fields, err := ir.MarshalCanonical(r.Fields)
		if err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, kind, fields, seq)
			VALUES (?, ?, ?, ?)
		`, string(r.ID), r.Kind, string(fields), r.Seq); err != nil {
			return fmt.Errorf("insert %s: %w", r.ID, err)
		}
	}

	for _, r := range cs.Updated {
		fields, err := ir.MarshalCanonical(r.Fields)
		if err != nil {
			return fmt.Errorf("update %s: %w", r.ID, err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE records SET fields = ? WHERE id = ?
		`, string(fields), string(r.ID))
		if err != nil {
			return fmt.Errorf("update %s: %w", r.ID, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			slog.Warn("update skipped: record no longer stored",
				"id", r.ID,
				"kind", r.Kind,
			)
		}
	}

	for _, id := range cs.Deleted {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", string(id)); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("change set committed to store",
		"inserted", len(cs.Inserted),
		"updated", len(cs.Updated),
		"deleted", len(cs.Deleted),
	)
	return nil
}

// BatchDelete removes every record of kind matching predicate in a single
// transaction and returns the deleted identities in seq order.
//
// A malformed predicate fails before anything is deleted.
func (s *Store) BatchDelete(ctx context.Context, kind, predicate string) ([]ir.ObjectID, error) {
	if kind == "" {
		return nil, fmt.Errorf("batch delete: empty kind")
	}
	matcher, err := s.compiler.Compile(predicate)
	if err != nil {
		return nil, fmt.Errorf("batch delete %q: %w", kind, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	candidates, err := selectKind(ctx, tx, kind)
	if err != nil {
		return nil, fmt.Errorf("batch delete %q: %w", kind, err)
	}
	matched, err := matcher.Filter(candidates)
	if err != nil {
		return nil, fmt.Errorf("batch delete %q: %w", kind, err)
	}

	deleted := make([]ir.ObjectID, 0, len(matched))
	for _, r := range matched {
		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", string(r.ID)); err != nil {
			return nil, fmt.Errorf("batch delete %s: %w", r.ID, err)
		}
		deleted = append(deleted, r.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	slog.Info("batch delete committed to store",
		"kind", kind,
		"predicate", predicate,
		"deleted", len(deleted),
	)
	return deleted, nil
}

// selectKind reads every row of kind inside tx.
func selectKind(ctx context.Context, tx *sql.Tx, kind string) ([]ir.Row, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, kind, fields, seq
		FROM records
		WHERE kind = ?
		ORDER BY seq ASC, id ASC
	`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}
