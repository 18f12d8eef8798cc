package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/querysql"
)

// Run executes a compiled comprehension and decodes its rows.
func (s *Store) Run(ctx context.Context, q *querysql.Query) (ir.IRList, error) {
	raw, err := s.Rows(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, err
	}
	return q.Decode(raw)
}

// Rows executes query and returns every row as raw column values.
// Returns an empty slice (not nil) when the query yields no rows.
func (s *Store) Rows(ctx context.Context, query string, args ...any) ([][]any, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	out := [][]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, vals)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// ReadResults returns every recorded result for a comprehension.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if nothing was recorded.
func (s *Store) ReadResults(ctx context.Context, comprehensionID string) ([]Result, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, comprehension_id, rendering, engine, rows, rows_hash, seq, ir_version
		FROM results
		WHERE comprehension_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, comprehensionID)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

func scanResult(rows *sql.Rows) (Result, error) {
	var r Result
	if err := rows.Scan(&r.ID, &r.ComprehensionID, &r.Rendering, &r.Engine, &r.Rows, &r.RowsHash, &r.Seq, &r.IRVersion); err != nil {
		return Result{}, fmt.Errorf("scan result: %w", err)
	}
	return r, nil
}
