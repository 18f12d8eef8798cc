package store

import (
	"context"
	"fmt"

	"github.com/roach88/relcomp/internal/ir"
)

// Result is one recorded evaluation of a comprehension.
type Result struct {
	ID              string
	ComprehensionID string
	Rendering       string
	Engine          string
	Rows            string // canonical JSON
	RowsHash        string
	Seq             int64
	IRVersion       string
}

// NewResult builds a Result for rows produced by engine, computing the
// canonical rows encoding and the content-addressed ID.
func NewResult(comprehensionID, rendering, engine string, rows ir.IRList, seq int64) (Result, error) {
	rowsJSON, err := marshalRows(rows)
	if err != nil {
		return Result{}, err
	}
	rowsHash, err := ir.RowsFingerprint(rows)
	if err != nil {
		return Result{}, err
	}
	id, err := resultID(comprehensionID, engine, rowsHash)
	if err != nil {
		return Result{}, err
	}
	return Result{
		ID:              id,
		ComprehensionID: comprehensionID,
		Rendering:       rendering,
		Engine:          engine,
		Rows:            rowsJSON,
		RowsHash:        rowsHash,
		Seq:             seq,
		IRVersion:       ir.IRVersion,
	}, nil
}

// WriteResult inserts a result record into the store.
// Uses ON CONFLICT(id) DO NOTHING for idempotency - recording the same rows
// for the same comprehension and engine twice is silently ignored.
func (s *Store) WriteResult(ctx context.Context, r Result) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO results
		(id, comprehension_id, rendering, engine, rows, rows_hash, seq, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		r.ID,
		r.ComprehensionID,
		r.Rendering,
		r.Engine,
		r.Rows,
		r.RowsHash,
		r.Seq,
		r.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// NextSeq returns the next logical clock value for the result log.
func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) + 1 FROM results").Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}
