package store

import (
	"fmt"

	"github.com/roach88/relcomp/internal/ir"
)

// marshalRows converts result rows to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalRows(rows ir.IRList) (string, error) {
	if rows == nil {
		rows = ir.IRList{}
	}
	data, err := ir.MarshalCanonical(rows)
	if err != nil {
		return "", fmt.Errorf("marshal rows: %w", err)
	}
	return string(data), nil
}

// resultID computes the content-addressed identity of a result.
func resultID(comprehensionID, engine, rowsHash string) (string, error) {
	id, err := ir.Fingerprint(ir.DomainResult, map[string]any{
		"comprehension": comprehensionID,
		"engine":        engine,
		"rows":          rowsHash,
	})
	if err != nil {
		return "", fmt.Errorf("result id: %w", err)
	}
	return id, nil
}
