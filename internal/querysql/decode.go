package querysql

import (
	"fmt"

	"github.com/roach88/relcomp/internal/ir"
)

// Decode converts raw result rows, as scanned from database/sql, into the
// elements of the comprehension.
func (q *Query) Decode(rows [][]any) (ir.IRList, error) {
	out := make(ir.IRList, 0, len(rows))
	for i, row := range rows {
		if len(row) != len(q.Columns) {
			return nil, fmt.Errorf("querysql: row %d has %d columns, want %d", i, len(row), len(q.Columns))
		}
		vals := make([]ir.IRValue, len(row))
		for j, raw := range row {
			v, err := decodeValue(raw, q.Columns[j].Kind)
			if err != nil {
				return nil, fmt.Errorf("querysql: row %d column %q: %w", i, q.Columns[j].Name, err)
			}
			vals[j] = v
		}
		if !q.Record {
			out = append(out, vals[0])
			continue
		}
		rec := make(ir.IRRecord, len(vals))
		for j, v := range vals {
			rec[j] = ir.F(q.Columns[j].Name, v)
		}
		out = append(out, rec)
	}
	return out, nil
}

func decodeValue(raw any, kind Kind) (ir.IRValue, error) {
	if kind == KindUnit {
		return ir.IRUnit{}, nil
	}
	switch v := raw.(type) {
	case int64:
		if kind == KindBool {
			return ir.IRBool(v != 0), nil
		}
		return ir.IRInt(v), nil
	case bool:
		return ir.IRBool(v), nil
	case string:
		return ir.IRString(v), nil
	case []byte:
		return ir.IRString(v), nil
	case nil:
		return nil, fmt.Errorf("NULL has no value")
	default:
		return nil, fmt.Errorf("unexpected SQL value %T", raw)
	}
}
