package querysql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
)

func comp(steps ...core.Step) *core.Comprehension {
	return core.NewComprehension(steps)
}

func TestCompile_GoldenSQL(t *testing.T) {
	testCases := []struct {
		name       string
		comp       *core.Comprehension
		wantSQL    string
		wantParams []any
	}{
		{
			name:       "empty comprehension",
			comp:       core.Empty,
			wantSQL:    `SELECT NULL AS "v"`,
			wantParams: nil,
		},
		{
			name: "empty join partner",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2)},
				core.Scan{Pat: core.ID("j"), Source: core.Q(core.Empty), Join: true},
			),
			wantSQL:    `SELECT NULL AS "v"`,
			wantParams: nil,
		},
		{
			name: "scan over empty comprehension adds no relation",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2)},
				core.Where{Cond: core.Bin(">", core.R("i"), core.Int(1))},
				core.Scan{Pat: core.ID("j"), Source: core.Q(core.Empty)},
			),
			wantSQL:    `SELECT t0."v" AS "v" FROM (SELECT column1 AS "v" FROM (VALUES (?), (?))) AS t0 WHERE (t0."v" > ?)`,
			wantParams: []any{int64(1), int64(2), int64(1)},
		},
		{
			name: "unit elements",
			comp: comp(
				core.Scan{Pat: core.WildcardPat{}, Source: core.Ints(1, 2)},
			),
			wantSQL:    `SELECT NULL AS "v" FROM (SELECT column1 AS "v" FROM (VALUES (?), (?))) AS t0`,
			wantParams: []any{int64(1), int64(2)},
		},
		{
			name: "filter and atom yield",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2, 3)},
				core.Where{Cond: core.Bin(">", core.R("i"), core.Int(1))},
				core.Yield{Expr: core.Bin("*", core.R("i"), core.Int(10))},
			),
			wantSQL: `SELECT (t0."v" * ?) AS "v" FROM (SELECT column1 AS "v" FROM (VALUES (?), (?), (?))) AS t0 WHERE (t0."v" > ?)`,
			// Select list first, then FROM, then WHERE.
			wantParams: []any{int64(10), int64(1), int64(2), int64(3), int64(1)},
		},
		{
			name: "order desc",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(3, 1)},
				core.Order{Keys: []core.OrderKey{core.Desc(core.R("i"))}},
			),
			wantSQL:    `SELECT t0."v" AS "v" FROM (SELECT column1 AS "v" FROM (VALUES (?), (?))) AS t0 ORDER BY t0."v" COLLATE BINARY DESC`,
			wantParams: []any{int64(3), int64(1)},
		},
		{
			name: "join with record yield",
			comp: comp(
				core.Scan{Pat: core.ID("a"), Source: core.Ints(1, 2)},
				core.Scan{Pat: core.ID("b"), Source: core.List{Elems: []core.Expr{core.Str("x")}}, Join: true},
				core.Yield{Expr: core.Rec(core.Fld("i", core.R("a")), core.Fld("s", core.R("b")))},
			),
			wantSQL:    `SELECT t0."v" AS "i", t1."v" AS "s" FROM (SELECT column1 AS "v" FROM (VALUES (?), (?))) AS t0 CROSS JOIN (SELECT column1 AS "v" FROM (VALUES (?))) AS t1`,
			wantParams: []any{int64(1), int64(2), "x"},
		},
		{
			name: "keyless group",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1)},
				core.Group{Aggs: []core.Aggregate{core.Agg("n", "count", nil)}},
			),
			wantSQL:    `SELECT t1."n" AS "v" FROM (SELECT COUNT(*) AS "n" FROM (SELECT column1 AS "v" FROM (VALUES (?))) AS t0 HAVING COUNT(*) > 0) AS t1`,
			wantParams: []any{int64(1)},
		},
		{
			name: "nested source",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Q(comp(
					core.Scan{Pat: core.ID("j"), Source: core.Ints(1, 2)},
					core.Where{Cond: core.Bin(">", core.R("j"), core.Int(1))},
				))},
			),
			wantSQL:    `SELECT t1."v" AS "v" FROM (SELECT t0."v" AS "v" FROM (SELECT column1 AS "v" FROM (VALUES (?), (?))) AS t0 WHERE (t0."v" > ?)) AS t1`,
			wantParams: []any{int64(1), int64(2), int64(1)},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q, err := NewCompiler(nil).Compile(tc.comp)
			require.NoError(t, err)

			assert.Equal(t, tc.wantSQL, q.SQL, "SQL mismatch")
			assert.Equal(t, tc.wantParams, q.Params, "Parameters mismatch")
		})
	}
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	c := comp(
		core.Scan{Pat: core.ID("s"), Source: core.List{Elems: []core.Expr{core.Str("'; DROP TABLE x; --")}}},
		core.Where{Cond: core.Bin("<>", core.R("s"), core.Str("robert"))},
	)

	q, err := NewCompiler(nil).Compile(c)
	require.NoError(t, err)
	assert.NotContains(t, q.SQL, "DROP")
	assert.NotContains(t, q.SQL, "robert")
	assert.Equal(t, []any{"'; DROP TABLE x; --", "robert"}, q.Params)
}

func TestCompile_EnvRecordsAndGroup(t *testing.T) {
	env := map[string]ir.IRValue{
		"emps": ir.NewIRList(
			ir.NewIRRecord(ir.F("name", ir.IRString("ann")), ir.F("dept", ir.IRInt(10))),
			ir.NewIRRecord(ir.F("name", ir.IRString("bob")), ir.F("dept", ir.IRInt(20))),
		),
	}
	c := comp(
		core.Scan{Pat: core.ID("e"), Source: core.R("emps")},
		core.Group{
			Keys: []core.Field{core.Fld("d", core.Select{Expr: core.R("e"), Field: "dept"})},
			Aggs: []core.Aggregate{
				core.Agg("n", "count", nil),
				core.Agg("hi", "max", core.Select{Expr: core.R("e"), Field: "name"}),
			},
		},
	)

	q, err := NewCompiler(env).Compile(c)
	require.NoError(t, err)

	assert.True(t, q.Record)
	assert.Equal(t, []Column{{Name: "d", Kind: KindInt}, {Name: "n", Kind: KindInt}, {Name: "hi", Kind: KindString}}, q.Columns)
	assert.Contains(t, q.SQL, `SELECT column1 AS "name", column2 AS "dept" FROM (VALUES (?, ?), (?, ?))`)
	assert.Contains(t, q.SQL, `GROUP BY t0."dept"`)
	assert.Equal(t, []any{"ann", int64(10), "bob", int64(20)}, q.Params)
}

func TestCompile_RecordPattern(t *testing.T) {
	src := core.List{Elems: []core.Expr{
		core.Rec(core.Fld("a", core.Int(1)), core.Fld("b", core.Bool(true))),
	}}
	c := comp(
		core.Scan{Pat: core.RecPat("b", "flag"), Source: src},
		core.Yield{Expr: core.Call("not", core.R("flag"))},
	)

	q, err := NewCompiler(nil).Compile(c)
	require.NoError(t, err)
	assert.Equal(t, `SELECT (NOT t0."b") AS "v" FROM (SELECT column1 AS "a", column2 AS "b" FROM (VALUES (?, ?))) AS t0`, q.SQL)
	assert.Equal(t, []Column{{Name: "v", Kind: KindBool}}, q.Columns)
}

func TestCompile_FloorDivision(t *testing.T) {
	c := comp(core.Yield{Expr: core.Bin("mod", core.Int(-7), core.Int(2))})

	q, err := NewCompiler(nil).Compile(c)
	require.NoError(t, err)
	assert.Equal(t, `SELECT (((? % ?) + ?) % ?) AS "v"`, q.SQL)
	assert.Equal(t, []any{int64(-7), int64(2), int64(2), int64(2)}, q.Params)
}

func TestCompile_Unsupported(t *testing.T) {
	env := map[string]ir.IRValue{
		"emps": ir.NewIRList(ir.NewIRRecord(ir.F("name", ir.IRString("ann")))),
	}
	testCases := []struct {
		name string
		comp *core.Comprehension
	}{
		{
			name: "correlated source",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2)},
				core.Scan{Pat: core.ID("j"), Source: core.Q(comp(
					core.Scan{Pat: core.ID("k"), Source: core.Ints(1)},
					core.Where{Cond: core.Bin("=", core.R("k"), core.R("i"))},
				))},
			),
		},
		{
			name: "nested list elements",
			comp: comp(core.Scan{Pat: core.ID("xs"), Source: core.List{Elems: []core.Expr{core.Ints(1)}}}),
		},
		{
			name: "tuple pattern",
			comp: comp(core.Scan{Pat: core.TuplePat{Elems: []core.Pattern{core.ID("a")}}, Source: core.Ints(1)}),
		},
		{
			name: "list-valued argument",
			comp: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1)},
				core.Where{Cond: core.Call("member", core.R("i"), core.Ints(1, 2))},
			),
		},
		{
			name: "record-valued field",
			comp: comp(
				core.Scan{Pat: core.ID("e"), Source: core.R("emps")},
				core.Yield{Expr: core.Rec(core.Fld("e", core.R("e")), core.Fld("k", core.Int(1)))},
			),
		},
		{
			name: "mixed column kinds",
			comp: comp(core.Scan{Pat: core.ID("x"), Source: core.List{Elems: []core.Expr{core.Int(1), core.Str("a")}}}),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCompiler(env).Compile(tc.comp)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnsupported), "got %v", err)
		})
	}
}

func TestQuery_Decode(t *testing.T) {
	t.Run("scalar bools", func(t *testing.T) {
		q := &Query{Columns: []Column{{Name: "v", Kind: KindBool}}}
		got, err := q.Decode([][]any{{int64(1)}, {int64(0)}})
		require.NoError(t, err)
		assert.Equal(t, ir.NewIRList(ir.IRBool(true), ir.IRBool(false)), got)
	})

	t.Run("records", func(t *testing.T) {
		q := &Query{Record: true, Columns: []Column{{Name: "i", Kind: KindInt}, {Name: "s", Kind: KindString}}}
		got, err := q.Decode([][]any{{int64(1), []byte("x")}})
		require.NoError(t, err)
		assert.Equal(t, "[{i = 1, s = \"x\"}]", got.String())
	})

	t.Run("null", func(t *testing.T) {
		q := &Query{Columns: []Column{{Name: "v", Kind: KindInt}}}
		_, err := q.Decode([][]any{{nil}})
		assert.Error(t, err)
	})

	t.Run("unit", func(t *testing.T) {
		got, err := unitQuery().Decode([][]any{{nil}})
		require.NoError(t, err)
		assert.Equal(t, "[()]", got.String())
	})

	t.Run("width mismatch", func(t *testing.T) {
		q := &Query{Columns: []Column{{Name: "v"}}}
		_, err := q.Decode([][]any{{int64(1), int64(2)}})
		assert.Error(t, err)
	})
}
