package eval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/testutil"
)

func comp(steps ...core.Step) *core.Comprehension {
	return core.NewComprehension(steps)
}

func TestRun(t *testing.T) {
	env := Env{"emps": testutil.Emps()}
	sel := testutil.Sel

	tests := []struct {
		name string
		c    *core.Comprehension
		want string
	}{
		{
			name: "empty comprehension runs once",
			c:    core.Empty,
			want: "[()]",
		},
		{
			name: "constant yield runs once",
			c:    comp(core.Yield{Expr: core.Int(1)}),
			want: "[1]",
		},
		{
			name: "unit yield",
			c:    comp(core.Yield{Expr: core.Rec()}),
			want: "[()]",
		},
		{
			name: "single scan",
			c:    comp(core.Scan{Pat: core.ID("i"), Source: core.Ints(3, 1, 2)}),
			want: "[3, 1, 2]",
		},
		{
			name: "join order",
			c: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2)},
				core.Scan{Pat: core.ID("j"), Source: core.Ints(3, 4), Join: true},
			),
			want: "[{i = 1, j = 3}, {i = 1, j = 4}, {i = 2, j = 3}, {i = 2, j = 4}]",
		},
		{
			name: "dependent scan",
			c: comp(
				core.Scan{Pat: core.ID("xs"), Source: core.List{Elems: []core.Expr{core.Ints(1, 2), core.Ints(3)}}},
				core.Scan{Pat: core.ID("x"), Source: core.R("xs")},
				core.Yield{Expr: core.R("x")},
			),
			want: "[1, 2, 3]",
		},
		{
			name: "where and atom yield",
			c: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2, 3, 4)},
				core.Where{Cond: core.Bin("=", core.Bin("mod", core.R("i"), core.Int(2)), core.Int(0))},
				core.Yield{Expr: core.Bin("*", core.R("i"), core.Int(10))},
			),
			want: "[20, 40]",
		},
		{
			name: "order stable desc",
			c: comp(
				core.Scan{Pat: core.ID("e"), Source: core.R("emps")},
				core.Order{Keys: []core.OrderKey{core.Desc(sel("e", "dept"))}},
				core.Yield{Expr: sel("e", "name")},
			),
			want: `["bob", "ann", "cat"]`,
		},
		{
			name: "group in first-appearance order",
			c: comp(
				core.Scan{Pat: core.ID("e"), Source: core.R("emps")},
				core.Group{
					Keys: []core.Field{core.Fld("d", sel("e", "dept"))},
					Aggs: []core.Aggregate{
						core.Agg("n", "count", nil),
						core.Agg("total", "sum", sel("e", "sal")),
						core.Agg("lo", "min", sel("e", "sal")),
						core.Agg("hi", "max", sel("e", "name")),
					},
				},
			),
			want: `[{d = 10, n = 2, total = 170, lo = 70, hi = "cat"}, {d = 20, n = 1, total = 50, lo = 50, hi = "bob"}]`,
		},
		{
			name: "group over empty input",
			c: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints()},
				core.Group{Aggs: []core.Aggregate{core.Agg("n", "count", nil)}},
			),
			want: "[]",
		},
		{
			name: "record pattern",
			c: comp(
				core.Scan{Pat: core.RecordPat{Fields: []core.PatField{
					{Label: "name", Pat: core.ID("n")},
					{Label: "sal", Pat: core.ID("s")},
				}}, Source: core.R("emps")},
				core.Where{Cond: core.Bin(">", core.R("s"), core.Int(60))},
				core.Yield{Expr: core.R("n")},
			),
			want: `["ann", "cat"]`,
		},
		{
			name: "tuple and wildcard patterns",
			c: comp(
				core.Scan{Pat: core.TuplePat{Elems: []core.Pattern{core.ID("a"), core.WildcardPat{}}}, Source: core.List{Elems: []core.Expr{
					core.Tuple{Elems: []core.Expr{core.Int(1), core.Str("x")}},
					core.Tuple{Elems: []core.Expr{core.Int(2), core.Str("y")}},
				}}},
			),
			want: "[1, 2]",
		},
		{
			name: "renaming yield keeps single element",
			c: comp(
				core.Scan{Pat: core.ID("j"), Source: core.Ints(1, 2)},
				core.Yield{Expr: core.Rec(core.Fld("i", core.R("j")))},
			),
			want: "[1, 2]",
		},
		{
			name: "nested query sees row",
			c: comp(
				core.Scan{Pat: core.ID("i"), Source: core.Ints(1, 2, 3)},
				core.Where{Cond: core.Call("member", core.R("i"), core.Q(comp(
					core.Scan{Pat: core.ID("k"), Source: core.Ints(2, 3, 4)},
					core.Where{Cond: core.Bin("=", core.R("k"), core.R("i"))},
				)))},
			),
			want: "[2, 3]",
		},
		{
			name: "empty join partner empties the comprehension",
			c: comp(
				core.Scan{Pat: core.ID("j"), Source: core.Ints(1, 2)},
				core.Scan{Pat: core.ID("i"), Source: core.Q(core.Empty), Join: true},
			),
			want: "[()]",
		},
		{
			name: "scan over empty comprehension is skipped",
			c: comp(
				core.Scan{Pat: core.ID("j"), Source: core.Ints(1, 2)},
				core.Where{Cond: core.Bin(">", core.R("j"), core.Int(1))},
				core.Scan{Pat: core.ID("i"), Source: core.Q(core.Empty)},
			),
			want: "[2]",
		},
		{
			name: "scan over a source that simplifies to empty is skipped",
			c: comp(
				core.Scan{Pat: core.ID("j"), Source: core.Ints(1, 2)},
				core.Scan{Pat: core.ID("i"), Source: core.Q(comp(
					core.Scan{Pat: core.ID("k"), Source: core.Q(core.Empty)},
					core.Where{Cond: core.Bool(true)},
				))},
			),
			want: "[1, 2]",
		},
		{
			name: "scan over a list of unit binds",
			c: comp(
				core.Scan{Pat: core.ID("j"), Source: core.Ints(1)},
				core.Scan{Pat: core.ID("i"), Source: core.List{Elems: []core.Expr{core.Unit()}}},
			),
			want: "[{j = 1, i = ()}]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Run(tt.c, env)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestEval_Operators(t *testing.T) {
	tests := []struct {
		name string
		expr core.Expr
		want ir.IRValue
	}{
		{"add", core.Bin("+", core.Int(2), core.Int(3)), ir.IRInt(5)},
		{"sub", core.Bin("-", core.Int(2), core.Int(3)), ir.IRInt(-1)},
		{"div floors", core.Bin("div", core.Int(-7), core.Int(2)), ir.IRInt(-4)},
		{"mod takes divisor sign", core.Bin("mod", core.Int(-7), core.Int(2)), ir.IRInt(1)},
		{"concat", core.Bin("^", core.Str("ab"), core.Str("c")), ir.IRString("abc")},
		{"string compare", core.Bin("<", core.Str("a"), core.Str("b")), ir.IRBool(true)},
		{"tuple equality", core.Bin("=", core.Tuple{Elems: []core.Expr{core.Int(1)}}, core.Tuple{Elems: []core.Expr{core.Int(1)}}), ir.IRBool(true)},
		{"not", core.Call("not", core.Bool(true)), ir.IRBool(false)},
		{"negate", core.Call("~", core.Int(4)), ir.IRInt(-4)},
		{"abs", core.Call("abs", core.Int(-4)), ir.IRInt(4)},
		{"size counts runes", core.Call("size", core.Str("h\u00e9")), ir.IRInt(2)},
		{"length", core.Call("length", core.Ints(1, 2)), ir.IRInt(2)},
		{"andalso short-circuits", core.Bin("andalso", core.Bool(false), core.Bin("div", core.Int(1), core.Int(0))), ir.IRBool(false)},
		{"orelse short-circuits", core.Bin("orelse", core.Bool(true), core.R("unbound")), ir.IRBool(true)},
		{"select", core.Select{Expr: core.Rec(core.Fld("a", core.Int(1))), Field: "a"}, ir.IRInt(1)},
		{"unit literal", core.Unit(), ir.IRUnit{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Eval(tt.expr, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEval_Errors(t *testing.T) {
	tests := []struct {
		name string
		expr core.Expr
		code ErrorCode
	}{
		{"unbound", core.R("x"), ErrCodeUnbound},
		{"add strings", core.Bin("+", core.Str("a"), core.Int(1)), ErrCodeType},
		{"divide by zero", core.Bin("div", core.Int(1), core.Int(0)), ErrCodeDivideByZero},
		{"unknown function", core.Call("frobnicate", core.Int(1)), ErrCodeUnknownFunction},
		{"where on int", core.Q(comp(
			core.Scan{Pat: core.ID("i"), Source: core.Ints(1)},
			core.Where{Cond: core.R("i")},
		)), ErrCodeType},
		{"scan over int", core.Q(comp(core.Scan{Pat: core.ID("i"), Source: core.Int(1)})), ErrCodeType},
		{"pattern mismatch", core.Q(comp(core.Scan{Pat: core.RecPat("a", "x"), Source: core.Ints(1)})), ErrCodePatternMismatch},
		{"unknown aggregate", core.Q(comp(
			core.Scan{Pat: core.ID("i"), Source: core.Ints(1)},
			core.Group{Aggs: []core.Aggregate{core.Agg("m", "median", core.R("i"))}},
		)), ErrCodeUnknownFunction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Eval(tt.expr, nil)
			require.Error(t, err)
			var ee *Error
			require.ErrorAs(t, err, &ee)
			assert.Equal(t, tt.code, ee.Code)
		})
	}

	_, err := Eval(core.Bin("+", core.Str("a"), core.Int(1)), nil)
	assert.True(t, IsTypeError(err))
	_, err = Eval(core.Call("frobnicate"), nil)
	assert.True(t, IsUnknownFunction(err))
}
