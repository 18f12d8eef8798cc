package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScopes(t *testing.T) {
	c := NewComprehension([]Step{
		Scan{Pat: ID("i"), Source: Ints(1, 2)},
		Scan{Pat: RecPat("a", "x", "b", "y"), Source: R("rs"), Join: true},
		Where{Cond: Bin("<", R("i"), R("x"))},
		Group{Keys: []Field{Fld("i", R("i"))}, Aggs: []Aggregate{Agg("n", "count", nil)}},
		Yield{Expr: Rec(Fld("total", R("n")))},
	})

	assert.Equal(t, [][]string{
		{"i"},
		{"i", "x", "y"},
		{"i", "x", "y"},
		{"i", "n"},
		{"total"},
	}, c.Scopes())
	assert.Equal(t, []string{"total"}, c.Scope())
	assert.Equal(t, []string{}, Empty.Scope())
}

func TestScopeAfter_DoesNotAlias(t *testing.T) {
	before := make([]string, 1, 8)
	before[0] = "i"
	a := ScopeAfter(before, Scan{Pat: ID("a"), Source: Ints(1)})
	b := ScopeAfter(before, Scan{Pat: ID("b"), Source: Ints(1)})
	assert.Equal(t, []string{"i", "a"}, a)
	assert.Equal(t, []string{"i", "b"}, b)
}

func TestIsIdentityYield(t *testing.T) {
	tests := []struct {
		name  string
		scope []string
		expr  Expr
		want  bool
	}{
		{"single ref", []string{"i"}, R("i"), true},
		{"different ref", []string{"i"}, R("j"), false},
		{"ref over two names", []string{"i", "j"}, R("i"), false},
		{"record in order", []string{"i", "j"}, Rec(Fld("i", R("i")), Fld("j", R("j"))), true},
		{"record reordered", []string{"i", "j"}, Rec(Fld("j", R("j")), Fld("i", R("i"))), false},
		{"record renaming", []string{"i"}, Rec(Fld("i", R("j"))), false},
		{"record subset", []string{"i", "j"}, Rec(Fld("i", R("i"))), false},
		{"empty record over empty scope", []string{}, Rec(), true},
		{"atom", []string{"i"}, Bin("+", R("i"), Int(0)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsIdentityYield(tt.scope, tt.expr))
		})
	}
}

func TestFreeNames(t *testing.T) {
	inner := NewComprehension([]Step{
		Scan{Pat: ID("a"), Source: R("xs")},
		Where{Cond: Bin("<", R("a"), R("k"))},
		Group{Keys: []Field{Fld("g", R("a"))}},
		Where{Cond: Bin("=", R("g"), R("a"))},
	})
	e := Rec(
		Fld("q", Q(inner)),
		Fld("s", Select{Expr: R("k"), Field: "f"}),
		Fld("l", List{Elems: []Expr{R("z"), Int(1)}}),
	)

	// a is local inside the query until the group drops it; the final where
	// resolves a outward again.
	assert.Equal(t, []string{"xs", "k", "a", "z"}, FreeNames(e))
	assert.True(t, References(e, "z"))
	assert.False(t, References(e, "g"))
	assert.Equal(t, []string{"j"}, StepFreeNames([]string{"i"}, Where{Cond: Bin("<", R("i"), R("j"))}))
}

func TestElementExpr(t *testing.T) {
	one := NewComprehension([]Step{Scan{Pat: ID("i"), Source: Ints(1)}})
	e, ok := one.ElementExpr()
	assert.True(t, ok)
	assert.Equal(t, "i", Render(e))

	two := NewComprehension([]Step{
		Scan{Pat: ID("i"), Source: Ints(1)},
		Scan{Pat: ID("j"), Source: Ints(1), Join: true},
	})
	e, ok = two.ElementExpr()
	assert.True(t, ok)
	assert.Equal(t, "{i = i, j = j}", Render(e))

	atom := NewComprehension([]Step{
		Scan{Pat: ID("i"), Source: Ints(1)},
		Yield{Expr: Bin("*", R("i"), Int(2))},
	})
	assert.True(t, atom.EndsWithAtom())
	_, ok = atom.ElementExpr()
	assert.False(t, ok)
}

func TestNewComprehension_Copies(t *testing.T) {
	steps := []Step{Scan{Pat: ID("i"), Source: Ints(1)}}
	c := NewComprehension(steps)
	steps[0] = Where{Cond: Bool(true)}

	got := c.Steps()
	got[0] = Unorder{}

	assert.Equal(t, "from i in [1]", c.String())
	assert.Equal(t, 1, c.Len())
	assert.False(t, c.IsEmpty())
	assert.True(t, Empty.IsEmpty())
}

func TestInJoinGroup(t *testing.T) {
	steps := []Step{
		Scan{Pat: ID("a"), Source: Ints(1)},
		Scan{Pat: ID("b"), Source: Ints(2), Join: true},
		Where{Cond: Bool(true)},
		Scan{Pat: ID("c"), Source: Ints(3)},
		Scan{Pat: ID("d"), Source: Ints(4)},
	}

	assert.True(t, InJoinGroup(steps, 0), "first member")
	assert.True(t, InJoinGroup(steps, 1), "joined member")
	assert.False(t, InJoinGroup(steps, 2), "not a scan")
	assert.False(t, InJoinGroup(steps, 3))
	assert.False(t, InJoinGroup(steps, 4))
}
