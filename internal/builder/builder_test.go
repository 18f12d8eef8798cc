package builder

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relcomp/internal/core"
)

var (
	l1 = core.Ints(1, 2, 3)
	l2 = core.Ints(4, 5)
)

func mustBuild(t *testing.T, b *Builder) *core.Comprehension {
	t.Helper()
	c, err := b.Build()
	require.NoError(t, err)
	require.Empty(t, core.Validate(c, b.outer...), "built comprehension must validate")
	return c
}

func TestBuilder_Empty(t *testing.T) {
	c := mustBuild(t, New())
	assert.True(t, c.IsEmpty())
	assert.Equal(t, "from", c.String())
}

func TestBuilder_IdentityYieldElided(t *testing.T) {
	withYield := mustBuild(t, New().Scan(core.ID("i"), l1).Yield(core.R("i")))
	without := mustBuild(t, New().Scan(core.ID("i"), l1))

	assert.True(t, core.EqualComprehension(withYield, without))
	assert.Equal(t, "from i in [1, 2, 3]", withYield.String())

	record := mustBuild(t, New().
		Scan(core.ID("i"), l1).
		Scan(core.ID("j"), l2).
		Yield(core.Rec(core.Fld("i", core.R("i")), core.Fld("j", core.R("j")))))
	assert.Equal(t, 2, record.Len())
}

func TestBuilder_NonIdentityYieldKept(t *testing.T) {
	tests := []struct {
		name string
		expr core.Expr
		want string
	}{
		{"renaming", core.Rec(core.Fld("k", core.R("i"))), "from i in [1, 2, 3] yield {k = i}"},
		{"record of one name", core.Rec(core.Fld("i", core.R("i"))), ""},
		{"atom", core.Bin("*", core.R("i"), core.Int(2)), "from i in [1, 2, 3] yield i * 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := mustBuild(t, New().Scan(core.ID("i"), l1).Yield(tt.expr))
			if tt.want == "" {
				assert.Equal(t, 1, c.Len(), "{i = i} over scope [i] is the identity")
				return
			}
			assert.Equal(t, tt.want, c.String())
		})
	}
}

func TestBuilder_FirstStepYieldKept(t *testing.T) {
	c := mustBuild(t, New().Yield(core.Rec()))
	assert.Equal(t, "from yield {}", c.String())

	c = mustBuild(t, New().Yield(core.Int(7)))
	assert.Equal(t, "from yield 7", c.String())
}

func TestBuilder_NoopWhereAndOrder(t *testing.T) {
	base := New().Scan(core.ID("i"), l1)
	before := mustBuild(t, base).Len()

	base.Where(core.Bool(true)).Order()
	c := mustBuild(t, base)
	assert.Equal(t, before, c.Len())

	// Accepted even with nothing in scope.
	empty := New().Where(core.Bool(true)).Order()
	assert.NoError(t, empty.Err())
	assert.True(t, mustBuild(t, empty).IsEmpty())
}

func TestBuilder_JoinDetection(t *testing.T) {
	c := mustBuild(t, New().
		Scan(core.ID("j"), l1).
		Scan(core.ID("i"), l2).
		Where(core.Bin("<", core.R("i"), core.Int(2))))

	assert.Equal(t, "from j in [1, 2, 3] join i in [4, 5] where i < 2", c.String())
	scan := c.Step(1).(core.Scan)
	assert.True(t, scan.Join)
}

func TestBuilder_DependentScanNotJoined(t *testing.T) {
	c := mustBuild(t, New(WithOuterScope("xss")).
		Scan(core.ID("xs"), core.R("xss")).
		Scan(core.ID("x"), core.R("xs")).
		Scan(core.ID("k"), l2))

	assert.Equal(t, "from xs in xss, x in xs join k in [4, 5]", c.String())
	got := []bool{}
	for _, s := range c.Steps() {
		got = append(got, s.(core.Scan).Join)
	}
	if diff := cmp.Diff([]bool{false, false, true}, got); diff != "" {
		t.Errorf("join flags (-want +got):\n%s", diff)
	}
}

func TestBuilder_JoinGroupDependency(t *testing.T) {
	// k depends on i, which is in the same join group as j.
	c := mustBuild(t, New().
		Scan(core.ID("i"), l1).
		Scan(core.ID("j"), l2).
		Scan(core.ID("k"), core.List{Elems: []core.Expr{core.R("i")}}))

	assert.Equal(t, "from i in [1, 2, 3] join j in [4, 5], k in [i]", c.String())
}

func TestBuilder_ScanAfterWhereNotJoined(t *testing.T) {
	c := mustBuild(t, New().
		Scan(core.ID("i"), l1).
		Where(core.Bin(">", core.R("i"), core.Int(1))).
		Scan(core.ID("j"), l2))

	assert.Equal(t, "from i in [1, 2, 3] where i > 1, j in [4, 5]", c.String())
}

func TestBuilder_OrderCollapse(t *testing.T) {
	c := mustBuild(t, New().
		Scan(core.ID("i"), l1).
		Order(core.Asc(core.R("i"))).
		Order(core.Desc(core.R("i"))))
	assert.Equal(t, "from i in [1, 2, 3] order i desc", c.String())

	c = mustBuild(t, New().
		Scan(core.ID("i"), l1).
		Order(core.Asc(core.R("i"))).
		Where(core.Bin("<>", core.R("i"), core.Int(2))).
		Order(core.Desc(core.R("i"))))
	assert.Equal(t, "from i in [1, 2, 3] order i where i <> 2 order i desc", c.String())
}

func TestBuilder_UnorderCollapse(t *testing.T) {
	c := mustBuild(t, New().Scan(core.ID("i"), l1).Unorder().Unorder())
	assert.Equal(t, "from i in [1, 2, 3] unorder", c.String())
}

func TestBuilder_Group(t *testing.T) {
	b := New().
		Scan(core.ID("i"), l1).
		Group(
			[]core.Field{core.Fld("odd", core.Bin("mod", core.R("i"), core.Int(2)))},
			core.Agg("n", "count", nil),
			core.Agg("total", "sum", core.R("i")),
		)
	require.NoError(t, b.Err())
	assert.Equal(t, []string{"odd", "n", "total"}, b.Scope())

	b.Where(core.Bin(">", core.R("i"), core.Int(0)))
	assert.True(t, IsUnboundNameError(b.Err()), "group drops i from scope")
}

func TestBuilder_GroupDuplicateName(t *testing.T) {
	b := New().Scan(core.ID("i"), l1).Group(
		[]core.Field{core.Fld("n", core.R("i"))},
		core.Agg("n", "count", nil),
	)
	assert.True(t, IsDuplicateName(b.Err()))
}

func TestBuilder_ScopeCollision(t *testing.T) {
	b := New().Scan(core.ID("i"), l1).Where(core.Bin("<", core.R("i"), core.Int(3)))
	before := b.Current().String()
	scopeBefore := b.Scope()

	b.Scan(core.ID("i"), l2)

	err := b.Err()
	require.Error(t, err)
	var se *ScopeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ErrCodeScopeCollision, se.Code)
	assert.Equal(t, "i", se.Name)
	assert.True(t, IsScopeCollision(err))

	assert.Equal(t, before, b.Current().String(), "steps unchanged")
	assert.Equal(t, scopeBefore, b.Scope(), "scope unchanged")

	_, buildErr := b.Build()
	assert.ErrorIs(t, buildErr, err)
}

func TestBuilder_RecordPatternCollision(t *testing.T) {
	b := New().Scan(core.ID("j"), l1).Scan(core.RecPat("a", "i", "b", "j"), core.R("rs"))
	assert.True(t, IsScopeCollision(b.Err()))

	b = New().Scan(core.RecPat("a", "i", "b", "i"), l1)
	assert.True(t, IsDuplicateName(b.Err()))
}

func TestBuilder_YieldDuplicateName(t *testing.T) {
	b := New().Scan(core.ID("i"), l1).
		Yield(core.Rec(core.Fld("a", core.R("i")), core.Fld("a", core.Int(1))))

	var se *ScopeError
	require.True(t, errors.As(b.Err(), &se))
	assert.Equal(t, ErrCodeDuplicateName, se.Code)
	assert.Equal(t, "a", se.Name)
	assert.Equal(t, "yield", se.Step)
	assert.Equal(t, []string{"i"}, b.Scope())
}

func TestBuilder_UnboundName(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Builder) *Builder
		step string
	}{
		{"scan source", func(b *Builder) *Builder { return b.Scan(core.ID("j"), core.R("nope")) }, "scan"},
		{"where", func(b *Builder) *Builder { return b.Where(core.Bin("=", core.R("nope"), core.Int(1))) }, "where"},
		{"order", func(b *Builder) *Builder { return b.Order(core.Asc(core.R("nope"))) }, "order"},
		{"group key", func(b *Builder) *Builder {
			return b.Group([]core.Field{core.Fld("k", core.R("nope"))})
		}, "group"},
		{"aggregate", func(b *Builder) *Builder {
			return b.Group(nil, core.Agg("s", "sum", core.R("nope")))
		}, "group"},
		{"yield", func(b *Builder) *Builder { return b.Yield(core.Rec(core.Fld("x", core.R("nope")))) }, "yield"},
		{"nested query", func(b *Builder) *Builder {
			inner := core.NewComprehension([]core.Step{
				core.Scan{Pat: core.ID("a"), Source: l2},
				core.Where{Cond: core.Bin("=", core.R("a"), core.R("nope"))},
			})
			return b.Where(core.Call("nonEmpty", core.Q(inner)))
		}, "where"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New().Scan(core.ID("i"), l1)
			tt.run(b)

			err := b.Err()
			require.Error(t, err)
			var ue *UnboundNameError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, "nope", ue.Name)
			assert.Equal(t, tt.step, ue.Step)
			assert.Equal(t, []string{"i"}, ue.Scope)

			assert.True(t, IsScopeError(err), "unbound names are scope errors")
			assert.Equal(t, ErrCodeUnboundName, Code(err))
			assert.Equal(t, 1, b.Current().Len())
		})
	}
}

func TestBuilder_OuterScope(t *testing.T) {
	b := New(WithOuterScope("limit", "i")).
		Scan(core.ID("i"), l1).
		Where(core.Bin("<", core.R("i"), core.R("limit")))
	require.NoError(t, b.Err(), "a scan may shadow an enclosing name")

	c := mustBuild(t, b)
	assert.Equal(t, "from i in [1, 2, 3] where i < limit", c.String())
}

func TestBuilder_StepBeforeScan(t *testing.T) {
	tests := []struct {
		name string
		run  func(*Builder) *Builder
	}{
		{"where", func(b *Builder) *Builder { return b.Where(core.Bool(false)) }},
		{"order", func(b *Builder) *Builder { return b.Order(core.Asc(core.Int(1))) }},
		{"group", func(b *Builder) *Builder { return b.Group(nil, core.Agg("n", "count", nil)) }},
		{"unorder", func(b *Builder) *Builder { return b.Unorder() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.run(New())
			assert.Equal(t, ErrCodeStepBeforeScan, Code(b.Err()))
		})
	}
}

func TestBuilder_StepAfterAtomYield(t *testing.T) {
	b := New().Scan(core.ID("i"), l1).Yield(core.Bin("+", core.R("i"), core.Int(1)))
	require.NoError(t, b.Err())
	assert.Equal(t, []string{}, b.Scope())

	b.Where(core.Bool(true))
	assert.Equal(t, ErrCodeStepAfterAtomYield, Code(b.Err()))
}

func TestBuilder_Malformed(t *testing.T) {
	assert.Equal(t, ErrCodeMalformed, Code(New().Scan(nil, l1).Err()))
	assert.Equal(t, ErrCodeMalformed, Code(New().Scan(core.ID("i"), l1).Where(nil).Err()))
	assert.Equal(t, ErrCodeMalformed, Code(New().Yield(nil).Err()))
}

func TestBuilder_StickyError(t *testing.T) {
	b := New().
		Scan(core.ID("i"), l1).
		Where(core.R("missing")).
		Scan(core.ID("j"), l2).
		Yield(core.R("j"))

	assert.True(t, IsUnboundNameError(b.Err()))
	assert.Equal(t, "from i in [1, 2, 3]", b.Current().String(), "calls after the error are ignored")

	c, err := b.Build()
	assert.Nil(t, c)
	assert.Error(t, err)

	e, err := b.BuildSimplify()
	assert.Nil(t, e)
	assert.True(t, IsUnboundNameError(err))
}

func TestBuilder_FailedBuilderStaysFailed(t *testing.T) {
	b := New().
		Scan(core.ID("i"), l1).
		Scan(core.ID("i"), l2)
	require.True(t, IsScopeCollision(b.Err()))
	failed := b.Err()

	// A call that would be valid on a fresh builder is still ignored.
	b.Where(core.Bin(">", core.R("i"), core.Int(1)))

	assert.Same(t, failed, b.Err())
	assert.Equal(t, []string{"i"}, b.Scope())
	assert.Equal(t, "from i in [1, 2, 3]", b.Current().String())

	fresh := mustBuild(t, New().Scan(core.ID("i"), l1).Where(core.Bin(">", core.R("i"), core.Int(1))))
	assert.Equal(t, "from i in [1, 2, 3] where i > 1", fresh.String())
}

func TestBuilder_BuildIdempotentAndFrozen(t *testing.T) {
	b := New().Scan(core.ID("i"), l1)
	first := mustBuild(t, b)
	second := mustBuild(t, b)
	assert.True(t, core.EqualComprehension(first, second))

	b.Where(core.Bin(">", core.R("i"), core.Int(1)))
	third := mustBuild(t, b)

	assert.Equal(t, "from i in [1, 2, 3]", first.String(), "earlier builds are not affected")
	assert.Equal(t, "from i in [1, 2, 3] where i > 1", third.String())
}

func TestBuilder_BuildSimplifyDegenerates(t *testing.T) {
	e, err := New().Scan(core.ID("i"), l1).BuildSimplify()
	require.NoError(t, err)
	assert.Equal(t, "[1, 2, 3]", core.Render(e))

	e, err = New(WithOuterScope("xs")).Scan(core.ID("i"), core.R("xs")).Yield(core.R("i")).BuildSimplify()
	require.NoError(t, err)
	assert.Equal(t, core.R("xs"), e)
}

func TestBuilder_LogsElisions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	New(WithLogger(logger)).Scan(core.ID("i"), l1).Where(core.Bool(true))

	assert.Contains(t, buf.String(), "step elided")
	assert.Contains(t, buf.String(), "step=where")
}
