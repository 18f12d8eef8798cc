package script

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/relcomp/internal/builder"
	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
)

func replayed(t *testing.T, s *Script) string {
	t.Helper()
	b, err := Replay(s)
	require.NoError(t, err)
	c, err := b.Build()
	require.NoError(t, err)
	return c.String()
}

func TestParse_YAMLAndCUEAgree(t *testing.T) {
	yamlSrc := `
name: filter
scope: [limit]
steps:
  - scan: i
    in: [1, 2, 3]
  - where: {">": [i, limit]}
  - order: [{expr: i, desc: true}]
  - yield: {record: {k: i, s: {str: "x"}, u: null}}
`
	cueSrc := `
name: "filter"
scope: ["limit"]
steps: [
	{scan: "i", "in": [1, 2, 3]},
	{where: {">": ["i", "limit"]}},
	{order: [{expr: "i", desc: true}]},
	{yield: {record: {k: "i", s: {str: "x"}, u: null}}},
]
`
	fromYAML, err := Parse([]byte(yamlSrc), FormatYAML, "filter.yaml")
	require.NoError(t, err)
	fromCUE, err := Parse([]byte(cueSrc), FormatCUE, "filter.cue")
	require.NoError(t, err)

	want := `from i in [1, 2, 3] where i > limit order i desc yield {k = i, s = "x", u = ()}`
	assert.Equal(t, want, replayed(t, fromYAML))
	assert.Equal(t, want, replayed(t, fromCUE))
	assert.Equal(t, []string{"limit"}, fromCUE.OuterScope())
}

func TestReplay_Forms(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "tuple and wildcard patterns",
			src: `
name: t
steps:
  - scan: [a, _]
    in: [{tuple: [1, {str: x}]}]
`,
			want: `from (a, _) in [(1, "x")]`,
		},
		{
			name: "one-element tuple",
			src: `
name: t
steps:
  - scan: i
    in: [1]
  - yield: {tuple: [i]}
`,
			want: "from i in [1] yield (i,)",
		},
		{
			name: "apply, select and functions",
			src: `
name: t
env: {r: {x: 1}}
steps:
  - scan: i
    in: [1]
  - yield: {apply: abs, args: [{"-": [{select: r, field: x}, i]}]}
`,
			want: "from i in [1] yield abs(r.x - i)",
		},
		{
			name: "keyless group",
			src: `
name: t
steps:
  - scan: i
    in: [1, 2]
  - compute: {n: count, hi: {max: i}}
`,
			want: "from i in [1, 2] group compute n = count, hi = max of i",
		},
		{
			name: "correlated nested query",
			src: `
name: t
steps:
  - scan: i
    in: [1, 2]
  - where:
      member:
        - i
        - from:
            - scan: k
              in: [2]
            - where: {"=": [k, i]}
`,
			want: "from i in [1, 2] where member(i, (from k in [2] where k = i))",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.src), FormatYAML, "t.yaml")
			require.NoError(t, err)
			assert.Equal(t, tt.want, replayed(t, s))
		})
	}
}

func TestReplay_ScopeErrorsStayInBuilder(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "collision.yaml"))
	require.NoError(t, err)

	b, err := Replay(s)
	require.NoError(t, err)
	_, err = b.Build()
	require.Error(t, err)
	assert.Equal(t, builder.ErrCodeScopeCollision, builder.Code(err))
	assert.Equal(t, "SCOPE_COLLISION", s.Expect.Error)
}

func TestReplay_NestedErrorIsReturned(t *testing.T) {
	src := `
name: t
steps:
  - scan: i
    in: {from: [{where: {">": [zz, 1]}}]}
`
	s, err := Parse([]byte(src), FormatYAML, "t.yaml")
	require.NoError(t, err)

	_, err = Replay(s)
	require.Error(t, err)
	assert.True(t, builder.IsScopeError(err))
}

func TestLoadDir(t *testing.T) {
	scripts, err := LoadDir("testdata")
	require.NoError(t, err)

	var names []string
	for _, s := range scripts {
		names = append(names, s.Name)
	}
	// Sorted by path, not by name.
	assert.Equal(t, []string{
		"scope-collision",
		"record-destructuring",
		"empty-source",
		"nested-renaming",
		"dept-totals",
		"trivial-collapse",
		"order-then-unorder",
	}, names)
}

func TestLoad_Fixtures(t *testing.T) {
	scripts, err := LoadDir("testdata")
	require.NoError(t, err)

	for _, s := range scripts {
		t.Run(s.Name, func(t *testing.T) {
			b, err := Replay(s)
			require.NoError(t, err)
			c, err := b.Build()
			if s.Expect.Error != "" {
				require.Error(t, err)
				assert.Equal(t, s.Expect.Error, string(builder.Code(err)))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, s.Expect.Build, c.String())
		})
	}
}

func TestLoad_Env(t *testing.T) {
	s, err := Load(filepath.Join("testdata", "totals.yaml"))
	require.NoError(t, err)

	require.Len(t, s.Env, 1)
	emps := s.EnvMap()["emps"].(ir.IRList)
	require.Len(t, emps, 3)
	assert.Equal(t, `{name = "ann", dept = 10, sal = 100}`, emps[0].String(), "record fields keep file order")
	assert.Equal(t, []string{"emps"}, s.OuterScope())
	assert.Equal(t, filepath.Join("testdata", "totals.yaml"), s.Path)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name   string
		src    string
		format Format
		msg    string
	}{
		{"missing name", "steps: []", FormatYAML, "script name is required"},
		{"unknown field", "name: t\nsteps: []\nbogus: 1", FormatYAML, "unknown script field"},
		{"float value", "name: t\nenv: {x: 1.5}", FormatYAML, "floats are not supported"},
		{"duplicate key", "name: t\nname: u", FormatYAML, "duplicate key"},
		{"not a map", "- 1", FormatYAML, "script must be a map"},
		{"unknown expectation", "name: t\nexpect: {bogus: x}", FormatYAML, "unknown expectation"},
		{"incomplete cue", "name: string", FormatCUE, "must be concrete"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), tt.format, "t")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestReplay_MalformedSteps(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"unknown step", "name: t\nsteps: [{jump: 1}]", `unknown step "jump"`},
		{"scan without source", "name: t\nsteps: [{scan: i}]", `scan needs "in"`},
		{"stray key", "name: t\nsteps: [{where: true, yield: 1}]", `unexpected key "yield"`},
		{"empty form", "name: t\nsteps: [{yield: {}}]", "empty expression map"},
		{"reserved key as function", "name: t\nsteps: [{yield: {field: [1]}}]", `unknown expression form "field"`},
		{"empty tuple", "name: t\nsteps: [{yield: {tuple: []}}]", "tuple needs at least one element"},
		{"bad pattern", "name: t\nsteps: [{scan: 1, in: [1]}]", "pattern must be"},
		{"bad desc", "name: t\nsteps: [{scan: i, in: [1]}, {order: [{expr: i, desc: 1}]}]", "want bool"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte(tt.src), FormatYAML, "t.yaml")
			require.NoError(t, err)
			_, err = Replay(s)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			var pe *ParseError
			assert.ErrorAs(t, err, &pe)
			assert.Contains(t, pe.Pos, "t.yaml:2:")
		})
	}
}

func TestPattern(t *testing.T) {
	n := Node{Kind: MapNode, Fields: []NodeField{{Key: "record", Value: Node{Kind: MapNode, Fields: []NodeField{
		{Key: "a", Value: Node{Kind: StringNode, Str: "x"}},
		{Key: "b", Value: Node{Kind: StringNode, Str: "_"}},
	}}}}}

	p, err := Pattern(n, "p")
	require.NoError(t, err)
	assert.Equal(t, "{a = x, b = _}", core.RenderPattern(p))
}

func TestFormatOf(t *testing.T) {
	f, ok := FormatOf("x/y.YML")
	assert.True(t, ok)
	assert.Equal(t, FormatYAML, f)

	f, ok = FormatOf("a.cue")
	assert.True(t, ok)
	assert.Equal(t, FormatCUE, f)

	_, ok = FormatOf("a.json")
	assert.False(t, ok)
}
