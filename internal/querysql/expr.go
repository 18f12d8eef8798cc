package querysql

import (
	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
)

// comparisons map to SQL operators that yield 0 or 1.
var comparisons = map[string]string{
	"=": "=", "<>": "<>", "<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

// scalar lowers an expression that denotes one scalar per row.
func (c *Compiler) scalar(st *state, e core.Expr) (column, error) {
	switch x := e.(type) {
	case core.Literal:
		p, kind, err := param(x.Value)
		if err != nil {
			return column{}, err
		}
		return column{sql: "?", params: []any{p}, kind: kind}, nil

	case core.Ref:
		b, err := c.lookup(st, x.Name)
		if err != nil {
			return column{}, err
		}
		if b.scalar == nil {
			return column{}, unsupported("%q holds a record", x.Name)
		}
		return *b.scalar, nil

	case core.Select:
		return c.selectField(st, x)

	case core.Apply:
		return c.apply(st, x)

	default:
		return column{}, unsupported("expression %s", core.Render(e))
	}
}

func (c *Compiler) selectField(st *state, s core.Select) (column, error) {
	ref, ok := s.Expr.(core.Ref)
	if !ok {
		return column{}, unsupported("field access on %s", core.Render(s.Expr))
	}
	if b, ok := st.binds[ref.Name]; ok {
		for _, f := range b.fields {
			if f.label == s.Field {
				return f.col, nil
			}
		}
		return column{}, unsupported("%q has no field %q", ref.Name, s.Field)
	}
	if v, ok := c.env[ref.Name]; ok {
		rec, ok := v.(ir.IRRecord)
		if !ok {
			return column{}, unsupported("%q is %s, not a record", ref.Name, ir.Kind(v))
		}
		fv, ok := rec.Get(s.Field)
		if !ok {
			return column{}, unsupported("%q has no field %q", ref.Name, s.Field)
		}
		p, kind, err := param(fv)
		if err != nil {
			return column{}, err
		}
		return column{sql: "?", params: []any{p}, kind: kind}, nil
	}
	return column{}, unsupported("%q is not bound", ref.Name)
}

func (c *Compiler) apply(st *state, a core.Apply) (column, error) {
	args := make([]column, len(a.Args))
	for i, arg := range a.Args {
		col, err := c.scalar(st, arg)
		if err != nil {
			return column{}, err
		}
		args[i] = col
	}

	switch len(args) {
	case 1:
		x := args[0]
		switch a.Fn {
		case "not":
			return compose(KindBool, "(NOT ", x, ")"), nil
		case "~":
			return compose(KindInt, "(- ", x, ")"), nil
		case "abs":
			return compose(KindInt, "abs(", x, ")"), nil
		case "size":
			return compose(KindInt, "length(", x, ")"), nil
		}
	case 2:
		l, r := args[0], args[1]
		if op, ok := comparisons[a.Fn]; ok {
			return compose(KindBool, "(", l, " "+op+" ", r, ")"), nil
		}
		switch a.Fn {
		case "+", "-", "*":
			return compose(KindInt, "(", l, " "+a.Fn+" ", r, ")"), nil
		case "mod":
			return floorMod(l, r), nil
		case "div":
			// Exact division once the floored remainder is removed.
			return compose(KindInt, "((", l, " - ", floorMod(l, r), ") / ", r, ")"), nil
		case "^":
			return compose(KindString, "(", l, " || ", r, ")"), nil
		case "andalso":
			return compose(KindBool, "(", l, " AND ", r, ")"), nil
		case "orelse":
			return compose(KindBool, "(", l, " OR ", r, ")"), nil
		}
	}
	return column{}, unsupported("function %s/%d", a.Fn, len(args))
}

// floorMod gives the remainder with the sign of the divisor. SQLite's %
// takes the sign of the dividend.
func floorMod(l, r column) column {
	return compose(KindInt, "(((", l, " % ", r, ") + ", r, ") % ", r, ")")
}

// compose concatenates SQL text and columns, collecting parameters in text
// order.
func compose(kind Kind, parts ...any) column {
	var sb sqlBuilder
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			sb.write(v)
		case column:
			sb.col(v)
		}
	}
	return column{sql: sb.String(), params: sb.params, kind: kind}
}
