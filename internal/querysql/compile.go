// Package querysql lowers comprehensions to parameterized SQLite SQL.
//
// The lowering covers the fragment that maps onto a single SELECT over
// subqueries:
//   - sources: list literals of scalars or flat records, environment lists,
//     and nested comprehensions (uncorrelated)
//   - patterns: names, wildcards, and record patterns of names
//   - Where, Order, Unorder, Group (count, sum, min, max), and Yield
//
// Anything else fails with an error wrapping ErrUnsupported. Scans become
// cross joins of subqueries, Yield re-maps names to column expressions over
// the same rows, and Group wraps everything so far into a grouped subquery.
//
// CRITICAL: Values are parameterized, never interpolated.
package querysql

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/simplify"
)

// ErrUnsupported marks comprehensions outside the SQL fragment.
var ErrUnsupported = errors.New("querysql: unsupported")

func unsupported(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrUnsupported, fmt.Sprintf(format, args...))
}

// Kind is the SQL-side type of a column, used to decode results.
type Kind int

const (
	KindUnknown Kind = iota
	KindInt
	KindString
	KindBool
	KindUnit
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Column describes one output column of a compiled query.
type Column struct {
	Name string
	Kind Kind
}

// Query is a compiled comprehension.
type Query struct {
	SQL    string
	Params []any

	// Columns lists the output columns in order. When Record is false there
	// is exactly one column and each row is a scalar element; otherwise each
	// row is a record with one field per column.
	Columns []Column
	Record  bool
}

// Compiler lowers comprehensions. Env supplies values for names bound
// outside the comprehension; they become parameters or VALUES tables.
type Compiler struct {
	env   map[string]ir.IRValue
	alias int
}

// NewCompiler creates a Compiler over env.
func NewCompiler(env map[string]ir.IRValue) *Compiler {
	return &Compiler{env: env}
}

// Compile lowers c to a single SELECT statement.
//
// The empty comprehension, and one whose join group scans an empty source,
// lower to a single unit row. Scans over empty sources add no relation.
func (c *Compiler) Compile(comp *core.Comprehension) (*Query, error) {
	if comp == nil || comp.IsEmpty() || hasEmptyJoin(comp.Steps()) {
		return unitQuery(), nil
	}
	st := &state{binds: map[string]binding{}}
	for i, s := range comp.Steps() {
		if err := c.step(st, s); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, core.StepKind(s), err)
		}
	}
	return st.finish()
}

func unitQuery() *Query {
	return &Query{SQL: `SELECT NULL AS "v"`, Columns: []Column{{Name: "v", Kind: KindUnit}}}
}

func hasEmptyJoin(steps []core.Step) bool {
	for k, st := range steps {
		if sc, ok := st.(core.Scan); ok && core.InJoinGroup(steps, k) && simplify.DenotesEmpty(sc.Source) {
			return true
		}
	}
	return false
}

// column is a scalar SQL expression with its parameters in text order.
type column struct {
	sql    string
	params []any
	kind   Kind
}

type fieldColumn struct {
	label string
	col   column
}

// binding is what a name denotes: a scalar column or a flat record of
// columns.
type binding struct {
	scalar *column
	fields []fieldColumn
}

func scalarBinding(col column) binding {
	return binding{scalar: &col}
}

type state struct {
	from   []column
	where  []column
	order  []column
	names  []string
	binds  map[string]binding
	atom   *column
}

func (c *Compiler) nextAlias() string {
	a := fmt.Sprintf("t%d", c.alias)
	c.alias++
	return a
}

func (c *Compiler) step(st *state, s core.Step) error {
	switch x := s.(type) {
	case core.Scan:
		return c.scan(st, x)
	case core.Where:
		cond, err := c.scalar(st, x.Cond)
		if err != nil {
			return err
		}
		st.where = append(st.where, cond)
		return nil
	case core.Order:
		keys := make([]column, 0, len(x.Keys)+len(st.order))
		for _, k := range x.Keys {
			col, err := c.scalar(st, k.Expr)
			if err != nil {
				return err
			}
			col.sql += " COLLATE BINARY"
			if k.Desc {
				col.sql += " DESC"
			}
			keys = append(keys, col)
		}
		// A later Order is a stable sort over the earlier one.
		st.order = append(keys, st.order...)
		return nil
	case core.Unorder:
		st.order = nil
		return nil
	case core.Group:
		return c.group(st, x)
	case core.Yield:
		return c.yield(st, x)
	default:
		return unsupported("step %T", s)
	}
}

func (c *Compiler) scan(st *state, s core.Scan) error {
	if simplify.DenotesEmpty(s.Source) {
		return nil
	}
	for _, n := range core.FreeNames(s.Source) {
		if slices.Contains(st.names, n) {
			return unsupported("correlated source references %q", n)
		}
	}
	rel, err := c.relation(s.Source)
	if err != nil {
		return err
	}
	alias := c.nextAlias()
	st.from = append(st.from, column{sql: "(" + rel.SQL + ") AS " + alias, params: rel.Params})

	ref := func(col Column) column {
		return column{sql: alias + "." + quoteIdent(col.Name), kind: col.Kind}
	}

	switch p := s.Pat.(type) {
	case core.IDPat:
		st.bind(p.Name, shapeBinding(rel, ref))
	case core.WildcardPat:
	case core.RecordPat:
		if !rel.Record {
			return unsupported("record pattern over scalar elements")
		}
		for _, f := range p.Fields {
			idx := slices.IndexFunc(rel.Columns, func(col Column) bool { return col.Name == f.Label })
			if idx < 0 {
				return unsupported("source has no field %q", f.Label)
			}
			switch sub := f.Pat.(type) {
			case core.IDPat:
				st.bind(sub.Name, scalarBinding(ref(rel.Columns[idx])))
			case core.WildcardPat:
			default:
				return unsupported("nested pattern %s", core.RenderPattern(f.Pat))
			}
		}
	default:
		return unsupported("pattern %s", core.RenderPattern(s.Pat))
	}
	return nil
}

func shapeBinding(q *Query, ref func(Column) column) binding {
	if !q.Record {
		return scalarBinding(ref(q.Columns[0]))
	}
	b := binding{}
	for _, col := range q.Columns {
		b.fields = append(b.fields, fieldColumn{label: col.Name, col: ref(col)})
	}
	return b
}

func (st *state) bind(name string, b binding) {
	st.names = append(st.names, name)
	st.binds[name] = b
}

// relation lowers a scan source to a subquery.
func (c *Compiler) relation(src core.Expr) (*Query, error) {
	switch s := src.(type) {
	case core.Query:
		return c.Compile(s.Comp)
	case core.List:
		vals := make(ir.IRList, len(s.Elems))
		for i, e := range s.Elems {
			v, ok := literalValue(e)
			if !ok {
				return nil, unsupported("non-literal list element %s", core.Render(e))
			}
			vals[i] = v
		}
		return valuesRelation(vals)
	case core.Ref:
		v, ok := c.env[s.Name]
		if !ok {
			return nil, unsupported("source %q has no value", s.Name)
		}
		list, ok := v.(ir.IRList)
		if !ok {
			return nil, unsupported("source %q is %s, not a list", s.Name, ir.Kind(v))
		}
		return valuesRelation(list)
	default:
		return nil, unsupported("source %s", core.Render(src))
	}
}

// literalValue folds a literal, or a record of literals, to a value.
func literalValue(e core.Expr) (ir.IRValue, bool) {
	switch x := e.(type) {
	case core.Literal:
		return x.Value, x.Value != nil
	case core.Record:
		rec := make(ir.IRRecord, len(x.Fields))
		for i, f := range x.Fields {
			v, ok := literalValue(f.Expr)
			if !ok {
				return nil, false
			}
			rec[i] = ir.F(f.Name, v)
		}
		return rec, true
	default:
		return nil, false
	}
}

// valuesRelation builds a VALUES subquery. Elements must be all scalars of
// one kind, or all flat records with the same labels.
func valuesRelation(vals ir.IRList) (*Query, error) {
	if len(vals) == 0 {
		return &Query{SQL: `SELECT NULL AS "v" LIMIT 0`, Columns: []Column{{Name: "v"}}}, nil
	}

	var cols []Column
	rec, isRecord := vals[0].(ir.IRRecord)
	if isRecord {
		for _, f := range rec {
			cols = append(cols, Column{Name: f.Name})
		}
	} else {
		cols = []Column{{Name: "v"}}
	}

	var params []any
	rows := make([]string, len(vals))
	for i, v := range vals {
		var cells []ir.IRValue
		if isRecord {
			r, ok := v.(ir.IRRecord)
			if !ok || len(r) != len(cols) {
				return nil, unsupported("heterogeneous list elements")
			}
			for _, col := range cols {
				fv, ok := r.Get(col.Name)
				if !ok {
					return nil, unsupported("record element lacks field %q", col.Name)
				}
				cells = append(cells, fv)
			}
		} else {
			cells = []ir.IRValue{v}
		}
		for j, cell := range cells {
			p, kind, err := param(cell)
			if err != nil {
				return nil, err
			}
			switch {
			case cols[j].Kind == KindUnknown:
				cols[j].Kind = kind
			case cols[j].Kind != kind:
				return nil, unsupported("column %q mixes %s and %s", cols[j].Name, cols[j].Kind, kind)
			}
			params = append(params, p)
		}
		rows[i] = "(" + strings.TrimSuffix(strings.Repeat("?, ", len(cells)), ", ") + ")"
	}

	selects := make([]string, len(cols))
	for j, col := range cols {
		selects[j] = fmt.Sprintf("column%d AS %s", j+1, quoteIdent(col.Name))
	}
	return &Query{
		SQL:     fmt.Sprintf("SELECT %s FROM (VALUES %s)", strings.Join(selects, ", "), strings.Join(rows, ", ")),
		Params:  params,
		Columns: cols,
		Record:  isRecord,
	}, nil
}

// param converts a scalar value to a SQL parameter.
func param(v ir.IRValue) (any, Kind, error) {
	switch val := v.(type) {
	case ir.IRInt:
		return int64(val), KindInt, nil
	case ir.IRString:
		return string(val), KindString, nil
	case ir.IRBool:
		return bool(val), KindBool, nil
	default:
		return nil, KindUnknown, unsupported("%s cannot be a SQL parameter", ir.Kind(v))
	}
}

func (c *Compiler) group(st *state, g core.Group) error {
	var selects, keys []column
	var cols []Column
	for _, k := range g.Keys {
		col, err := c.scalar(st, k.Expr)
		if err != nil {
			return err
		}
		keys = append(keys, col)
		selects = append(selects, column{sql: col.sql + " AS " + quoteIdent(k.Name), params: col.params, kind: col.kind})
		cols = append(cols, Column{Name: k.Name, Kind: col.kind})
	}
	for _, a := range g.Aggs {
		col, err := c.aggregate(st, a)
		if err != nil {
			return err
		}
		selects = append(selects, column{sql: col.sql + " AS " + quoteIdent(a.Name), params: col.params})
		cols = append(cols, Column{Name: a.Name, Kind: col.kind})
	}
	if len(selects) == 0 {
		return unsupported("group with no keys and no aggregates")
	}

	var sb sqlBuilder
	sb.write("SELECT ")
	sb.list(selects, ", ")
	st.writeFromWhere(&sb)
	if len(keys) > 0 {
		sb.write(" GROUP BY ")
		sb.list(keys, ", ")
	} else {
		// An aggregate without GROUP BY yields one row even for no input.
		sb.write(" HAVING COUNT(*) > 0")
	}

	alias := c.nextAlias()
	*st = state{
		from:  []column{{sql: "(" + sb.String() + ") AS " + alias, params: sb.params}},
		binds: map[string]binding{},
	}
	for _, col := range cols {
		st.bind(col.Name, scalarBinding(column{sql: alias + "." + quoteIdent(col.Name), kind: col.Kind}))
	}
	return nil
}

func (c *Compiler) aggregate(st *state, a core.Aggregate) (column, error) {
	if a.Arg == nil {
		if a.Fn != "count" {
			return column{}, unsupported("aggregate %s without argument", a.Fn)
		}
		return column{sql: "COUNT(*)", kind: KindInt}, nil
	}
	arg, err := c.scalar(st, a.Arg)
	if err != nil {
		return column{}, err
	}
	switch a.Fn {
	case "count":
		return column{sql: "COUNT(*)", kind: KindInt}, nil
	case "sum":
		return column{sql: "SUM(" + arg.sql + ")", params: arg.params, kind: KindInt}, nil
	case "min":
		return column{sql: "MIN(" + arg.sql + ")", params: arg.params, kind: arg.kind}, nil
	case "max":
		return column{sql: "MAX(" + arg.sql + ")", params: arg.params, kind: arg.kind}, nil
	default:
		return column{}, unsupported("aggregate %s", a.Fn)
	}
}

// yield re-maps names to expressions over the current rows. Rows are not
// multiplied or dropped, so no subquery is needed.
func (c *Compiler) yield(st *state, y core.Yield) error {
	switch e := y.Expr.(type) {
	case core.Ref:
		b, err := c.lookup(st, e.Name)
		if err != nil {
			return err
		}
		st.names = nil
		st.binds = map[string]binding{}
		st.bind(e.Name, b)
	case core.Record:
		next := make([]binding, len(e.Fields))
		for i, f := range e.Fields {
			if ref, ok := f.Expr.(core.Ref); ok {
				b, err := c.lookup(st, ref.Name)
				if err != nil {
					return err
				}
				next[i] = b
				continue
			}
			col, err := c.scalar(st, f.Expr)
			if err != nil {
				return err
			}
			next[i] = scalarBinding(col)
		}
		st.names = nil
		st.binds = map[string]binding{}
		for i, f := range e.Fields {
			st.bind(f.Name, next[i])
		}
	default:
		col, err := c.scalar(st, y.Expr)
		if err != nil {
			return err
		}
		st.atom = &col
	}
	return nil
}

func (c *Compiler) lookup(st *state, name string) (binding, error) {
	if b, ok := st.binds[name]; ok {
		return b, nil
	}
	if v, ok := c.env[name]; ok {
		p, kind, err := param(v)
		if err != nil {
			return binding{}, err
		}
		return scalarBinding(column{sql: "?", params: []any{p}, kind: kind}), nil
	}
	return binding{}, fmt.Errorf("querysql: %q is not bound", name)
}

// finish assembles the outermost SELECT.
func (st *state) finish() (*Query, error) {
	var selects []column
	q := &Query{}

	switch {
	case st.atom != nil:
		selects = []column{{sql: st.atom.sql + ` AS "v"`, params: st.atom.params}}
		q.Columns = []Column{{Name: "v", Kind: st.atom.kind}}
	case len(st.names) == 1 && st.binds[st.names[0]].scalar != nil:
		col := st.binds[st.names[0]].scalar
		selects = []column{{sql: col.sql + ` AS "v"`, params: col.params}}
		q.Columns = []Column{{Name: "v", Kind: col.kind}}
	case len(st.names) == 1:
		q.Record = true
		for _, f := range st.binds[st.names[0]].fields {
			selects = append(selects, column{sql: f.col.sql + " AS " + quoteIdent(f.label), params: f.col.params})
			q.Columns = append(q.Columns, Column{Name: f.label, Kind: f.col.kind})
		}
	case len(st.names) > 1:
		q.Record = true
		for _, n := range st.names {
			b := st.binds[n]
			if b.scalar == nil {
				return nil, unsupported("record-valued field %q in a record element", n)
			}
			selects = append(selects, column{sql: b.scalar.sql + " AS " + quoteIdent(n), params: b.scalar.params})
			q.Columns = append(q.Columns, Column{Name: n, Kind: b.scalar.kind})
		}
	default:
		selects = []column{{sql: `NULL AS "v"`}}
		q.Columns = []Column{{Name: "v", Kind: KindUnit}}
	}
	if len(selects) == 0 {
		return nil, unsupported("empty record elements")
	}

	var sb sqlBuilder
	sb.write("SELECT ")
	sb.list(selects, ", ")
	st.writeFromWhere(&sb)
	if len(st.order) > 0 {
		sb.write(" ORDER BY ")
		sb.list(st.order, ", ")
	}
	q.SQL = sb.String()
	q.Params = sb.params
	return q, nil
}

func (st *state) writeFromWhere(sb *sqlBuilder) {
	if len(st.from) > 0 {
		sb.write(" FROM ")
		sb.list(st.from, " CROSS JOIN ")
	}
	if len(st.where) > 0 {
		sb.write(" WHERE ")
		sb.list(st.where, " AND ")
	}
}

// sqlBuilder accumulates SQL text and its parameters in text order.
type sqlBuilder struct {
	strings.Builder
	params []any
}

func (b *sqlBuilder) write(s string) {
	b.WriteString(s)
}

func (b *sqlBuilder) col(c column) {
	b.WriteString(c.sql)
	b.params = append(b.params, c.params...)
}

func (b *sqlBuilder) list(cols []column, sep string) {
	for i, c := range cols {
		if i > 0 {
			b.WriteString(sep)
		}
		b.col(c)
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
