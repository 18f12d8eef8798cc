package core

import (
	"strings"
)

// Render returns the canonical textual form of e.
//
// A top-level Query renders without parentheses ("from i in [1, 2]"); a
// Query nested anywhere else renders parenthesised. The rendering is a
// faithful serialization of the tree: two expressions are structurally equal
// exactly when their renderings are equal.
func Render(e Expr) string {
	if q, ok := e.(Query); ok {
		return renderComprehension(q.Comp)
	}
	var p printer
	p.expr(e)
	return p.String()
}

// RenderPattern returns the canonical textual form of p.
func RenderPattern(p Pattern) string {
	var pr printer
	pr.pattern(p)
	return pr.String()
}

// RenderStep returns the canonical textual form of a single step, as it
// appears inside a comprehension, without the leading space. first reports
// whether s is the first step (which changes how a Scan renders).
func RenderStep(s Step, first bool) string {
	var p printer
	p.step(s, first)
	return strings.TrimPrefix(p.String(), " ")
}

func renderComprehension(c *Comprehension) string {
	var p printer
	p.comprehension(c)
	return p.String()
}

type printer struct {
	strings.Builder
}

func (p *printer) comprehension(c *Comprehension) {
	p.WriteString("from")
	if c == nil {
		return
	}
	for i, s := range c.steps {
		p.step(s, i == 0)
	}
}

func (p *printer) step(s Step, first bool) {
	switch st := s.(type) {
	case Scan:
		switch {
		case first:
			p.WriteString(" ")
		case st.Join:
			p.WriteString(" join ")
		default:
			p.WriteString(", ")
		}
		p.pattern(st.Pat)
		p.WriteString(" in ")
		p.operand(st.Source)
	case Where:
		p.WriteString(" where ")
		p.expr(st.Cond)
	case Order:
		p.WriteString(" order")
		for i, k := range st.Keys {
			if i > 0 {
				p.WriteString(",")
			}
			p.WriteString(" ")
			p.expr(k.Expr)
			if k.Desc {
				p.WriteString(" desc")
			}
		}
	case Group:
		p.WriteString(" group")
		for i, k := range st.Keys {
			if i > 0 {
				p.WriteString(",")
			}
			p.WriteString(" ")
			p.WriteString(k.Name)
			if ref, ok := k.Expr.(Ref); !ok || ref.Name != k.Name {
				p.WriteString(" = ")
				p.expr(k.Expr)
			}
		}
		if len(st.Aggs) > 0 {
			p.WriteString(" compute")
			for i, a := range st.Aggs {
				if i > 0 {
					p.WriteString(",")
				}
				p.WriteString(" ")
				p.WriteString(a.Name)
				p.WriteString(" = ")
				p.WriteString(a.Fn)
				if a.Arg != nil {
					p.WriteString(" of ")
					p.operand(a.Arg)
				}
			}
		}
	case Yield:
		p.WriteString(" yield ")
		p.expr(st.Expr)
	case Unorder:
		p.WriteString(" unorder")
	default:
		panic(unknownNode("step", s))
	}
}

// operand renders e, parenthesising infix applications so that the result
// can sit next to an operator or keyword without ambiguity.
func (p *printer) operand(e Expr) {
	if a, ok := e.(Apply); ok && IsInfix(a.Fn) && len(a.Args) == 2 {
		p.WriteString("(")
		p.expr(e)
		p.WriteString(")")
		return
	}
	p.expr(e)
}

func (p *printer) expr(e Expr) {
	switch ex := e.(type) {
	case Literal:
		if ex.Value == nil {
			p.WriteString("<nil>")
			return
		}
		p.WriteString(ex.Value.String())
	case Ref:
		p.WriteString(ex.Name)
	case Record:
		p.WriteString("{")
		for i, f := range ex.Fields {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteString(f.Name)
			p.WriteString(" = ")
			p.expr(f.Expr)
		}
		p.WriteString("}")
	case Tuple:
		// A one-element tuple keeps a trailing comma so that it never reads
		// as a parenthesised operand.
		p.WriteString("(")
		p.exprList(ex.Elems)
		if len(ex.Elems) == 1 {
			p.WriteString(",")
		}
		p.WriteString(")")
	case List:
		p.WriteString("[")
		p.exprList(ex.Elems)
		p.WriteString("]")
	case Apply:
		p.apply(ex)
	case Select:
		p.operand(ex.Expr)
		p.WriteString(".")
		p.WriteString(ex.Field)
	case Query:
		p.WriteString("(")
		p.comprehension(ex.Comp)
		p.WriteString(")")
	default:
		panic(unknownNode("expr", e))
	}
}

func (p *printer) apply(a Apply) {
	switch {
	case IsInfix(a.Fn) && len(a.Args) == 2:
		p.operand(a.Args[0])
		p.WriteString(" ")
		p.WriteString(a.Fn)
		p.WriteString(" ")
		p.operand(a.Args[1])
	case a.Fn == "not" && len(a.Args) == 1:
		p.WriteString("not ")
		p.operand(a.Args[0])
	case a.Fn == "~" && len(a.Args) == 1:
		p.WriteString("~")
		p.operand(a.Args[0])
	default:
		p.WriteString(a.Fn)
		p.WriteString("(")
		p.exprList(a.Args)
		p.WriteString(")")
	}
}

func (p *printer) exprList(es []Expr) {
	for i, e := range es {
		if i > 0 {
			p.WriteString(", ")
		}
		p.expr(e)
	}
}

func (p *printer) pattern(pat Pattern) {
	switch pt := pat.(type) {
	case IDPat:
		p.WriteString(pt.Name)
	case WildcardPat:
		p.WriteString("_")
	case RecordPat:
		p.WriteString("{")
		for i, f := range pt.Fields {
			if i > 0 {
				p.WriteString(", ")
			}
			p.WriteString(f.Label)
			p.WriteString(" = ")
			p.pattern(f.Pat)
		}
		p.WriteString("}")
	case TuplePat:
		p.WriteString("(")
		for i, e := range pt.Elems {
			if i > 0 {
				p.WriteString(", ")
			}
			p.pattern(e)
		}
		if len(pt.Elems) == 1 {
			p.WriteString(",")
		}
		p.WriteString(")")
	default:
		panic(unknownNode("pattern", pat))
	}
}
