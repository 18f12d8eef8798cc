package core

import (
	"fmt"

	"github.com/roach88/relcomp/internal/ir"
)

// Expr is an immutable, side-effect-free expression tree.
//
// This is a sealed interface - only types in this package implement it.
//
// Expr types:
//   - Literal: a scalar constant (unit, bool, int, string)
//   - Ref: a reference to a name bound by a pattern
//   - Record: ordered field-name to expression pairs
//   - Tuple, List: positional construction
//   - Apply: operator or function application
//   - Select: record field access
//   - Query: a comprehension used as a value
type Expr interface {
	exprNode() // Marker method - seals interface to this package
}

// Literal is a scalar constant.
type Literal struct {
	Value ir.IRValue
}

func (Literal) exprNode() {}

// Ref refers to a pattern binding introduced earlier in the same
// comprehension or in an enclosing scope.
type Ref struct {
	Name string
}

func (Ref) exprNode() {}

// Field is one named component of a Record expression, a Group key, or a
// renaming entry.
type Field struct {
	Name string
	Expr Expr
}

// Record constructs a record. Field names are unique and ordered.
type Record struct {
	Fields []Field
}

func (Record) exprNode() {}

// Tuple constructs a tuple.
type Tuple struct {
	Elems []Expr
}

func (Tuple) exprNode() {}

// List constructs a list. Lists are the usual Scan source.
type List struct {
	Elems []Expr
}

func (List) exprNode() {}

// Apply applies an operator or a named function to arguments.
// Infix operators (see IsInfix) always carry exactly two arguments.
type Apply struct {
	Fn   string
	Args []Expr
}

func (Apply) exprNode() {}

// Select reads field Field of the record produced by Expr.
type Select struct {
	Expr  Expr
	Field string
}

func (Select) exprNode() {}

// Query embeds a frozen comprehension as a value (a sub-query).
type Query struct {
	Comp *Comprehension
}

func (Query) exprNode() {}

// infixOps are the operators rendered between their two operands.
var infixOps = map[string]bool{
	"+": true, "-": true, "*": true, "div": true, "mod": true, "^": true,
	"=": true, "<>": true, "<": true, "<=": true, ">": true, ">=": true,
	"andalso": true, "orelse": true,
}

// IsInfix reports whether fn is rendered as an infix operator.
func IsInfix(fn string) bool {
	return infixOps[fn]
}

// Int returns an integer literal.
func Int(n int64) Literal { return Literal{Value: ir.IRInt(n)} }

// Str returns a string literal.
func Str(s string) Literal { return Literal{Value: ir.IRString(s)} }

// Bool returns a boolean literal.
func Bool(b bool) Literal { return Literal{Value: ir.IRBool(b)} }

// Unit returns the unit literal "()".
func Unit() Literal { return Literal{Value: ir.IRUnit{}} }

// R returns a reference to name.
func R(name string) Ref { return Ref{Name: name} }

// Fld is a shorthand for Field.
func Fld(name string, e Expr) Field { return Field{Name: name, Expr: e} }

// Rec returns a record expression with the given fields in order.
func Rec(fields ...Field) Record { return Record{Fields: fields} }

// Ints returns a list literal of integers.
func Ints(ns ...int64) List {
	elems := make([]Expr, len(ns))
	for i, n := range ns {
		elems[i] = Int(n)
	}
	return List{Elems: elems}
}

// Call applies fn to args.
func Call(fn string, args ...Expr) Apply { return Apply{Fn: fn, Args: args} }

// Bin applies an infix operator.
func Bin(op string, l, r Expr) Apply { return Apply{Fn: op, Args: []Expr{l, r}} }

// Q wraps a comprehension as an expression.
func Q(c *Comprehension) Query { return Query{Comp: c} }

// IsTrueLiteral reports whether e is the literal true.
func IsTrueLiteral(e Expr) bool {
	lit, ok := e.(Literal)
	if !ok {
		return false
	}
	b, ok := lit.Value.(ir.IRBool)
	return ok && bool(b)
}

// AsQuery returns the comprehension held by e when e is a Query.
func AsQuery(e Expr) (*Comprehension, bool) {
	q, ok := e.(Query)
	if !ok || q.Comp == nil {
		return nil, false
	}
	return q.Comp, true
}

// unknownNode reports a node that escaped the sealed interfaces. It can only
// happen through a nil interface value; it is a programming error.
func unknownNode(kind string, v any) string {
	return fmt.Sprintf("core: unknown %s node %T", kind, v)
}
