// Package core defines the comprehension intermediate representation.
//
// A comprehension is the query-plan IR node for expressions of the shape
//
//	from <bindings> where <predicate> order <keys> group <keys> yield <projection>
//
// It is an ordered list of steps evaluated from an implicit empty scope. Each
// step either extends the scope (Scan), leaves it unchanged (Where, Order,
// Unorder) or replaces it (Group, Yield).
//
// SEALED INTERFACES:
//
// Expr, Pattern and Step are sealed interfaces using the marker method
// pattern. Only types in this package implement them, which keeps every type
// switch over them exhaustive:
//
//	switch s := step.(type) {
//	case Scan:
//	case Where:
//	case Order:
//	case Group:
//	case Yield:
//	case Unorder:
//	default:
//	    // Impossible - unknownNode panics with an internal error
//	}
//
// Adding a variant means revisiting every switch: the builder's local
// elisions, the simplifier's rewrite rules, the printer, the encoder, the
// evaluator and the SQL lowering.
//
// IMMUTABILITY:
//
// A *Comprehension keeps its steps unexported and hands out copies. Values
// produced by the builder are frozen and may be shared by any number of
// readers, including as the source of a Scan in an enclosing comprehension.
// Construction is bottom-up so no cycles can form.
//
// CANONICAL RENDERING:
//
// Render produces the stable textual form used for logs, golden files and
// structural equality:
//
//	from j in [1, 2] join i in [3, 4] where i < 2 yield {i = i, j = j}
//
// A Scan joined to its predecessor renders as "join", any other later Scan
// as ", p in e". Nested comprehensions render in parentheses; the empty
// comprehension renders as "from".
package core
