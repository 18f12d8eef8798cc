package core

// Step is one stage of a comprehension pipeline.
//
// This is a sealed interface - only types in this package implement it.
//
// Scope effect per variant:
//   - Scan: adds the pattern's bound names
//   - Where, Order, Unorder: unchanged
//   - Group: replaced by key names then aggregate names
//   - Yield: replaced by the names the expression produces
type Step interface {
	stepNode() // Marker method - seals interface to this package
}

// Scan binds Pat to each element of Source.
//
// Join marks the scan as a member of the join group of the immediately
// preceding Scan: the two bindings are independent and semantically
// simultaneous. The first scan of a group has Join == false.
type Scan struct {
	Pat    Pattern
	Source Expr
	Join   bool
}

func (Scan) stepNode() {}

// Where keeps the rows for which Cond is true.
type Where struct {
	Cond Expr
}

func (Where) stepNode() {}

// OrderKey is one sort key. Desc reverses its direction.
type OrderKey struct {
	Expr Expr
	Desc bool
}

// Order sorts the rows by Keys and establishes an ordering guarantee.
type Order struct {
	Keys []OrderKey
}

func (Order) stepNode() {}

// Aggregate computes Fn over the rows of a group and binds it to Name.
// Arg is nil for aggregates that take no argument (count).
type Aggregate struct {
	Name string
	Fn   string
	Arg  Expr
}

// Group partitions rows by Keys and computes Aggs per partition. Downstream
// steps see only the key and aggregate names.
type Group struct {
	Keys []Field
	Aggs []Aggregate
}

func (Group) stepNode() {}

// Yield re-projects the current row. A record expression binds each of its
// fields; a bare Ref binds that one name; anything else is an atom and must
// be the last step.
type Yield struct {
	Expr Expr
}

func (Yield) stepNode() {}

// Unorder clears any ordering guarantee.
type Unorder struct{}

func (Unorder) stepNode() {}

// Asc returns an ascending order key.
func Asc(e Expr) OrderKey { return OrderKey{Expr: e} }

// Desc returns a descending order key.
func Desc(e Expr) OrderKey { return OrderKey{Expr: e, Desc: true} }

// Agg is a shorthand for Aggregate.
func Agg(name, fn string, arg Expr) Aggregate {
	return Aggregate{Name: name, Fn: fn, Arg: arg}
}

// StepKind returns the lower-case keyword of the step, for diagnostics.
func StepKind(s Step) string {
	switch s.(type) {
	case Scan:
		return "scan"
	case Where:
		return "where"
	case Order:
		return "order"
	case Group:
		return "group"
	case Yield:
		return "yield"
	case Unorder:
		return "unorder"
	default:
		panic(unknownNode("step", s))
	}
}

// InJoinGroup reports whether steps[k] is a Scan that shares a join group
// with another Scan: it is joined to its predecessor, or its successor is
// joined to it.
func InJoinGroup(steps []Step, k int) bool {
	sc, ok := steps[k].(Scan)
	if !ok {
		return false
	}
	if sc.Join {
		return true
	}
	if k+1 < len(steps) {
		next, ok := steps[k+1].(Scan)
		return ok && next.Join
	}
	return false
}
