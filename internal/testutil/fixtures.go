package testutil

import (
	"slices"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/ir"
)

// Emps returns the employee relation shared by evaluator, SQL and harness
// tests. Each call returns a fresh list.
//
//	{name = "ann", dept = 10, sal = 100}
//	{name = "bob", dept = 20, sal = 50}
//	{name = "cat", dept = 10, sal = 70}
func Emps() ir.IRList {
	emp := func(name string, dept, sal int64) ir.IRRecord {
		return ir.NewIRRecord(
			ir.F("name", ir.IRString(name)),
			ir.F("dept", ir.IRInt(dept)),
			ir.F("sal", ir.IRInt(sal)),
		)
	}
	return ir.NewIRList(emp("ann", 10, 100), emp("bob", 20, 50), emp("cat", 10, 70))
}

// Comp builds a comprehension from literal steps, bypassing the Builder's
// scope checks.
func Comp(steps ...core.Step) *core.Comprehension {
	return core.NewComprehension(steps)
}

// Sel is shorthand for the field access name.field.
func Sel(name, field string) core.Expr {
	return core.Select{Expr: core.R(name), Field: field}
}

// Sorted returns a copy of l in total value order, for comparing results
// whose order is unspecified.
func Sorted(l ir.IRList) ir.IRList {
	out := slices.Clone(l)
	slices.SortStableFunc(out, ir.Compare)
	return out
}
