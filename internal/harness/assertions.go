package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/script"
)

// AssertionError is a failed check with its expected and actual outcomes.
type AssertionError struct {
	Type     string // check that failed, e.g. "build" or "rows"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// assertEqual records a failure in result when an expectation is set and
// differs from actual.
func assertEqual(result *Result, check, expected, actual string) {
	if expected == "" || expected == actual {
		return
	}
	result.AddError((&AssertionError{Type: check, Expected: expected, Actual: actual}).Error())
}

// assertExpectations checks the renderings and rows of a successful build.
func assertExpectations(result *Result, expect script.Expect) {
	if expect.Error != "" {
		result.AddError((&AssertionError{
			Type:     "error",
			Expected: expect.Error,
			Actual:   "build succeeded",
		}).Error())
	}
	assertEqual(result, "build", expect.Build, result.Build)
	assertEqual(result, "simplified", expect.Simplified, result.Simplified)
	if expect.Rows != "" {
		if result.Rows == nil {
			result.AddError((&AssertionError{Type: "rows", Expected: expect.Rows, Actual: "not evaluated"}).Error())
			return
		}
		assertEqual(result, "rows", expect.Rows, result.Rows.String())
	}
}

// assertSameRows requires two engines to produce the same element
// sequence.
func assertSameRows(result *Result, check string, want, got ir.IRList) bool {
	if want.String() == got.String() {
		return true
	}
	result.AddError((&AssertionError{Type: check, Expected: want.String(), Actual: got.String()}).Error())
	return false
}

// assertSameMultiset requires two engines to produce the same elements in
// any order.
func assertSameMultiset(result *Result, check string, want, got ir.IRList) bool {
	return assertSameRows(result, check, sortedRows(want), sortedRows(got))
}

func sortedRows(l ir.IRList) ir.IRList {
	out := slices.Clone(l)
	slices.SortStableFunc(out, ir.Compare)
	return out
}
