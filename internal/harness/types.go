package harness

import "github.com/roach88/relcomp/internal/ir"

// Engine names used in results and in the store's result log.
const (
	EngineEval   = "eval"
	EngineSQLite = "sqlite"
)

// Result is the outcome of running one script.
type Result struct {
	// Name is the script name.
	Name string `json:"name"`

	// Pass indicates overall success: every expectation and every
	// cross-check held.
	Pass bool `json:"pass"`

	// Build is the canonical rendering of the built comprehension.
	Build string `json:"build,omitempty"`

	// Simplified is the canonical rendering after simplification.
	Simplified string `json:"simplified,omitempty"`

	// Error is the builder error code, when building failed.
	Error string `json:"error,omitempty"`

	// Rows holds the evaluated elements, when evaluation ran.
	Rows ir.IRList `json:"-"`

	// Engines lists the engines that evaluated the script and agreed.
	Engines []string `json:"engines"`

	// Errors contains failed checks. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Skipped explains checks that did not apply, such as SQLite for a
	// comprehension outside the SQL fragment.
	Skipped []string `json:"skipped,omitempty"`
}

// NewResult creates a new passing result.
func NewResult(name string) *Result {
	return &Result{
		Name:    name,
		Pass:    true,
		Engines: []string{},
		Errors:  []string{},
	}
}

// AddError adds a failed check and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Skip records a check that did not apply.
func (r *Result) Skip(reason string) {
	r.Skipped = append(r.Skipped, reason)
}
