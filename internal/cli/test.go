package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relcomp/internal/harness"
	"github.com/roach88/relcomp/internal/script"
	"github.com/roach88/relcomp/internal/store"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Filter   string // script filter (glob pattern)
	Database string // record results in this database
}

// ScriptResult holds the result of a single script execution.
type ScriptResult struct {
	Name    string   `json:"name"`
	Pass    bool     `json:"pass"`
	Engines []string `json:"engines,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scripts []ScriptResult `json:"scripts"`
	Passed  int            `json:"passed"`
	Failed  int            `json:"failed"`
	Total   int            `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scripts-dir>",
		Short: "Run conformance harness",
		Long: `Run every query script in a directory through the harness.

Each script is built and simplified, its expectations are checked, and
its comprehension is evaluated before and after simplification. SQLite
cross-checks the result when the comprehension is in the SQL fragment.

Exit codes:
  0 - All scripts passed
  1 - One or more scripts failed
  2 - Command error (invalid paths, etc.)

Examples:
  relcomp test ./queries
  relcomp test ./queries --filter "dept-*"
  relcomp test ./queries --db ./results.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scripts by glob pattern on file name")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record results in this SQLite database")

	return cmd
}

func runTests(opts *TestOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if info, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) || (err == nil && !info.IsDir()) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scripts directory not found: %s", dir))
	}

	paths, err := collectScripts(formatter, dir, opts.Filter)
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		if opts.Format == "json" {
			return outputTestJSON(formatter, TestResult{Scripts: []ScriptResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scripts found.")
		return nil
	}

	hopts := []harness.Option{harness.WithLogger(logger)}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer st.Close()
		hopts = append(hopts, harness.WithStore(st))
	}
	h := harness.New(hopts...)

	result := TestResult{
		Scripts: make([]ScriptResult, 0, len(paths)),
		Total:   len(paths),
	}
	for _, p := range paths {
		sr := runOne(h, cmd, p, opts.Format != "json")
		result.Scripts = append(result.Scripts, sr)
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(cmd, result)
}

// runOne loads and runs a single script, printing a line per script in
// text mode.
func runOne(h *harness.Harness, cmd *cobra.Command, path string, text bool) ScriptResult {
	w := cmd.OutOrStdout()
	fail := func(name string, errs ...string) ScriptResult {
		if text {
			fmt.Fprintf(w, "\u2717 %s\n", name)
			for _, e := range errs {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		return ScriptResult{Name: name, Pass: false, Errors: errs}
	}

	s, err := script.Load(path)
	if err != nil {
		return fail(filepath.Base(path), fmt.Sprintf("failed to load script: %v", err))
	}

	r, err := h.Run(cmd.Context(), s)
	if err != nil {
		return fail(s.Name, fmt.Sprintf("execution failed: %v", err))
	}
	if !r.Pass {
		sr := fail(s.Name, r.Errors...)
		sr.Engines = r.Engines
		sr.Skipped = r.Skipped
		return sr
	}

	if text {
		fmt.Fprintf(w, "\u2713 %s", s.Name)
		if len(r.Engines) > 0 {
			fmt.Fprintf(w, " (%s)", strings.Join(r.Engines, ", "))
		}
		fmt.Fprintln(w)
	}
	return ScriptResult{Name: s.Name, Pass: true, Engines: r.Engines, Skipped: r.Skipped}
}

// filterScripts keeps the paths whose base name, without extension,
// matches the glob.
func filterScripts(paths []string, filter string) ([]string, error) {
	var out []string
	for _, p := range paths {
		base := filepath.Base(p)
		name := strings.TrimSuffix(base, filepath.Ext(base))
		matched, err := filepath.Match(filter, name)
		if err != nil {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid filter pattern: %v", err))
		}
		if matched {
			out = append(out, p)
		}
	}
	return out, nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	if result.Failed == 0 {
		return formatter.Success(result)
	}

	msg := fmt.Sprintf("%d script(s) failed", result.Failed)
	resp := CLIResponse{
		Status: "error",
		Data:   result,
		Error: &CLIError{
			Code:    ErrCodeTestFailed,
			Message: msg,
		},
		TraceID: formatter.traceID(),
	}
	if err := formatter.encode(resp); err != nil {
		return err
	}
	// Test failures = exit code 1
	return NewExitError(ExitFailure, msg)
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d script(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "\u2713 All scripts passed")
	return nil
}
