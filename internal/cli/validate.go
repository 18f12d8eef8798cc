package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relcomp/internal/builder"
	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/script"
)

// ValidationIssue is one problem found in one script.
type ValidationIssue struct {
	Script  string `json:"script"`
	Path    string `json:"path,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return fmt.Sprintf("%s: %s: %s", i.Script, i.Code, i.Message)
	}
	return fmt.Sprintf("%s: %s: %s: %s", i.Script, i.Path, i.Code, i.Message)
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Scripts int               `json:"scripts"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

func (r ValidationResult) String() string {
	return fmt.Sprintf("\u2713 %d script(s) valid", r.Scripts)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <dir|file>",
		Short: "Check scripts and the comprehensions they build",
		Long: `Validate query scripts without evaluating them.

Every script is parsed and replayed. Builder errors must match the
script's expected error code. Built and simplified comprehensions are
checked for scope invariants, and simplified ones for leftover no-op
steps.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())

	paths, err := collectScripts(formatter, path, "")
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return formatter.Fail(ExitCommandError, ErrCodeNoScripts, fmt.Sprintf("no scripts found in %s", path), nil)
	}
	formatter.VerboseLog("Found %d script(s) in %s", len(paths), path)

	var issues []ValidationIssue
	for _, p := range paths {
		s, err := script.Load(p)
		if err != nil {
			issues = append(issues, ValidationIssue{Script: p, Code: ErrCodeLoadFailed, Message: err.Error()})
			continue
		}
		formatter.VerboseLog("Validating script: %s", s.Name)
		issues = append(issues, validateScript(s, p, builder.WithLogger(logger))...)
	}

	if len(issues) > 0 {
		return outputValidationIssues(formatter, len(paths), issues)
	}
	return formatter.Success(ValidationResult{Valid: true, Scripts: len(paths)})
}

// validateScript replays s and checks what it builds.
func validateScript(s *script.Script, file string, opts ...builder.Option) []ValidationIssue {
	issue := func(path, code, msg string) ValidationIssue {
		return ValidationIssue{Script: file, Path: path, Code: code, Message: msg}
	}

	b, err := script.Replay(s, opts...)
	if err != nil {
		return []ValidationIssue{issue("", ErrCodeLoadFailed, err.Error())}
	}
	if err := b.Err(); err != nil {
		code := string(builder.Code(err))
		if s.Expect.Error == code {
			return nil
		}
		return []ValidationIssue{issue("", code, err.Error())}
	}
	if s.Expect.Error != "" {
		return []ValidationIssue{issue("", ErrCodeBuildFailed,
			fmt.Sprintf("expected error %s, but the script builds", s.Expect.Error))}
	}

	c, err := b.Build()
	if err != nil {
		return []ValidationIssue{issue("", ErrCodeBuildFailed, err.Error())}
	}
	outer := s.OuterScope()

	var issues []ValidationIssue
	for _, v := range core.Validate(c, outer...) {
		issues = append(issues, issue("build."+v.Path, string(v.Code), v.Message))
	}

	simplified, err := b.BuildSimplify()
	if err != nil {
		return append(issues, issue("simplified", ErrCodeGeneric, err.Error()))
	}
	if sc, ok := core.AsQuery(simplified); ok {
		for _, v := range core.Validate(sc, outer...) {
			issues = append(issues, issue("simplified."+v.Path, string(v.Code), v.Message))
		}
		for _, v := range core.CheckCanonical(sc) {
			issues = append(issues, issue("simplified."+v.Path, string(v.Code), v.Message))
		}
	}
	return issues
}

// collectScripts resolves a file or directory argument to script paths.
// filter, when set, is a glob matched against file base names.
func collectScripts(formatter *OutputFormatter, path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("path not found: %s", path), nil)
	}
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	paths, err := script.FindScripts(path)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if filter == "" {
		return paths, nil
	}
	return filterScripts(paths, filter)
}

func outputValidationIssues(formatter *OutputFormatter, scripts int, issues []ValidationIssue) error {
	msg := fmt.Sprintf("%d issue(s) in %d script(s)", len(issues), scripts)
	if formatter.Format == "json" {
		return formatter.Fail(ExitFailure, ErrCodeInvalid, msg, issues)
	}

	lines := make([]string, len(issues))
	for i, is := range issues {
		lines[i] = "  " + is.String()
	}
	fmt.Fprintln(formatter.Writer, strings.Join(lines, "\n"))
	return formatter.Fail(ExitFailure, ErrCodeInvalid, msg, nil)
}
