package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/relcomp/internal/builder"
	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/script"
)

// RenderResult holds the renderings of one script.
type RenderResult struct {
	Name       string `json:"name"`
	Build      string `json:"build"`
	Simplified string `json:"simplified"`
}

func (r RenderResult) String() string {
	return fmt.Sprintf("build:      %s\nsimplified: %s", r.Build, r.Simplified)
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "render <script>",
		Short: "Print the built and simplified comprehension",
		Long: `Replay a query script through the builder and print the canonical
rendering of the built comprehension and of its simplified form.

Example:
  relcomp render ./queries/totals.yaml
  relcomp render ./queries/totals.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runRender(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	logger := newLogger(opts, cmd.ErrOrStderr())

	s, err := loadScript(formatter, path)
	if err != nil {
		return err
	}
	b, err := replayScript(formatter, s, logger)
	if err != nil {
		return err
	}

	c, err := b.Build()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}
	simplified, err := b.BuildSimplify()
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(), nil)
	}

	return formatter.Success(RenderResult{
		Name:       s.Name,
		Build:      c.String(),
		Simplified: core.Render(simplified),
	})
}

// loadScript reads a script file. A missing file is a command error; an
// unparseable one is a load failure.
func loadScript(formatter *OutputFormatter, path string) (*script.Script, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("script not found: %s", path), nil)
	}
	s, err := script.Load(path)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	formatter.VerboseLog("Loaded script %s from %s", s.Name, path)
	return s, nil
}

// replayScript drives a builder through the script. Builder errors are
// reported with their scope error code.
func replayScript(formatter *OutputFormatter, s *script.Script, logger *slog.Logger) (*builder.Builder, error) {
	b, err := script.Replay(s, builder.WithLogger(logger))
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeLoadFailed, err.Error(), nil)
	}
	if err := b.Err(); err != nil {
		return nil, formatter.Fail(ExitFailure, ErrCodeBuildFailed, err.Error(),
			map[string]string{"code": string(builder.Code(err))})
	}
	return b, nil
}
