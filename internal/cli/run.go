package cli

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/eval"
	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/querysql"
	"github.com/roach88/relcomp/internal/store"
)

// Engines accepted by --engine.
const (
	EngineEval   = "eval"
	EngineSQLite = "sqlite"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Engine   string
	Database string
}

// RunResult holds the elements one engine produced for a script.
type RunResult struct {
	Name   string `json:"name"`
	Engine string `json:"engine"`
	Build  string `json:"build"`
	Rows   string `json:"rows"`
	Count  int    `json:"count"`
	SQL    string `json:"sql,omitempty"`
}

func (r RunResult) String() string {
	return r.Rows
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <script>",
		Short: "Evaluate the comprehension a script builds",
		Long: `Build the comprehension described by a script and evaluate it against
the script's env bindings.

The eval engine interprets the comprehension directly. The sqlite engine
lowers it to a single SELECT and runs it on SQLite; comprehensions outside
the SQL fragment are rejected. With --db, the sqlite engine runs on that
database file and appends the result to its result log.

Example:
  relcomp run ./queries/totals.yaml
  relcomp run ./queries/totals.yaml --engine sqlite --db ./results.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScript(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Engine, "engine", EngineEval, "evaluation engine (eval|sqlite)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: in-memory)")

	return cmd
}

func runScript(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if !slices.Contains([]string{EngineEval, EngineSQLite}, opts.Engine) {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric,
			fmt.Sprintf("invalid engine %q: must be %s or %s", opts.Engine, EngineEval, EngineSQLite), nil)
	}

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

	env := s.EnvMap()
	for _, n := range core.FreeNames(core.Q(c)) {
		if _, ok := env[n]; !ok {
			return formatter.Fail(ExitFailure, ErrCodeEvalFailed,
				fmt.Sprintf("%q has no value in the script env", n), nil)
		}
	}

	result := RunResult{Name: s.Name, Engine: opts.Engine, Build: c.String()}
	var rows ir.IRList

	switch opts.Engine {
	case EngineEval:
		logger.Debug("evaluating", "script", s.Name)
		rows, err = eval.Run(c, env)
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeEvalFailed, err.Error(), nil)
		}

	case EngineSQLite:
		q, err := querysql.NewCompiler(env).Compile(c)
		if errors.Is(err, querysql.ErrUnsupported) {
			return formatter.Fail(ExitFailure, ErrCodeUnsupported, err.Error(), nil)
		}
		if err != nil {
			return formatter.Fail(ExitFailure, ErrCodeEvalFailed, err.Error(), nil)
		}
		result.SQL = q.SQL
		formatter.VerboseLog("SQL: %s", q.SQL)

		rows, err = runSQL(opts, cmd, s.Name, c, q)
		if err != nil {
			return err
		}
	}

	logger.Info("script evaluated", "script", s.Name, "engine", opts.Engine, "rows", len(rows))
	result.Rows = rows.String()
	result.Count = len(rows)
	return formatter.Success(result)
}

// runSQL runs q on the --db database, or on a fresh in-memory one, and
// records the result when a database file was given.
func runSQL(opts *RunOptions, cmd *cobra.Command, name string, c *core.Comprehension, q *querysql.Query) (ir.IRList, error) {
	formatter := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	dbPath := opts.Database
	if dbPath == "" {
		dbPath = ":memory:"
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	rows, err := st.Run(ctx, q)
	if err != nil {
		return nil, formatter.Fail(ExitFailure, ErrCodeEvalFailed, err.Error(), nil)
	}
	if opts.Database == "" {
		return rows, nil
	}

	id, err := core.FingerprintComprehension(c)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "fingerprint", err)
	}
	seq, err := st.NextSeq(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read result log", err)
	}
	r, err := store.NewResult(id, c.String(), EngineSQLite, rows, seq)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to encode result", err)
	}
	if err := st.WriteResult(ctx, r); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to record result", err)
	}
	formatter.VerboseLog("Recorded result %s (seq %d) for %s", r.ID, seq, name)
	return rows, nil
}
