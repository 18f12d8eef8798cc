package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/relcomp/internal/builder"
	"github.com/roach88/relcomp/internal/core"
	"github.com/roach88/relcomp/internal/eval"
	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/querysql"
	"github.com/roach88/relcomp/internal/script"
	"github.com/roach88/relcomp/internal/simplify"
	"github.com/roach88/relcomp/internal/store"
	"github.com/roach88/relcomp/internal/testutil"
)

// Clock supplies the logical sequence numbers of recorded results.
type Clock interface {
	Next() int64
}

// Harness runs scripts.
type Harness struct {
	store  *store.Store
	record bool
	clock  Clock
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithStore runs the SQLite oracle on st and records every evaluation in
// its result log. The caller owns st.
func WithStore(st *store.Store) Option {
	return func(h *Harness) {
		h.store = st
		h.record = st != nil
	}
}

// WithClock sets the clock used to sequence recorded results.
//
// Default: a deterministic clock starting at 1.
func WithClock(c Clock) Option {
	return func(h *Harness) {
		if c != nil {
			h.clock = c
		}
	}
}

// WithLogger sets the logger for harness progress and for the builder and
// simplifier it drives.
//
// Default: output is discarded.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		clock:  testutil.NewDeterministicClock(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a script in a fresh in-memory database and returns the
// result.
func Run(s *script.Script) (*Result, error) {
	return New().Run(context.Background(), s)
}

// Run executes a script and returns the result. Failed checks are reported
// in the result; the error is reserved for scripts that cannot be run at
// all, such as malformed steps.
func (h *Harness) Run(ctx context.Context, s *script.Script) (*Result, error) {
	st := h.store
	if st == nil {
		mem, err := store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer mem.Close()
		st = mem
	}

	result := NewResult(s.Name)
	log := h.logger.With("script", s.Name)

	b, err := script.Replay(s, builder.WithLogger(h.logger))
	if err == nil {
		err = b.Err()
	}
	if err != nil {
		if !builder.IsScopeError(err) {
			return nil, fmt.Errorf("script %s: %w", s.Name, err)
		}
		h.buildFailed(result, s.Expect, err)
		log.Debug("build failed", "code", result.Error, "pass", result.Pass)
		return result, nil
	}

	c, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", s.Name, err)
	}
	result.Build = c.String()

	simplified, err := b.BuildSimplify()
	if err != nil {
		result.AddError(fmt.Sprintf("simplify: %v", err))
		return result, nil
	}
	result.Simplified = core.Render(simplified)
	h.checkIdempotent(result, s, simplified)

	if err := h.evaluate(ctx, st, result, s, c, simplified); err != nil {
		return nil, err
	}
	assertExpectations(result, s.Expect)

	log.Debug("script finished", "pass", result.Pass, "engines", result.Engines)
	return result, nil
}

// buildFailed compares a builder error against the expected code.
func (h *Harness) buildFailed(result *Result, expect script.Expect, err error) {
	result.Error = string(builder.Code(err))
	switch {
	case expect.Error == "":
		result.AddError(fmt.Sprintf("build failed: %v", err))
	case expect.Error != result.Error:
		result.AddError((&AssertionError{Type: "error", Expected: expect.Error, Actual: result.Error}).Error())
	}
}

func (h *Harness) checkIdempotent(result *Result, s *script.Script, simplified core.Expr) {
	again, err := simplify.SimplifyExpr(simplified,
		simplify.WithOuterScope(s.OuterScope()...),
		simplify.WithLogger(h.logger),
	)
	if err != nil {
		result.AddError(fmt.Sprintf("re-simplify: %v", err))
		return
	}
	assertEqual(result, "idempotent", result.Simplified, core.Render(again))
}

// evaluate runs the engines. Evaluation is skipped when the comprehension
// references an enclosing name that has no value.
func (h *Harness) evaluate(ctx context.Context, st *store.Store, result *Result, s *script.Script, c *core.Comprehension, simplified core.Expr) error {
	env := s.EnvMap()
	for _, n := range core.FreeNames(core.Q(c)) {
		if _, ok := env[n]; !ok {
			result.Skip(fmt.Sprintf("evaluation: %q has no value", n))
			return nil
		}
	}

	built, err := eval.Run(c, env)
	if err != nil {
		result.AddError(fmt.Sprintf("eval built: %v", err))
		return nil
	}
	result.Rows = built

	v, err := eval.Eval(simplified, env)
	if err != nil {
		result.AddError(fmt.Sprintf("eval simplified: %v", err))
		return nil
	}
	after, ok := v.(ir.IRList)
	if !ok {
		result.AddError(fmt.Sprintf("eval simplified: got %s, want a list", ir.Kind(v)))
		return nil
	}
	if !assertSameRows(result, "simplify preserves rows", built, after) {
		return nil
	}
	result.Engines = append(result.Engines, EngineEval)

	q, err := querysql.NewCompiler(env).Compile(c)
	switch {
	case errors.Is(err, querysql.ErrUnsupported):
		result.Skip(fmt.Sprintf("sqlite: %v", err))
	case err != nil:
		result.AddError(fmt.Sprintf("sqlite compile: %v", err))
	default:
		rows, err := st.Run(ctx, q)
		if err != nil {
			result.AddError(fmt.Sprintf("sqlite run: %v", err))
		} else if assertSameMultiset(result, "sqlite agrees", built, rows) {
			result.Engines = append(result.Engines, EngineSQLite)
		}
	}

	if h.record {
		return h.recordResults(ctx, st, result, c)
	}
	return nil
}

// recordResults appends one result per agreeing engine to the log.
func (h *Harness) recordResults(ctx context.Context, st *store.Store, result *Result, c *core.Comprehension) error {
	id, err := core.FingerprintComprehension(c)
	if err != nil {
		return fmt.Errorf("fingerprint: %w", err)
	}
	for _, engine := range slices.Clone(result.Engines) {
		r, err := store.NewResult(id, result.Build, engine, result.Rows, h.clock.Next())
		if err != nil {
			return err
		}
		if err := st.WriteResult(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// RunAll runs every script, stopping only on scripts that cannot be run.
func (h *Harness) RunAll(ctx context.Context, scripts []*script.Script) ([]*Result, error) {
	results := make([]*Result, 0, len(scripts))
	for _, s := range scripts {
		r, err := h.Run(ctx, s)
		if err != nil {
			return results, err
		}
		h.logger.Info("script", "name", s.Name, "pass", r.Pass)
		results = append(results, r)
	}
	return results, nil
}
