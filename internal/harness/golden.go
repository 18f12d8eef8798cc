package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/relcomp/internal/ir"
	"github.com/roach88/relcomp/internal/script"
)

// Snapshot captures what a script run produced.
// All fields use canonical JSON serialization for deterministic comparison.
type Snapshot struct {
	Name       string
	Build      string
	Simplified string
	Error      string
	Rows       ir.IRList
	Engines    []string
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON
// serialization. Rows are stored as their rendering so that snapshots stay
// readable.
func (s *Snapshot) toCanonicalMap() map[string]any {
	engines := make([]any, len(s.Engines))
	for i, e := range s.Engines {
		engines[i] = e
	}
	m := map[string]any{
		"name":    s.Name,
		"engines": engines,
	}
	if s.Build != "" {
		m["build"] = s.Build
	}
	if s.Simplified != "" {
		m["simplified"] = s.Simplified
	}
	if s.Error != "" {
		m["error"] = s.Error
	}
	if s.Rows != nil {
		m["rows"] = s.Rows.String()
	}
	return m
}

// RunWithGolden runs a script and compares its snapshot against a golden
// file stored in testdata/golden/{script.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if the script cannot be run. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, s *script.Script) error {
	t.Helper()

	result, err := Run(s)
	if err != nil {
		return err
	}
	return AssertGolden(t, s.Name, result)
}

// AssertGolden compares a result against a golden file without re-running
// the script.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot := Snapshot{
		Name:       name,
		Build:      result.Build,
		Simplified: result.Simplified,
		Error:      result.Error,
		Rows:       result.Rows,
		Engines:    result.Engines,
	}

	data, err := ir.MarshalCanonical(snapshot.toCanonicalMap())
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
