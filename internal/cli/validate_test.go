package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_FixturesDir(t *testing.T) {
	out, _, err := execute(t, "validate", fixtureDir)
	require.NoError(t, err)
	assert.Contains(t, out, "7 script(s) valid")
}

func TestValidate_SingleFile(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", filepath.Join(fixtureDir, "totals.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 1, resp.Data.Scripts)
}

func TestValidate_ExpectedErrorIsValid(t *testing.T) {
	_, _, err := execute(t, "validate", filepath.Join(fixtureDir, "collision.yaml"))
	assert.NoError(t, err)
}

func TestValidate_UnexpectedBuildError(t *testing.T) {
	path := writeScript(t, "unbound.yaml", `
name: unbound
steps:
  - scan: i
    in: ys
`)
	out, _, err := execute(t, "--format", "json", "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string `json:"status"`
		Error  struct {
			Code    string            `json:"code"`
			Details []ValidationIssue `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, ErrCodeInvalid, resp.Error.Code)
	require.Len(t, resp.Error.Details, 1)
	assert.Equal(t, "UNBOUND_NAME", resp.Error.Details[0].Code)
	assert.Equal(t, path, resp.Error.Details[0].Script)
}

func TestValidate_ErrorExpectedButBuilds(t *testing.T) {
	path := writeScript(t, "builds.yaml", `
name: builds
steps:
  - scan: i
    in: [1]
expect:
  error: SCOPE_COLLISION
`)
	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, "expected error SCOPE_COLLISION")
	assert.Contains(t, out, "Error [E008]")
}

func TestValidate_LoadFailure(t *testing.T) {
	path := writeScript(t, "float.yaml", "name: f\nenv:\n  x: 1.5\nsteps: []\n")

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Contains(t, out, ErrCodeLoadFailed)
	assert.Contains(t, out, "floats are not supported")
}

func TestValidate_NotFound(t *testing.T) {
	_, _, err := execute(t, "validate", "/nonexistent/dir")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestValidate_EmptyDir(t *testing.T) {
	out, _, err := execute(t, "validate", t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E003]")
}
