package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shapes.cue"), []byte(validModelCUE), 0o644))

	fixture := `
name: inspect_me
description: Two stored rows for inspection.
model: shapes.cue
rows:
  Base:
    - [Base, 1, alpha, ~]
    - [Mid, 2, beta, 20]
run_token: run-inspect
`
	path := filepath.Join(dir, "fixture.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o644))
	return path
}

func TestFixtureInspect_Text(t *testing.T) {
	path := writeFixture(t)

	out, err := executeCommand(t, "fixture", "inspect", path)
	require.NoError(t, err)
	assert.Contains(t, out, "fixture inspect_me")
	assert.Contains(t, out, "model shapes")
	assert.Contains(t, out, "run token run-inspect")
	assert.Contains(t, out, "Base: 2 row(s)")
}

func TestFixtureInspect_JSON(t *testing.T) {
	path := writeFixture(t)

	out, err := executeCommand(t, "--format", "json", "fixture", "inspect", path)
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "inspect_me", data["fixture"])
	rows, ok := data["rows"].([]any)
	require.True(t, ok)
	require.Len(t, rows, 1)
}

func TestFixtureInspect_MissingFixture(t *testing.T) {
	_, err := executeCommand(t, "fixture", "inspect", "/does/not/exist.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
