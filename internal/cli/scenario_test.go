package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	harnessScenarios = "../harness/testdata/scenarios"
	harnessGoldens   = "../harness/testdata/golden"
)

const passingScenario = `name: quick
description: "start and pause"
steps:
  - do: start
  - advance: 1m
  - do: pause
assertions:
  - type: trace_order
    events: [started, focus_added, paused]
`

const failingScenario = `name: wrong
description: "expects an event that never happens"
steps:
  - do: start
assertions:
  - type: trace_contains
    event: reset
`

func scenarioDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestScenarioCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "", "scenario")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 1 arg")
}

func TestScenarioCommand_MissingPath(t *testing.T) {
	_, err := execute(t, "", "scenario", filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenario path not found")
}

func TestScenarioCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "", "scenario", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")
}

func TestScenarioCommand_EmptyDirJSON(t *testing.T) {
	out, err := execute(t, "", "scenario", t.TempDir(), "--format", "json")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestScenarioCommand_HarnessScenariosPass(t *testing.T) {
	out, err := execute(t, "", "scenario", harnessScenarios, "--golden-dir", harnessGoldens)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ focus_and_pause")
	assert.Contains(t, out, "✓ remote_sound_switch")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestScenarioCommand_SingleFile(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"quick.yaml": passingScenario})

	out, err := execute(t, "", "scenario", filepath.Join(dir, "quick.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quick")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioCommand_Failure(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"quick.yaml": passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "", "scenario", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ quick")
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "Assertion failed: trace_contains")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestScenarioCommand_FailureJSON(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"wrong.yaml": failingScenario})

	out, err := execute(t, "", "scenario", dir, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string          `json:"status"`
		Data   ScenarioSummary `json:"data"`
		Error  *CLIError       `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeScenarioFails, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failed)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.False(t, resp.Data.Scenarios[0].Pass)
	assert.NotEmpty(t, resp.Data.Scenarios[0].Errors)
}

func TestScenarioCommand_LoadError(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"broken.yaml": "name: broken\n"})

	out, err := execute(t, "", "scenario", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "Load error")
}

func TestScenarioCommand_Filter(t *testing.T) {
	dir := scenarioDir(t, map[string]string{
		"quick.yaml": passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execute(t, "", "scenario", dir, "--filter", "qu*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
	assert.NotContains(t, out, "wrong")
}

func TestScenarioCommand_UpdateThenCompare(t *testing.T) {
	dir := scenarioDir(t, map[string]string{"quick.yaml": passingScenario})
	golden := filepath.Join(dir, "golden", "quick.golden")

	out, err := execute(t, "", "scenario", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quick (golden updated)")

	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
	assert.Contains(t, string(data), `"scenario_name":"quick"`)

	out, err = execute(t, "", "scenario", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ quick")

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"quick","trace":[]}`), 0644))
	out, err = execute(t, "", "scenario", dir)
	require.Error(t, err)
	assert.Contains(t, out, "Golden file mismatch (run with --update to regenerate)")
}

func TestGoldenFilePath(t *testing.T) {
	opts := &ScenarioOptions{}
	assert.Equal(t, filepath.Join("scenarios", "golden", "quick.golden"),
		opts.goldenFilePath(filepath.Join("scenarios", "quick.yaml")))

	opts.GoldenDir = "fixtures"
	assert.Equal(t, filepath.Join("fixtures", "quick.golden"),
		opts.goldenFilePath(filepath.Join("scenarios", "quick.yml")))
}
