package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pomoflo/internal/remote"
)

func TestDocCommand_NotFound(t *testing.T) {
	cfg := sqliteConfig(t)

	out, err := execute(t, "", "doc", "--config", cfg, "--user", "ghost")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, `Error [E_NOT_FOUND]: no document for user "ghost"`)
}

func TestDocCommand_NotFoundJSON(t *testing.T) {
	cfg := sqliteConfig(t)

	out, err := execute(t, "", "doc", "--config", cfg, "--user", "ghost", "--format", "json")
	require.Error(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, CodeNotFound, resp.Error.Code)
}

func TestDocCommand_PrintsDocument(t *testing.T) {
	cfg := sqliteConfig(t)

	_, err := execute(t, "", "settings", "--config", cfg, "--user", "alice", "pomodoro=30")
	require.NoError(t, err)

	out, err := execute(t, "", "doc", "--config", cfg, "--user", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "user alice\n")
	assert.Contains(t, out, "  points: 0\n")
	assert.Contains(t, out, `  settings: {"longBreakDuration":15,"longBreakInterval":4,"pomodoroDuration":30,"shortBreakDuration":5}`)
	assert.Contains(t, out, "  dailyProgress: []")
}

func TestDocCommand_JSON(t *testing.T) {
	cfg := sqliteConfig(t)

	_, err := execute(t, "", "settings", "--config", cfg, "--user", "alice", "interval=2")
	require.NoError(t, err)

	out, err := execute(t, "", "doc", "--config", cfg, "--user", "alice", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, false, resp.Data["superFocusMode"])
	assert.Equal(t, float64(2), resp.Data["settings"].(map[string]any)["longBreakInterval"])
}

func TestFormatDocument_KeyOrder(t *testing.T) {
	got := formatDocument("alice", remote.Document{
		"points":        int64(3),
		"selectedSound": "rain",
		"dailyProgress": []any{map[string]any{"date": "2026-10-14", "focusSeconds": int64(600), "pomodoros": int64(0)}},
	})

	assert.Equal(t, "user alice\n"+
		`  dailyProgress: [{"date":"2026-10-14","focusSeconds":600,"pomodoros":0}]`+"\n"+
		"  points: 3\n"+
		"  selectedSound: rain", got)
}
