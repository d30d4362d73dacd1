package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolp(b bool) *bool { return &b }

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Steps:       []Step{{Do: DoStart}},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Event: "started"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, TraceEvent{
		Seq:    1,
		Type:   "started",
		Origin: "local",
		Fields: map[string]any{"phase": "pomodoro", "remainingSeconds": int64(1500), "trigger": "manual"},
	}, result.Trace[0])
}

func TestRun_DefaultDocumentProducesNoSnapshotEvents(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "quiet_attach",
		Description: "attaching to a default document changes nothing",
		Steps:       []Step{{Do: DoTick}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Event: "snapshot_applied", Count: 0}},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Trace)
}

func TestRun_UnexpectedErrorFailsScenario(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "pause_idle",
		Description: "pausing an idle timer is rejected",
		Steps:       []Step{{Do: DoPause}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Event: "paused", Count: 0}},
	})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "steps[0] pause: unexpected error")
}

func TestRun_ExpectedErrorThatDoesNotHappen(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "start_ok",
		Description: "start succeeds",
		Steps:       []Step{{Do: DoStart, ExpectError: true}},
		Assertions:  []Assertion{{Type: AssertTraceCount, Event: "started", Count: 1}},
	})
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Contains(t, result.Errors[0], "expected an error")
}

func TestRun_FailingSoundIsReported(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "broken_sound",
		Description: "a sound that cannot play is reported and nothing stays open",
		FailSounds:  []string{"rain"},
		Steps:       []Step{{Do: DoSelectSound, Sound: "rain", ExpectError: true}},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Event: "sound_failed", Fields: map[string]any{"soundId": "rain"}},
			{Type: AssertPlayerCalls, Calls: []string{"fail:sounds/rain.mp3"}},
			{Type: AssertFinalState, Expect: map[string]any{"playing": false}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_ForeignRemoteWriteIsApplied(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "foreign_points",
		Description: "points written elsewhere overwrite local points",
		Steps: []Step{
			{Do: DoFocus, Enabled: boolp(true)},
			{Remote: map[string]any{"points": 42}},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Event: "snapshot_applied", Origin: "remote", Fields: map[string]any{"fields": []any{"points"}}},
			{Type: AssertFinalState, Expect: map[string]any{"points": 42, "superFocusMode": true}},
			{Type: AssertRemoteState, Expect: map[string]any{"points": 42, "superFocusMode": true}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
	assert.Equal(t, int64(42), result.View.Points)
}

func TestRun_SettingsEditIsMirrored(t *testing.T) {
	result, err := Run(&Scenario{
		Name:        "settings_edit",
		Description: "a clamped settings edit reaches the remote document",
		Steps:       []Step{{Do: DoSettings, Set: map[string]int{"pomodoro": 200, "short": 3}}},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Event: "settings_changed", Fields: map[string]any{"remainingSeconds": 5400}},
			{Type: AssertRemoteState, Expect: map[string]any{
				"settings": map[string]any{"pomodoroDuration": 90, "shortBreakDuration": 3, "longBreakDuration": 15, "longBreakInterval": 4},
			}},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Pass, result.Errors)
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "four_pomodoros.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Remote, second.Remote)
}

func TestRun_TestdataScenariosPass(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "%v", result.Errors)
		})
	}
}

func TestRun_TraceSeqIsMonotonic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "remote_settings.yaml"))
	require.NoError(t, err)

	result, err := Run(scenario)
	require.NoError(t, err)

	for i := 1; i < len(result.Trace); i++ {
		assert.Greater(t, result.Trace[i].Seq, result.Trace[i-1].Seq)
	}
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}
