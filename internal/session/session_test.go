package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/testutil"
)

func newMachine(t *testing.T, s settings.Settings) (*Machine, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(time.Time{})
	return New(clock, s), clock
}

func TestNew_StartsIdlePomodoro(t *testing.T) {
	m, _ := newMachine(t, settings.Default())

	st := m.State()
	assert.Equal(t, PhasePomodoro, st.Phase)
	assert.Equal(t, Idle, st.RunState)
	assert.Equal(t, 25*60, st.RemainingSeconds)
}

func TestStartPause_Transitions(t *testing.T) {
	m, _ := newMachine(t, settings.Default())

	assert.ErrorIs(t, m.Pause(), ErrInvalidTransition, "pause while idle")
	require.NoError(t, m.Start())
	assert.ErrorIs(t, m.Start(), ErrInvalidTransition, "start while running")
	require.NoError(t, m.Pause())
	assert.Equal(t, Paused, m.State().RunState)
	require.NoError(t, m.Start(), "resume from paused")
	assert.Equal(t, Running, m.State().RunState)
}

func TestTick_CountsDownOneSecondPerTick(t *testing.T) {
	s := settings.Default()
	s.PomodoroDuration = 5
	m, clock := newMachine(t, s)
	require.NoError(t, m.Start())

	completions := 0
	for i := 1; i <= 5*60; i++ {
		clock.Advance(time.Second)
		res := m.Tick()
		assert.Equal(t, 1, res.Elapsed)
		if res.Completion != nil {
			completions++
			assert.Equal(t, 5*60, i, "completes on the last tick")
		} else {
			assert.Equal(t, 5*60-i, m.State().RemainingSeconds)
		}
	}

	assert.Equal(t, 1, completions)
	st := m.State()
	assert.Equal(t, PhaseShortBreak, st.Phase)
	assert.Equal(t, Idle, st.RunState)
	assert.Equal(t, int64(1), st.CompletedPomodoros)
	assert.Equal(t, int64(5*60), st.TotalFocusSeconds)
}

func TestTick_SubSecondDoesNotCount(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	require.NoError(t, m.Start())

	clock.Advance(900 * time.Millisecond)
	assert.Equal(t, 0, m.Tick().Elapsed)

	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, 1, m.Tick().Elapsed)
	assert.Equal(t, 25*60-1, m.State().RemainingSeconds)
}

func TestTick_WallClockJumpCompletesOnce(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	require.NoError(t, m.Start())

	clock.Advance(2 * time.Hour)
	res := m.Tick()

	require.NotNil(t, res.Completion)
	assert.Equal(t, PhasePomodoro, res.Completion.From)
	assert.Equal(t, PhaseShortBreak, res.Completion.To)
	assert.Equal(t, 25*60, res.Elapsed, "focus is capped at the phase length")
	assert.Equal(t, int64(25*60), res.FocusAdded())

	clock.Advance(time.Hour)
	res = m.Tick()
	assert.Nil(t, res.Completion, "next phase is idle")
	assert.Equal(t, int64(1), m.State().CompletedPomodoros)
}

func TestTick_PausedDoesNotCount(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	require.NoError(t, m.Start())
	clock.Advance(10 * time.Second)
	m.Tick()
	require.NoError(t, m.Pause())

	clock.Advance(time.Hour)
	assert.Equal(t, 0, m.Tick().Elapsed)
	assert.Equal(t, 25*60-10, m.State().RemainingSeconds)

	require.NoError(t, m.Start())
	clock.Advance(5 * time.Second)
	m.Tick()
	assert.Equal(t, 25*60-15, m.State().RemainingSeconds)
	assert.Equal(t, int64(15), m.State().TotalFocusSeconds)
}

func TestPause_KeepsSubSecondRemainder(t *testing.T) {
	m, clock := newMachine(t, settings.Default())

	// ten 900ms bursts are 9s of running time
	for i := 0; i < 10; i++ {
		require.NoError(t, m.Start())
		clock.Advance(900 * time.Millisecond)
		m.Tick()
		require.NoError(t, m.Pause())
	}

	st := m.State()
	assert.Equal(t, 25*60-9, st.RemainingSeconds)
	assert.Equal(t, int64(9), st.TotalFocusSeconds)
}

func TestPause_WithoutTickCreditsOnResume(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	require.NoError(t, m.Start())
	clock.Advance(1500 * time.Millisecond)
	require.NoError(t, m.Pause())
	clock.Advance(time.Hour)

	require.NoError(t, m.Start())
	clock.Advance(600 * time.Millisecond)
	res := m.Tick()

	assert.Equal(t, 2, res.Elapsed)
	assert.Equal(t, 25*60-2, m.State().RemainingSeconds)
}

func TestTick_BreakTimeIsNotFocus(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	m.SwitchPhase(PhaseShortBreak)
	require.NoError(t, m.Start())

	clock.Advance(time.Minute)
	res := m.Tick()

	assert.Equal(t, 60, res.Elapsed)
	assert.Zero(t, res.FocusAdded())
	assert.Zero(t, m.State().TotalFocusSeconds)
}

func TestReset_RestoresFullDuration(t *testing.T) {
	for _, p := range []Phase{PhasePomodoro, PhaseShortBreak, PhaseLongBreak} {
		t.Run(string(p), func(t *testing.T) {
			m, clock := newMachine(t, settings.Default())
			m.SwitchPhase(p)
			require.NoError(t, m.Start())
			clock.Advance(30 * time.Second)
			m.Tick()

			m.Reset()

			st := m.State()
			assert.Equal(t, PhasePomodoro, st.Phase)
			assert.Equal(t, Idle, st.RunState)
			assert.Equal(t, 25*60, st.RemainingSeconds)
		})
	}
}

func TestSwitchPhase_EntersIdleWithFullDuration(t *testing.T) {
	m, _ := newMachine(t, settings.Default())
	require.NoError(t, m.Start())

	m.SwitchPhase(PhaseLongBreak)

	st := m.State()
	assert.Equal(t, PhaseLongBreak, st.Phase)
	assert.Equal(t, Idle, st.RunState)
	assert.Equal(t, 15*60, st.RemainingSeconds)
}

func TestNextBreak_LongEveryInterval(t *testing.T) {
	for interval := 1; interval <= 10; interval++ {
		for k := int64(1); k <= 30; k++ {
			want := PhaseShortBreak
			if k%int64(interval) == 0 {
				want = PhaseLongBreak
			}
			assert.Equal(t, want, NextBreak(k, interval), "k=%d interval=%d", k, interval)
		}
	}
}

func TestCycle_DefaultSettingsVisitsThreeShortThenLong(t *testing.T) {
	m, clock := newMachine(t, settings.Default())

	var visited []Phase
	for i := 0; i < 8; i++ {
		require.NoError(t, m.Start())
		clock.Advance(time.Duration(m.State().RemainingSeconds) * time.Second)
		res := m.Tick()
		require.NotNil(t, res.Completion)
		visited = append(visited, res.Completion.To)
	}

	assert.Equal(t, []Phase{
		PhaseShortBreak, PhasePomodoro,
		PhaseShortBreak, PhasePomodoro,
		PhaseShortBreak, PhasePomodoro,
		PhaseLongBreak, PhasePomodoro,
	}, visited)
	assert.Equal(t, int64(4), m.State().CompletedPomodoros)
	assert.Equal(t, int64(4*25*60), m.State().TotalFocusSeconds)
}

func TestStart_AfterCompletionNeedsExplicitStart(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	require.NoError(t, m.Start())
	clock.Advance(25 * time.Minute)
	m.Tick()

	assert.Equal(t, Idle, m.State().RunState)
	clock.Advance(10 * time.Minute)
	m.Tick()
	assert.Equal(t, 5*60, m.State().RemainingSeconds)
}

func TestSetSettings_OnlyRearmsIdleCountdown(t *testing.T) {
	m, clock := newMachine(t, settings.Default())
	s := settings.Default()
	s.PomodoroDuration = 50

	m.SetSettings(s)
	assert.Equal(t, 50*60, m.State().RemainingSeconds, "idle picks up the new duration")

	require.NoError(t, m.Start())
	clock.Advance(time.Minute)
	m.Tick()
	s.PomodoroDuration = 10
	m.SetSettings(s)
	assert.Equal(t, 49*60, m.State().RemainingSeconds, "running keeps its remaining time")

	m.Reset()
	assert.Equal(t, 10*60, m.State().RemainingSeconds)
}

func TestSetSettings_Clamps(t *testing.T) {
	m, _ := newMachine(t, settings.Default())
	m.SetSettings(settings.Settings{PomodoroDuration: 1000, ShortBreakDuration: 0, LongBreakDuration: 0, LongBreakInterval: 0})

	assert.Equal(t, 90*60, m.State().RemainingSeconds)
	assert.Equal(t, 1, m.Settings().LongBreakInterval)
}

func TestSetCounters(t *testing.T) {
	m, _ := newMachine(t, settings.Default())
	m.SetCounters(6, 9000)
	assert.Equal(t, int64(6), m.State().CompletedPomodoros)
	assert.Equal(t, int64(9000), m.State().TotalFocusSeconds)
	assert.Equal(t, 2, m.RoundPosition())

	m.SetCounters(-1, -1)
	assert.Zero(t, m.State().CompletedPomodoros)
	assert.Zero(t, m.State().TotalFocusSeconds)
}

func TestParsePhase(t *testing.T) {
	p, err := ParsePhase("short")
	require.NoError(t, err)
	assert.Equal(t, PhaseShortBreak, p)

	p, err = ParsePhase("longBreak")
	require.NoError(t, err)
	assert.Equal(t, PhaseLongBreak, p)

	_, err = ParsePhase("nap")
	assert.Error(t, err)
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "25 : 00", FormatRemaining(1500))
	assert.Equal(t, "04 : 09", FormatRemaining(249))
	assert.Equal(t, "00 : 00", FormatRemaining(-3))
}
