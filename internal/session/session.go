// Package session implements the focus timer state machine.
//
// The countdown is derived from wall-clock time: Start records an anchor
// (timestamp plus the exact time left at that instant) and every Tick
// recomputes left = anchorLeft - (now - anchor), shown rounded up to whole
// seconds. Pause keeps the sub-second remainder, so pause/resume cycles do
// not lose time. A periodic callback only says "recompute now"; missed or
// delayed callbacks (process suspension, scheduler lag) never cause drift.
//
// INVARIANTS:
//   - RemainingSeconds only decreases while RunState is Running.
//   - Entering a phase sets RemainingSeconds to that phase's duration and
//     RunState to Idle. Breaks and the next pomodoro never auto-start.
//   - CompletedPomodoros and TotalFocusSeconds only grow through local
//     progress (SetCounters exists for remote snapshots).
//
// A Machine is not safe for concurrent use; the engine owns it from a
// single goroutine.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/pomoflo/internal/settings"
)

// Phase is which segment of the cycle is active.
type Phase string

const (
	PhasePomodoro   Phase = "pomodoro"
	PhaseShortBreak Phase = "shortBreak"
	PhaseLongBreak  Phase = "longBreak"
)

// ParsePhase accepts the document spelling plus a few aliases.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "pomodoro", "focus", "work":
		return PhasePomodoro, nil
	case "shortBreak", "short", "short_break":
		return PhaseShortBreak, nil
	case "longBreak", "long", "long_break":
		return PhaseLongBreak, nil
	default:
		return "", fmt.Errorf("unknown phase %q", s)
	}
}

// Label is the human name shown next to the countdown.
func (p Phase) Label() string {
	switch p {
	case PhaseShortBreak:
		return "Short Break"
	case PhaseLongBreak:
		return "Long Break"
	default:
		return "Focus"
	}
}

// RunState is the countdown status within a phase.
type RunState string

const (
	Idle    RunState = "idle"
	Running RunState = "running"
	Paused  RunState = "paused"
)

// ErrInvalidTransition is returned for commands the current run state does
// not allow (pause while idle, start while running).
var ErrInvalidTransition = errors.New("invalid transition")

// ErrNoTimeRemaining is returned by Start when the countdown is already at
// zero; the phase change is left to Tick.
var ErrNoTimeRemaining = errors.New("no time remaining")

// Clock abstracts wall time so tests can advance it by hand.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// State is a copy of the machine's observable state.
type State struct {
	Phase              Phase    `json:"phase"`
	RunState           RunState `json:"runState"`
	RemainingSeconds   int      `json:"remainingSeconds"`
	CompletedPomodoros int64    `json:"completedPomodoros"`
	TotalFocusSeconds  int64    `json:"totalFocusSeconds"`
}

// Completion describes a phase that ran out.
type Completion struct {
	From               Phase
	To                 Phase
	CompletedPomodoros int64
}

// TickResult reports what a recompute changed.
type TickResult struct {
	// Elapsed is the number of whole seconds the countdown dropped by.
	Elapsed int
	// FocusBefore and FocusAfter bracket TotalFocusSeconds when the
	// elapsed time was focus time; they are equal otherwise.
	FocusBefore int64
	FocusAfter  int64
	// Completion is set when the countdown reached zero.
	Completion *Completion
}

// FocusAdded is the number of focus seconds credited by the tick.
func (r TickResult) FocusAdded() int64 {
	return r.FocusAfter - r.FocusBefore
}

// Machine is the timer state machine.
type Machine struct {
	clock    Clock
	settings settings.Settings
	state    State

	anchor     time.Time
	anchorLeft time.Duration
	left       time.Duration
}

// New creates a machine in the idle pomodoro phase.
func New(clock Clock, s settings.Settings) *Machine {
	if clock == nil {
		clock = SystemClock{}
	}
	m := &Machine{clock: clock, settings: s.Clamp()}
	m.enter(PhasePomodoro)
	return m
}

// State returns a copy of the current state. It does not recompute elapsed
// time; call Tick first when a fresh reading is needed.
func (m *Machine) State() State {
	return m.state
}

// Settings returns the settings the machine times phases with.
func (m *Machine) Settings() settings.Settings {
	return m.settings
}

// DurationSeconds is the configured length of phase p.
func (m *Machine) DurationSeconds(p Phase) int {
	return DurationSeconds(m.settings, p)
}

// DurationSeconds is the length of phase p under s.
func DurationSeconds(s settings.Settings, p Phase) int {
	switch p {
	case PhaseShortBreak:
		return s.ShortBreakDuration * 60
	case PhaseLongBreak:
		return s.LongBreakDuration * 60
	default:
		return s.PomodoroDuration * 60
	}
}

// Start begins or resumes the countdown. Valid from Idle or Paused.
func (m *Machine) Start() error {
	switch m.state.RunState {
	case Idle, Paused:
	default:
		return fmt.Errorf("start while %s: %w", m.state.RunState, ErrInvalidTransition)
	}
	if m.state.RemainingSeconds <= 0 {
		return ErrNoTimeRemaining
	}
	m.state.RunState = Running
	m.anchor = m.clock.Now()
	m.anchorLeft = m.left
	return nil
}

// Pause stops the countdown. Valid only while Running. Callers should Tick
// first so the seconds up to the pause are credited.
func (m *Machine) Pause() error {
	if m.state.RunState != Running {
		return fmt.Errorf("pause while %s: %w", m.state.RunState, ErrInvalidTransition)
	}
	m.left = m.leftAt(m.clock.Now())
	m.state.RunState = Paused
	return nil
}

// Reset returns to an idle pomodoro with a full countdown. Lifetime
// counters are untouched.
func (m *Machine) Reset() {
	m.enter(PhasePomodoro)
}

// SwitchPhase enters p as if its phase had just begun.
func (m *Machine) SwitchPhase(p Phase) {
	m.enter(p)
}

// Tick recomputes the countdown from the wall clock. It is a no-op unless
// Running. When the countdown reaches zero the phase completes within the
// same call, so at most one completion happens per expiry.
func (m *Machine) Tick() TickResult {
	res := TickResult{FocusBefore: m.state.TotalFocusSeconds, FocusAfter: m.state.TotalFocusSeconds}
	if m.state.RunState != Running {
		return res
	}

	remaining := wholeSeconds(m.leftAt(m.clock.Now()))
	delta := m.state.RemainingSeconds - remaining
	if delta <= 0 {
		return res
	}

	m.state.RemainingSeconds = remaining
	res.Elapsed = delta
	if m.state.Phase == PhasePomodoro {
		m.state.TotalFocusSeconds += int64(delta)
		res.FocusAfter = m.state.TotalFocusSeconds
	}

	if remaining == 0 {
		c := m.CompletePhase()
		res.Completion = &c
	}
	return res
}

// CompletePhase ends the current phase and enters the next one, idle.
// After a pomodoro the next phase is a long break every LongBreakInterval
// completions and a short break otherwise; after a break it is a pomodoro.
func (m *Machine) CompletePhase() Completion {
	from := m.state.Phase
	next := PhasePomodoro
	if from == PhasePomodoro {
		m.state.CompletedPomodoros++
		next = NextBreak(m.state.CompletedPomodoros, m.settings.LongBreakInterval)
	}
	m.enter(next)
	return Completion{From: from, To: next, CompletedPomodoros: m.state.CompletedPomodoros}
}

// NextBreak picks the break that follows the completed-th pomodoro.
func NextBreak(completed int64, interval int) Phase {
	if interval < 1 {
		interval = 1
	}
	if completed%int64(interval) == 0 {
		return PhaseLongBreak
	}
	return PhaseShortBreak
}

// SetSettings swaps the durations. An idle countdown is re-armed with the
// new duration; a running or paused one keeps its remaining time and the
// new durations apply from the next phase.
func (m *Machine) SetSettings(s settings.Settings) {
	m.settings = s.Clamp()
	if m.state.RunState == Idle {
		m.state.RemainingSeconds = m.DurationSeconds(m.state.Phase)
		m.left = time.Duration(m.state.RemainingSeconds) * time.Second
	}
}

// SetCounters overwrites the lifetime counters from a remote snapshot.
func (m *Machine) SetCounters(completedPomodoros, totalFocusSeconds int64) {
	if completedPomodoros < 0 {
		completedPomodoros = 0
	}
	if totalFocusSeconds < 0 {
		totalFocusSeconds = 0
	}
	m.state.CompletedPomodoros = completedPomodoros
	m.state.TotalFocusSeconds = totalFocusSeconds
}

// RoundPosition is how many pomodoros of the current long-break round are
// done, used by the session indicator dots.
func (m *Machine) RoundPosition() int {
	interval := m.settings.LongBreakInterval
	if interval < 1 {
		return 0
	}
	return int(m.state.CompletedPomodoros % int64(interval))
}

func (m *Machine) enter(p Phase) {
	m.state.Phase = p
	m.state.RunState = Idle
	m.state.RemainingSeconds = m.DurationSeconds(p)
	m.left = time.Duration(m.state.RemainingSeconds) * time.Second
	m.anchor = time.Time{}
	m.anchorLeft = 0
}

// leftAt is the exact time left at now while Running, floored at zero.
func (m *Machine) leftAt(now time.Time) time.Duration {
	elapsed := now.Sub(m.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	left := m.anchorLeft - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// wholeSeconds rounds d up, so a countdown shows 25:00 until a full
// second has passed.
func wholeSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// FormatRemaining renders seconds as "MM : SS".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d : %02d", seconds/60, seconds%60)
}
