package engine

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/sound"
)

// Start triggers reported in started and paused events.
const (
	TriggerManual     = "manual"
	TriggerMotion     = "motion"
	TriggerQuickStart = "quick_start"
)

// Reasons reported in phase_changed events.
const (
	ReasonCompleted  = "completed"
	ReasonSwitched   = "switched"
	ReasonQuickStart = "quick_start"
)

func (e *Engine) apply(ev *recorder, cmd Command) error {
	switch cmd.Kind {
	case CmdTick:
		return nil
	case CmdStart:
		return e.start(ev, CmdStart, TriggerManual)
	case CmdPause:
		return e.pause(ev, CmdPause, TriggerManual)
	case CmdReset:
		e.machine.Reset()
		st := e.machine.State()
		ev.local(EventReset, map[string]any{
			"phase":            string(st.Phase),
			"remainingSeconds": int64(st.RemainingSeconds),
		})
		return nil
	case CmdSwitchPhase:
		p, err := session.ParsePhase(string(cmd.Phase))
		if err != nil {
			return fmt.Errorf("switch phase: %w", err)
		}
		e.switchPhase(ev, p, ReasonSwitched)
		return nil
	case CmdQuickStart:
		return e.quickStart(ev)
	case CmdUpdateSettings:
		return e.updateSettings(ev, cmd)
	case CmdSelectSound:
		return e.selectSound(ev, cmd.SoundID, OriginLocal)
	case CmdToggleSound:
		sel := e.sound.Selection()
		if sel.Playing && sel.SelectedID == cmd.SoundID {
			return e.stopSound(ev, OriginLocal)
		}
		return e.selectSound(ev, cmd.SoundID, OriginLocal)
	case CmdStopSound:
		return e.stopSound(ev, OriginLocal)
	case CmdSetMotion:
		e.setMotion(ev, cmd.Enabled, OriginLocal)
		return nil
	case CmdToggleMotion:
		e.setMotion(ev, !e.motion.Enabled(), OriginLocal)
		return nil
	case CmdMotionSample:
		return e.motionSample(ev, cmd.Sample)
	case CmdApplySnapshot:
		if cmd.Remote == nil {
			return nil
		}
		e.applySnapshot(ev, *cmd.Remote)
		return nil
	case CmdReportSyncFailure:
		msg := "unknown error"
		if cmd.Err != nil {
			msg = cmd.Err.Error()
		}
		ev.local(EventSyncFailed, map[string]any{"error": msg})
		return nil
	default:
		return NewUnknownCommandError(cmd.Kind)
	}
}

// advance recomputes the countdown and emits the progress it implies.
func (e *Engine) advance(ev *recorder) {
	res := e.machine.Tick()
	now := e.clock.Now()

	if n := res.FocusAdded(); n > 0 {
		e.progress.AddFocus(now, n)
		ev.local(EventFocusAdded, map[string]any{
			"seconds":           n,
			"totalFocusSeconds": res.FocusAfter,
		})
		if awarded := e.rewards.Award(res.FocusBefore, res.FocusAfter); awarded > 0 {
			ev.local(EventPointsAwarded, map[string]any{
				"awarded": awarded,
				"points":  e.rewards.Points(),
			})
		}
	}

	c := res.Completion
	if c == nil {
		return
	}
	if c.From == session.PhasePomodoro {
		e.progress.AddPomodoro(now)
		ev.local(EventPomodoroCompleted, map[string]any{
			"completedPomodoros": c.CompletedPomodoros,
		})
	}
	ev.local(EventPhaseChanged, map[string]any{
		"from":             string(c.From),
		"to":               string(c.To),
		"reason":           ReasonCompleted,
		"remainingSeconds": int64(e.machine.State().RemainingSeconds),
	})
}

func (e *Engine) start(ev *recorder, kind CommandKind, trigger string) error {
	if err := e.machine.Start(); err != nil {
		return NewTransitionError(kind, err)
	}
	st := e.machine.State()
	ev.local(EventStarted, map[string]any{
		"phase":            string(st.Phase),
		"remainingSeconds": int64(st.RemainingSeconds),
		"trigger":          trigger,
	})
	return nil
}

func (e *Engine) pause(ev *recorder, kind CommandKind, trigger string) error {
	if err := e.machine.Pause(); err != nil {
		return NewTransitionError(kind, err)
	}
	st := e.machine.State()
	ev.local(EventPaused, map[string]any{
		"phase":            string(st.Phase),
		"remainingSeconds": int64(st.RemainingSeconds),
		"trigger":          trigger,
	})
	return nil
}

func (e *Engine) switchPhase(ev *recorder, p session.Phase, reason string) {
	from := e.machine.State().Phase
	e.machine.SwitchPhase(p)
	ev.local(EventPhaseChanged, map[string]any{
		"from":             string(from),
		"to":               string(p),
		"reason":           reason,
		"remainingSeconds": int64(e.machine.State().RemainingSeconds),
	})
}

// quickStart jumps straight into a running pomodoro. It is a no-op when a
// pomodoro is already running.
func (e *Engine) quickStart(ev *recorder) error {
	st := e.machine.State()
	if st.Phase == session.PhasePomodoro && st.RunState == session.Running {
		return nil
	}
	e.switchPhase(ev, session.PhasePomodoro, ReasonQuickStart)
	return e.start(ev, CmdQuickStart, TriggerQuickStart)
}

func (e *Engine) updateSettings(ev *recorder, cmd Command) error {
	if cmd.Settings.IsZero() {
		return nil
	}
	next, changed := e.settings.Update(cmd.Settings)
	if !changed {
		return nil
	}
	e.machine.SetSettings(next)
	ev.local(EventSettingsChanged, map[string]any{
		"settings":         next.Fields(),
		"remainingSeconds": int64(e.machine.State().RemainingSeconds),
	})
	return nil
}

func (e *Engine) selectSound(ev *recorder, id string, origin Origin) error {
	prev := e.sound.Selection()
	_, err := e.sound.Select(id)
	e.soundTransition(ev, prev, e.sound.Selection(), origin)
	if err != nil {
		ev.add(EventSoundFailed, origin, map[string]any{
			"soundId": id,
			"error":   err.Error(),
		})
		return fmt.Errorf("select sound: %w", err)
	}
	return nil
}

func (e *Engine) stopSound(ev *recorder, origin Origin) error {
	prev := e.sound.Selection()
	_, err := e.sound.Stop()
	e.soundTransition(ev, prev, e.sound.Selection(), origin)
	return err
}

// soundTransition emits the events that describe moving from prev to next.
func (e *Engine) soundTransition(ev *recorder, prev, next sound.Selection, origin Origin) {
	if prev.Playing && (!next.Playing || next.SelectedID != prev.SelectedID) {
		ev.add(EventSoundStopped, origin, map[string]any{"soundId": prev.SelectedID})
	}
	if next.SelectedID != prev.SelectedID || (next.Playing && !prev.Playing) {
		ev.add(EventSoundSelected, origin, map[string]any{
			"soundId": next.SelectedID,
			"playing": next.Playing,
		})
	}
}

func (e *Engine) setMotion(ev *recorder, on bool, origin Origin) bool {
	if !e.motion.SetEnabled(on) {
		return false
	}
	ev.add(EventMotionChanged, origin, map[string]any{"enabled": on})
	return true
}

func (e *Engine) motionSample(ev *recorder, s motion.Sample) error {
	d := e.motion.Evaluate(s, e.machine.State().RunState, e.clock.Now())
	if d.Action == motion.None {
		return nil
	}
	ev.local(EventMotionTriggered, map[string]any{
		"action": d.Action.String(),
		"reason": string(d.Reason),
	})
	switch d.Action {
	case motion.Start:
		return e.start(ev, CmdMotionSample, TriggerMotion)
	case motion.Pause:
		return e.pause(ev, CmdMotionSample, TriggerMotion)
	}
	return nil
}

// applySnapshot overwrites local state with every field present in r. Only
// fields whose value actually changed produce events, all tagged
// OriginRemote.
func (e *Engine) applySnapshot(ev *recorder, r RemoteState) {
	var changed []any

	if r.Settings != nil {
		if next, ok := e.settings.Replace(*r.Settings); ok {
			e.machine.SetSettings(next)
			ev.add(EventSettingsChanged, OriginRemote, map[string]any{
				"settings":         next.Fields(),
				"remainingSeconds": int64(e.machine.State().RemainingSeconds),
			})
			changed = append(changed, remote.FieldSettings)
		}
	}

	st := e.machine.State()
	completed, focus := st.CompletedPomodoros, st.TotalFocusSeconds
	if r.CompletedPomodoros != nil && nonNegative(*r.CompletedPomodoros) != completed {
		completed = nonNegative(*r.CompletedPomodoros)
		changed = append(changed, remote.FieldCompletedPomodoros)
	}
	if r.TotalFocusSeconds != nil && nonNegative(*r.TotalFocusSeconds) != focus {
		focus = nonNegative(*r.TotalFocusSeconds)
		changed = append(changed, remote.FieldTotalFocusSeconds)
	}
	if completed != st.CompletedPomodoros || focus != st.TotalFocusSeconds {
		e.machine.SetCounters(completed, focus)
	}

	if r.Points != nil && nonNegative(*r.Points) != e.rewards.Points() {
		e.rewards.Set(*r.Points)
		changed = append(changed, remote.FieldPoints)
	}

	if r.HasProgress && e.progress.Replace(e.clock.Now(), r.DailyProgress) {
		changed = append(changed, remote.FieldDailyProgress)
	}

	if r.SuperFocus != nil && e.setMotion(ev, *r.SuperFocus, OriginRemote) {
		changed = append(changed, remote.FieldSuperFocusMode)
	}

	if r.SelectedSound != nil && e.applyRemoteSound(ev, *r.SelectedSound) {
		changed = append(changed, remote.FieldSelectedSound)
	}

	if len(changed) > 0 {
		ev.add(EventSnapshotApplied, OriginRemote, map[string]any{"fields": changed})
	}
}

// applyRemoteSound follows a remote selection. Playback switches only when
// something is already playing; otherwise just the selection moves.
func (e *Engine) applyRemoteSound(ev *recorder, id string) bool {
	if sound.IsNone(id) {
		id = ""
	}
	sel := e.sound.Selection()
	if id == sel.SelectedID {
		return false
	}
	if _, known := e.sound.Catalog()[id]; id != "" && !known {
		slog.Warn("remote selected unknown sound", "sound", id)
		ev.add(EventSoundFailed, OriginRemote, map[string]any{
			"soundId": id,
			"error":   sound.ErrUnknownSound.Error(),
		})
		return false
	}

	if sel.Playing {
		if err := e.selectSound(ev, id, OriginRemote); err != nil && !errors.Is(err, sound.ErrUnknownSound) {
			slog.Warn("remote sound switch failed", "sound", id, "error", err)
		}
		return true
	}
	e.sound.SetSelected(id)
	ev.add(EventSoundSelected, OriginRemote, map[string]any{
		"soundId": id,
		"playing": false,
	})
	return true
}

func nonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
