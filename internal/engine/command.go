package engine

import (
	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/progress"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
)

// CommandKind identifies a mutation.
type CommandKind string

const (
	CmdStart             CommandKind = "start"
	CmdPause             CommandKind = "pause"
	CmdReset             CommandKind = "reset"
	CmdSwitchPhase       CommandKind = "switch_phase"
	CmdQuickStart        CommandKind = "quick_start"
	CmdTick              CommandKind = "tick"
	CmdUpdateSettings    CommandKind = "update_settings"
	CmdSelectSound       CommandKind = "select_sound"
	CmdToggleSound       CommandKind = "toggle_sound"
	CmdStopSound         CommandKind = "stop_sound"
	CmdSetMotion         CommandKind = "set_motion"
	CmdToggleMotion      CommandKind = "toggle_motion"
	CmdMotionSample      CommandKind = "motion_sample"
	CmdApplySnapshot     CommandKind = "apply_snapshot"
	CmdReportSyncFailure CommandKind = "report_sync_failure"
)

// Command is one unit of work for the loop. Only the fields relevant to
// Kind are read.
type Command struct {
	Kind     CommandKind
	Phase    session.Phase
	Settings settings.Partial
	SoundID  string
	Enabled  bool
	Sample   motion.Sample
	Remote   *RemoteState
	Err      error

	reply chan Result
}

// RemoteState is a decoded remote document. Nil fields were absent (or
// suppressed as echoes) and leave local state untouched.
type RemoteState struct {
	Settings           *settings.Settings
	Points             *int64
	CompletedPomodoros *int64
	TotalFocusSeconds  *int64
	SelectedSound      *string
	SuperFocus         *bool
	DailyProgress      []progress.Day
	HasProgress        bool
}

// IsZero reports whether the snapshot carries no fields.
func (r RemoteState) IsZero() bool {
	return r.Settings == nil && r.Points == nil && r.CompletedPomodoros == nil &&
		r.TotalFocusSeconds == nil && r.SelectedSound == nil && r.SuperFocus == nil && !r.HasProgress
}

// Result is what processing a command produced.
type Result struct {
	Events []Event
	View   View
	Err    error
}

func Start() Command      { return Command{Kind: CmdStart} }
func Pause() Command      { return Command{Kind: CmdPause} }
func Reset() Command      { return Command{Kind: CmdReset} }
func QuickStart() Command { return Command{Kind: CmdQuickStart} }
func Tick() Command       { return Command{Kind: CmdTick} }
func StopSound() Command  { return Command{Kind: CmdStopSound} }

// ToggleMotion flips Super Focus Mode.
func ToggleMotion() Command { return Command{Kind: CmdToggleMotion} }

// SwitchPhase enters p with a full, idle countdown.
func SwitchPhase(p session.Phase) Command {
	return Command{Kind: CmdSwitchPhase, Phase: p}
}

// UpdateSettings applies a user edit; values are clamped.
func UpdateSettings(p settings.Partial) Command {
	return Command{Kind: CmdUpdateSettings, Settings: p}
}

// SelectSound plays id ("" or "none" stops and clears the selection).
func SelectSound(id string) Command {
	return Command{Kind: CmdSelectSound, SoundID: id}
}

// ToggleSound stops id when it is the sound playing and selects it otherwise.
func ToggleSound(id string) Command {
	return Command{Kind: CmdToggleSound, SoundID: id}
}

// SetMotion turns Super Focus Mode on or off.
func SetMotion(enabled bool) Command {
	return Command{Kind: CmdSetMotion, Enabled: enabled}
}

// MotionSample feeds one accelerometer reading.
func MotionSample(s motion.Sample) Command {
	return Command{Kind: CmdMotionSample, Sample: s}
}

// ApplySnapshot applies a remote document.
func ApplySnapshot(r RemoteState) Command {
	return Command{Kind: CmdApplySnapshot, Remote: &r}
}

// ReportSyncFailure records a failed remote write or subscription error.
func ReportSyncFailure(err error) Command {
	return Command{Kind: CmdReportSyncFailure, Err: err}
}
