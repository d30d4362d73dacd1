package reconcile

import (
	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/progress"
	"github.com/roach88/pomoflo/internal/remote"
	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/sound"
)

// DefaultDocument is the document created for a user seen for the first
// time.
func DefaultDocument(s settings.Settings) remote.Document {
	return remote.Document{
		remote.FieldSettings:           s.Clamp().Fields(),
		remote.FieldPoints:             int64(0),
		remote.FieldCompletedPomodoros: int64(0),
		remote.FieldTotalFocusSeconds:  int64(0),
		remote.FieldSelectedSound:      "",
		remote.FieldSuperFocusMode:     false,
		remote.FieldDailyProgress:      []any{},
	}
}

// FromView renders every mirrored field of v.
func FromView(v engine.View) remote.Document {
	return remote.Document{
		remote.FieldSettings:           v.Settings.Fields(),
		remote.FieldPoints:             v.Points,
		remote.FieldCompletedPomodoros: v.CompletedPomodoros,
		remote.FieldTotalFocusSeconds:  v.TotalFocusSeconds,
		remote.FieldSelectedSound:      v.Sound.SelectedID,
		remote.FieldSuperFocusMode:     v.SuperFocus,
		remote.FieldDailyProgress:      progress.Value(v.Progress),
	}
}

// FieldsFor maps one local event to the document fields it changed, read
// from the view taken after the event's command. Events that change no
// mirrored field return nil.
func FieldsFor(ev engine.Event, v engine.View) remote.Document {
	switch ev.Type {
	case engine.EventSettingsChanged:
		return remote.Document{remote.FieldSettings: v.Settings.Fields()}
	case engine.EventPointsAwarded:
		return remote.Document{remote.FieldPoints: v.Points}
	case engine.EventFocusAdded:
		return remote.Document{
			remote.FieldTotalFocusSeconds: v.TotalFocusSeconds,
			remote.FieldDailyProgress:     progress.Value(v.Progress),
		}
	case engine.EventPomodoroCompleted:
		return remote.Document{
			remote.FieldCompletedPomodoros: v.CompletedPomodoros,
			remote.FieldTotalFocusSeconds:  v.TotalFocusSeconds,
			remote.FieldDailyProgress:      progress.Value(v.Progress),
		}
	case engine.EventSoundSelected:
		return remote.Document{remote.FieldSelectedSound: v.Sound.SelectedID}
	case engine.EventMotionChanged:
		return remote.Document{remote.FieldSuperFocusMode: v.SuperFocus}
	default:
		return nil
	}
}

// Decode reads the mirrored fields of doc. Absent or mistyped fields are
// left nil so the engine keeps its local value. Missing keys inside the
// settings object fall back to the defaults.
func Decode(doc remote.Document) engine.RemoteState {
	var r engine.RemoteState
	if m, ok := doc.Map(remote.FieldSettings); ok {
		s := settings.FromFields(m, settings.Default())
		r.Settings = &s
	}
	if n, ok := doc.Int(remote.FieldPoints); ok {
		r.Points = &n
	}
	if n, ok := doc.Int(remote.FieldCompletedPomodoros); ok {
		r.CompletedPomodoros = &n
	}
	if n, ok := doc.Int(remote.FieldTotalFocusSeconds); ok {
		r.TotalFocusSeconds = &n
	}
	if id, ok := doc.String(remote.FieldSelectedSound); ok {
		if sound.IsNone(id) {
			id = ""
		}
		r.SelectedSound = &id
	}
	if b, ok := doc.Bool(remote.FieldSuperFocusMode); ok {
		r.SuperFocus = &b
	}
	if days, ok := progress.FromValue(doc[remote.FieldDailyProgress]); ok {
		r.DailyProgress = days
		r.HasProgress = true
	}
	return r
}
