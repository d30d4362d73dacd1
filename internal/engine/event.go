package engine

import (
	"time"

	"github.com/roach88/pomoflo/internal/remote"
)

// EventType names what happened.
type EventType string

const (
	EventStarted           EventType = "started"
	EventPaused            EventType = "paused"
	EventReset             EventType = "reset"
	EventPhaseChanged      EventType = "phase_changed"
	EventPomodoroCompleted EventType = "pomodoro_completed"
	EventFocusAdded        EventType = "focus_added"
	EventPointsAwarded     EventType = "points_awarded"
	EventSettingsChanged   EventType = "settings_changed"
	EventSoundSelected     EventType = "sound_selected"
	EventSoundStopped      EventType = "sound_stopped"
	EventSoundFailed       EventType = "sound_failed"
	EventMotionChanged     EventType = "motion_changed"
	EventMotionTriggered   EventType = "motion_triggered"
	EventSnapshotApplied   EventType = "snapshot_applied"
	EventSyncFailed        EventType = "sync_failed"
)

// Origin says whether an event came from local activity or from applying
// a remote snapshot.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Event is one observable state change.
type Event struct {
	Seq     int64          `json:"seq"`
	Session string         `json:"session"`
	Type    EventType      `json:"type"`
	Origin  Origin         `json:"origin"`
	At      time.Time      `json:"at"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Int reads an integer payload field.
func (e Event) Int(key string) int64 {
	n, _ := remote.AsInt(e.Fields[key])
	return n
}

// String reads a string payload field.
func (e Event) String(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Bool reads a boolean payload field.
func (e Event) Bool(key string) bool {
	b, _ := e.Fields[key].(bool)
	return b
}

// Batch is the events produced by one command together with the view
// after it was applied.
type Batch struct {
	Command CommandKind
	Events  []Event
	View    View
}

// Listener observes every batch. Listeners run on the loop goroutine and
// must not block or call Do.
type Listener func(Batch)
