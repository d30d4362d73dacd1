// Package settings holds the timer durations and long-break cadence.
//
// Every value that leaves this package has been clamped into its Bounds:
// out-of-range input is never rejected or ignored, it is pulled to the
// nearest valid value and that value is what gets persisted.
package settings

import (
	"fmt"

	"github.com/roach88/pomoflo/internal/remote"
)

// Document keys inside the remote "settings" object.
const (
	KeyPomodoro   = "pomodoroDuration"
	KeyShortBreak = "shortBreakDuration"
	KeyLongBreak  = "longBreakDuration"
	KeyInterval   = "longBreakInterval"
)

// Bounds is an inclusive range.
type Bounds struct {
	Min int
	Max int
}

// Clamp pulls v into [Min, Max].
func (b Bounds) Clamp(v int) int {
	if v < b.Min {
		return b.Min
	}
	if v > b.Max {
		return b.Max
	}
	return v
}

// Valid ranges. Durations are minutes; the interval counts pomodoros.
var (
	PomodoroBounds   = Bounds{Min: 5, Max: 90}
	ShortBreakBounds = Bounds{Min: 1, Max: 30}
	LongBreakBounds  = Bounds{Min: 5, Max: 60}
	IntervalBounds   = Bounds{Min: 1, Max: 10}
)

// Settings are the user's timer preferences.
type Settings struct {
	PomodoroDuration   int `json:"pomodoroDuration" yaml:"pomodoro"`
	ShortBreakDuration int `json:"shortBreakDuration" yaml:"short_break"`
	LongBreakDuration  int `json:"longBreakDuration" yaml:"long_break"`
	LongBreakInterval  int `json:"longBreakInterval" yaml:"interval"`
}

// Default returns 25/5/15 minutes with a long break every fourth pomodoro.
func Default() Settings {
	return Settings{
		PomodoroDuration:   25,
		ShortBreakDuration: 5,
		LongBreakDuration:  15,
		LongBreakInterval:  4,
	}
}

// Clamp returns s with every field inside its bounds.
func (s Settings) Clamp() Settings {
	return Settings{
		PomodoroDuration:   PomodoroBounds.Clamp(s.PomodoroDuration),
		ShortBreakDuration: ShortBreakBounds.Clamp(s.ShortBreakDuration),
		LongBreakDuration:  LongBreakBounds.Clamp(s.LongBreakDuration),
		LongBreakInterval:  IntervalBounds.Clamp(s.LongBreakInterval),
	}
}

// Fields renders s as the remote "settings" object.
func (s Settings) Fields() map[string]any {
	return map[string]any{
		KeyPomodoro:   int64(s.PomodoroDuration),
		KeyShortBreak: int64(s.ShortBreakDuration),
		KeyLongBreak:  int64(s.LongBreakDuration),
		KeyInterval:   int64(s.LongBreakInterval),
	}
}

func (s Settings) String() string {
	return fmt.Sprintf("pomodoro=%dm short=%dm long=%dm interval=%d",
		s.PomodoroDuration, s.ShortBreakDuration, s.LongBreakDuration, s.LongBreakInterval)
}

// FromFields decodes a remote "settings" object. Missing or malformed keys
// fall back to base; the result is clamped.
func FromFields(m map[string]any, base Settings) Settings {
	out := base
	if v, ok := remote.AsInt(m[KeyPomodoro]); ok {
		out.PomodoroDuration = int(v)
	}
	if v, ok := remote.AsInt(m[KeyShortBreak]); ok {
		out.ShortBreakDuration = int(v)
	}
	if v, ok := remote.AsInt(m[KeyLongBreak]); ok {
		out.LongBreakDuration = int(v)
	}
	if v, ok := remote.AsInt(m[KeyInterval]); ok {
		out.LongBreakInterval = int(v)
	}
	return out.Clamp()
}

// Partial is a user edit; nil fields are left unchanged.
type Partial struct {
	PomodoroDuration   *int
	ShortBreakDuration *int
	LongBreakDuration  *int
	LongBreakInterval  *int
}

// IsZero reports whether the edit changes nothing.
func (p Partial) IsZero() bool {
	return p.PomodoroDuration == nil && p.ShortBreakDuration == nil &&
		p.LongBreakDuration == nil && p.LongBreakInterval == nil
}

// Apply overlays p on s and clamps the result.
func (s Settings) Apply(p Partial) Settings {
	out := s
	if p.PomodoroDuration != nil {
		out.PomodoroDuration = *p.PomodoroDuration
	}
	if p.ShortBreakDuration != nil {
		out.ShortBreakDuration = *p.ShortBreakDuration
	}
	if p.LongBreakDuration != nil {
		out.LongBreakDuration = *p.LongBreakDuration
	}
	if p.LongBreakInterval != nil {
		out.LongBreakInterval = *p.LongBreakInterval
	}
	return out.Clamp()
}

// Set assigns one field by its document key or a short alias
// (pomodoro, short, long, interval). Used by line-oriented input.
func (p *Partial) Set(key string, value int) error {
	v := value
	switch key {
	case KeyPomodoro, "pomodoro":
		p.PomodoroDuration = &v
	case KeyShortBreak, "short", "shortBreak", "short_break":
		p.ShortBreakDuration = &v
	case KeyLongBreak, "long", "longBreak", "long_break":
		p.LongBreakDuration = &v
	case KeyInterval, "interval":
		p.LongBreakInterval = &v
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	return nil
}

// Store holds the current settings. It is owned by the engine goroutine
// and is not safe for concurrent use.
type Store struct {
	current Settings
}

// NewStore creates a store seeded with initial (clamped).
func NewStore(initial Settings) *Store {
	return &Store{current: initial.Clamp()}
}

// Current returns the active settings.
func (s *Store) Current() Settings {
	return s.current
}

// Update applies a user edit. It returns the accepted (clamped) settings and
// whether anything changed.
func (s *Store) Update(p Partial) (Settings, bool) {
	return s.Replace(s.current.Apply(p))
}

// Replace swaps in next (clamped) wholesale, as a remote snapshot does.
func (s *Store) Replace(next Settings) (Settings, bool) {
	next = next.Clamp()
	if next == s.current {
		return s.current, false
	}
	s.current = next
	return next, true
}
