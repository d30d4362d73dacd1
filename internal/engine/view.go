package engine

import (
	"github.com/roach88/pomoflo/internal/progress"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
	"github.com/roach88/pomoflo/internal/sound"
)

// WeekDays is how many days View.Week covers.
const WeekDays = 7

// View is a read-only copy of everything the engine owns, for display and
// for building remote documents.
type View struct {
	Session            string            `json:"session"`
	Phase              session.Phase     `json:"phase"`
	RunState           session.RunState  `json:"runState"`
	RemainingSeconds   int               `json:"remainingSeconds"`
	CompletedPomodoros int64             `json:"completedPomodoros"`
	TotalFocusSeconds  int64             `json:"totalFocusSeconds"`
	RoundPosition      int               `json:"roundPosition"`
	Points             int64             `json:"points"`
	Settings           settings.Settings `json:"settings"`
	Sound              sound.Selection   `json:"sound"`
	SuperFocus         bool              `json:"superFocusMode"`
	Today              progress.Day      `json:"today"`
	Week               []progress.Day    `json:"week"`
	WeekTotals         progress.Totals   `json:"weekTotals"`
	Progress           []progress.Day    `json:"-"`
}

// Remaining renders the countdown as "MM : SS".
func (v View) Remaining() string {
	return session.FormatRemaining(v.RemainingSeconds)
}

func (e *Engine) buildView() View {
	st := e.machine.State()
	now := e.clock.Now()
	return View{
		Session:            e.sessionID,
		Phase:              st.Phase,
		RunState:           st.RunState,
		RemainingSeconds:   st.RemainingSeconds,
		CompletedPomodoros: st.CompletedPomodoros,
		TotalFocusSeconds:  st.TotalFocusSeconds,
		RoundPosition:      e.machine.RoundPosition(),
		Points:             e.rewards.Points(),
		Settings:           e.settings.Current(),
		Sound:              e.sound.Selection(),
		SuperFocus:         e.motion.Enabled(),
		Today:              e.progress.Today(now),
		Week:               e.progress.Range(now, WeekDays),
		WeekTotals:         e.progress.Totals(now, WeekDays),
		Progress:           e.progress.Days(),
	}
}
