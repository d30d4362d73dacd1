package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/reward"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/sound"
)

// Notification is a short message for the user about one event.
type Notification struct {
	Title       string
	Description string
}

func (n Notification) String() string {
	if n.Description == "" {
		return n.Title
	}
	return n.Title + ": " + n.Description
}

// Notify maps an event to the message shown for it. Events nobody needs
// to hear about return false.
func Notify(ev engine.Event) (Notification, bool) {
	switch ev.Type {
	case engine.EventStarted:
		switch ev.String("trigger") {
		case engine.TriggerManual:
			return Notification{Title: "Timer Started"}, true
		case engine.TriggerQuickStart:
			return Notification{Title: "Quick Start", Description: "Starting Pomodoro!"}, true
		}
		// Motion starts are announced by motion_triggered.
		return Notification{}, false

	case engine.EventPaused:
		if ev.String("trigger") == engine.TriggerManual {
			return Notification{Title: "Timer Paused"}, true
		}
		return Notification{}, false

	case engine.EventReset:
		return Notification{Title: "Timer Reset"}, true

	case engine.EventPhaseChanged:
		if ev.String("reason") != engine.ReasonCompleted {
			return Notification{}, false
		}
		switch session.Phase(ev.String("to")) {
		case session.PhaseShortBreak:
			return Notification{Title: "Short Break", Description: "Take a short break. Breathe and relax."}, true
		case session.PhaseLongBreak:
			return Notification{Title: "Long Break", Description: "Time for a longer break. You've earned it!"}, true
		default:
			return Notification{Title: "Focus", Description: "Back to work."}, true
		}

	case engine.EventPomodoroCompleted:
		return Notification{
			Title:       "Pomodoro Completed!",
			Description: fmt.Sprintf("You've done %d sessions.", ev.Int("completedPomodoros")),
		}, true

	case engine.EventPointsAwarded:
		n := ev.Int("awarded")
		title := fmt.Sprintf("+%d Point Earned!", n)
		if n != 1 {
			title = fmt.Sprintf("+%d Points Earned!", n)
		}
		return Notification{
			Title:       title,
			Description: fmt.Sprintf("%d minutes of focus time.", n*reward.IntervalSeconds/60),
		}, true

	case engine.EventSettingsChanged:
		return Notification{Title: "Settings Saved", Description: "Your timer settings have been updated."}, true

	case engine.EventSoundSelected:
		if ev.Origin == engine.OriginRemote && !ev.Bool("playing") {
			return Notification{
				Title:       "Sound Selected",
				Description: fmt.Sprintf("%s was picked on another device.", ev.String("soundId")),
			}, true
		}
		return Notification{
			Title:       "Sound Selected",
			Description: fmt.Sprintf("%s will play during your focus sessions.", ev.String("soundId")),
		}, true

	case engine.EventSoundStopped:
		return Notification{Title: "Sound Stopped"}, true

	case engine.EventSoundFailed:
		return Notification{
			Title:       "Sound Unavailable",
			Description: fmt.Sprintf("%s could not be played.", ev.String("soundId")),
		}, true

	case engine.EventMotionChanged:
		if ev.Bool("enabled") {
			return Notification{Title: "Super Focus On", Description: "Flip your phone face down to auto-start the timer."}, true
		}
		return Notification{Title: "Super Focus Off", Description: "Motion-based trigger disabled."}, true

	case engine.EventMotionTriggered:
		switch motion.Reason(ev.String("reason")) {
		case motion.ReasonFaceDown:
			return Notification{Title: "Super Focus Activated", Description: "Face down detected. Timer started."}, true
		case motion.ReasonFaceUp:
			return Notification{Title: "Face Up Detected", Description: "Phone flipped. Timer paused."}, true
		case motion.ReasonExcessiveMotion:
			return Notification{Title: "Too Much Motion", Description: "Calm down! You're moving too much. Timer paused."}, true
		}
		return Notification{}, false

	case engine.EventSyncFailed:
		return Notification{Title: "Sync Failed", Description: ev.String("error")}, true
	}
	return Notification{}, false
}

// Notifier prints a line for every notification. Observe is registered as
// an engine listener.
type Notifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewNotifier writes notifications to w.
func NewNotifier(w io.Writer) *Notifier {
	return &Notifier{w: w}
}

// Observe prints the notifications for one batch.
func (n *Notifier) Observe(b engine.Batch) {
	for _, ev := range b.Events {
		if msg, ok := Notify(ev); ok {
			n.Println(msg.String())
		}
	}
}

// Println writes one line, serialised with notifications.
func (n *Notifier) Println(line string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, line)
}

// formatStatus renders the view for the status command.
func formatStatus(v engine.View) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s  (%s)\n", v.Phase.Label(), v.Remaining(), v.RunState)
	fmt.Fprintf(&b, "round %d/%d  pomodoros %d  points %d\n",
		v.RoundPosition, v.Settings.LongBreakInterval, v.CompletedPomodoros, v.Points)
	fmt.Fprintf(&b, "focus today %dm  pomodoros today %d\n", v.Today.FocusSeconds/60, v.Today.Pomodoros)
	if len(v.Week) > 0 {
		bars := make([]string, len(v.Week))
		for i, d := range v.Week {
			bars[i] = fmt.Sprintf("%dm", d.FocusSeconds/60)
		}
		fmt.Fprintf(&b, "week %s  (%dm, %d pomodoros, %d/%d days active)\n",
			strings.Join(bars, " "), v.WeekTotals.FocusSeconds/60, v.WeekTotals.Pomodoros,
			v.WeekTotals.ActiveDays, v.WeekTotals.Days)
	}
	fmt.Fprintf(&b, "lifetime focus %dm\n", v.TotalFocusSeconds/60)

	snd := "none"
	if !sound.IsNone(v.Sound.SelectedID) {
		snd = v.Sound.SelectedID
		if v.Sound.Playing {
			snd += " (playing)"
		}
	}
	focus := "off"
	if v.SuperFocus {
		focus = "on"
	}
	fmt.Fprintf(&b, "sound %s  super focus %s\n", snd, focus)
	fmt.Fprintf(&b, "settings %s", v.Settings)
	return b.String()
}
