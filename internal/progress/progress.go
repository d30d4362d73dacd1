// Package progress keeps per-day focus totals for the progress view.
//
// Days are keyed by calendar date in the clock's location. Only the most
// recent RetainDays days are kept; older entries are dropped whenever the
// ledger is written.
package progress

import (
	"sort"
	"time"

	"github.com/roach88/pomoflo/internal/remote"
)

// DateLayout is the format of Day.Date.
const DateLayout = "2006-01-02"

// RetainDays is how many calendar days are kept.
const RetainDays = 90

// Day is one calendar day of activity.
type Day struct {
	Date         string `json:"date"`
	FocusSeconds int64  `json:"focusSeconds"`
	Pomodoros    int64  `json:"pomodoros"`
}

// Totals sums a range of days.
type Totals struct {
	Days         int   `json:"days"`
	ActiveDays   int   `json:"activeDays"`
	FocusSeconds int64 `json:"focusSeconds"`
	Pomodoros    int64 `json:"pomodoros"`
}

// Ledger is not safe for concurrent use.
type Ledger struct {
	days map[string]Day
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{days: make(map[string]Day)}
}

// AddFocus credits seconds of focus to the day containing now.
func (l *Ledger) AddFocus(now time.Time, seconds int64) {
	if seconds <= 0 {
		return
	}
	d := l.day(now)
	d.FocusSeconds += seconds
	l.put(now, d)
}

// AddPomodoro counts one completed pomodoro on the day containing now.
func (l *Ledger) AddPomodoro(now time.Time) {
	d := l.day(now)
	d.Pomodoros++
	l.put(now, d)
}

// Today returns the entry for the day containing now.
func (l *Ledger) Today(now time.Time) Day {
	return l.day(now)
}

// Range returns the days ending on now's date, oldest first, with missing
// days zero-filled.
func (l *Ledger) Range(now time.Time, days int) []Day {
	if days <= 0 {
		return nil
	}
	out := make([]Day, 0, days)
	for i := days - 1; i >= 0; i-- {
		out = append(out, l.day(now.AddDate(0, 0, -i)))
	}
	return out
}

// Totals sums the last days days ending on now's date.
func (l *Ledger) Totals(now time.Time, days int) Totals {
	return Sum(l.Range(now, days))
}

// Sum totals a slice of days.
func Sum(days []Day) Totals {
	t := Totals{Days: len(days)}
	for _, d := range days {
		if d.FocusSeconds > 0 || d.Pomodoros > 0 {
			t.ActiveDays++
		}
		t.FocusSeconds += d.FocusSeconds
		t.Pomodoros += d.Pomodoros
	}
	return t
}

// Days returns every stored day, oldest first.
func (l *Ledger) Days() []Day {
	out := make([]Day, 0, len(l.days))
	for _, d := range l.days {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// Replace swaps in days from a remote snapshot, pruned relative to now.
// It reports whether the stored set changed.
func (l *Ledger) Replace(now time.Time, days []Day) bool {
	next := make(map[string]Day, len(days))
	for _, d := range days {
		if _, err := time.Parse(DateLayout, d.Date); err != nil {
			continue
		}
		next[d.Date] = d
	}
	prune(next, now)
	if equal(next, l.days) {
		return false
	}
	l.days = next
	return true
}

// ToValue renders the ledger as the document "dailyProgress" array.
func (l *Ledger) ToValue() []any {
	return Value(l.Days())
}

// Value renders days as a "dailyProgress" array.
func Value(days []Day) []any {
	out := make([]any, 0, len(days))
	for _, d := range days {
		out = append(out, map[string]any{
			"date":         d.Date,
			"focusSeconds": d.FocusSeconds,
			"pomodoros":    d.Pomodoros,
		})
	}
	return out
}

// FromValue decodes a "dailyProgress" array. Malformed entries are skipped.
func FromValue(v any) ([]Day, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]Day, 0, len(arr))
	for _, elem := range arr {
		m, ok := elem.(map[string]any)
		if !ok {
			continue
		}
		date, ok := m["date"].(string)
		if !ok {
			continue
		}
		d := Day{Date: date}
		if n, ok := remote.AsInt(m["focusSeconds"]); ok {
			d.FocusSeconds = n
		}
		if n, ok := remote.AsInt(m["pomodoros"]); ok {
			d.Pomodoros = n
		}
		out = append(out, d)
	}
	return out, true
}

func (l *Ledger) day(t time.Time) Day {
	key := t.Format(DateLayout)
	if d, ok := l.days[key]; ok {
		return d
	}
	return Day{Date: key}
}

func (l *Ledger) put(now time.Time, d Day) {
	l.days[d.Date] = d
	prune(l.days, now)
}

func prune(days map[string]Day, now time.Time) {
	cutoff := now.AddDate(0, 0, -(RetainDays - 1)).Format(DateLayout)
	for k := range days {
		if k < cutoff {
			delete(days, k)
		}
	}
}

func equal(a, b map[string]Day) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
