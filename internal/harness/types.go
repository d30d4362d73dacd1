package harness

import (
	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/remote"
)

// TraceEvent is one engine event as recorded in a scenario trace.
// Session ids and timestamps are left out so traces compare across runs.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Type   string         `json:"type"`
	Origin string         `json:"origin"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: no step or assertion failed.
	Pass bool `json:"pass"`

	// Trace contains every event in sequence order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// View is the engine view after the last step.
	View engine.View `json:"-"`

	// Remote is the remote document after the last step.
	Remote remote.Document `json:"-"`

	// PlayerCalls is the sound player's call log.
	PlayerCalls []string `json:"-"`

	// MaxActive is the most sounds that played at once.
	MaxActive int `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvents appends engine events to the trace.
func (r *Result) AddEvents(events []engine.Event) {
	for _, ev := range events {
		r.Trace = append(r.Trace, TraceEvent{
			Seq:    ev.Seq,
			Type:   string(ev.Type),
			Origin: string(ev.Origin),
			Fields: ev.Fields,
		})
	}
}
