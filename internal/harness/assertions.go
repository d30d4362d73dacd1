package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/pomoflo/internal/engine"
	"github.com/roach88/pomoflo/internal/remote"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s (%s) %s\n", event.Seq, event.Type, event.Origin, formatFields(event.Fields))
		}
	}

	return buf.String()
}

// assertTraceContains checks if the trace contains an event of the given
// type whose fields include the expected ones (subset match).
func assertTraceContains(trace []TraceEvent, assertion Assertion) error {
	for _, event := range trace {
		if event.Type != assertion.Event {
			continue
		}
		if assertion.Origin != "" && event.Origin != assertion.Origin {
			continue
		}
		if matchFields(event.Fields, assertion.Fields) {
			return nil
		}
	}

	expected := fmt.Sprintf("event %s with fields %s", assertion.Event, formatFields(assertion.Fields))
	if assertion.Origin != "" {
		expected += " from " + assertion.Origin
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks if events appear in the specified order.
// Events don't need to be consecutive; the first occurrence of each counts.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if _, seen := positions[event.Type]; !seen {
			positions[event.Type] = i + 1 // 1-indexed for readability
		}
	}

	for _, typ := range assertion.Events {
		if positions[typ] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", typ),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev := assertion.Events[i-1]
		curr := assertion.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertTraceCount checks if the event appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type == assertion.Event {
			count++
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertState compares expected keys against a flat state map (subset
// match at the top level, exact match below it).
func assertState(typ string, actual map[string]any, expect map[string]any) error {
	for _, key := range sortedKeys(expect) {
		actualValue, exists := actual[key]
		if !exists {
			return &AssertionError{
				Type:     typ,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present; have %v", key, sortedKeys(actual)),
			}
		}
		if !valuesEqual(actualValue, expect[key]) {
			return &AssertionError{
				Type:     typ,
				Expected: fmt.Sprintf("field %q = %v", key, expect[key]),
				Actual:   fmt.Sprintf("field %q = %v", key, actualValue),
			}
		}
	}
	return nil
}

// assertPhaseSequence checks the phases entered by completion, in order.
func assertPhaseSequence(trace []TraceEvent, assertion Assertion) error {
	var got []string
	for _, event := range trace {
		if event.Type != string(engine.EventPhaseChanged) {
			continue
		}
		if reason, _ := event.Fields["reason"].(string); reason != engine.ReasonCompleted {
			continue
		}
		to, _ := event.Fields["to"].(string)
		got = append(got, to)
	}

	if len(got) != len(assertion.Phases) || (len(got) > 0 && !reflect.DeepEqual(got, assertion.Phases)) {
		return &AssertionError{
			Type:     AssertPhaseSequence,
			Expected: fmt.Sprintf("phases %v", assertion.Phases),
			Actual:   fmt.Sprintf("phases %v", got),
			Trace:    trace,
		}
	}
	return nil
}

// assertPlayerCalls checks the player log and the playback overlap bound.
func assertPlayerCalls(result *Result, assertion Assertion) error {
	if assertion.Calls != nil {
		got := result.PlayerCalls
		if len(got) != len(assertion.Calls) || (len(got) > 0 && !reflect.DeepEqual(got, assertion.Calls)) {
			return &AssertionError{
				Type:     AssertPlayerCalls,
				Expected: fmt.Sprintf("calls %v", assertion.Calls),
				Actual:   fmt.Sprintf("calls %v", got),
			}
		}
	}
	if assertion.MaxActive != nil && result.MaxActive > *assertion.MaxActive {
		return &AssertionError{
			Type:     AssertPlayerCalls,
			Expected: fmt.Sprintf("at most %d sounds at once", *assertion.MaxActive),
			Actual:   fmt.Sprintf("%d sounds at once", result.MaxActive),
		}
	}
	return nil
}

// ViewState flattens a view into the keys final_state assertions use.
func ViewState(v engine.View) map[string]any {
	return map[string]any{
		"phase":              string(v.Phase),
		"runState":           string(v.RunState),
		"remainingSeconds":   int64(v.RemainingSeconds),
		"completedPomodoros": v.CompletedPomodoros,
		"totalFocusSeconds":  v.TotalFocusSeconds,
		"roundPosition":      int64(v.RoundPosition),
		"points":             v.Points,
		"superFocusMode":     v.SuperFocus,
		"selectedSound":      v.Sound.SelectedID,
		"playing":            v.Sound.Playing,
		"settings":           v.Settings.Fields(),
		"todayFocusSeconds":  v.Today.FocusSeconds,
		"todayPomodoros":     v.Today.Pomodoros,
	}
}

// matchFields checks if actual contains all expected fields (subset match).
// Extra keys in actual are ignored.
func matchFields(actual map[string]any, expected map[string]any) bool {
	for key, expectedVal := range expected {
		actualVal, exists := actual[key]
		if !exists {
			return false
		}
		if !valuesEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

// valuesEqual compares two values after normalizing numbers, so a YAML int
// matches an int64 event field.
func valuesEqual(actual, expected any) bool {
	if actual == nil || expected == nil {
		return actual == nil && expected == nil
	}
	a, aok := remote.Normalize(actual)
	e, eok := remote.Normalize(expected)
	if !aok || !eok {
		return reflect.DeepEqual(actual, expected)
	}
	return reflect.DeepEqual(a, e)
}

func formatFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "{}"
	}
	parts := make([]string, 0, len(fields))
	for _, k := range sortedKeys(fields) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertState(AssertFinalState, ViewState(result.View), assertion.Expect)
		case AssertPhaseSequence:
			err = assertPhaseSequence(result.Trace, assertion)
		case AssertPlayerCalls:
			err = assertPlayerCalls(result, assertion)
		case AssertRemoteState:
			if result.Remote == nil {
				err = fmt.Errorf("assertion[%d]: remote_state requires a remote document", i)
			} else {
				err = assertState(AssertRemoteState, result.Remote, assertion.Expect)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
