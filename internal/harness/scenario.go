package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/pomoflo/internal/motion"
	"github.com/roach88/pomoflo/internal/session"
	"github.com/roach88/pomoflo/internal/settings"
)

// Scenario defines a reproducible session script.
// A scenario drives one engine through a list of steps on a fake clock and
// asserts on the resulting event trace, the final view, the sound player
// and the remote document.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Settings are the starting settings. Default: 25/5/15 every 4.
	Settings *settings.Settings `yaml:"settings,omitempty"`

	// Sounds maps sound ids to resources. Default: the built-in catalog.
	Sounds map[string]string `yaml:"sounds,omitempty"`

	// FailSounds lists sound ids whose playback fails.
	FailSounds []string `yaml:"fail_sounds,omitempty"`

	// Remote is merged over the default document before the engine
	// attaches, as if another device had written it earlier.
	Remote map[string]any `yaml:"remote,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of: a command (Do), a clock advance (Advance), a
// foreign write to the remote document (Remote) or a failure injected into
// the next remote write (FailWrite).
type Step struct {
	Do        string         `yaml:"do,omitempty"`
	Advance   string         `yaml:"advance,omitempty"`
	Remote    map[string]any `yaml:"remote,omitempty"`
	FailWrite string         `yaml:"fail_write,omitempty"`

	// Command arguments; which ones apply depends on Do.
	Phase   string         `yaml:"phase,omitempty"`
	Sound   string         `yaml:"sound,omitempty"`
	Enabled *bool          `yaml:"enabled,omitempty"`
	Sample  *motion.Sample `yaml:"sample,omitempty"`
	Set     map[string]int `yaml:"set,omitempty"`
	Message string         `yaml:"message,omitempty"`

	// ExpectError requires the command to be rejected. Without it a
	// rejected command fails the scenario.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Step commands.
const (
	DoStart       = "start"
	DoPause       = "pause"
	DoReset       = "reset"
	DoSwitch      = "switch"
	DoQuickStart  = "quick_start"
	DoTick        = "tick"
	DoSelectSound = "select_sound"
	DoToggleSound = "toggle_sound"
	DoStopSound   = "stop_sound"
	DoFocus       = "focus"
	DoToggleFocus = "toggle_focus"
	DoMotion      = "motion"
	DoSettings    = "settings"
	DoSyncFailure = "sync_failure"
)

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Event type appears with matching fields
	// - "trace_order": Events appear in order (first occurrences)
	// - "trace_count": Event appears exactly Count times
	// - "final_state": the final view matches Expect
	// - "phase_sequence": completed phases led to exactly Phases
	// - "player_calls": the player saw exactly Calls
	// - "remote_state": the remote document matches Expect
	Type string `yaml:"type"`

	// Event is the event type (trace_contains, trace_count).
	Event string `yaml:"event,omitempty"`

	// Fields are expected event fields (trace_contains). Subset match.
	Fields map[string]any `yaml:"fields,omitempty"`

	// Origin optionally restricts trace_contains to "local" or "remote".
	Origin string `yaml:"origin,omitempty"`

	// Events is the expected order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Expect contains expected values (final_state, remote_state).
	// Subset match.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Phases is the expected sequence of completion targets (phase_sequence).
	Phases []string `yaml:"phases,omitempty"`

	// Calls is the expected player call log (player_calls).
	Calls []string `yaml:"calls,omitempty"`

	// MaxActive optionally bounds concurrent playback (player_calls).
	MaxActive *int `yaml:"max_active,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertPhaseSequence = "phase_sequence"
	AssertPlayerCalls   = "player_calls"
	AssertRemoteState   = "remote_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict decoding catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for id, res := range s.Sounds {
		if id == "" || res == "" {
			return fmt.Errorf("sounds: id and resource must be non-empty")
		}
	}
	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateStep checks that a step names exactly one action and carries the
// arguments that action needs.
func validateStep(index int, s *Step) error {
	kinds := 0
	for _, set := range []bool{s.Do != "", s.Advance != "", s.Remote != nil, s.FailWrite != ""} {
		if set {
			kinds++
		}
	}
	if kinds != 1 {
		return fmt.Errorf("steps[%d]: exactly one of do, advance, remote, fail_write is required", index)
	}

	if s.Advance != "" {
		d, err := time.ParseDuration(s.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d <= 0 {
			return fmt.Errorf("steps[%d]: advance must be positive", index)
		}
		return nil
	}
	if s.Do == "" {
		return nil
	}

	switch s.Do {
	case DoStart, DoPause, DoReset, DoQuickStart, DoTick, DoStopSound, DoToggleFocus, DoSyncFailure:
	case DoSwitch:
		if _, err := session.ParsePhase(s.Phase); err != nil && !s.ExpectError {
			return fmt.Errorf("steps[%d]: switch: %w", index, err)
		}
	case DoSelectSound, DoToggleSound:
		if s.Sound == "" && s.Do == DoToggleSound {
			return fmt.Errorf("steps[%d]: sound is required for %s", index, s.Do)
		}
	case DoFocus:
		if s.Enabled == nil {
			return fmt.Errorf("steps[%d]: enabled is required for focus", index)
		}
	case DoMotion:
		if s.Sample == nil {
			return fmt.Errorf("steps[%d]: sample is required for motion", index)
		}
	case DoSettings:
		if len(s.Set) == 0 {
			return fmt.Errorf("steps[%d]: set is required for settings", index)
		}
		var p settings.Partial
		for k, v := range s.Set {
			if err := p.Set(k, v); err != nil {
				return fmt.Errorf("steps[%d]: %w", index, err)
			}
		}
	default:
		return fmt.Errorf("steps[%d]: unknown command %q", index, s.Do)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_contains", index)
		}
		if a.Origin != "" && a.Origin != "local" && a.Origin != "remote" {
			return fmt.Errorf("assertions[%d]: origin must be local or remote", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState, AssertRemoteState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for %s", index, a.Type)
		}
	case AssertPhaseSequence:
		for _, p := range a.Phases {
			if _, err := session.ParsePhase(p); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertPlayerCalls:
		if a.Calls == nil && a.MaxActive == nil {
			return fmt.Errorf("assertions[%d]: calls or max_active is required for player_calls", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
