// Package harness runs scripted pomoflo sessions as executable tests.
//
// A scenario drives the real engine and sync reconciler through a list of
// steps and then checks the event trace and the final state.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	settings: { pomodoro: 25, short_break: 5, long_break: 15, interval: 4 }
//	sounds: { white: sounds/white.mp3 }
//	fail_sounds: [ white ]
//	remote: { points: 10 }
//	steps:
//	  - do: start
//	  - advance: 5m
//	  - do: select_sound
//	    sound: white
//	  - remote: { selectedSound: rain }
//	  - fail_write: "network down"
//	  - do: pause
//	    expect_error: true
//	assertions:
//	  - type: trace_contains
//	    event: points_awarded
//	    fields: { points: 1 }
//	  - type: final_state
//	    expect: { phase: pomodoro, runState: paused }
//
// # Steps
//
// Each step is one of:
//
//   - do: a command (start, pause, reset, switch, quick_start, tick,
//     select_sound, toggle_sound, stop_sound, focus, toggle_focus, motion,
//     settings, sync_failure)
//   - advance: move the fake clock by a duration, then tick
//   - remote: a write to the remote document by another device
//   - fail_write: make the next remote write fail with the given message
//
// After every step the harness writes queued fields to the in-memory store
// and applies whatever the store feeds back, until both sides are quiet.
//
// # Assertion Types
//
//   - trace_contains: an event appears with matching fields (and origin)
//   - trace_order: events appear in the given order
//   - trace_count: an event appears exactly N times
//   - final_state: the final view has the expected values
//   - phase_sequence: completed phases led to exactly these phases
//   - player_calls: the sound player saw exactly these calls
//   - remote_state: the remote document has the expected values
//
// # Deterministic Testing
//
// The harness uses:
//   - a fake clock starting at testutil.Epoch
//   - fixed session ids ("scenario-1")
//   - a fresh in-memory remote store per run
//
// This ensures identical traces across runs for golden file comparison.
package harness
