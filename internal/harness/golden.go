package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/pomoflo/internal/canonical"
)

// goldenDir is where harness tests keep trace fixtures.
const goldenDir = "testdata/golden"

// traceDocument builds the value written to a golden file: the scenario
// name and one entry per event. Canonical encoding takes plain maps
// and slices only, so struct values are flattened here.
func traceDocument(scenarioName string, trace []TraceEvent) map[string]any {
	events := make([]any, 0, len(trace))
	for _, ev := range trace {
		entry := map[string]any{
			"seq":    ev.Seq,
			"type":   ev.Type,
			"origin": ev.Origin,
		}
		if len(ev.Fields) > 0 {
			entry["fields"] = ev.Fields
		}
		events = append(events, entry)
	}
	return map[string]any{
		"scenario_name": scenarioName,
		"trace":         events,
	}
}

// TraceJSON renders a result's trace as the canonical bytes stored in
// golden files. Two runs of the same scenario produce identical bytes.
func TraceJSON(scenarioName string, result *Result) ([]byte, error) {
	return canonical.Marshal(traceDocument(scenarioName, result.Trace))
}

// RunWithGolden runs scenario and checks its trace against
// testdata/golden/<name>.golden. Regenerate fixtures with
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, scenario.Name, result)
}

// AssertGolden checks an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := TraceJSON(scenarioName, result)
	if err != nil {
		return err
	}
	newGoldie(t).Assert(t, scenarioName, data)
	return nil
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir(goldenDir),
		goldie.WithNameSuffix(".golden"),
	)
}
