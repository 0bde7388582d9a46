package harness

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the observable outcome of a scenario as text: every run,
// every contact of the final book and the timeline. Event ids and digests
// are left out so snapshots stay readable in review.
func Snapshot(scenarioName string, result *Result) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", scenarioName)

	buf.WriteString("\nruns:\n")
	for _, run := range result.Trace {
		fmt.Fprintf(&buf, "  %s: %d contacts, %d events, %d inserted\n",
			run.RunID, run.Contacts, run.Events, run.Inserted)
		for _, s := range run.Sources {
			fmt.Fprintf(&buf, "    %s: %d records, %d contacts, %d events, %d skipped\n",
				s.Source, s.Records, s.Contacts, s.Events, s.Skipped)
		}
	}

	buf.WriteString("\ncontacts:\n")
	if result.Book != nil {
		for _, c := range result.Book.All() {
			id, _ := c.ID()
			fmt.Fprintf(&buf, "  #%d %s\n", id, c)
			for _, name := range c.FieldNames() {
				f, _ := c.Field(name)
				fmt.Fprintf(&buf, "    %s: %s\n", name, strings.Join(f.Raw(), ", "))
			}
		}
	}

	buf.WriteString("\ntimeline:\n")
	for _, line := range result.Timeline {
		fmt.Fprintf(&buf, "  %s\n", line)
	}
	return buf.Bytes()
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file. The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's snapshot against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
