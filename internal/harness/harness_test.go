package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(n int) *int { return &n }

func record(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func contactRecord(id int, name, phone string) map[string]any {
	return record(
		"stream", "contact",
		"id", id,
		"values", map[string]any{
			"names":  map[string]any{name: map[string]any{}},
			"phones": map[string]any{phone: map[string]any{}},
		},
	)
}

func minimalScenario() *Scenario {
	return &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Sources: map[string][]map[string]any{
			"phonebook": {contactRecord(1, "Joe", "555-1234")},
			"voice": {
				record("stream", "sms", "timestamp", 1700000000, "sender", "555-1234", "message", "hi"),
			},
		},
		Runs: []RunStep{
			{Import: []string{"phonebook", "voice"}},
		},
		Assertions: []Assertion{
			{Type: AssertContactCount, Count: 1},
		},
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	result, err := Run(minimalScenario())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)

	require.Len(t, result.Trace, 1)
	assert.Equal(t, "run-1", result.Trace[0].RunID)
	assert.Equal(t, 1, result.Trace[0].Events)
	assert.Equal(t, 1, result.Trace[0].Inserted)
	assert.NotEmpty(t, result.Trace[0].BookDigest)

	// No recipients: the message renders with an empty recipient list.
	assert.Equal(t, []string{"2023-11-14 22:13:20 SMS: Joe -> : hi"}, result.Timeline)
	assert.Len(t, result.Events, 1)
	assert.Equal(t, 1, result.Book.Len())
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := minimalScenario()
	scenario.Runs[0].Expect = &RunExpect{
		Contacts: intp(5),
		Events:   intp(1),
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "runs[0]: expected contacts 5, got 1", result.Errors[0])
}

func TestRun_SeedsOwner(t *testing.T) {
	scenario := minimalScenario()
	scenario.Me.Name = "Alice"
	scenario.Me.Phones = []string{"+15550000001"}
	scenario.Sources["voice"] = []map[string]any{
		record("stream", "sms", "timestamp", 1700000000, "recipients", []any{"555-1234"}, "message", "hi"),
	}
	scenario.Assertions = []Assertion{
		{Type: AssertContactCount, Count: 2},
		{Type: AssertContact, Field: "names", Value: "Alice", Me: boolp(true)},
		{Type: AssertTimelineContains, Line: "2023-11-14 22:13:20 SMS: Me -> Joe: hi"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)

	me := result.Book.Me()
	require.NotNil(t, me)
	id, _ := me.ID()
	assert.Equal(t, 0, id)
}

func TestRun_Timezone(t *testing.T) {
	scenario := minimalScenario()
	scenario.Timezone = "America/New_York"

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, []string{"2023-11-14 17:13:20 SMS: Joe -> : hi"}, result.Timeline)
}

func TestRun_InvalidSettings(t *testing.T) {
	scenario := minimalScenario()
	scenario.Conflict = "keep-nothing"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scenario settings")
}

func TestRun_InvalidRecord(t *testing.T) {
	scenario := minimalScenario()
	scenario.Sources["voice"] = []map[string]any{{"message": "no stream"}}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source voice")
	assert.Contains(t, err.Error(), "missing stream")
}

func TestRun_Deterministic(t *testing.T) {
	first, err := Run(minimalScenario())
	require.NoError(t, err)
	second, err := Run(minimalScenario())
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
	assert.Equal(t, first.Timeline, second.Timeline)
	require.Len(t, second.Events, 1)
	assert.Equal(t, first.Events[0].ID, second.Events[0].ID)
}

func TestRun_FreshDatabasePerRun(t *testing.T) {
	scenario := minimalScenario()
	scenario.Runs[0].Expect = &RunExpect{Inserted: intp(1)}

	// A shared database would insert nothing the second time.
	for range 2 {
		result, err := Run(scenario)
		require.NoError(t, err)
		assert.True(t, result.Pass, "errors: %v", result.Errors)
	}
}

func TestRun_ReimportInsertsNothing(t *testing.T) {
	scenario := minimalScenario()
	scenario.Runs = append(scenario.Runs, RunStep{
		Import: []string{"voice"},
		Expect: &RunExpect{Events: intp(1), Inserted: intp(0)},
	})
	scenario.Assertions = append(scenario.Assertions, Assertion{Type: AssertEventCount, Count: 1})

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 2)
	assert.Equal(t, "run-2", result.Trace[1].RunID)
}

func TestRun_RunPrefix(t *testing.T) {
	scenario := minimalScenario()
	scenario.RunPrefix = "import"

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.Equal(t, "import-1", result.Trace[0].RunID)
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	scenario := minimalScenario()
	scenario.Assertions = []Assertion{
		{Type: AssertContactCount, Count: 3},
		{Type: AssertEventCount, Count: 1},
		{Type: AssertTimelineContains, Line: "never rendered"},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "contact_count")
	assert.Contains(t, result.Errors[1], "timeline_contains")
}

func TestRunTrace_Skipped(t *testing.T) {
	scenario := minimalScenario()
	scenario.Sources["voice"] = append(scenario.Sources["voice"],
		record("stream", "sms", "timestamp", 1700000100, "sender", 9, "message", "unbound"))
	scenario.Runs[0].Expect = &RunExpect{Skipped: intp(1), Events: intp(1)}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.Trace[0].Skipped())
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("test error")

	assert.False(t, result.Pass)
	assert.Equal(t, []string{"test error"}, result.Errors)
}

func boolp(b bool) *bool { return &b }
