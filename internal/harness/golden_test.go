package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarios runs every scenario under testdata/scenarios and compares
// its snapshot against testdata/golden.
func TestScenarios(t *testing.T) {
	tests := []string{
		"phonebook_and_sms",
		"cross_source_merge",
		"email_only_index",
	}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "scenario should pass: errors=%v", result.Errors)
		})
	}
}

func TestSnapshot_Format(t *testing.T) {
	result, err := Run(minimalScenario())
	require.NoError(t, err)

	want := `scenario: minimal

runs:
  run-1: 1 contacts, 1 events, 1 inserted
    phonebook: 1 records, 1 contacts, 0 events, 0 skipped
    voice: 1 records, 0 contacts, 1 events, 0 skipped

contacts:
  #0 Joe
    names: Joe
    phones: 5551234

timeline:
  2023-11-14 22:13:20 SMS: Joe -> : hi
`
	assert.Equal(t, want, string(Snapshot("minimal", result)))
}

func TestSnapshot_EmptyResult(t *testing.T) {
	got := string(Snapshot("empty", NewResult()))
	assert.Equal(t, "scenario: empty\n\nruns:\n\ncontacts:\n\ntimeline:\n", got)
}

func TestRunDir(t *testing.T) {
	result, err := RunDir(context.Background(), filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)

	assert.Equal(t, []string{"cross_source_merge", "email_only_index", "phonebook_and_sms"}, result.Scenarios)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Passed)
	assert.True(t, result.Pass(), "failures: %v", result.Failures)
}

func TestRunDir_ReportsFailures(t *testing.T) {
	dir := t.TempDir()
	failing := `
name: failing
description: Expects a contact that is never imported
sources:
  a:
    - {stream: contact, id: 1, values: {names: {Joe: {}}}}
runs:
  - import: [a]
assertions:
  - type: contact_count
    count: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a_failing.yaml"), []byte(failing), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b_broken.yaml"), []byte("name: broken\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	result, err := RunDir(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"failing", "b_broken.yaml"}, result.Scenarios)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 0, result.Passed)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.Pass())
	require.Len(t, result.Failures, 2)

	assert.Equal(t, "failing", result.Failures[0].Scenario)
	require.Len(t, result.Failures[0].Errors, 1)
	assert.Contains(t, result.Failures[0].Errors[0], "contact_count")

	assert.Equal(t, "b_broken.yaml", result.Failures[1].Scenario)
	assert.Contains(t, result.Failures[1].Errors[0], "failed to load scenario")
}

func TestRunDir_MissingDirectory(t *testing.T) {
	_, err := RunDir(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestRunDir_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunDir(ctx, filepath.Join("testdata", "scenarios"))
	assert.ErrorIs(t, err, context.Canceled)
}
