package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifelog/internal/harness"
)

const passingScenario = `
name: joe_by_phone
description: A message from a known number resolves to the phonebook contact
timezone: UTC
sources:
  phonebook:
    - {stream: contact, id: 1, values: {names: {Joe: {}}, phones: {"555-1234": {}}}}
  voice:
    - {stream: sms, timestamp: 1700000000, sender: "555 1234", message: hi}
runs:
  - import: [phonebook, voice]
assertions:
  - type: contact_count
    count: 1
  - type: timeline_contains
    line: "2023-11-14 22:13:20 SMS: Joe -> : hi"
`

const failingScenario = `
name: too_many_contacts
description: Expects more contacts than the sources hold
sources:
  phonebook:
    - {stream: contact, id: 1, values: {names: {Joe: {}}}}
runs:
  - import: [phonebook]
assertions:
  - type: contact_count
    count: 2
`

func writeScenarios(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func TestCheckCommand_Pass(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"joe.yaml": passingScenario})

	out, err := execute(t, "check", dir)
	require.NoError(t, err)
	assert.Equal(t, "✓ joe_by_phone\n\n1 passed, 0 failed, 1 total\n", out)
}

func TestCheckCommand_Fail(t *testing.T) {
	dir := writeScenarios(t, map[string]string{
		"a.yaml": passingScenario,
		"b.yaml": failingScenario,
	})

	out, err := execute(t, "check", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 of 2 scenarios failed", err.Error())

	assert.Contains(t, out, "✓ joe_by_phone\n")
	assert.Contains(t, out, "✗ too_many_contacts\n")
	assert.Contains(t, out, "Assertion failed: contact_count")
	assert.Contains(t, out, "1 passed, 1 failed, 2 total")
}

func TestCheckCommand_JSON(t *testing.T) {
	dir := writeScenarios(t, map[string]string{"joe.yaml": passingScenario})

	out, err := execute(t, "--format", "json", "check", dir)
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []string{"joe_by_phone"}, resp.Data.Scenarios)
	assert.Equal(t, 1, resp.Data.Passed)
	assert.Empty(t, resp.Data.Failures)
}

func TestCheckCommand_MissingDir(t *testing.T) {
	_, err := execute(t, "check", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}
