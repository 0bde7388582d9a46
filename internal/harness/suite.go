package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SuiteResult contains results from running a directory of scenarios.
type SuiteResult struct {
	// Scenarios names every scenario run, in order.
	Scenarios []string `json:"scenarios"`

	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// RunDir runs every *.yaml scenario in dir, in file name order.
//
// Scenarios that fail to load or run are counted as failures; the returned
// error is reserved for an unreadable directory or a cancelled context.
func RunDir(ctx context.Context, dir string) (*SuiteResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)

	result := &SuiteResult{Scenarios: []string{}}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		result.Total++

		fail := func(name string, errs ...string) {
			result.Scenarios = append(result.Scenarios, name)
			result.Failed++
			result.Failures = append(result.Failures, ScenarioFailure{
				Scenario: name,
				Path:     path,
				Errors:   errs,
			})
		}

		scenario, err := LoadScenario(path)
		if err != nil {
			fail(filepath.Base(path), fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(scenario)
		if err != nil {
			fail(scenario.Name, fmt.Sprintf("failed to run scenario: %v", err))
			continue
		}
		if !runResult.Pass {
			fail(scenario.Name, runResult.Errors...)
			continue
		}
		result.Scenarios = append(result.Scenarios, scenario.Name)
		result.Passed++
	}
	return result, nil
}
