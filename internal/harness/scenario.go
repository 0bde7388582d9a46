package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lifelog/internal/config"
)

// Scenario defines an identity resolution scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Book settings, as in the config file.
	Index    config.IndexConfig `yaml:"index,omitempty"`
	Conflict string             `yaml:"conflict,omitempty"`

	// Me seeds the data owner before the first run.
	Me config.MeConfig `yaml:"me,omitempty"`

	// Timezone for rendered timeline lines. Default: UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// Sources maps a source name to the records its driver emits.
	Sources map[string][]map[string]any `yaml:"sources"`

	// Runs are executed in order against the same book and archive.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the final book, archive and timeline.
	Assertions []Assertion `yaml:"assertions"`

	// RunPrefix prefixes generated run ids. Default: "run".
	RunPrefix string `yaml:"run_prefix,omitempty"`
}

// RunStep is one import run.
type RunStep struct {
	// Import lists the sources of this run, in resolution order.
	Import []string `yaml:"import"`

	// Expect optionally checks the run's outcome.
	Expect *RunExpect `yaml:"expect,omitempty"`
}

// RunExpect specifies expected run totals. Unset fields are not checked.
type RunExpect struct {
	Contacts *int `yaml:"contacts,omitempty"` // book size after the run
	Events   *int `yaml:"events,omitempty"`   // distinct events of the run
	Inserted *int `yaml:"inserted,omitempty"` // events new to the archive
	Skipped  *int `yaml:"skipped,omitempty"`  // records skipped over all sources
}

// Assertion validates the final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "contact_count": Count contacts in the book
	// - "contact": contact at Field/Value holds Values (and Me, if set)
	// - "same_contact": all Identifiers resolve to one contact
	// - "distinct_contacts": all Identifiers resolve to different contacts
	// - "event_count": Count archived events, of Stream if set
	// - "timeline_contains": Line is rendered
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Count is the expected number (contact_count, event_count).
	Count int `yaml:"count,omitempty"`

	// Field and Value look up a contact (contact).
	Field string `yaml:"field,omitempty"`
	Value string `yaml:"value,omitempty"`

	// Values lists raw values per field the contact must hold (contact).
	// Subset match - other values may be present.
	Values map[string][]string `yaml:"values,omitempty"`

	// Me is the expected owner flag (contact).
	Me *bool `yaml:"me,omitempty"`

	// Identifiers are "field:value" lookups (same_contact, distinct_contacts).
	Identifiers []string `yaml:"identifiers,omitempty"`

	// Stream restricts event_count.
	Stream string `yaml:"stream,omitempty"`

	// Line is an expected timeline line (timeline_contains).
	Line string `yaml:"line,omitempty"`

	// Table is the archive table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertContactCount     = "contact_count"
	AssertContact          = "contact"
	AssertSameContact      = "same_contact"
	AssertDistinctContacts = "distinct_contacts"
	AssertEventCount       = "event_count"
	AssertTimelineContains = "timeline_contains"
	AssertFinalState       = "final_state"
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

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
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
	if len(s.Sources) == 0 {
		return fmt.Errorf("sources map is required and must be non-empty")
	}
	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, run := range s.Runs {
		if len(run.Import) == 0 {
			return fmt.Errorf("runs[%d]: import is required", i)
		}
		for _, name := range run.Import {
			if _, ok := s.Sources[name]; !ok {
				return fmt.Errorf("runs[%d]: unknown source %q", i, name)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertContactCount, AssertEventCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertContact:
		if a.Field == "" || a.Value == "" {
			return fmt.Errorf("assertions[%d]: field and value are required for contact", index)
		}
		if len(a.Values) == 0 && a.Me == nil {
			return fmt.Errorf("assertions[%d]: values or me is required for contact", index)
		}
	case AssertSameContact, AssertDistinctContacts:
		if len(a.Identifiers) < 2 {
			return fmt.Errorf("assertions[%d]: at least two identifiers are required for %s", index, a.Type)
		}
		if i := slices.IndexFunc(a.Identifiers, func(id string) bool { return !strings.Contains(id, ":") }); i >= 0 {
			return fmt.Errorf("assertions[%d]: identifier %q: want field:value", index, a.Identifiers[i])
		}
	case AssertTimelineContains:
		if a.Line == "" {
			return fmt.Errorf("assertions[%d]: line is required for timeline_contains", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
