package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/lifelog/internal/config"
	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/driver"
	"github.com/roach88/lifelog/internal/events"
	"github.com/roach88/lifelog/internal/ingest"
	"github.com/roach88/lifelog/internal/store"
	"github.com/roach88/lifelog/internal/testutil"
)

// DriverName is the format of every scenario source.
const DriverName = "scenario"

// TimelineDateFormat prefixes each timeline line.
const TimelineDateFormat = "2006-01-02"

// Harness is the test execution engine.
// It runs scenarios with deterministic clock and run ids.
type Harness struct {
	store    *store.Store
	importer *ingest.Importer
	clock    *testutil.DeterministicClock
	loc      *time.Location
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the contact book from the scenario settings and seed the owner
// 3. Execute import runs with expect validation
// 4. Render the archived timeline
// 5. Return result with pass/fail, trace, and errors
//
// Returned errors mean the scenario could not be executed; failed
// expectations are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	// Create fresh in-memory SQLite database
	st, err := store.Open(store.MemoryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(scenario, st)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	result := NewResult()
	if err := h.executeRuns(ctx, scenario.Runs, result); err != nil {
		return nil, fmt.Errorf("failed to execute runs: %w", err)
	}

	if result.Events, err = st.ReadEvents(ctx, store.EventQuery{}); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	result.Book = h.importer.Book()
	result.Timeline = h.timeline(result.Book, result.Events)

	// Evaluate assertions against the result
	actx := &AssertionContext{
		Store: st,
		Book:  result.Book,
		Ctx:   ctx,
	}
	assertionErrors := EvaluateAssertions(result, scenario.Assertions, actx)
	for _, errMsg := range assertionErrors {
		result.AddError(errMsg)
	}

	return result, nil
}

func newHarness(scenario *Scenario, st *store.Store) (*Harness, error) {
	tz := scenario.Timezone
	if tz == "" {
		tz = "UTC"
	}
	cfg := &config.Config{
		Me:       scenario.Me,
		Index:    scenario.Index,
		Conflict: scenario.Conflict,
		Timezone: tz,
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario settings: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts, err := cfg.BookOptions()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario settings: %w", err)
	}
	book, err := contacts.NewBook(append(opts, contacts.WithLogger(logger))...)
	if err != nil {
		return nil, fmt.Errorf("invalid scenario settings: %w", err)
	}

	prefix := scenario.RunPrefix
	if prefix == "" {
		prefix = "run"
	}
	clock := testutil.NewDeterministicClock(time.Time{})
	registry := driver.NewRegistry(recordsDriver{sources: scenario.Sources})
	im := ingest.New(book, registry,
		ingest.WithStore(st),
		ingest.WithRunIDs(testutil.NewSequentialRunIDs(prefix)),
		ingest.WithClock(clock.Now),
		ingest.WithLogger(logger),
	)

	me, err := cfg.MeContact()
	if err != nil {
		return nil, fmt.Errorf("invalid scenario owner: %w", err)
	}
	if me != nil {
		im.SetMe(me)
	}

	return &Harness{
		store:    st,
		importer: im,
		clock:    clock,
		loc:      loc,
		logger:   logger,
	}, nil
}

// executeRuns imports each run's sources in order and checks the run
// expectations.
func (h *Harness) executeRuns(ctx context.Context, runs []RunStep, result *Result) error {
	for i, step := range runs {
		sources := make([]ingest.Source, len(step.Import))
		for j, name := range step.Import {
			sources[j] = ingest.Source{Name: name, Format: DriverName, Path: name}
		}

		res, err := h.importer.Import(ctx, sources)
		if err != nil {
			return fmt.Errorf("runs[%d]: %w", i, err)
		}
		trace := result.AddRun(i, res, h.importer.Book().Len())
		h.logger.Debug("run imported", "step", i, "run", res.RunID)

		if step.Expect != nil {
			checkExpect(result, i, trace, step.Expect)
		}
	}
	return nil
}

func checkExpect(result *Result, step int, trace RunTrace, expect *RunExpect) {
	check := func(name string, want *int, got int) {
		if want != nil && *want != got {
			result.AddError(fmt.Sprintf("runs[%d]: expected %s %d, got %d", step, name, *want, got))
		}
	}
	check("contacts", expect.Contacts, trace.Contacts)
	check("events", expect.Events, trace.Events)
	check("inserted", expect.Inserted, trace.Inserted)
	check("skipped", expect.Skipped, trace.Skipped())
}

// timeline renders evs as "YYYY-MM-DD HH:MM:SS ..." lines.
func (h *Harness) timeline(book *contacts.Book, evs []*events.Event) []string {
	r := &events.Renderer{Directory: events.BookDirectory(book), Location: h.loc}
	lines := make([]string, len(evs))
	for i, e := range evs {
		day := time.Unix(e.Start, 0).In(h.loc).Format(TimelineDateFormat)
		lines[i] = day + " " + r.Render(e)
	}
	return lines
}

// recordsDriver serves the inline records of a scenario. A source's path
// is its name.
type recordsDriver struct {
	sources map[string][]map[string]any
}

func (recordsDriver) Name() string {
	return DriverName
}

// Read passes each record through JSON so it reaches the resolver in the
// shape a real driver produces.
func (d recordsDriver) Read(ctx context.Context, path string, fn driver.Handler) error {
	recs, ok := d.sources[path]
	if !ok {
		return fmt.Errorf("unknown scenario source %q", path)
	}
	for n, rec := range recs {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		r, err := driver.DecodeRecord(line)
		if err != nil {
			return fmt.Errorf("record %d: %w", n+1, err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
