package harness

import (
	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/events"
	"github.com/roach88/lifelog/internal/ingest"
)

// RunTrace records the outcome of one import run.
type RunTrace struct {
	Step       int                  `json:"step"`
	RunID      string               `json:"run_id"`
	Sources    []ingest.SourceStats `json:"sources"`
	Contacts   int                  `json:"contacts"`
	Events     int                  `json:"events"`
	Inserted   int                  `json:"inserted"`
	BookDigest string               `json:"book_digest"`
}

// Skipped totals the skipped records of every source.
func (t RunTrace) Skipped() int {
	n := 0
	for _, s := range t.Sources {
		n += s.Skipped
	}
	return n
}

// Result contains the outcome of running a scenario.
type Result struct {
	// Pass is true if all run expectations and assertions passed.
	Pass bool `json:"pass"`

	// Trace contains one entry per import run, in order.
	Trace []RunTrace `json:"trace"`

	// Timeline holds the rendered archive, one dated line per event.
	Timeline []string `json:"timeline"`

	// Errors contains all failure messages.
	Errors []string `json:"errors,omitempty"`

	// Book is the final contact book.
	Book *contacts.Book `json:"-"`

	// Events are every archived event, in timeline order.
	Events []*events.Event `json:"-"`
}

// NewResult creates a new Result with Pass set to true.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []RunTrace{},
		Timeline: []string{},
		Errors:   []string{},
	}
}

// AddError adds an error message and sets Pass to false.
func (r *Result) AddError(err string) {
	r.Pass = false
	r.Errors = append(r.Errors, err)
}

// AddRun appends the trace of an import run.
func (r *Result) AddRun(step int, res *ingest.Result, bookLen int) RunTrace {
	t := RunTrace{
		Step:       step,
		RunID:      res.RunID,
		Sources:    res.Sources,
		Contacts:   bookLen,
		Events:     len(res.Events),
		Inserted:   res.Inserted,
		BookDigest: res.BookDigest,
	}
	r.Trace = append(r.Trace, t)
	return t
}
