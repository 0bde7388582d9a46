// Package ingest runs drivers over data sources and resolves their records
// into a contact Book and a list of events.
//
// An import is a run: sources are read concurrently, then resolved one at a
// time in the order given so the resulting contact ids are deterministic.
// Within a source every contact record is resolved before any event, so
// events may reference contacts the driver emits later.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/driver"
	"github.com/roach88/lifelog/internal/events"
	"github.com/roach88/lifelog/internal/store"
)

// DefaultParallelism is the number of drivers run at once.
const DefaultParallelism = 4

// Source is one export to import.
type Source struct {
	// Name labels the source in logs and run records; defaults to Path.
	Name   string `yaml:"name,omitempty"`
	Format string `yaml:"format" validate:"required"`
	Path   string `yaml:"path" validate:"required"`
}

func (s Source) label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}

// SourceError reports a source whose driver failed.
type SourceError struct {
	Source string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// SourceStats counts what one source contributed.
type SourceStats struct {
	Source   string `json:"source"`
	Records  int    `json:"records"`
	Contacts int    `json:"contacts"` // contacts added to the Book
	Events   int    `json:"events"`
	Skipped  int    `json:"skipped"` // records that could not be resolved
}

// Result is the outcome of an import run.
type Result struct {
	RunID string

	// Events are the resolved events of every source, sorted and without
	// duplicates.
	Events []*events.Event

	Sources []SourceStats

	// Inserted is the number of events new to the store.
	Inserted int

	BookDigest string
}

// Importer resolves sources into a Book.
type Importer struct {
	book        *contacts.Book
	registry    *driver.Registry
	store       *store.Store
	runIDs      RunIDGenerator
	now         func() time.Time
	parallelism int
	logger      *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer)

// WithStore persists runs, events and the Book to s.
func WithStore(s *store.Store) Option {
	return func(im *Importer) {
		im.store = s
	}
}

// WithRunIDs sets the run id generator. Default: UUIDv7Generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(im *Importer) {
		im.runIDs = g
	}
}

// WithClock sets the wall clock used for run timestamps.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		im.now = now
	}
}

// WithParallelism bounds how many drivers run at once. Values below 1 are
// ignored.
func WithParallelism(n int) Option {
	return func(im *Importer) {
		if n > 0 {
			im.parallelism = n
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(im *Importer) {
		if logger != nil {
			im.logger = logger
		}
	}
}

// New creates an Importer resolving into book with drivers from registry.
func New(book *contacts.Book, registry *driver.Registry, opts ...Option) *Importer {
	im := &Importer{
		book:        book,
		registry:    registry,
		runIDs:      UUIDv7Generator{},
		now:         time.Now,
		parallelism: DefaultParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Book returns the Book records are resolved into.
func (im *Importer) Book() *contacts.Book {
	return im.book
}

// SetMe registers the owner of the data. The contact is merged with any
// contact sharing an identifier and marked as the owner.
func (im *Importer) SetMe(me *contacts.Contact) *contacts.Contact {
	me.SetMe(true)
	got := im.book.AddOrMerge(me)
	if got != nil {
		got.SetMe(true)
	}
	return got
}

// Import reads every source and resolves it. A driver failure aborts the
// run before anything is resolved; records that fail to resolve are
// skipped and counted.
func (im *Importer) Import(ctx context.Context, sources []Source) (*Result, error) {
	runID := im.runIDs.Generate()
	started := im.now()
	logger := im.logger.With("run", runID)

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.label()
	}
	if im.store != nil {
		if err := im.store.BeginRun(ctx, store.Run{ID: runID, StartedAt: started, Sources: names}); err != nil {
			return nil, err
		}
	}

	records, err := im.collect(ctx, sources)
	if err != nil {
		return nil, err
	}

	res := &Result{RunID: runID, Sources: make([]SourceStats, len(sources))}
	seen := make(map[string]struct{})
	for i, src := range sources {
		stats, evs := im.resolve(ctx, logger, src, records[i])
		res.Sources[i] = stats
		for _, e := range evs {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			seen[e.ID] = struct{}{}
			e.RunID = runID
			res.Events = append(res.Events, e)
		}
	}
	events.Sort(res.Events)

	if res.BookDigest, err = im.book.Digest(); err != nil {
		return nil, err
	}
	if im.store != nil {
		if err := im.persist(ctx, res, started); err != nil {
			return nil, err
		}
	}

	logger.Info("import finished",
		"sources", len(sources),
		"contacts", im.book.Len(),
		"events", len(res.Events),
		"inserted", res.Inserted)
	return res, nil
}

// collect runs the drivers concurrently and returns each source's records.
func (im *Importer) collect(ctx context.Context, sources []Source) ([][]driver.Record, error) {
	drivers := make([]driver.Driver, len(sources))
	for i, src := range sources {
		d, err := im.registry.Get(src.Format)
		if err != nil {
			return nil, &SourceError{Source: src.label(), Err: err}
		}
		drivers[i] = d
	}

	records := make([][]driver.Record, len(sources))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(im.parallelism)
	for i, src := range sources {
		d := drivers[i]
		g.Go(func() error {
			im.logger.Debug("reading source", "source", src.label(), "driver", d.Name())
			recs, err := driver.Collect(ctx, d, src.Path)
			if err != nil {
				return &SourceError{Source: src.label(), Err: err}
			}
			records[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, nil
}

func (im *Importer) resolve(ctx context.Context, logger *slog.Logger, src Source, recs []driver.Record) (SourceStats, []*events.Event) {
	logger = logger.With("source", src.label())
	stats := SourceStats{Source: src.label(), Records: len(recs)}
	r := newResolver(im.book, src.Format, logger)

	for n, rec := range recs {
		if !rec.IsContact() {
			continue
		}
		if err := r.contact(rec); err != nil {
			stats.Skipped++
			logger.Warn("skipping contact record", "record", n+1, "error", err)
		}
	}

	var evs []*events.Event
	for n, rec := range recs {
		if rec.IsContact() {
			continue
		}
		e, err := r.event(rec)
		if err != nil {
			stats.Skipped++
			level := slog.LevelWarn
			if errors.Is(err, ErrUnresolved) {
				level = slog.LevelInfo
			}
			logger.Log(ctx, level, "skipping event record", "record", n+1, "error", err)
			continue
		}
		evs = append(evs, e)
	}

	stats.Contacts = r.added
	stats.Events = len(evs)
	return stats, evs
}

func (im *Importer) persist(ctx context.Context, res *Result, started time.Time) error {
	inserted, err := im.store.WriteEvents(ctx, res.RunID, res.Events)
	if err != nil {
		return err
	}
	res.Inserted = inserted

	finished := im.now()
	if _, err := im.store.SaveBook(ctx, res.RunID, im.book, finished); err != nil {
		return err
	}
	return im.store.FinishRun(ctx, store.Run{
		ID:         res.RunID,
		StartedAt:  started,
		FinishedAt: finished,
		Contacts:   im.book.Len(),
		Events:     inserted,
		BookDigest: res.BookDigest,
	})
}
