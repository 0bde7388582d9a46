package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/events"
)

var (
	// ErrUnknownRun is returned when a run id is not in the archive.
	ErrUnknownRun = errors.New("unknown run")

	// ErrUnsealedEvent is returned when writing an event without an id.
	ErrUnsealedEvent = errors.New("event has no id")
)

// EventQuery bounds an event read. Zero values disable a bound; both
// bounds are inclusive.
type EventQuery struct {
	Begin int64
	End   int64
	RunID string
}

// ReadEvents returns the matching events in chronological order:
// ORDER BY start_at ASC, id COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if nothing matches.
func (s *Store) ReadEvents(ctx context.Context, q EventQuery) ([]*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, stream, format, start_at, end_at, sender, recipients,
		       message, subtype, lat, long, accuracy, echo, raw
		FROM events
		WHERE (? = 0 OR start_at >= ?)
		  AND (? = 0 OR start_at <= ?)
		  AND (? = '' OR run_id = ?)
		ORDER BY start_at ASC, id COLLATE BINARY ASC
	`, q.Begin, q.Begin, q.End, q.End, q.RunID, q.RunID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	out := []*events.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// ReadEvent retrieves a single event by id.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadEvent(ctx context.Context, id string) (*events.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, kind, stream, format, start_at, end_at, sender, recipients,
		       message, subtype, lat, long, accuracy, echo, raw
		FROM events
		WHERE id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query event: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query event: %w", err)
		}
		return nil, sql.ErrNoRows
	}
	return scanEvent(rows)
}

// CountEvents returns the number of archived events.
func (s *Store) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (*events.Event, error) {
	var (
		e          events.Event
		kind       string
		recipients string
		raw        sql.NullString
	)
	err := rows.Scan(
		&e.ID, &e.RunID, &kind, &e.Stream, &e.Format, &e.Start, &e.End, &e.Sender, &recipients,
		&e.Message, &e.Subtype, &e.Lat, &e.Long, &e.Accuracy, &e.Echo, &raw,
	)
	if err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	e.Kind = events.Kind(kind)

	e.Recipients, err = unmarshalRecipients(recipients)
	if err != nil {
		return nil, fmt.Errorf("scan event %s: %w", e.ID, err)
	}
	if raw.Valid {
		e.Raw = json.RawMessage(raw.String)
	}
	return &e, nil
}

// LatestBook loads the most recently saved book. An empty book is returned
// when none has been saved yet.
func (s *Store) LatestBook(ctx context.Context, opts ...contacts.BookOption) (*contacts.Book, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT snapshot FROM books ORDER BY seq DESC LIMIT 1
	`).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return contacts.NewBook(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}

	data, err := decompressSnapshot(blob)
	if err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}
	b, err := contacts.LoadBook(data, opts...)
	if err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}
	return b, nil
}

// ReadRun retrieves a run by id.
// Returns ErrUnknownRun if not found.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, sources, contacts, events, book_digest
		FROM runs
		WHERE id = ?
	`, id)
	if err != nil {
		return Run{}, fmt.Errorf("query run: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Run{}, fmt.Errorf("query run: %w", err)
		}
		return Run{}, fmt.Errorf("read run %s: %w", id, ErrUnknownRun)
	}
	return scanRun(rows)
}

// ListRuns returns all runs ordered by start time, then id.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, started_at, finished_at, sources, contacts, events, book_digest
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run               Run
		started, finished int64
		sources           string
	)
	if err := rows.Scan(&run.ID, &started, &finished, &sources, &run.Contacts, &run.Events, &run.BookDigest); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = time.Unix(started, 0).UTC()
	if finished != 0 {
		run.FinishedAt = time.Unix(finished, 0).UTC()
	}

	var err error
	run.Sources, err = unmarshalSources(sources)
	if err != nil {
		return Run{}, fmt.Errorf("scan run %s: %w", run.ID, err)
	}
	return run, nil
}
