package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/events"
)

// Run describes one import run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time // zero while the run is in progress
	Sources    []string
	Contacts   int
	Events     int
	BookDigest string
}

// BeginRun records the start of an import run.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) BeginRun(ctx context.Context, run Run) error {
	sources, err := marshalSources(run.Sources)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, sources)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, run.ID, run.StartedAt.Unix(), sources)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome of a run started with BeginRun.
func (s *Store) FinishRun(ctx context.Context, run Run) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, contacts = ?, events = ?, book_digest = ?
		WHERE id = ?
	`, run.FinishedAt.Unix(), run.Contacts, run.Events, run.BookDigest, run.ID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", run.ID, ErrUnknownRun)
	}
	return nil
}

// WriteEvents inserts sealed events for runID in one transaction.
// Events whose id is already stored are skipped; the count of new rows is
// returned.
func (s *Store) WriteEvents(ctx context.Context, runID string, evs []*events.Event) (inserted int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(id, run_id, kind, stream, format, start_at, end_at, sender, recipients,
		 message, subtype, lat, long, accuracy, echo, raw)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range evs {
		if e.ID == "" {
			return 0, fmt.Errorf("write events: %w", ErrUnsealedEvent)
		}
		recipients, err := marshalRecipients(e.Recipients)
		if err != nil {
			return 0, fmt.Errorf("write event %s: %w", e.ID, err)
		}
		var raw any
		if len(e.Raw) > 0 {
			raw = string(e.Raw)
		}

		res, err := stmt.ExecContext(ctx,
			e.ID,
			runID,
			string(e.Kind),
			e.Stream,
			e.Format,
			e.Start,
			e.End,
			e.Sender,
			recipients,
			e.Message,
			e.Subtype,
			e.Lat,
			e.Long,
			e.Accuracy,
			e.Echo,
			raw,
		)
		if err != nil {
			return 0, fmt.Errorf("write event %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("write event %s: rows affected: %w", e.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write events: commit: %w", err)
	}
	return inserted, nil
}

// SaveBook stores a snapshot of b as the latest book and returns its digest.
func (s *Store) SaveBook(ctx context.Context, runID string, b *contacts.Book, savedAt time.Time) (string, error) {
	snapshot, err := b.Snapshot()
	if err != nil {
		return "", fmt.Errorf("save book: %w", err)
	}
	digest, err := b.Digest()
	if err != nil {
		return "", fmt.Errorf("save book: %w", err)
	}
	blob, err := compressSnapshot(snapshot)
	if err != nil {
		return "", fmt.Errorf("save book: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO books (run_id, digest, saved_at, snapshot)
		VALUES (?, ?, ?, ?)
	`, runID, digest, savedAt.Unix(), blob)
	if err != nil {
		return "", fmt.Errorf("save book: %w", err)
	}
	return digest, nil
}
