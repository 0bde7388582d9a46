package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/lifelog/internal/events"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRun starts a run with a fixed start time.
func createTestRun(t *testing.T, s *Store, id string) Run {
	t.Helper()
	run := Run{ID: id, StartedAt: time.Unix(1700000000, 0).UTC(), Sources: []string{"voice"}}
	if err := s.BeginRun(context.Background(), run); err != nil {
		t.Fatalf("BeginRun() failed: %v", err)
	}
	return run
}

// createTestEvent builds a sealed message event.
func createTestEvent(t *testing.T, start int64, sender int, message string, recipients ...int) *events.Event {
	t.Helper()
	e := &events.Event{
		Kind:       events.KindMessage,
		Stream:     events.StreamSMS,
		Format:     "voice",
		Start:      start,
		Sender:     sender,
		Recipients: recipients,
		Message:    message,
	}
	if err := e.Seal(); err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	return e
}
