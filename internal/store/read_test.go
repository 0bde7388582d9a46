package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/roach88/lifelog/internal/events"
)

func TestReadEvents_Empty(t *testing.T) {
	s := createTestStore(t)

	evs, err := s.ReadEvents(context.Background(), EventQuery{})
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if evs == nil {
		t.Error("ReadEvents() returned nil, want empty slice")
	}
	if len(evs) != 0 {
		t.Errorf("ReadEvents() returned %d events, want 0", len(evs))
	}
}

func TestReadEvents_DeterministicOrdering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	evs := []*events.Event{
		createTestEvent(t, 300, 0, "late", 1),
		createTestEvent(t, 100, 0, "early", 1),
		createTestEvent(t, 200, 0, "tie-a", 1),
		createTestEvent(t, 200, 1, "tie-b", 0),
	}
	if _, err := s.WriteEvents(ctx, "run-1", evs); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	got, err := s.ReadEvents(ctx, EventQuery{})
	if err != nil {
		t.Fatalf("ReadEvents() failed: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("ReadEvents() returned %d events, want 4", len(got))
	}
	for i := 1; i < len(got); i++ {
		if events.Compare(got[i-1], got[i]) >= 0 {
			t.Errorf("events %d and %d out of order: %d/%s then %d/%s",
				i-1, i, got[i-1].Start, got[i-1].ID, got[i].Start, got[i].ID)
		}
	}
	if got[0].Message != "early" || got[3].Message != "late" {
		t.Errorf("unexpected order: %q ... %q", got[0].Message, got[3].Message)
	}
}

func TestReadEvents_Bounds(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")
	createTestRun(t, s, "run-2")

	if _, err := s.WriteEvents(ctx, "run-1", []*events.Event{
		createTestEvent(t, 100, 0, "a", 1),
		createTestEvent(t, 200, 0, "b", 1),
	}); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}
	if _, err := s.WriteEvents(ctx, "run-2", []*events.Event{
		createTestEvent(t, 300, 0, "c", 1),
	}); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	tests := []struct {
		name string
		q    EventQuery
		want int
	}{
		{"all", EventQuery{}, 3},
		{"begin inclusive", EventQuery{Begin: 200}, 2},
		{"end inclusive", EventQuery{End: 200}, 2},
		{"window", EventQuery{Begin: 150, End: 250}, 1},
		{"run", EventQuery{RunID: "run-2"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ReadEvents(ctx, tt.q)
			if err != nil {
				t.Fatalf("ReadEvents() failed: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("ReadEvents(%+v) returned %d events, want %d", tt.q, len(got), tt.want)
			}
		})
	}
}

func TestReadEvent_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadEvent(context.Background(), "missing")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("ReadEvent() error = %v, want sql.ErrNoRows", err)
	}
}

func TestReadEvent_LocationFields(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	e := &events.Event{
		Kind:     events.KindLocation,
		Stream:   events.StreamLocation,
		Start:    500,
		Lat:      37.7749,
		Long:     -122.4194,
		Accuracy: 12,
	}
	if err := e.Seal(); err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}
	if _, err := s.WriteEvents(ctx, "run-1", []*events.Event{e}); err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}

	got, err := s.ReadEvent(ctx, e.ID)
	if err != nil {
		t.Fatalf("ReadEvent() failed: %v", err)
	}
	if got.Lat != 37.7749 || got.Long != -122.4194 || got.Accuracy != 12 {
		t.Errorf("location = %v, %v (%d), want 37.7749, -122.4194 (12)", got.Lat, got.Long, got.Accuracy)
	}
	if got.Recipients != nil {
		t.Errorf("Recipients = %v, want nil", got.Recipients)
	}
	if got.Raw != nil {
		t.Errorf("Raw = %s, want nil", got.Raw)
	}
}

func TestReadEvent_Echo(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	createTestRun(t, s, "run-1")

	orig := createTestEvent(t, 100, 0, "note to self", 0)
	echo := *orig
	echo.Echo = true
	if err := echo.Seal(); err != nil {
		t.Fatalf("Seal() failed: %v", err)
	}

	n, err := s.WriteEvents(ctx, "run-1", []*events.Event{orig, &echo})
	if err != nil {
		t.Fatalf("WriteEvents() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted = %d, want 2", n)
	}

	got, err := s.ReadEvent(ctx, echo.ID)
	if err != nil {
		t.Fatalf("ReadEvent() failed: %v", err)
	}
	if !got.Echo {
		t.Error("echo flag lost")
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadRun(context.Background(), "missing")
	if !errors.Is(err, ErrUnknownRun) {
		t.Errorf("ReadRun() error = %v, want ErrUnknownRun", err)
	}
}

func TestListRuns_Ordering(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, r := range []Run{
		{ID: "b", StartedAt: time.Unix(20, 0)},
		{ID: "c", StartedAt: time.Unix(10, 0)},
		{ID: "a", StartedAt: time.Unix(20, 0)},
	} {
		if err := s.BeginRun(ctx, r); err != nil {
			t.Fatalf("BeginRun() failed: %v", err)
		}
	}

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns() failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
		if !r.FinishedAt.IsZero() {
			t.Errorf("run %s: FinishedAt = %v, want zero", r.ID, r.FinishedAt)
		}
		if r.Sources == nil {
			t.Errorf("run %s: Sources is nil", r.ID)
		}
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("ListRuns() order = %v, want [c a b]", ids)
	}
}

func TestLatestBook_Empty(t *testing.T) {
	s := createTestStore(t)

	b, err := s.LatestBook(context.Background())
	if err != nil {
		t.Fatalf("LatestBook() failed: %v", err)
	}
	if b.Len() != 0 {
		t.Errorf("LatestBook().Len() = %d, want 0", b.Len())
	}
}
