package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/events"
	"github.com/roach88/lifelog/internal/store"
)

// testBook holds Joe (0), Ann (1) and an owner (2). Notes are not indexed
// by default.
func testBook(t *testing.T) *contacts.Book {
	t.Helper()
	book, err := contacts.NewBook()
	require.NoError(t, err)

	joe := contacts.MustNew(contacts.WithName("Joe Smith"), contacts.WithPhones("555-123-4567", "555-222-3333"))
	require.NoError(t, joe.Values(contacts.NotesField).Append("met at work"))
	ann := contacts.MustNew(contacts.WithName("Ann Lee"), contacts.WithEmails("ann@example.com"))
	me := contacts.MustNew(contacts.AsMe(), contacts.WithName("Alice"))
	for _, c := range []*contacts.Contact{joe, ann, me} {
		require.NotNil(t, book.Add(c))
	}
	return book
}

func asAssertionError(t *testing.T, err error) *AssertionError {
	t.Helper()
	require.Error(t, err)
	var aerr *AssertionError
	require.True(t, errors.As(err, &aerr), "got %T: %v", err, err)
	return aerr
}

func TestAssertContactCount(t *testing.T) {
	book := testBook(t)
	assert.NoError(t, assertContactCount(book, Assertion{Type: AssertContactCount, Count: 3}))

	aerr := asAssertionError(t, assertContactCount(book, Assertion{Type: AssertContactCount, Count: 2}))
	assert.Equal(t, "2 contacts", aerr.Expected)
	assert.Equal(t, "3 contacts: [Joe Smith Ann Lee Me]", aerr.Actual)
}

func TestAssertContact_SubsetMatch(t *testing.T) {
	book := testBook(t)
	assertion := Assertion{
		Type:  AssertContact,
		Field: "phones",
		Value: "(555) 222-3333",
		Values: map[string][]string{
			"names":  {"Joe Smith"},
			"phones": {"5551234567"},
		},
		Me: boolp(false),
	}
	assert.NoError(t, assertContact(book, assertion))
}

func TestAssertContact_UnindexedLookup(t *testing.T) {
	book := testBook(t)
	require.False(t, book.Indexed(contacts.NotesField))

	assertion := Assertion{
		Type:   AssertContact,
		Field:  "notes",
		Value:  "met at work",
		Values: map[string][]string{"names": {"Joe Smith"}},
	}
	assert.NoError(t, assertContact(book, assertion))
}

func TestAssertContact_Failures(t *testing.T) {
	book := testBook(t)

	aerr := asAssertionError(t, assertContact(book, Assertion{Type: AssertContact, Field: "names", Value: "Nobody", Me: boolp(true)}))
	assert.Equal(t, "not found", aerr.Actual)

	aerr = asAssertionError(t, assertContact(book, Assertion{Type: AssertContact, Field: "names", Value: "Ann Lee", Me: boolp(true)}))
	assert.Equal(t, "me=false", aerr.Actual)

	aerr = asAssertionError(t, assertContact(book, Assertion{
		Type:   AssertContact,
		Field:  "names",
		Value:  "Ann Lee",
		Values: map[string][]string{"emails": {"ann@work.example"}},
	}))
	assert.Equal(t, `Ann Lee to hold emails "ann@work.example"`, aerr.Expected)
	assert.Equal(t, "emails: [ann@example.com]", aerr.Actual)
}

func TestAssertSameContact(t *testing.T) {
	book := testBook(t)
	assert.NoError(t, assertSameContact(book, Assertion{
		Type:        AssertSameContact,
		Identifiers: []string{"names:Joe Smith", "phones:555-123-4567", "phones:(555) 222-3333"},
	}))

	aerr := asAssertionError(t, assertSameContact(book, Assertion{
		Type:        AssertSameContact,
		Identifiers: []string{"names:Joe Smith", "emails:ann@example.com"},
	}))
	assert.Equal(t, "names:Joe Smith is #0 Joe Smith, emails:ann@example.com is #1 Ann Lee", aerr.Actual)

	aerr = asAssertionError(t, assertSameContact(book, Assertion{
		Type:        AssertSameContact,
		Identifiers: []string{"names:Joe Smith", "emails:nobody@example.com"},
	}))
	assert.Equal(t, "identifier", aerr.Type)
}

func TestAssertDistinctContacts(t *testing.T) {
	book := testBook(t)
	assert.NoError(t, assertDistinctContacts(book, Assertion{
		Type:        AssertDistinctContacts,
		Identifiers: []string{"names:Joe Smith", "names:Ann Lee", "names:Alice"},
	}))

	aerr := asAssertionError(t, assertDistinctContacts(book, Assertion{
		Type:        AssertDistinctContacts,
		Identifiers: []string{"phones:555-123-4567", "names:Ann Lee", "names:Joe Smith"},
	}))
	assert.Equal(t, "phones:555-123-4567 and names:Joe Smith both resolve to Joe Smith", aerr.Actual)
}

func testResult() *Result {
	result := NewResult()
	result.Events = []*events.Event{
		{ID: "a", Stream: events.StreamSMS, Kind: events.KindMessage},
		{ID: "b", Stream: events.StreamSMS, Kind: events.KindMessage},
		{ID: "c", Stream: events.StreamCall, Kind: events.KindCall},
	}
	result.Timeline = []string{"line one", "line two", "line three"}
	return result
}

func TestAssertEventCount(t *testing.T) {
	result := testResult()
	assert.NoError(t, assertEventCount(result, Assertion{Type: AssertEventCount, Count: 3}))
	assert.NoError(t, assertEventCount(result, Assertion{Type: AssertEventCount, Stream: "sms", Count: 2}))
	assert.NoError(t, assertEventCount(result, Assertion{Type: AssertEventCount, Stream: "location", Count: 0}))

	aerr := asAssertionError(t, assertEventCount(result, Assertion{Type: AssertEventCount, Stream: "call", Count: 2}))
	assert.Equal(t, "2 call events", aerr.Expected)
	assert.Equal(t, "1 call events", aerr.Actual)
	assert.Equal(t, result.Timeline, aerr.Timeline)
}

func TestAssertTimelineContains(t *testing.T) {
	result := testResult()
	assert.NoError(t, assertTimelineContains(result, Assertion{Type: AssertTimelineContains, Line: "line two"}))

	// Whole lines only.
	aerr := asAssertionError(t, assertTimelineContains(result, Assertion{Type: AssertTimelineContains, Line: "line"}))
	assert.Equal(t, "not found in timeline", aerr.Actual)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     "timeline_contains",
		Expected: `line "x"`,
		Actual:   "not found in timeline",
		Timeline: []string{"first", "second"},
	}

	want := "Assertion failed: timeline_contains\n" +
		"  Expected: line \"x\"\n" +
		"  Actual: not found in timeline\n" +
		"\nTimeline:\n" +
		"  [1] first\n" +
		"  [2] second\n"
	assert.Equal(t, want, err.Error())

	err.Timeline = nil
	assert.NotContains(t, err.Error(), "Timeline:")
}

func TestBuildWhereClause_Empty(t *testing.T) {
	sql, args, err := buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestBuildWhereClause_MultipleKeys_SortedDeterministic(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"stream": "sms", "run_id": "run-1", "sender": 2})
	require.NoError(t, err)
	assert.Equal(t, "run_id = ? AND sender = ? AND stream = ?", sql)
	assert.Equal(t, []any{"run-1", 2, "sms"}, args)
}

func TestBuildWhereClause_InvalidColumnName(t *testing.T) {
	for _, col := range []string{"id; DROP TABLE runs", "1col", "a-b", ""} {
		_, _, err := buildWhereClause(map[string]any{col: "x"})
		assert.Error(t, err, "column %q", col)
	}
}

func TestToSQLValue_Types(t *testing.T) {
	assert.Equal(t, "s", toSQLValue("s"))
	assert.Equal(t, 3, toSQLValue(3))
	assert.Equal(t, int64(3), toSQLValue(int64(3)))
	assert.Equal(t, 1.5, toSQLValue(1.5))
	assert.Equal(t, true, toSQLValue(true))
	assert.Equal(t, "[a b]", toSQLValue([]string{"a", "b"}))
}

func TestFormatWhereClause(t *testing.T) {
	assert.Equal(t, "(no conditions)", formatWhereClause(nil))
	assert.Equal(t, "id=run-1 AND sender=2", formatWhereClause(map[string]any{"sender": 2, "id": "run-1"}))
}

func TestStateValuesEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected any
		actual   any
		want     bool
	}{
		{"strings", "sms", "sms", true},
		{"string bytes", "sms", []byte("sms"), true},
		{"string mismatch", "sms", "call", false},
		{"int to int64", 3, int64(3), true},
		{"int mismatch", 3, int64(4), false},
		{"int64", int64(3), int64(3), true},
		{"float", 52.52, 52.52, true},
		{"float to int64", 20.0, int64(20), true},
		{"bool from int", true, int64(1), true},
		{"bool false from int", false, int64(0), true},
		{"bool mismatch", true, int64(0), false},
		{"type mismatch", "3", int64(3), false},
		{"both nil", nil, nil, true},
		{"nil expected", nil, "x", false},
		{"nil actual", "x", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, stateValuesEqual(tt.expected, tt.actual))
		})
	}
}

// Integration tests for assertFinalState against the archive schema

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = st.DB().Exec(`INSERT INTO runs (id, started_at, contacts, events) VALUES (?, ?, ?, ?)`,
		"run-1", 1700000000, 3, 2)
	require.NoError(t, err)
	_, err = st.DB().Exec(`INSERT INTO runs (id, started_at, contacts, events) VALUES (?, ?, ?, ?)`,
		"run-2", 1700000100, 4, 0)
	require.NoError(t, err)
	return st
}

func TestAssertFinalState_RowFound_Pass(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "runs",
		Where:  map[string]any{"id": "run-1"},
		Expect: map[string]any{"contacts": 3, "events": 2, "book_digest": ""},
	}
	assert.NoError(t, assertFinalState(context.Background(), st, assertion))
}

func TestAssertFinalState_RowNotFound_Fail(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "runs",
		Where:  map[string]any{"id": "run-9"},
		Expect: map[string]any{"contacts": 3},
	}
	aerr := asAssertionError(t, assertFinalState(context.Background(), st, assertion))
	assert.Equal(t, "final_state", aerr.Type)
	assert.Contains(t, aerr.Actual, "row not found")
}

func TestAssertFinalState_MultipleRows_Fail(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "runs",
		Expect: map[string]any{"contacts": 3},
	}
	aerr := asAssertionError(t, assertFinalState(context.Background(), st, assertion))
	assert.Contains(t, aerr.Actual, "multiple rows matched")
}

func TestAssertFinalState_ValueMismatch_Fail(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "runs",
		Where:  map[string]any{"id": "run-2"},
		Expect: map[string]any{"contacts": 5},
	}
	aerr := asAssertionError(t, assertFinalState(context.Background(), st, assertion))
	assert.Contains(t, aerr.Expected, `field "contacts" = 5`)
	assert.Contains(t, aerr.Actual, `field "contacts" = 4`)
}

func TestAssertFinalState_MissingColumn_Fail(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "runs",
		Where:  map[string]any{"id": "run-1"},
		Expect: map[string]any{"nonexistent": 1},
	}
	aerr := asAssertionError(t, assertFinalState(context.Background(), st, assertion))
	assert.Contains(t, aerr.Actual, "not present in result columns")
}

func TestAssertFinalState_TableNotFound_Fail(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "missing_table",
		Expect: map[string]any{"x": 1},
	}
	aerr := asAssertionError(t, assertFinalState(context.Background(), st, assertion))
	assert.Contains(t, aerr.Actual, "query error")
}

func TestAssertFinalState_InvalidTableName(t *testing.T) {
	st := setupTestStore(t)
	assertion := Assertion{
		Type:   AssertFinalState,
		Table:  "runs; DROP TABLE runs",
		Expect: map[string]any{"x": 1},
	}
	err := assertFinalState(context.Background(), st, assertion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid table name")
}

func TestEvaluateAssertions_AllPass(t *testing.T) {
	st := setupTestStore(t)
	actx := &AssertionContext{Store: st, Book: testBook(t), Ctx: context.Background()}
	assertions := []Assertion{
		{Type: AssertContactCount, Count: 3},
		{Type: AssertEventCount, Count: 3},
		{Type: AssertTimelineContains, Line: "line one"},
		{Type: AssertFinalState, Table: "runs", Where: map[string]any{"id": "run-2"}, Expect: map[string]any{"events": 0}},
	}
	assert.Empty(t, EvaluateAssertions(testResult(), assertions, actx))
}

func TestEvaluateAssertions_MissingContext(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertContactCount, Count: 3},
		{Type: AssertFinalState, Table: "runs", Expect: map[string]any{"events": 0}},
		{Type: "trace_order"},
	}
	errs := EvaluateAssertions(testResult(), assertions, nil)
	require.Len(t, errs, 3)
	assert.Equal(t, "assertion[0]: contact_count requires a contact book", errs[0])
	assert.Equal(t, "assertion[1]: final_state requires database context", errs[1])
	assert.Equal(t, `assertion[2]: unknown assertion type "trace_order"`, errs[2])
}
