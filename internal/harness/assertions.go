package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/store"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string   // Assertion type for categorization
	Expected string   // Human-readable expected outcome
	Actual   string   // Human-readable actual outcome
	Timeline []string // Rendered timeline for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Timeline) > 0 {
		fmt.Fprintf(&buf, "\nTimeline:\n")
		for i, line := range e.Timeline {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}

	return buf.String()
}

// lookup returns the first contact holding raw in field. Indexed fields use
// the book index; others are scanned.
func lookup(book *contacts.Book, field, raw string) *contacts.Contact {
	if book.Indexed(field) {
		return book.Get(field, raw)
	}
	for _, c := range book.All() {
		if holdsValue(c, field, raw) {
			return c
		}
	}
	return nil
}

func holdsValue(c *contacts.Contact, field, raw string) bool {
	f, ok := c.Field(field)
	if !ok {
		return false
	}
	switch f := f.(type) {
	case *contacts.FieldValueList:
		return f.Has(raw)
	case *contacts.FieldValue:
		return slices.Contains(f.Raw(), strings.TrimSpace(raw))
	}
	return false
}

// lookupIdentifier resolves a "field:value" identifier.
func lookupIdentifier(book *contacts.Book, ident string) (*contacts.Contact, error) {
	field, raw, _ := strings.Cut(ident, ":")
	c := lookup(book, field, raw)
	if c == nil {
		return nil, &AssertionError{
			Type:     "identifier",
			Expected: fmt.Sprintf("a contact holding %s", ident),
			Actual:   "no contact found",
		}
	}
	return c, nil
}

// assertContactCount checks the number of contacts in the book.
func assertContactCount(book *contacts.Book, assertion Assertion) error {
	if book.Len() != assertion.Count {
		labels := make([]string, 0, book.Len())
		for _, c := range book.All() {
			labels = append(labels, c.String())
		}
		return &AssertionError{
			Type:     AssertContactCount,
			Expected: fmt.Sprintf("%d contacts", assertion.Count),
			Actual:   fmt.Sprintf("%d contacts: %v", book.Len(), labels),
		}
	}
	return nil
}

// assertContact checks that the contact at Field/Value holds every listed
// value (subset match) and the expected owner flag.
func assertContact(book *contacts.Book, assertion Assertion) error {
	c := lookup(book, assertion.Field, assertion.Value)
	if c == nil {
		return &AssertionError{
			Type:     AssertContact,
			Expected: fmt.Sprintf("contact with %s %q", assertion.Field, assertion.Value),
			Actual:   "not found",
		}
	}

	if assertion.Me != nil && c.IsMe() != *assertion.Me {
		return &AssertionError{
			Type:     AssertContact,
			Expected: fmt.Sprintf("%s me=%t", c, *assertion.Me),
			Actual:   fmt.Sprintf("me=%t", c.IsMe()),
		}
	}

	// Sort fields for deterministic failure messages
	fields := make([]string, 0, len(assertion.Values))
	for field := range assertion.Values {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		for _, raw := range assertion.Values[field] {
			if holdsValue(c, field, raw) {
				continue
			}
			var actual []string
			if f, ok := c.Field(field); ok {
				actual = f.Raw()
			}
			return &AssertionError{
				Type:     AssertContact,
				Expected: fmt.Sprintf("%s to hold %s %q", c, field, raw),
				Actual:   fmt.Sprintf("%s: %v", field, actual),
			}
		}
	}
	return nil
}

// assertSameContact checks that every identifier resolves to one contact.
func assertSameContact(book *contacts.Book, assertion Assertion) error {
	var first *contacts.Contact
	for _, ident := range assertion.Identifiers {
		c, err := lookupIdentifier(book, ident)
		if err != nil {
			return err
		}
		if first == nil {
			first = c
			continue
		}
		if c != first {
			firstID, _ := first.ID()
			id, _ := c.ID()
			return &AssertionError{
				Type:     AssertSameContact,
				Expected: fmt.Sprintf("%v to resolve to one contact", assertion.Identifiers),
				Actual: fmt.Sprintf("%s is #%d %s, %s is #%d %s",
					assertion.Identifiers[0], firstID, first, ident, id, c),
			}
		}
	}
	return nil
}

// assertDistinctContacts checks that no two identifiers resolve to the same
// contact.
func assertDistinctContacts(book *contacts.Book, assertion Assertion) error {
	seen := make(map[*contacts.Contact]string, len(assertion.Identifiers))
	for _, ident := range assertion.Identifiers {
		c, err := lookupIdentifier(book, ident)
		if err != nil {
			return err
		}
		if prev, dup := seen[c]; dup {
			return &AssertionError{
				Type:     AssertDistinctContacts,
				Expected: fmt.Sprintf("%v to resolve to different contacts", assertion.Identifiers),
				Actual:   fmt.Sprintf("%s and %s both resolve to %s", prev, ident, c),
			}
		}
		seen[c] = ident
	}
	return nil
}

// assertEventCount checks the number of archived events, optionally of one
// stream.
func assertEventCount(result *Result, assertion Assertion) error {
	count := 0
	for _, e := range result.Events {
		if assertion.Stream == "" || e.Stream == assertion.Stream {
			count++
		}
	}
	if count != assertion.Count {
		what := "events"
		if assertion.Stream != "" {
			what = assertion.Stream + " events"
		}
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s", assertion.Count, what),
			Actual:   fmt.Sprintf("%d %s", count, what),
			Timeline: result.Timeline,
		}
	}
	return nil
}

// assertTimelineContains checks that a rendered line is present.
func assertTimelineContains(result *Result, assertion Assertion) error {
	if slices.Contains(result.Timeline, assertion.Line) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTimelineContains,
		Expected: fmt.Sprintf("line %q", assertion.Line),
		Actual:   "not found in timeline",
		Timeline: result.Timeline,
	}
}

// assertFinalState checks if an archive table contains expected values.
// Queries the table with parameterized SQL and validates expected values
// using subset semantics.
//
// Security: Table and column names are validated against a whitelist pattern
// to prevent SQL injection via identifier interpolation.
func assertFinalState(ctx context.Context, st *store.Store, assertion Assertion) error {
	if assertion.Table == "" {
		return fmt.Errorf("final_state assertion requires table name")
	}

	// Validate table name to prevent SQL injection (identifiers can't be parameterized)
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := st.DB().QueryContext(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("get columns: %w", err)
	}

	if !rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	}

	values := make([]any, len(columns))
	valuePtrs := make([]any, len(columns))
	for i := range values {
		valuePtrs[i] = &values[i]
	}

	if err := rows.Scan(valuePtrs...); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}

	// Check for multiple matching rows (would indicate ambiguous assertion)
	if rows.Next() {
		whereDesc := formatWhereClause(assertion.Where)
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	actualRow := make(map[string]any)
	for i, col := range columns {
		actualRow[col] = values[i]
	}

	// Sort keys for deterministic failure messages
	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	// Subset semantics: only check fields in Expect
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in result columns: %v", key, columns),
			}
		}

		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}

	return nil
}

// buildWhereClause constructs parameterized WHERE clause from assertion.Where.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
//
// Security: Column names are validated against a whitelist pattern to prevent
// SQL injection via identifier interpolation.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL-compatible value.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, float64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

// stateValuesEqual compares expected and actual values from archive tables.
// Handles type coercion for SQLite values which may be returned as different types.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil && actual == nil {
		return true
	}
	if expected == nil || actual == nil {
		return false
	}

	// TEXT columns may scan as bytes
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		if actualStr, ok := actual.(string); ok {
			return exp == actualStr
		}
		return false
	case int:
		if actualInt, ok := actual.(int64); ok {
			return int64(exp) == actualInt
		}
		if actualInt, ok := actual.(int); ok {
			return exp == actualInt
		}
		return false
	case int64:
		if actualInt, ok := actual.(int64); ok {
			return exp == actualInt
		}
		return false
	case float64:
		switch a := actual.(type) {
		case float64:
			return exp == a
		case int64:
			return exp == float64(a)
		}
		return false
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		// SQLite stores booleans as integers
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	// Fallback to DeepEqual for complex types
	return reflect.DeepEqual(expected, actual)
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store *store.Store
	Book  *contacts.Book
	Ctx   context.Context
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides the book for contact assertions and database
// access for final_state assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertContactCount, AssertContact, AssertSameContact, AssertDistinctContacts:
			if actx == nil || actx.Book == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a contact book", i, assertion.Type)
				break
			}
			switch assertion.Type {
			case AssertContactCount:
				err = assertContactCount(actx.Book, assertion)
			case AssertContact:
				err = assertContact(actx.Book, assertion)
			case AssertSameContact:
				err = assertSameContact(actx.Book, assertion)
			default:
				err = assertDistinctContacts(actx.Book, assertion)
			}
		case AssertEventCount:
			err = assertEventCount(result, assertion)
		case AssertTimelineContains:
			err = assertTimelineContains(result, assertion)
		case AssertFinalState:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: final_state requires database context", i)
			} else {
				err = assertFinalState(actx.Ctx, actx.Store, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
