package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/driver"
	"github.com/roach88/lifelog/internal/events"
)

// ErrUnresolved is returned for participant references that name no
// contact.
var ErrUnresolved = errors.New("unresolved participant")

// resolver binds the source-local contact ids of one source to contacts of
// the Book.
type resolver struct {
	book   *contacts.Book
	format string
	logger *slog.Logger

	// local maps source-local ids to the Book contact they resolved to.
	local map[int]*contacts.Contact

	added int
}

func newResolver(book *contacts.Book, format string, logger *slog.Logger) *resolver {
	return &resolver{
		book:   book,
		format: format,
		logger: logger,
		local:  make(map[int]*contacts.Contact),
	}
}

// contact folds a contact record into the Book. The first record for a
// local id is matched against the Book by its identifiers; later records
// for the same id carry new details and merge into the contact it bound to.
func (r *resolver) contact(rec driver.Record) error {
	c, err := contacts.FromMap(rec)
	if err != nil {
		return err
	}
	localID, hasLocal := c.ID()
	c.StripID()

	if hasLocal {
		if bound := r.local[localID]; bound != nil {
			bound.Merge(c, r.book.ConflictPolicy())
			return nil
		}
	}

	before := r.book.Len()
	got := r.book.AddOrMerge(c)
	if got == nil {
		return fmt.Errorf("contact %s was not added", c)
	}
	r.added += r.book.Len() - before
	if hasLocal {
		r.local[localID] = got
	}
	return nil
}

// event builds a sealed event from an event record.
func (r *resolver) event(rec driver.Record) (*events.Event, error) {
	e := &events.Event{
		Stream: rec.Stream(),
		Kind:   events.KindForStream(rec.Stream()),
		Format: r.format,
	}

	var err error
	if e.Start, err = timestamp(rec, "timestamp", "start"); err != nil {
		return nil, err
	}
	if e.End, err = timestamp(rec, "end"); err != nil {
		return nil, err
	}
	if e.End == 0 {
		dur, err := timestamp(rec, "duration")
		if err != nil {
			return nil, err
		}
		if dur > 0 {
			e.End = e.Start + dur
		}
	}

	// Events without a sender, locations included, belong to the owner.
	if e.Sender, err = r.participant(rec["sender"]); err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}
	if e.Recipients, err = r.participants(rec["recipients"]); err != nil {
		return nil, fmt.Errorf("recipients: %w", err)
	}

	e.Message, _ = rec["message"].(string)
	e.Subtype, _ = rec["subtype"].(string)
	e.Echo, _ = rec["echo"].(bool)
	if e.Lat, err = number(rec, "lat"); err != nil {
		return nil, err
	}
	if e.Long, err = number(rec, "long"); err != nil {
		return nil, err
	}
	if e.Accuracy, err = timestamp(rec, "accuracy"); err != nil {
		return nil, err
	}

	if e.Raw, err = json.Marshal(rec); err != nil {
		return nil, fmt.Errorf("encode raw record: %w", err)
	}
	if err := e.Seal(); err != nil {
		return nil, err
	}
	return e, nil
}

// participant resolves one participant reference to a Book id:
//
//   - a number is a source-local contact id
//   - a string is an identifier (email, phone number or name)
//   - an object is an inline contact
//   - a missing reference is the owner of the data
func (r *resolver) participant(ref any) (int, error) {
	var c *contacts.Contact
	switch v := ref.(type) {
	case nil:
		c = r.me()
	case json.Number, float64, int:
		id, err := toInt(v)
		if err != nil {
			return 0, err
		}
		if c = r.local[id]; c == nil {
			return 0, fmt.Errorf("%w: local id %d", ErrUnresolved, id)
		}
	case string:
		c = r.identifier(v)
	case map[string]any:
		inline, err := contacts.FromMap(v)
		if err != nil {
			return 0, err
		}
		inline.StripID()
		c = r.addOrMerge(inline)
	default:
		return 0, fmt.Errorf("%w: %T reference", ErrUnresolved, ref)
	}
	if c == nil {
		return 0, fmt.Errorf("%w: %v", ErrUnresolved, ref)
	}
	id, _ := c.ID()
	return id, nil
}

func (r *resolver) participants(ref any) ([]int, error) {
	if ref == nil {
		return nil, nil
	}
	list, ok := ref.([]any)
	if !ok {
		list = []any{ref}
	}
	out := make([]int, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		id, err := r.participant(item)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// identifier returns the contact holding raw as an email, phone number or
// name, adding a placeholder contact when none does.
func (r *resolver) identifier(raw string) *contacts.Contact {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return r.me()
	}

	var field string
	switch {
	case strings.Contains(raw, "@"):
		field = contacts.EmailsField
	case looksLikePhone(raw):
		field = contacts.PhonesField
	default:
		field = contacts.NamesField
	}
	if hit := r.book.Get(field, raw); hit != nil {
		return hit
	}

	var opt contacts.Option
	switch field {
	case contacts.EmailsField:
		opt = contacts.WithEmails(raw)
	case contacts.PhonesField:
		opt = contacts.WithPhones(raw)
	default:
		opt = contacts.WithName(raw)
	}
	c, err := contacts.New(opt)
	if err != nil {
		r.logger.Warn("cannot create placeholder contact", "identifier", raw, "error", err)
		return nil
	}
	r.logger.Debug("placeholder contact", "field", field, "identifier", raw)
	return r.addOrMerge(c)
}

// me returns the owner contact, creating an empty one on first use.
func (r *resolver) me() *contacts.Contact {
	if me := r.book.Me(); me != nil {
		return me
	}
	return r.addOrMerge(contacts.MustNew(contacts.AsMe()))
}

func (r *resolver) addOrMerge(c *contacts.Contact) *contacts.Contact {
	before := r.book.Len()
	got := r.book.AddOrMerge(c)
	r.added += r.book.Len() - before
	return got
}

// looksLikePhone reports whether s holds only phone number characters and
// at least one digit.
func looksLikePhone(s string) bool {
	for _, ch := range s {
		switch {
		case ch >= '0' && ch <= '9':
		case strings.ContainsRune("+-.() ", ch):
		default:
			return false
		}
	}
	return contacts.NormalizePhone(s) != ""
}

// timestamp reads the first present key of rec as whole seconds. Fractions
// are truncated.
func timestamp(rec driver.Record, keys ...string) (int64, error) {
	for _, key := range keys {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", key, err)
		}
		return int64(f), nil
	}
	return 0, nil
}

func number(rec driver.Record, key string) (float64, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return 0, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, fmt.Errorf("%w: not a number: %q", driver.ErrInvalidRecord, n)
		}
	case float64:
		f = n
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, fmt.Errorf("%w: not a number: %q", driver.ErrInvalidRecord, n)
		}
	default:
		return 0, fmt.Errorf("%w: not a number: %v", driver.ErrInvalidRecord, v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: not a finite number", driver.ErrInvalidRecord)
	}
	return f, nil
}

func toInt(v any) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: fractional id %v", driver.ErrInvalidRecord, f)
	}
	return int(f), nil
}
