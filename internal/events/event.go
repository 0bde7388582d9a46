// Package events holds the resolved event model and the timeline view.
//
// Events reference contacts by their Book id, never by source-specific
// identifiers. An event's ID is content-addressed over the fields that
// describe what happened (stream, time, participants, payload), so the same
// message exported by two sources collapses to one ID.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/lifelog/internal/value"
)

// Kind classifies an event.
type Kind string

const (
	KindMessage  Kind = "message"
	KindCall     Kind = "call"
	KindLocation Kind = "location"
)

// Well-known streams.
const (
	StreamSMS      = "sms"
	StreamChat     = "chat"
	StreamCall     = "call"
	StreamLocation = "location"
)

// Call subtypes that render without a duration.
const SubtypeMissed = "missed"

// ErrInvalidEvent is returned for events missing required fields.
var ErrInvalidEvent = errors.New("invalid event")

// Event is one resolved entry of the timeline.
type Event struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Stream string `json:"stream"`
	Format string `json:"format"`
	Start  int64  `json:"start"`
	End    int64  `json:"end,omitempty"`

	// Sender and Recipients are contact ids in the Book the event was
	// resolved against.
	Sender     int   `json:"sender"`
	Recipients []int `json:"recipients,omitempty"`

	Message string `json:"message,omitempty"`
	Subtype string `json:"subtype,omitempty"`

	Lat      float64 `json:"lat,omitempty"`
	Long     float64 `json:"long,omitempty"`
	Accuracy int64   `json:"accuracy,omitempty"`

	// Echo marks the second copy of a message sent to oneself.
	Echo bool `json:"echo,omitempty"`

	// RunID is the import run that produced the event.
	RunID string `json:"run_id,omitempty"`

	Raw json.RawMessage `json:"raw,omitempty"`
}

// KindForStream maps a driver stream name to its event kind.
func KindForStream(stream string) Kind {
	switch stream {
	case StreamCall, "voicemail", "video":
		return KindCall
	case StreamLocation:
		return KindLocation
	default:
		return KindMessage
	}
}

// Validate checks the fields every event needs.
func (e *Event) Validate() error {
	if e.Stream == "" {
		return fmt.Errorf("%w: missing stream", ErrInvalidEvent)
	}
	if e.Start < 0 {
		return fmt.Errorf("%w: negative start %d", ErrInvalidEvent, e.Start)
	}
	if e.End != 0 && e.End < e.Start {
		return fmt.Errorf("%w: end %d before start %d", ErrInvalidEvent, e.End, e.Start)
	}
	switch e.Kind {
	case KindMessage, KindCall, KindLocation:
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// ComputeID returns the content id of e. Format, run and raw payload do not
// contribute, so identical events from different exports share an id.
func ComputeID(e *Event) (string, error) {
	recipients := slices.Clone(e.Recipients)
	slices.Sort(recipients)
	rs := make(value.Array, len(recipients))
	for i, r := range recipients {
		rs[i] = value.Int(r)
	}

	fields := value.Object{
		"kind":       value.String(e.Kind),
		"stream":     value.String(e.Stream),
		"start":      value.Int(e.Start),
		"end":        value.Int(e.End),
		"sender":     value.Int(e.Sender),
		"recipients": rs,
		"message":    value.String(e.Message),
		"subtype":    value.String(e.Subtype),
		"lat_e7":     value.Int(toE7(e.Lat)),
		"long_e7":    value.Int(toE7(e.Long)),
		"accuracy":   value.Int(e.Accuracy),
	}
	// Echoes must survive dedup next to the message they copy.
	if e.Echo {
		fields["echo"] = value.Bool(true)
	}
	return value.ContentID(value.DomainEvent, fields)
}

// Seal validates e and fills in its ID.
func (e *Event) Seal() error {
	if err := e.Validate(); err != nil {
		return err
	}
	id, err := ComputeID(e)
	if err != nil {
		return fmt.Errorf("compute event id: %w", err)
	}
	e.ID = id
	return nil
}

// Participants returns the sender followed by the recipients, without
// duplicates.
func (e *Event) Participants() []int {
	out := []int{e.Sender}
	for _, r := range e.Recipients {
		if !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// Remap rewrites contact ids through mapping. Ids missing from mapping are
// kept.
func (e *Event) Remap(mapping map[int]int) {
	if to, ok := mapping[e.Sender]; ok {
		e.Sender = to
	}
	for i, r := range e.Recipients {
		if to, ok := mapping[r]; ok {
			e.Recipients[i] = to
		}
	}
}

// Compare orders events by start time, then id.
func Compare(a, b *Event) int {
	if a.Start != b.Start {
		if a.Start < b.Start {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// Sort orders events chronologically in place.
func Sort(events []*Event) {
	slices.SortStableFunc(events, Compare)
}

// toE7 converts degrees to integer 1e-7 degrees, the precision Google's
// location exports use.
func toE7(deg float64) int64 {
	return int64(math.Round(deg * 1e7))
}
