package events

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/roach88/lifelog/internal/contacts"
)

// Directory resolves contact ids to display labels.
type Directory interface {
	Label(id int) string
}

type bookDirectory struct {
	book *contacts.Book
}

// BookDirectory labels contacts by their display string in b. Ids missing
// from b render as "#<id>".
func BookDirectory(b *contacts.Book) Directory {
	return bookDirectory{book: b}
}

func (d bookDirectory) Label(id int) string {
	c, ok := d.book.GetByID(id)
	if !ok {
		return fmt.Sprintf("#%d", id)
	}
	return c.String()
}

// Aliases maps display labels to replacement names.
type Aliases map[string]string

// Apply returns the alias for label, or label itself.
func (a Aliases) Apply(label string) string {
	if alias, ok := a[label]; ok {
		return alias
	}
	return label
}

// ParseAliases parses "label=name,label2=name2".
func ParseAliases(s string) (Aliases, error) {
	out := Aliases{}
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" {
			return nil, fmt.Errorf("parse alias %q: want label=name", pair)
		}
		out[k] = v
	}
	return out, nil
}

// FormatDuration renders a duration in seconds: "42 sec", "3:07",
// "1:02:03" or "2 days 4:05:06".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	if seconds < 60 {
		return fmt.Sprintf("%d sec", seconds)
	}
	minutes, secs := seconds/60, seconds%60
	if minutes < 60 {
		return fmt.Sprintf("%d:%02d", minutes, secs)
	}
	hours, minutes := minutes/60, minutes%60
	if hours < 24 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%d days %d:%02d:%02d", hours/24, hours%24, minutes, secs)
}

// DayHeader is the separator printed before the first event of a day.
func DayHeader(t time.Time) string {
	return fmt.Sprintf("========== %s, %2d %s %d ==========",
		t.Format("Mon"), t.Day(), t.Format("Jan"), t.Year())
}

// StreamLabel is the display name of a stream: "SMS" for sms, otherwise the
// capitalized stream name.
func StreamLabel(stream string) string {
	if stream == StreamSMS {
		return "SMS"
	}
	return cases.Title(language.Und).String(stream)
}

// Renderer formats events as single timeline lines.
type Renderer struct {
	Directory Directory
	Aliases   Aliases
	Location  *time.Location
}

func (r *Renderer) loc() *time.Location {
	if r.Location == nil {
		return time.Local
	}
	return r.Location
}

func (r *Renderer) label(id int) string {
	return r.Aliases.Apply(r.Directory.Label(id))
}

func (r *Renderer) recipients(e *Event) string {
	seen := make(map[int]bool, len(e.Recipients))
	labels := make([]string, 0, len(e.Recipients))
	for _, id := range e.Recipients {
		if seen[id] {
			continue
		}
		seen[id] = true
		labels = append(labels, r.label(id))
	}
	return strings.Join(labels, ", ")
}

// Render formats e as one line.
func (r *Renderer) Render(e *Event) string {
	clock := time.Unix(e.Start, 0).In(r.loc()).Format(time.TimeOnly)

	switch e.Kind {
	case KindCall:
		head := StreamLabel(e.Stream)
		if e.Subtype != "" {
			head += " " + e.Subtype
		}
		line := fmt.Sprintf("%s %s: %s -> %s", clock, head, r.label(e.Sender), r.recipients(e))
		if e.Subtype != SubtypeMissed && e.End > e.Start {
			line += " for " + FormatDuration(e.End-e.Start)
		}
		return line

	case KindLocation:
		line := fmt.Sprintf("%s %s: %.7f, %.7f", clock, StreamLabel(e.Stream), e.Lat, e.Long)
		if e.Accuracy > 0 {
			line += fmt.Sprintf(" (accuracy %d m)", e.Accuracy)
		}
		return line

	default:
		return fmt.Sprintf("%s %s: %s -> %s: %s",
			clock, StreamLabel(e.Stream), r.label(e.Sender), r.recipients(e), e.Message)
	}
}

// Matches reports whether any participant of e matches person. Labels are
// compared after case folding, both before and after alias substitution.
// With exact unset, a substring match is enough.
func (r *Renderer) Matches(e *Event, person string, exact bool) bool {
	if person == "" {
		return true
	}
	want := fold(person)
	for _, id := range e.Participants() {
		label := r.Directory.Label(id)
		for _, candidate := range []string{label, r.Aliases.Apply(label)} {
			got := fold(candidate)
			if got == want || (!exact && strings.Contains(got, want)) {
				return true
			}
		}
	}
	return false
}

func fold(s string) string {
	return cases.Fold().String(s)
}
