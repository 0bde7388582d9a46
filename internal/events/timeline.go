package events

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Accepted layouts for ParseTime, besides plain unix seconds.
var timeLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04",
	time.DateOnly,
}

// ParseTime parses unix seconds or a local date ("2006-01-02",
// "2006-01-02 15:04[:05]") in loc.
func ParseTime(s string, loc *time.Location) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if loc == nil {
		loc = time.Local
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.Unix(), nil
		}
	}
	return 0, fmt.Errorf("parse time %q: want unix seconds or YYYY-MM-DD[ HH:MM:SS]", s)
}

// Filter selects events for a timeline. Zero values disable a bound.
type Filter struct {
	Begin       int64
	End         int64
	Person      string
	ExactPerson bool
	Streams     []string
	HideEchoes  bool
}

// Timeline writes events grouped under day headers.
type Timeline struct {
	Renderer
	Filter Filter
}

// Select returns the events passing the filter, in chronological order.
func (tl *Timeline) Select(evs []*Event) []*Event {
	out := make([]*Event, 0, len(evs))
	for _, e := range evs {
		if tl.keep(e) {
			out = append(out, e)
		}
	}
	Sort(out)
	return out
}

func (tl *Timeline) keep(e *Event) bool {
	f := tl.Filter
	if f.Begin != 0 && e.Start < f.Begin {
		return false
	}
	if f.End != 0 && e.Start > f.End {
		return false
	}
	if f.HideEchoes && e.Echo {
		return false
	}
	if len(f.Streams) > 0 && !containsFold(f.Streams, e.Stream) {
		return false
	}
	return tl.Matches(e, f.Person, f.ExactPerson)
}

// Write renders the selected events to w, one per line, with a day header
// whenever the local calendar day changes.
func (tl *Timeline) Write(w io.Writer, evs []*Event) error {
	var lastDay string
	for i, e := range tl.Select(evs) {
		t := time.Unix(e.Start, 0).In(tl.loc())
		if day := t.Format(time.DateOnly); day != lastDay {
			lastDay = day
			if i > 0 {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			if _, err := fmt.Fprintln(w, DayHeader(t)); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, tl.Render(e)); err != nil {
			return err
		}
	}
	return nil
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}
