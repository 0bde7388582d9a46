package events

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lifelog/internal/contacts"
)

func at(day, hour, min, sec int) int64 {
	return time.Date(2024, time.March, day, hour, min, sec, 0, time.UTC).Unix()
}

type fixture struct {
	book           *contacts.Book
	me, joe, pizza int
	events         []*Event
	renderer       Renderer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	b, err := contacts.NewBook(contacts.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)

	id := func(c *contacts.Contact) int {
		n, ok := c.ID()
		require.True(t, ok)
		return n
	}
	f := &fixture{book: b}
	f.me = id(b.Add(contacts.MustNew(contacts.AsMe(), contacts.WithName("Me Myself"))))
	f.joe = id(b.Add(contacts.MustNew(contacts.WithName("Joe"), contacts.WithPhones("5551234"))))
	f.pizza = id(b.Add(contacts.MustNew(contacts.WithPhones("555-9999"))))

	f.events = []*Event{
		{Kind: KindMessage, Stream: StreamChat, Start: at(4, 23, 59, 59), Sender: f.me,
			Recipients: []int{f.joe, f.pizza, f.joe}, Message: "group"},
		{Kind: KindCall, Stream: StreamCall, Subtype: "received", Start: at(2, 8, 0, 0), End: at(2, 8, 2, 5),
			Sender: f.joe, Recipients: []int{f.me}},
		{Kind: KindMessage, Stream: StreamSMS, Start: at(1, 9, 15, 0), Sender: f.me,
			Recipients: []int{f.joe}, Message: "hi Joe"},
		{Kind: KindLocation, Stream: StreamLocation, Start: at(2, 12, 0, 0), Sender: f.me,
			Lat: 37.7749, Long: -122.4194, Accuracy: 12},
		{Kind: KindCall, Stream: StreamCall, Subtype: SubtypeMissed, Start: at(1, 18, 0, 0), End: at(1, 18, 0, 30),
			Sender: f.pizza, Recipients: []int{f.me}},
		{Kind: KindMessage, Stream: StreamSMS, Start: at(1, 9, 16, 30), Sender: f.joe,
			Recipients: []int{f.me}, Message: "hey"},
	}
	for _, e := range f.events {
		require.NoError(t, e.Seal())
	}

	f.renderer = Renderer{
		Directory: BookDirectory(b),
		Aliases:   Aliases{"5559999": "Pizza Place"},
		Location:  time.UTC,
	}
	return f
}

func TestTimelineGolden(t *testing.T) {
	f := newFixture(t)
	tl := &Timeline{Renderer: f.renderer}

	var buf bytes.Buffer
	require.NoError(t, tl.Write(&buf, f.events))

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "timeline", buf.Bytes())
}

func TestTimelineFilter(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"no filter", Filter{}, 6},
		{"begin", Filter{Begin: at(2, 0, 0, 0)}, 3},
		{"end inclusive", Filter{End: at(1, 9, 16, 30)}, 2},
		{"window", Filter{Begin: at(2, 0, 0, 0), End: at(2, 23, 59, 59)}, 2},
		{"person substring", Filter{Person: "pizza"}, 2},
		{"person by raw label", Filter{Person: "5559999"}, 2},
		{"exact person misses partial", Filter{Person: "pizza", ExactPerson: true}, 0},
		{"exact person", Filter{Person: "JOE", ExactPerson: true}, 4},
		{"streams", Filter{Streams: []string{"SMS"}}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tl := &Timeline{Renderer: f.renderer, Filter: tt.filter}
			assert.Len(t, tl.Select(f.events), tt.want)
		})
	}
}

func TestTimelineHidesEchoes(t *testing.T) {
	f := newFixture(t)
	echo := *f.events[2]
	echo.Echo = true

	tl := &Timeline{Renderer: f.renderer, Filter: Filter{HideEchoes: true}}
	got := tl.Select(append(f.events, &echo))

	assert.Len(t, got, 6)
	for _, e := range got {
		assert.False(t, e.Echo)
	}
}

func TestComputeIDIgnoresProvenance(t *testing.T) {
	base := Event{Kind: KindMessage, Stream: StreamSMS, Start: 100, Sender: 1, Recipients: []int{2, 3}, Message: "hi"}
	require.NoError(t, base.Seal())

	other := base
	other.Format = "voice"
	other.RunID = "run-2"
	other.Raw = json.RawMessage(`{"x":1}`)
	other.Recipients = []int{3, 2}
	require.NoError(t, other.Seal())
	assert.Equal(t, base.ID, other.ID)

	changed := base
	changed.Message = "hi!"
	require.NoError(t, changed.Seal())
	assert.NotEqual(t, base.ID, changed.ID)

	echo := base
	echo.Echo = true
	require.NoError(t, echo.Seal())
	assert.NotEqual(t, base.ID, echo.ID, "an echo is stored next to its original")
	assert.Len(t, base.ID, 64)
}

func TestEventValidate(t *testing.T) {
	tests := []struct {
		name string
		e    Event
	}{
		{"missing stream", Event{Kind: KindMessage}},
		{"negative start", Event{Kind: KindMessage, Stream: StreamSMS, Start: -1}},
		{"end before start", Event{Kind: KindCall, Stream: StreamCall, Start: 10, End: 5}},
		{"unknown kind", Event{Kind: "fax", Stream: "fax"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.e.Seal(), ErrInvalidEvent)
			assert.Empty(t, tt.e.ID)
		})
	}
}

func TestKindForStream(t *testing.T) {
	assert.Equal(t, KindCall, KindForStream("call"))
	assert.Equal(t, KindLocation, KindForStream("location"))
	assert.Equal(t, KindMessage, KindForStream("sms"))
	assert.Equal(t, KindMessage, KindForStream("hangouts"))
}

func TestParticipantsAndRemap(t *testing.T) {
	e := Event{Sender: 1, Recipients: []int{2, 1, 3, 2}}
	assert.Equal(t, []int{1, 2, 3}, e.Participants())

	e.Remap(map[int]int{1: 10, 3: 30})
	assert.Equal(t, 10, e.Sender)
	assert.Equal(t, []int{2, 10, 30, 2}, e.Recipients)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{-5, "0 sec"},
		{0, "0 sec"},
		{59, "59 sec"},
		{60, "1:00"},
		{187, "3:07"},
		{3723, "1:02:03"},
		{90000, "1 days 1:00:00"},
		{187506, "2 days 4:05:06"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), "FormatDuration(%d)", tt.in)
	}
}

func TestParseTime(t *testing.T) {
	got, err := ParseTime("1700000000", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), got)

	got, err = ParseTime("2024-03-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at(1, 0, 0, 0), got)

	got, err = ParseTime(" 2024-03-01 09:15:00 ", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at(1, 9, 15, 0), got)

	_, err = ParseTime("yesterday", time.UTC)
	assert.Error(t, err)
}

func TestParseAliases(t *testing.T) {
	got, err := ParseAliases("5551234=Joe, me@x.com = Me ,")
	require.NoError(t, err)
	assert.Equal(t, Aliases{"5551234": "Joe", "me@x.com": "Me"}, got)
	assert.Equal(t, "Joe", got.Apply("5551234"))
	assert.Equal(t, "Ann", got.Apply("Ann"))

	_, err = ParseAliases("broken")
	assert.Error(t, err)
}

func TestStreamLabel(t *testing.T) {
	assert.Equal(t, "SMS", StreamLabel("sms"))
	assert.Equal(t, "Chat", StreamLabel("chat"))
	assert.Equal(t, "Hangouts", StreamLabel("HANGOUTS"))
}

func TestBookDirectoryUnknownID(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, "#99", BookDirectory(f.book).Label(99))
	assert.Equal(t, "Joe", BookDirectory(f.book).Label(f.joe))
}
