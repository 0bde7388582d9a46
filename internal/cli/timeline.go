package cli

import (
	"fmt"
	"maps"

	"github.com/spf13/cobra"

	"github.com/roach88/lifelog/internal/events"
	"github.com/roach88/lifelog/internal/store"
)

// TimelineOptions holds flags for the timeline command.
type TimelineOptions struct {
	*RootOptions
	Begin       string
	End         string
	Person      string
	ExactPerson bool
	Streams     []string
	Aliases     string
	HideEchoes  bool
	RunID       string
}

// NewTimelineCommand creates the timeline command.
func NewTimelineCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TimelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Print archived events in chronological order",
		Long: `Print every archived event, interleaved across sources, grouped under
a header for each day.

Times are unix seconds or local dates ("YYYY-MM-DD" or "YYYY-MM-DD HH:MM:SS").
A date without a time means the start of that day.

Examples:
  lifelog timeline --begin 2024-03-01 --end "2024-03-31 23:59:59"
  lifelog timeline --person joe
  lifelog timeline --person "Joe Smith" --exact-person --stream sms
  lifelog timeline --aliases "+15551234567=Joe,pizza@example.com=Pizza"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimeline(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Begin, "begin", "b", "", "only events at or after this time")
	cmd.Flags().StringVarP(&opts.End, "end", "e", "", "only events at or before this time")
	cmd.Flags().StringVarP(&opts.Person, "person", "p", "", "only events involving this person (case-insensitive substring)")
	cmd.Flags().BoolVar(&opts.ExactPerson, "exact-person", false, "make --person require a whole-name match")
	cmd.Flags().StringSliceVar(&opts.Streams, "stream", nil, "only these streams (sms, chat, call, location, ...)")
	cmd.Flags().StringVarP(&opts.Aliases, "aliases", "a", "", "display names as comma-separated KEY=NAME pairs")
	cmd.Flags().BoolVar(&opts.HideEchoes, "hide-echoes", false, "hide second copies of messages sent to yourself")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "only events from this import run")

	return cmd
}

func runTimeline(opts *TimelineOptions, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	logger := opts.logger(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	filter := events.Filter{
		Person:      opts.Person,
		ExactPerson: opts.ExactPerson,
		Streams:     opts.Streams,
		HideEchoes:  opts.HideEchoes,
	}
	if opts.Begin != "" {
		if filter.Begin, err = events.ParseTime(opts.Begin, loc); err != nil {
			return WrapExitError(ExitCommandError, "invalid --begin", fmt.Errorf("%w: %v", errUsage, err))
		}
	}
	if opts.End != "" {
		if filter.End, err = events.ParseTime(opts.End, loc); err != nil {
			return WrapExitError(ExitCommandError, "invalid --end", fmt.Errorf("%w: %v", errUsage, err))
		}
	}

	aliases := events.Aliases{}
	maps.Copy(aliases, cfg.Aliases)
	flagAliases, err := events.ParseAliases(opts.Aliases)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --aliases", fmt.Errorf("%w: %v", errUsage, err))
	}
	maps.Copy(aliases, flagAliases)

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	book, err := loadBook(ctx, st, cfg, logger)
	if err != nil {
		return err
	}
	evs, err := st.ReadEvents(ctx, store.EventQuery{Begin: filter.Begin, End: filter.End, RunID: opts.RunID})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	tl := &events.Timeline{
		Renderer: events.Renderer{
			Directory: events.BookDirectory(book),
			Aliases:   aliases,
			Location:  loc,
		},
		Filter: filter,
	}

	if opts.Format == "json" {
		return opts.formatter(cmd).JSON(timelineJSON(tl, tl.Select(evs)), "")
	}
	if err := tl.Write(cmd.OutOrStdout(), evs); err != nil {
		return WrapExitError(ExitFailure, "failed to write timeline", err)
	}
	return nil
}

// TimelineEntry is one event of the JSON timeline, with participants
// resolved to display names.
type TimelineEntry struct {
	*events.Event
	Line           string   `json:"line"`
	SenderName     string   `json:"sender_name"`
	RecipientNames []string `json:"recipient_names,omitempty"`
}

func timelineJSON(tl *events.Timeline, evs []*events.Event) []TimelineEntry {
	out := make([]TimelineEntry, len(evs))
	for i, e := range evs {
		names := make([]string, len(e.Recipients))
		for j, id := range e.Recipients {
			names[j] = tl.Aliases.Apply(tl.Directory.Label(id))
		}
		out[i] = TimelineEntry{
			Event:          e,
			Line:           tl.Render(e),
			SenderName:     tl.Aliases.Apply(tl.Directory.Label(e.Sender)),
			RecipientNames: names,
		}
	}
	return out
}
