package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/ingest"
	"github.com/roach88/lifelog/internal/store"
)

// MergeOptions holds flags for the merge command.
type MergeOptions struct {
	*RootOptions
	Out string

	// RunIDs allows overriding the run id generator (for testing).
	RunIDs ingest.RunIDGenerator
}

// MergeSummary is the JSON payload of the merge command.
type MergeSummary struct {
	RunID      string `json:"run_id,omitempty"`
	Files      int    `json:"files"`
	Merged     int    `json:"merged"`
	Contacts   int    `json:"contacts"`
	BookDigest string `json:"book_digest"`
	Out        string `json:"out,omitempty"`
}

// NewMergeCommand creates the merge command.
func NewMergeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MergeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "merge <snapshot.json>...",
		Short: "Merge contact book snapshots into the latest book",
		Long: `Merge contact book snapshots (as written by "lifelog merge --out") into
the latest archived book. Contacts sharing an indexed value are merged with
the configured conflict policy; the rest are added.

The result is saved to the archive as a new run, or written to --out as a
snapshot without touching the archive.

Examples:
  lifelog merge laptop-book.json
  lifelog merge a.json b.json --out merged.json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(opts, cmd, args)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the merged snapshot here instead of the archive")

	return cmd
}

func runMerge(opts *MergeOptions, cmd *cobra.Command, files []string) error {
	ctx := commandContext(cmd)
	logger := opts.logger(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	bookOpts, err := cfg.BookOptions()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	bookOpts = append(bookOpts, contacts.WithLogger(logger))

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	book, err := loadBook(ctx, st, cfg, logger)
	if err != nil {
		return err
	}

	merged := 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read snapshot", err)
		}
		other, err := contacts.LoadBook(data, bookOpts...)
		if err != nil {
			return WrapExitError(ExitFailure, fmt.Sprintf("invalid snapshot %s", file), err)
		}
		merged += len(book.Merge(other))
		logger.Debug("merged snapshot", "file", file, "contacts", other.Len())
	}

	summary := MergeSummary{
		Files:    len(files),
		Merged:   merged,
		Contacts: book.Len(),
		Out:      opts.Out,
	}

	if opts.Out != "" {
		data, err := book.Snapshot()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode book", err)
		}
		if err := os.WriteFile(opts.Out, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "failed to write snapshot", err)
		}
		if summary.BookDigest, err = book.Digest(); err != nil {
			return WrapExitError(ExitFailure, "failed to encode book", err)
		}
	} else {
		runIDs := opts.RunIDs
		if runIDs == nil {
			runIDs = ingest.UUIDv7Generator{}
		}
		summary.RunID = runIDs.Generate()
		if summary.BookDigest, err = saveMerged(cmd, st, book, summary.RunID, files); err != nil {
			return WrapExitError(ExitFailure, "failed to save book", err)
		}
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(summary)
	}
	fmt.Fprintf(out.Writer, "Merged %d contacts from %d files: %d contacts, book %s\n",
		summary.Merged, summary.Files, summary.Contacts, summary.BookDigest)
	return nil
}

// saveMerged records the merge as a run that adds no events.
func saveMerged(cmd *cobra.Command, st *store.Store, book *contacts.Book, runID string, files []string) (string, error) {
	ctx := commandContext(cmd)
	now := time.Now()
	if err := st.BeginRun(ctx, store.Run{ID: runID, StartedAt: now, Sources: files}); err != nil {
		return "", err
	}
	digest, err := st.SaveBook(ctx, runID, book, now)
	if err != nil {
		return "", err
	}
	err = st.FinishRun(ctx, store.Run{
		ID:         runID,
		FinishedAt: time.Now(),
		Contacts:   book.Len(),
		BookDigest: digest,
	})
	return digest, err
}
