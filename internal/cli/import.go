package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifelog/internal/contacts"
	"github.com/roach88/lifelog/internal/ingest"
)

// ImportOptions holds flags for the import command.
type ImportOptions struct {
	*RootOptions
	Sources     []string // FORMAT=PATH
	MyNumbers   []string
	Parallelism int
	Watch       bool
	Debounce    time.Duration

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs ingest.RunIDGenerator
}

// ImportSummary is the JSON payload of the import command.
type ImportSummary struct {
	RunID      string               `json:"run_id"`
	Contacts   int                  `json:"contacts"`
	Events     int                  `json:"events"`
	Inserted   int                  `json:"inserted"`
	BookDigest string               `json:"book_digest"`
	Sources    []ingest.SourceStats `json:"sources"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ImportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import data sources into the archive",
		Long: `Run each source through its driver, resolve participants to contacts,
and store the new events and the updated contact book.

Sources come from the config file and from --source flags. A source is
FORMAT=PATH, where FORMAT names a built-in driver (jsonl, google-csv) or one
discovered under the drivers directory. PATH may address a file inside a
tar or zip archive as archive.zip#member.

Examples:
  lifelog import
  lifelog import --source google-csv=contacts.csv --source voice=takeout.tgz
  lifelog import --my-number +15550000000 --watch`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Sources, "source", "s", nil, "data source as FORMAT=PATH (repeatable)")
	cmd.Flags().StringSliceVar(&opts.MyNumbers, "my-number", nil, "your phone numbers, to identify yourself")
	cmd.Flags().IntVar(&opts.Parallelism, "parallel", 0, "drivers run at once (default from config, else 4)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "re-import whenever a source file changes")
	cmd.Flags().DurationVar(&opts.Debounce, "debounce", 2*time.Second, "quiet period before a watched change is imported")

	return cmd
}

func runImport(opts *ImportOptions, cmd *cobra.Command) error {
	logger := opts.logger(cmd)
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	sources := cfg.Sources
	for _, spec := range opts.Sources {
		src, err := parseSource(spec)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --source", err)
		}
		sources = append(sources, src)
	}
	if len(sources) == 0 {
		return NewExitError(ExitCommandError, "no sources: add some to the config file or pass --source")
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	book, err := loadBook(ctx, st, cfg, logger)
	if err != nil {
		return err
	}
	registry, _, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	parallelism := opts.Parallelism
	if parallelism == 0 {
		parallelism = cfg.Parallelism
	}
	importOpts := []ingest.Option{
		ingest.WithStore(st),
		ingest.WithLogger(logger),
		ingest.WithParallelism(parallelism),
	}
	if opts.RunIDs != nil {
		importOpts = append(importOpts, ingest.WithRunIDs(opts.RunIDs))
	}
	im := ingest.New(book, registry, importOpts...)

	me, err := cfg.MeContact()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid me in config", err)
	}
	if len(opts.MyNumbers) > 0 {
		if me == nil {
			me = contacts.MustNew(contacts.AsMe())
		}
		if err := contacts.WithPhones(opts.MyNumbers...)(me); err != nil {
			return WrapExitError(ExitCommandError, "invalid --my-number", err)
		}
	}
	if me != nil {
		im.SetMe(me)
	}

	out := opts.formatter(cmd)
	importOnce := func() error {
		res, err := im.Import(ctx, sources)
		if err != nil {
			return WrapExitError(ExitFailure, "import failed", err)
		}
		return outputImport(out, res, book.Len())
	}

	if err := importOnce(); err != nil {
		return err
	}
	if !opts.Watch {
		return nil
	}

	paths := make([]string, len(sources))
	for i, src := range sources {
		paths[i] = src.Path
	}
	out.VerboseLog("watching %d sources (debounce %s)", len(paths), opts.Debounce)
	return watchSources(ctx, paths, opts.Debounce, logger, func() {
		if err := importOnce(); err != nil {
			logger.Error("watch import failed", "error", err)
		}
	})
}

// parseSource parses FORMAT=PATH.
func parseSource(spec string) (ingest.Source, error) {
	format, path, ok := strings.Cut(spec, "=")
	format, path = strings.TrimSpace(format), strings.TrimSpace(path)
	if !ok || format == "" || path == "" {
		return ingest.Source{}, fmt.Errorf("%w: source %q: want FORMAT=PATH", errUsage, spec)
	}
	return ingest.Source{Format: format, Path: path}, nil
}

func outputImport(out *OutputFormatter, res *ingest.Result, total int) error {
	summary := ImportSummary{
		RunID:      res.RunID,
		Contacts:   total,
		Events:     len(res.Events),
		Inserted:   res.Inserted,
		BookDigest: res.BookDigest,
		Sources:    res.Sources,
	}
	if out.Format == "json" {
		return out.Success(summary)
	}
	writeImportText(out.Writer, summary)
	return nil
}

func writeImportText(w io.Writer, s ImportSummary) {
	fmt.Fprintf(w, "Run %s: %d contacts, %d events (%d new)\n", s.RunID, s.Contacts, s.Events, s.Inserted)
	for _, src := range s.Sources {
		fmt.Fprintf(w, "  %s: %d records, %d contacts added, %d events, %d skipped\n",
			src.Source, src.Records, src.Contacts, src.Events, src.Skipped)
	}
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute (tests).
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
