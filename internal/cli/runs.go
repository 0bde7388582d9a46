package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/lifelog/internal/store"
)

// RunInfo is the JSON form of an archived run.
type RunInfo struct {
	ID         string   `json:"id"`
	StartedAt  int64    `json:"started_at"`
	FinishedAt int64    `json:"finished_at,omitempty"`
	Sources    []string `json:"sources"`
	Contacts   int      `json:"contacts"`
	Events     int      `json:"events"`
	BookDigest string   `json:"book_digest,omitempty"`
}

// NewRunsCommand creates the runs command.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List import runs",
		Long: `List every import and merge run recorded in the archive, oldest first.
An unfinished run was interrupted before its events were stored.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRuns(rootOpts, cmd)
		},
	}
	return cmd
}

func runRuns(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitFailure, "failed to list runs", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		infos := make([]RunInfo, len(runs))
		for i, r := range runs {
			infos[i] = runInfo(r)
		}
		return out.Success(infos)
	}
	for _, r := range runs {
		status := "unfinished"
		if !r.FinishedAt.IsZero() {
			status = fmt.Sprintf("%d contacts, %d events", r.Contacts, r.Events)
		}
		fmt.Fprintf(out.Writer, "%s  %s  %s  (%s)\n",
			r.ID, r.StartedAt.UTC().Format(time.RFC3339), status, strings.Join(r.Sources, ", "))
	}
	return nil
}

func runInfo(r store.Run) RunInfo {
	info := RunInfo{
		ID:         r.ID,
		StartedAt:  r.StartedAt.Unix(),
		Sources:    r.Sources,
		Contacts:   r.Contacts,
		Events:     r.Events,
		BookDigest: r.BookDigest,
	}
	if !r.FinishedAt.IsZero() {
		info.FinishedAt = r.FinishedAt.Unix()
	}
	if info.Sources == nil {
		info.Sources = []string{}
	}
	return info
}
