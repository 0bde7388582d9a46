package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/lifelog/internal/harness"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <scenarios-dir>",
		Short: "Run identity resolution scenarios",
		Long: `Run every scenario file (*.yaml) in a directory against a fresh
in-memory archive and report which ones fail their assertions.

A scenario lists inline source records, the import runs to perform and
the contacts, events and timeline lines expected afterwards. Use it to
check how a configuration resolves participants before importing real
data.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (missing directory, etc.)

Examples:
  lifelog check ./scenarios
  lifelog check ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runCheck(opts *RootOptions, dir string, cmd *cobra.Command) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", dir))
	}

	result, err := harness.RunDir(commandContext(cmd), dir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		if err := out.Success(result); err != nil {
			return err
		}
	} else {
		writeCheckText(out, result)
	}

	if !result.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total))
	}
	return nil
}

func writeCheckText(out *OutputFormatter, result *harness.SuiteResult) {
	failed := make(map[string][]string, len(result.Failures))
	for _, f := range result.Failures {
		failed[f.Scenario] = f.Errors
	}
	for _, name := range result.Scenarios {
		errs, bad := failed[name]
		if !bad {
			fmt.Fprintf(out.Writer, "✓ %s\n", name)
			continue
		}
		fmt.Fprintf(out.Writer, "✗ %s\n", name)
		for _, e := range errs {
			fmt.Fprintf(out.Writer, "  %s\n", e)
		}
	}
	fmt.Fprintf(out.Writer, "\n%d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
}
