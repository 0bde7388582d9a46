// Command lifelog imports personal data exports into one archive and prints
// them as a single timeline.
//
// Usage:
//
//	lifelog [--config file] [--db file] [--format text|json] <command> [flags]
//
// Commands:
//
//	import     run sources through their drivers and archive the result
//	timeline   print archived events in chronological order
//	contacts   list or look up contacts
//	merge      merge contact book snapshots into the latest book
//	drivers    list available drivers
//	runs       list import runs
//	check      run identity resolution scenarios
//	config     create, locate and inspect the config file
//	version    print the version
//
// Exit codes:
//
//	0 - Success
//	1 - Import, lookup or scenario check failed
//	2 - Bad flags, unreadable config or database
package main

import (
	"context"
	"os"

	"github.com/roach88/lifelog/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
