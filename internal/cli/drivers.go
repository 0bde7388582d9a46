package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// DriverInfo describes one registered driver.
type DriverInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Streams     []string `json:"streams,omitempty"`
	Dir         string   `json:"dir,omitempty"` // empty for built-in drivers
}

// NewDriversCommand creates the drivers command.
func NewDriversCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drivers",
		Short: "List available drivers",
		Long: `List the built-in drivers and the external drivers discovered under the
configured drivers directory. Each external driver lives in its own
directory with a driver.yaml manifest.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDrivers(rootOpts, cmd)
		},
	}
	return cmd
}

func runDrivers(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	registry, manifests, err := newRegistry(cfg)
	if err != nil {
		return err
	}

	infos := make(map[string]DriverInfo)
	for _, name := range registry.Names() {
		infos[name] = DriverInfo{Name: name, Description: "built-in"}
	}
	for _, m := range manifests {
		infos[m.Name] = DriverInfo{
			Name:        m.Name,
			Description: m.Description,
			Streams:     m.Streams,
			Dir:         m.Dir,
		}
	}

	list := make([]DriverInfo, 0, len(infos))
	for _, name := range registry.Names() {
		list = append(list, infos[name])
	}

	out := opts.formatter(cmd)
	if opts.Format == "json" {
		return out.Success(list)
	}
	for _, d := range list {
		line := fmt.Sprintf("%-16s %s", d.Name, d.Description)
		if len(d.Streams) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(d.Streams, ", "))
		}
		fmt.Fprintln(out.Writer, strings.TrimRight(line, " "))
	}
	return nil
}
