package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lifelog/internal/config"
)

// NewConfigCommand creates the config command and its subcommands.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the lifelog config file",
		Long: `Create, locate and inspect the config file.

The config file lives at $LIFELOG_CONFIG_DIR/config.yaml, falling back to
$XDG_CONFIG_HOME/lifelog/config.yaml. --config points at another file.`,
		Args: cobra.NoArgs,
	}

	cmd.AddCommand(newConfigInitCommand(rootOpts))
	cmd.AddCommand(newConfigPathCommand(rootOpts))
	cmd.AddCommand(newConfigShowCommand(rootOpts))

	return cmd
}

func newConfigInitCommand(rootOpts *RootOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:           "init",
		Short:         "Write a default config file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rootOpts.configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !force {
				return NewExitError(ExitCommandError, fmt.Sprintf("%s already exists (use --force to overwrite)", path))
			}
			cfg, err := config.Default()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build default config", err)
			}
			if err := cfg.Save(path); err != nil {
				return WrapExitError(ExitCommandError, "failed to write config", err)
			}

			out := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return out.Success(map[string]string{"path": path})
			}
			fmt.Fprintf(out.Writer, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func newConfigPathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "path",
		Short:         "Print the config file path",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rootOpts.configPath()
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(path)
		},
	}
}

func newConfigShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show",
		Short:         "Print the effective configuration",
		Long:          `Print the configuration after defaults are filled and paths resolved.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return rootOpts.formatter(cmd).JSON(cfg, "")
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return WrapExitError(ExitFailure, "failed to encode config", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// configPath returns --config or the default config path.
func (o *RootOptions) configPath() (string, error) {
	if o.Config != "" {
		return o.Config, nil
	}
	path, err := config.DefaultPath()
	if err != nil {
		return "", WrapExitError(ExitCommandError, "failed to locate config", err)
	}
	return path, nil
}
