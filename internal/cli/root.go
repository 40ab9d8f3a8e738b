package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/logging"
)

// ConfigEnv names the environment variable consulted when --config is empty.
const ConfigEnv = "MYFLAMES_CONFIG"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCommand creates the root command for the myflames CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "myflames",
		Short: "myflames - MySQL EXPLAIN ANALYZE visualizer",
		Long: `Turn MySQL EXPLAIN ANALYZE FORMAT=JSON plans into flame graphs,
bar charts and annotated reports that show where the query spent its time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logging.Setup(cmd.ErrOrStderr(), opts.Verbose)
			return applyConfigPath(opts.ConfigPath)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to configuration file (JSON or YAML); falls back to $"+ConfigEnv)

	cmd.AddCommand(NewFoldCommand(opts))
	cmd.AddCommand(NewFlameCommand(opts))
	cmd.AddCommand(NewBarCommand(opts))
	cmd.AddCommand(NewReportCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

func applyConfigPath(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigEnv))
	}
	if err := config.Apply(path); err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}
	return nil
}
