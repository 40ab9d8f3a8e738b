package cli

import (
	"bytes"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/render/tui"
)

// ReportOptions holds flags for the report command.
type ReportOptions struct {
	Input    string
	Output   string
	Color    bool
	MaxDepth int
	Warnings bool
}

// NewReportCommand creates the report command.
func NewReportCommand(_ *RootOptions) *cobra.Command {
	opts := &ReportOptions{}

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print an annotated plan tree with insights",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReport(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "plan JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (stdout if omitted)")
	cmd.Flags().BoolVar(&opts.Color, "color", true, "enable ANSI colors")
	cmd.Flags().IntVar(&opts.MaxDepth, "max-depth", 0, "limit tree depth")
	cmd.Flags().BoolVar(&opts.Warnings, "warnings", true, "show per-node warnings")

	return cmd
}

func runReport(cmd *cobra.Command, opts *ReportOptions) error {
	analysis, err := loadAnalysis(cmd, opts.Input, config.Active().Labels.Compact)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := tui.Render(&buf, analysis, tui.Options{
		EnableColor:  opts.Color,
		MaxDepth:     opts.MaxDepth,
		ShowWarnings: opts.Warnings,
	}); err != nil {
		return WrapExitError(ExitFailure, "render report", err)
	}
	return writeOutput(cmd, opts.Output, buf.Bytes())
}
