package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/diff"
)

// DiffOptions holds flags for the diff command.
type DiffOptions struct {
	Base       string
	Target     string
	Format     string
	Output     string
	MinDelta   float64
	MinPercent float64
	Limit      int
}

// NewDiffCommand creates the diff command.
func NewDiffCommand(_ *RootOptions) *cobra.Command {
	opts := &DiffOptions{}

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Compare two plans and summarise self-time changes",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "baseline plan JSON (required)")
	cmd.Flags().StringVar(&opts.Target, "target", "", "target plan JSON (required)")
	cmd.Flags().StringVar(&opts.Format, "format", "md", "output format (md|json)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (stdout if omitted)")
	cmd.Flags().Float64Var(&opts.MinDelta, "min-delta", 0, "minimum self-time delta in ms (default from config)")
	cmd.Flags().Float64Var(&opts.MinPercent, "min-percent", 0, "minimum percent change (default from config)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum rows per section (default from config)")

	return cmd
}

func runDiff(cmd *cobra.Command, opts *DiffOptions) error {
	if opts.Base == "" || opts.Target == "" {
		return NewExitError(ExitCommandError, "--base and --target are required")
	}
	if opts.Base == "-" && opts.Target == "-" {
		return NewExitError(ExitCommandError, "only one of --base and --target may read stdin")
	}
	compact := config.Active().Labels.Compact

	base, err := loadAnalysis(cmd, opts.Base, compact)
	if err != nil {
		return fmt.Errorf("load base: %w", err)
	}
	target, err := loadAnalysis(cmd, opts.Target, compact)
	if err != nil {
		return fmt.Errorf("load target: %w", err)
	}

	report, err := diff.Compare(base, target, diff.Options{
		MinSelfTimeDeltaMs: opts.MinDelta,
		MinPercentChange:   opts.MinPercent,
		MaxItems:           opts.Limit,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "compare plans", err)
	}

	switch opts.Format {
	case "md", "markdown":
		return writeOutput(cmd, opts.Output, []byte(report.Markdown()))
	case "json":
		payload, err := report.JSON()
		if err != nil {
			return WrapExitError(ExitFailure, "encode report", err)
		}
		return writeOutput(cmd, opts.Output, append(payload, '\n'))
	default:
		return NewExitError(ExitCommandError, fmt.Sprintf("unsupported format %q", opts.Format))
	}
}
