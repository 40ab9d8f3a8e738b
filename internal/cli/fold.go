package cli

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/folded"
)

// FoldOptions holds flags for the fold command.
type FoldOptions struct {
	Input  string
	Output string
	Mode   string
}

// NewFoldCommand creates the fold command.
func NewFoldCommand(_ *RootOptions) *cobra.Command {
	opts := &FoldOptions{}

	cmd := &cobra.Command{
		Use:   "fold",
		Short: "Print folded stacks for a plan",
		Long: `Convert an EXPLAIN ANALYZE JSON plan into folded-stack lines
("frame;frame;frame weight"), the input format of flame graph renderers.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFold(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "plan JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (stdout if omitted)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(folded.ModeSelf), "time to attribute: self or total")

	return cmd
}

func runFold(cmd *cobra.Command, opts *FoldOptions) error {
	mode, err := folded.ParseMode(opts.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}
	analysis, err := loadAnalysis(cmd, opts.Input, config.Active().Labels.Flame)
	if err != nil {
		return err
	}
	res, err := serialize(analysis, mode)
	if err != nil {
		return err
	}
	return writeOutput(cmd, opts.Output, res.Bytes())
}

func serialize(analysis *analyzer.PlanAnalysis, mode folded.Mode) (*folded.Result, error) {
	res, err := folded.Serialize(analysis.Operations(), mode)
	if errors.Is(err, folded.ErrEmptyResult) {
		slog.Warn("plan has no operation with measurable time", "nodes", analysis.NodeCount, "mode", mode)
		return nil, WrapExitError(ExitFailure, "nothing to draw", err)
	}
	if err != nil {
		return nil, WrapExitError(ExitFailure, "fold plan", err)
	}
	slog.Debug("folded plan", "lines", len(res.Lines), "unit", res.Unit.Name)
	return res, nil
}
