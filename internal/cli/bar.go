package cli

import (
	"bytes"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/folded"
	"github.com/vgrippa/myflames/internal/render/bar"
)

// BarOptions holds flags for the bar command.
type BarOptions struct {
	Input  string
	Output string
	Mode   string
	Title  string
	Width  int
}

// NewBarCommand creates the bar command.
func NewBarCommand(_ *RootOptions) *cobra.Command {
	opts := &BarOptions{}

	cmd := &cobra.Command{
		Use:   "bar",
		Short: "Render a bar chart SVG of time per operation",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBar(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "plan JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "SVG output file (stdout if omitted)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(folded.ModeSelf), "time to chart: self or total")
	cmd.Flags().StringVar(&opts.Title, "title", "", "chart title")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "image width in pixels (default from config)")

	return cmd
}

func runBar(cmd *cobra.Command, opts *BarOptions) error {
	mode, err := folded.ParseMode(opts.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}
	cfg := config.Active()
	analysis, err := loadAnalysis(cmd, opts.Input, cfg.Labels.Compact)
	if err != nil {
		return err
	}

	width := opts.Width
	if width <= 0 {
		width = cfg.Flame.Width
	}
	var buf bytes.Buffer
	err = bar.Render(&buf, analysis, bar.Options{Title: opts.Title, Mode: mode, Width: width})
	if errors.Is(err, folded.ErrEmptyResult) {
		slog.Warn("plan has no operation with measurable time", "nodes", analysis.NodeCount, "mode", mode)
		return WrapExitError(ExitFailure, "nothing to draw", err)
	}
	if err != nil {
		return WrapExitError(ExitFailure, "render bar chart", err)
	}
	return writeOutput(cmd, opts.Output, buf.Bytes())
}
