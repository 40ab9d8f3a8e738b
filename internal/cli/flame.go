package cli

import (
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/folded"
	"github.com/vgrippa/myflames/internal/reconcile"
	"github.com/vgrippa/myflames/internal/runner"
)

// FlameOptions holds flags for the flame command.
type FlameOptions struct {
	Input    string
	Output   string
	Mode     string
	Title    string
	Binary   string
	Colors   string
	Width    int
	Height   int
	Timeout  time.Duration
	Icicle   bool
	NoEnrich bool
}

// NewFlameCommand creates the flame command.
func NewFlameCommand(_ *RootOptions) *cobra.Command {
	opts := &FlameOptions{}

	cmd := &cobra.Command{
		Use:   "flame",
		Short: "Render a flame graph SVG for a plan",
		Long: `Fold the plan, pipe it through flamegraph.pl and write the SVG.

Tooltips of the rendered frames are enriched with table, index, row and
timing details from the plan unless --no-enrich is given.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlame(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "-", "plan JSON file (- for stdin)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "SVG output file (stdout if omitted)")
	cmd.Flags().StringVar(&opts.Mode, "mode", string(folded.ModeSelf), "time to attribute: self or total")
	cmd.Flags().StringVar(&opts.Title, "title", "MySQL Query Plan", "graph title")
	cmd.Flags().StringVar(&opts.Binary, "flamegraph", "", "renderer executable (default from config)")
	cmd.Flags().StringVar(&opts.Colors, "colors", "", "renderer color palette (default from config)")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "image width in pixels (default from config)")
	cmd.Flags().IntVar(&opts.Height, "height", 0, "frame height in pixels (default from config)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "renderer timeout, e.g. 30s (default from config)")
	cmd.Flags().BoolVar(&opts.Icicle, "icicle", false, "draw an icicle graph (root at the top)")
	cmd.Flags().BoolVar(&opts.NoEnrich, "no-enrich", false, "keep the renderer's tooltips unchanged")

	return cmd
}

func runFlame(cmd *cobra.Command, opts *FlameOptions) error {
	mode, err := folded.ParseMode(opts.Mode)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid mode", err)
	}
	cfg := config.Active()

	analysis, err := loadAnalysis(cmd, opts.Input, cfg.Labels.Flame)
	if err != nil {
		return err
	}
	res, err := serialize(analysis, mode)
	if err != nil {
		return err
	}

	svg, err := runner.Flamegraph(cmd.Context(), res.Bytes(), flameOptions(opts, cfg.Flame, res.Unit))
	if err != nil {
		var unavailable *runner.RendererUnavailableError
		if errors.As(err, &unavailable) {
			return WrapExitError(ExitCommandError, "render flame graph", err)
		}
		return WrapExitError(ExitFailure, "render flame graph", err)
	}

	if !opts.NoEnrich {
		table := reconcile.BuildTable(analysis)
		var matched int
		svg, matched = reconcile.Enrich(svg, table, reconcile.NewMatcher(cfg.Reconcile))
		slog.Debug("enriched tooltips", "matched", matched, "labels", table.Len())
	}
	return writeOutput(cmd, opts.Output, svg)
}

func flameOptions(opts *FlameOptions, cfg config.FlameConfig, unit folded.Unit) runner.FlameOptions {
	out := runner.FlameOptions{
		Binary:    cfg.Binary,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Colors:    cfg.Colors,
		Title:     opts.Title,
		CountName: unit.Name,
		Inverted:  opts.Icicle,
		Timeout:   cfg.Timeout.Duration,
	}
	if opts.Binary != "" {
		out.Binary = opts.Binary
	}
	if opts.Colors != "" {
		out.Colors = opts.Colors
	}
	if opts.Width > 0 {
		out.Width = opts.Width
	}
	if opts.Height > 0 {
		out.Height = opts.Height
	}
	if opts.Timeout > 0 {
		out.Timeout = opts.Timeout
	}
	return out
}
