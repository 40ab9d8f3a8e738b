package tui

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/insight"
)

// Options controls how the TUI renderer behaves.
type Options struct {
	EnableColor  bool
	MaxDepth     int
	ShowWarnings bool
	BarWidth     int
}

// Render prints an ASCII tree that highlights hot nodes and row estimation issues.
func Render(w io.Writer, analysis *analyzer.PlanAnalysis, opts Options) error {
	if w == nil {
		return errors.New("tui: writer is nil")
	}
	if analysis == nil || analysis.Root == nil {
		return errors.New("tui: empty analysis")
	}
	if opts.BarWidth <= 0 {
		opts.BarWidth = 20
	}

	_, _ = fmt.Fprintf(w, "Execution time %.3f ms\n", analysis.TotalTimeMs)
	_, _ = fmt.Fprintf(w, "Nodes %d | Hot nodes %d | Divergent estimates %d\n\n",
		analysis.NodeCount, len(analysis.HotNodes), len(analysis.DivergentNodes))

	renderInsights(w, analysis)

	_, _ = fmt.Fprintf(w, "%s\n", renderLine(analysis.Root, opts))
	printChildren(w, analysis.Root, "", opts)
	return nil
}

func printChildren(w io.Writer, parent *analyzer.NodeStats, prefix string, opts Options) {
	for i, child := range parent.Children {
		renderBranch(w, child, prefix, i == len(parent.Children)-1, opts)
	}
}

func renderBranch(w io.Writer, node *analyzer.NodeStats, prefix string, isLast bool, opts Options) {
	connector := "|-- "
	childPrefix := prefix + "|   "
	if isLast {
		connector = "`-- "
		childPrefix = prefix + "    "
	}
	_, _ = fmt.Fprintf(w, "%s%s%s\n", prefix, connector, renderLine(node, opts))

	if opts.MaxDepth > 0 && node.Depth >= opts.MaxDepth {
		if len(node.Children) > 0 {
			_, _ = fmt.Fprintf(w, "%s`-- ... (%d more nodes)\n", childPrefix, len(analyzer.Flatten(node))-1)
		}
		return
	}
	printChildren(w, node, childPrefix, opts)
}

func renderLine(node *analyzer.NodeStats, opts Options) string {
	self := fmt.Sprintf("self %.3f ms", node.SelfTimeMs)
	share := fmt.Sprintf("%5.1f%%", node.PercentSelf*100)

	bar := drawBar(node.PercentSelf, opts.BarWidth)
	if opts.EnableColor {
		bar = applyColor(bar, pickColor(node.PercentSelf))
	}

	parts := []string{node.Label, self, share, bar}
	if node.Node.ActualRows != nil || node.Node.EstimatedRows != nil {
		rowInfo := fmt.Sprintf("rows %.0f/%.0f", node.Rows, node.EstimatedRows)
		switch {
		case math.IsInf(node.RowEstimateFactor, 1):
			rowInfo += " (∞)"
		case node.RowEstimateFactor > 0:
			rowInfo += fmt.Sprintf(" (x%.2f)", node.RowEstimateFactor)
		}
		parts = append(parts, rowInfo)
	}
	if node.Node.ActualLoops != nil && node.Loops != 1 {
		parts = append(parts, fmt.Sprintf("starts %.0f", node.Loops))
	}

	line := strings.Join(parts, " | ")
	if opts.ShowWarnings && len(node.Warnings) > 0 {
		warningText := strings.Join(node.Warnings, "; ")
		if opts.EnableColor {
			warningText = applyColor(warningText, "yellow")
		}
		line += " [" + warningText + "]"
	}
	return line
}

func renderInsights(w io.Writer, analysis *analyzer.PlanAnalysis) {
	messages := insight.BuildMessages(analysis)
	if len(messages) == 0 {
		return
	}
	_, _ = fmt.Fprintln(w, "Insights:")
	for _, msg := range messages {
		_, _ = fmt.Fprintf(w, "  - %s %s\n", insight.Icon(msg.Severity), msg.Text)
	}
	_, _ = fmt.Fprintln(w)
}

func drawBar(ratio float64, width int) string {
	clamped := math.Min(1, math.Max(0, ratio))
	fill := int(math.Round(clamped * float64(width)))
	if clamped > 0 && fill == 0 {
		fill = 1
	}
	return strings.Repeat("#", fill) + strings.Repeat("-", width-fill)
}

func pickColor(ratio float64) string {
	switch {
	case ratio >= 0.40:
		return "red"
	case ratio >= 0.20:
		return "yellow"
	case ratio >= 0.10:
		return "cyan"
	default:
		return ""
	}
}

func applyColor(text, color string) string {
	code := ""
	switch color {
	case "red":
		code = "\033[31m"
	case "yellow":
		code = "\033[33m"
	case "cyan":
		code = "\033[36m"
	default:
		return text
	}
	return code + text + "\033[0m"
}
