package bar

import (
	"fmt"
	"html/template"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/folded"
	"github.com/vgrippa/myflames/internal/reconcile"
)

// Options configures the bar chart renderer.
type Options struct {
	Title      string
	Mode       folded.Mode
	Width      int
	BarHeight  int
	LabelWidth int
}

const (
	headerHeight = 48
	footerHeight = 16
	barGap       = 4
	valueWidth   = 110
)

// Render writes an SVG bar chart with one bar per plan node, biggest first.
// Nodes with no attributed time are omitted; folded.ErrEmptyResult is
// returned when nothing remains.
func Render(w io.Writer, analysis *analyzer.PlanAnalysis, opts Options) error {
	if analysis == nil || analysis.Root == nil {
		return fmt.Errorf("bar render: empty analysis")
	}
	opts = applyDefaults(opts)

	data, err := buildChart(analysis, opts)
	if err != nil {
		return err
	}
	tpl, err := template.New("bar").Parse(chartTemplate)
	if err != nil {
		return fmt.Errorf("bar render: compile template: %w", err)
	}
	if err := tpl.Execute(w, data); err != nil {
		return fmt.Errorf("bar render: execute template: %w", err)
	}
	return nil
}

func applyDefaults(opts Options) Options {
	if opts.Mode == "" {
		opts.Mode = folded.ModeSelf
	}
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.BarHeight <= 0 {
		opts.BarHeight = 18
	}
	if opts.LabelWidth <= 0 {
		opts.LabelWidth = 360
	}
	if opts.Title == "" {
		opts.Title = "Query plan " + string(opts.Mode) + " time"
	}
	return opts
}

type chartData struct {
	Title    string
	Subtitle string
	Width    int
	Center   int
	Height   int
	Bars     []barView
}

type barView struct {
	Y         int
	TextY     int
	LabelX    int
	BarX      int
	BarWidth  float64
	BarHeight int
	ValueX    float64
	Fill      string
	Label     string
	Value     string
	Tooltip   string
}

type item struct {
	node  *analyzer.NodeStats
	value float64
}

func buildChart(analysis *analyzer.PlanAnalysis, opts Options) (chartData, error) {
	var items []item
	var maxMs float64
	for _, n := range analysis.Nodes() {
		v := n.SelfTimeMs
		if opts.Mode == folded.ModeTotal {
			v = n.TotalTimeMs
		}
		if v <= 0 {
			continue
		}
		items = append(items, item{node: n, value: v})
		maxMs = math.Max(maxMs, v)
	}
	if len(items) == 0 {
		return chartData{}, folded.ErrEmptyResult
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].value > items[j].value
	})

	unit := folded.UnitFor(maxMs)
	span := float64(opts.Width - opts.LabelWidth - valueWidth)
	if span < 50 {
		span = 50
	}

	data := chartData{
		Title:    opts.Title,
		Subtitle: fmt.Sprintf("%d operations, total %s", len(items), formatValue(analysis.TotalTimeMs, unit)),
		Width:    opts.Width,
		Center:   opts.Width / 2,
		Height:   headerHeight + len(items)*(opts.BarHeight+barGap) + footerHeight,
	}
	for i, it := range items {
		y := headerHeight + i*(opts.BarHeight+barGap)
		width := math.Max(1, it.value/maxMs*span)
		data.Bars = append(data.Bars, barView{
			Y:         y,
			TextY:     y + opts.BarHeight*3/4,
			LabelX:    opts.LabelWidth - 6,
			BarX:      opts.LabelWidth,
			BarWidth:  width,
			BarHeight: opts.BarHeight,
			ValueX:    float64(opts.LabelWidth) + width + 6,
			Fill:      heat(it.value / maxMs),
			Label:     it.node.Label,
			Value:     formatValue(it.value, unit),
			Tooltip:   tooltip(it.node, it.value, analysis.TotalTimeMs),
		})
	}
	return data, nil
}

func tooltip(n *analyzer.NodeStats, value, total float64) string {
	lines := []string{n.Label}
	if total > 0 {
		lines = append(lines, fmt.Sprintf("Share: %.1f%%", value/total*100))
	}
	lines = append(lines, reconcile.FromStats(n).Describe()...)
	return strings.Join(lines, "\n")
}

func formatValue(ms float64, unit folded.Unit) string {
	return fmt.Sprintf("%.2f %s", ms*unit.Scale, unit.Name)
}

// heat maps a 0..1 ratio onto the yellow to red range flame graphs use.
func heat(ratio float64) string {
	ratio = math.Min(1, math.Max(0, ratio))
	green := int(math.Round(200 - 170*ratio))
	blue := int(math.Round(60 - 40*ratio))
	return fmt.Sprintf("rgb(230,%d,%d)", green, blue)
}

const chartTemplate = `<svg xmlns="http://www.w3.org/2000/svg" version="1.1" width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}" font-family="Verdana, sans-serif" font-size="12">
<rect x="0" y="0" width="{{.Width}}" height="{{.Height}}" fill="#f8f8f8"/>
<text x="{{.Center}}" y="20" text-anchor="middle" font-size="16">{{.Title}}</text>
<text x="10" y="38" fill="#555">{{.Subtitle}}</text>
{{- range .Bars}}
<g>
<title>{{.Tooltip}}</title>
<text x="{{.LabelX}}" y="{{.TextY}}" text-anchor="end">{{.Label}}</text>
<rect x="{{.BarX}}" y="{{.Y}}" width="{{printf "%.1f" .BarWidth}}" height="{{.BarHeight}}" fill="{{.Fill}}" rx="2" ry="2"/>
<text x="{{printf "%.1f" .ValueX}}" y="{{.TextY}}" fill="#333">{{.Value}}</text>
</g>
{{- end}}
</svg>
`
