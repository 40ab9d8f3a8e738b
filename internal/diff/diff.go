package diff

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/label"
)

// Options configures the diff sensitivity.
type Options struct {
	MinSelfTimeDeltaMs float64
	MinPercentChange   float64
	MaxItems           int
}

// Report summarises the delta between two plan analyses.
type Report struct {
	Summary      SummaryDiff      `json:"summary"`
	Regressions  []Entry          `json:"regressions"`
	Improvements []Entry          `json:"improvements"`
	Insights     []insightMessage `json:"insights"`
	Options      Options          `json:"-"`
}

// SummaryDiff covers high-level execution differences.
type SummaryDiff struct {
	BaseExecutionMs   float64 `json:"base_execution_ms"`
	TargetExecutionMs float64 `json:"target_execution_ms"`
	DeltaExecutionMs  float64 `json:"delta_execution_ms"`
	PercentExecution  float64 `json:"percent_execution"`
	BaseNodes         int     `json:"base_nodes"`
	TargetNodes       int     `json:"target_nodes"`
}

// Entry captures the delta for a set of nodes with the same signature.
type Entry struct {
	Signature       string  `json:"signature"`
	BaseSelfMs      float64 `json:"base_self_ms"`
	TargetSelfMs    float64 `json:"target_self_ms"`
	DeltaSelfMs     float64 `json:"delta_self_ms"`
	PercentChange   float64 `json:"percent_change"`
	BaseRows        float64 `json:"base_rows"`
	TargetRows      float64 `json:"target_rows"`
	BaseRowFactor   Factor  `json:"base_row_factor"`
	TargetRowFactor Factor  `json:"target_row_factor"`
	BaseStarts      float64 `json:"base_starts"`
	TargetStarts    float64 `json:"target_starts"`
}

// Factor is an actual/estimated row ratio; +Inf encodes as null in JSON.
type Factor float64

func (f Factor) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

type insightMessage struct {
	Severity string `json:"severity"`
	Icon     string `json:"icon"`
	Message  string `json:"message"`
}

// Compare builds a diff report for two plan analyses. Nodes are grouped by
// their compact label so that runs of the same query line up even when
// row counts differ.
func Compare(base, target *analyzer.PlanAnalysis, opts Options) (*Report, error) {
	if base == nil || base.Root == nil {
		return nil, fmt.Errorf("diff: base analysis missing")
	}
	if target == nil || target.Root == nil {
		return nil, fmt.Errorf("diff: target analysis missing")
	}

	opts = applyDefaults(opts)
	synth := label.New(config.Active().Labels.Compact)

	baseAgg := aggregate(base.Root, synth)
	targetAgg := aggregate(target.Root, synth)

	var regressions, improvements []Entry
	for _, sig := range unionKeys(baseAgg, targetAgg) {
		entry := buildEntry(sig, baseAgg[sig], targetAgg[sig])
		if passesRegression(entry, opts) {
			regressions = append(regressions, entry)
		} else if passesImprovement(entry, opts) {
			improvements = append(improvements, entry)
		}
	}

	sort.SliceStable(regressions, func(i, j int) bool {
		return regressions[i].DeltaSelfMs > regressions[j].DeltaSelfMs
	})
	sort.SliceStable(improvements, func(i, j int) bool {
		return improvements[i].DeltaSelfMs < improvements[j].DeltaSelfMs
	})

	if opts.MaxItems > 0 {
		if len(regressions) > opts.MaxItems {
			regressions = regressions[:opts.MaxItems]
		}
		if len(improvements) > opts.MaxItems {
			improvements = improvements[:opts.MaxItems]
		}
	}

	report := &Report{
		Summary: SummaryDiff{
			BaseExecutionMs:   base.TotalTimeMs,
			TargetExecutionMs: target.TotalTimeMs,
			DeltaExecutionMs:  target.TotalTimeMs - base.TotalTimeMs,
			PercentExecution:  percentChange(base.TotalTimeMs, target.TotalTimeMs),
			BaseNodes:         base.NodeCount,
			TargetNodes:       target.NodeCount,
		},
		Regressions:  regressions,
		Improvements: improvements,
		Options:      opts,
	}
	report.Insights = synthesizeInsights(report)
	return report, nil
}

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder
	b.WriteString("# myflames diff\n\n")
	b.WriteString("## Summary\n")
	_, _ = fmt.Fprintf(&b, "- Execution: %.3f ms → %.3f ms (%+.3f ms, %+.1f%%)\n",
		r.Summary.BaseExecutionMs, r.Summary.TargetExecutionMs,
		r.Summary.DeltaExecutionMs, r.Summary.PercentExecution)
	_, _ = fmt.Fprintf(&b, "- Nodes: %d → %d\n\n", r.Summary.BaseNodes, r.Summary.TargetNodes)

	b.WriteString("### Insights\n")
	if len(r.Insights) == 0 {
		b.WriteString("- No notable plan changes detected\n")
	} else {
		for _, msg := range r.Insights {
			_, _ = fmt.Fprintf(&b, "- %s %s\n", msg.Icon, msg.Message)
		}
	}

	b.WriteString("\n### Regressions\n")
	writeTable(&b, r.Regressions)
	b.WriteString("\n### Improvements\n")
	writeTable(&b, r.Improvements)
	return b.String()
}

func writeTable(b *strings.Builder, entries []Entry) {
	if len(entries) == 0 {
		b.WriteString("- None above threshold\n")
		return
	}
	b.WriteString("| Operation | Base self (ms) | Target self (ms) | Δ self (ms) | Δ % | Rows (actual / est) |\n")
	b.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, entry := range entries {
		_, _ = fmt.Fprintf(b, "| %s | %.2f | %.2f | %+.2f | %+.1f%% | %s |\n",
			strings.ReplaceAll(entry.Signature, "|", `\|`),
			entry.BaseSelfMs,
			entry.TargetSelfMs,
			entry.DeltaSelfMs,
			entry.PercentChange,
			rowsSummary(entry))
	}
}

// JSON marshals the diff report into an indented JSON document.
func (r *Report) JSON() ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("nil report")
	}
	type alias Report
	return json.MarshalIndent((*alias)(r), "", "  ")
}

func rowsSummary(entry Entry) string {
	return fmt.Sprintf("%s → %s",
		formatRows(entry.BaseRows, entry.BaseRowFactor),
		formatRows(entry.TargetRows, entry.TargetRowFactor))
}

func formatRows(rows float64, f Factor) string {
	factor := float64(f)
	if rows == 0 && (factor == 0 || math.IsNaN(factor)) {
		return "0"
	}
	if math.IsInf(factor, 1) {
		return fmt.Sprintf("%.0f (∞)", rows)
	}
	return fmt.Sprintf("%.0f (x%.2f)", rows, factor)
}

func synthesizeInsights(r *Report) []insightMessage {
	if r == nil {
		return nil
	}
	const maxItems = 3
	cfg := config.Active()

	var insights []insightMessage
	for i, entry := range r.Regressions {
		if i >= maxItems {
			break
		}
		text := fmt.Sprintf("%s self %+.2f ms (%+.1f%%)", entry.Signature, entry.DeltaSelfMs, entry.PercentChange)
		icon, level := "⚠️", "warning"
		if entry.DeltaSelfMs >= cfg.Diff.CriticalDeltaMs {
			icon, level = "🔥", "critical"
		}
		insights = append(insights, insightMessage{Severity: level, Icon: icon, Message: text})
	}

	for i, entry := range r.Improvements {
		if i >= maxItems {
			break
		}
		text := fmt.Sprintf("%s self %.2f ms (%.1f%%)", entry.Signature, entry.DeltaSelfMs, entry.PercentChange)
		insights = append(insights, insightMessage{Severity: "improvement", Icon: "✅", Message: text})
	}

	for _, entry := range r.Regressions {
		if entry.BaseStarts < cfg.Insights.NestedLoopWarnStarts && entry.TargetStarts >= cfg.Insights.NestedLoopWarnStarts {
			text := fmt.Sprintf("%s now starts %.0f times (was %.0f)", entry.Signature, entry.TargetStarts, entry.BaseStarts)
			insights = append(insights, insightMessage{Severity: "warning", Icon: "⚠️", Message: text})
		}
	}
	return insights
}

type aggregated struct {
	SelfMs        float64
	ActualRows    float64
	EstimatedRows float64
	Starts        float64
}

func aggregate(root *analyzer.NodeStats, synth *label.Synthesizer) map[string]aggregated {
	result := map[string]aggregated{}
	for _, n := range analyzer.Flatten(root) {
		sig := synth.Synthesize(n.Node)
		entry := result[sig]
		entry.SelfMs += n.SelfTimeMs
		entry.ActualRows += n.Rows
		entry.EstimatedRows += n.EstimatedRows
		entry.Starts += n.Loops
		result[sig] = entry
	}
	return result
}

func unionKeys(base, target map[string]aggregated) []string {
	seen := map[string]struct{}{}
	for k := range base {
		seen[k] = struct{}{}
	}
	for k := range target {
		seen[k] = struct{}{}
	}
	all := make([]string, 0, len(seen))
	for k := range seen {
		all = append(all, k)
	}
	sort.Strings(all)
	return all
}

func buildEntry(sig string, base, target aggregated) Entry {
	return Entry{
		Signature:       sig,
		BaseSelfMs:      base.SelfMs,
		TargetSelfMs:    target.SelfMs,
		DeltaSelfMs:     target.SelfMs - base.SelfMs,
		PercentChange:   percentChange(base.SelfMs, target.SelfMs),
		BaseRows:        base.ActualRows,
		TargetRows:      target.ActualRows,
		BaseRowFactor:   Factor(ratio(base.ActualRows, base.EstimatedRows)),
		TargetRowFactor: Factor(ratio(target.ActualRows, target.EstimatedRows)),
		BaseStarts:      base.Starts,
		TargetStarts:    target.Starts,
	}
}

func passesRegression(entry Entry, opts Options) bool {
	return entry.DeltaSelfMs >= opts.MinSelfTimeDeltaMs && entry.PercentChange >= opts.MinPercentChange
}

func passesImprovement(entry Entry, opts Options) bool {
	return entry.DeltaSelfMs <= -opts.MinSelfTimeDeltaMs && entry.PercentChange <= -opts.MinPercentChange
}

func ratio(actual, estimated float64) float64 {
	const eps = 1e-9
	if estimated <= eps {
		if actual <= eps {
			return 1
		}
		return math.Inf(1)
	}
	return actual / estimated
}

func percentChange(base, target float64) float64 {
	const eps = 1e-9
	if math.Abs(base) <= eps {
		if math.Abs(target) <= eps {
			return 0
		}
		if target > 0 {
			return 100
		}
		return -100
	}
	return (target - base) / base * 100
}

func applyDefaults(opts Options) Options {
	cfg := config.Active().Diff
	if opts.MinSelfTimeDeltaMs <= 0 {
		opts.MinSelfTimeDeltaMs = cfg.MinSelfDeltaMs
	}
	if opts.MinPercentChange <= 0 {
		opts.MinPercentChange = cfg.MinPercentChange
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = cfg.MaxItems
	}
	return opts
}
