package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/label"
)

// Severity expresses the urgency of an insight message.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Message represents an actionable observation about a plan.
type Message struct {
	Severity Severity
	Text     string
}

// BuildMessages derives human-readable insight messages for a plan.
func BuildMessages(analysis *analyzer.PlanAnalysis) []Message {
	if analysis == nil || analysis.Root == nil {
		return nil
	}
	var out []Message
	if msg := hotspotMessage(analysis); msg != nil {
		out = append(out, *msg)
	}
	out = append(out, driftMessages(analysis)...)
	out = append(out, nestedLoopMessages(analysis)...)
	out = append(out, tableScanMessages(analysis)...)
	return out
}

func hotspotMessage(analysis *analyzer.PlanAnalysis) *Message {
	if len(analysis.HotNodes) == 0 {
		return nil
	}
	cfg := config.Active().Insights
	hot := analysis.HotNodes[0]
	text := fmt.Sprintf("Hot spot: %s self %.3f ms (%.1f%%)", CompactLabel(hot), hot.SelfTimeMs, hot.PercentSelf*100)

	severity := SeverityInfo
	switch {
	case hot.PercentSelf >= cfg.HotspotCriticalPercent:
		severity = SeverityCritical
	case hot.PercentSelf >= cfg.HotspotWarningPercent:
		severity = SeverityWarning
	}
	return &Message{Severity: severity, Text: text}
}

func driftMessages(analysis *analyzer.PlanAnalysis) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	for _, node := range analysis.DivergentNodes {
		if len(msgs) == 2 {
			break
		}
		ratio := node.RowEstimateFactor
		text := fmt.Sprintf("Estimate drift: %s expected %.0f rows, got %.0f", CompactLabel(node), node.EstimatedRows, node.Rows)
		if math.IsInf(ratio, 1) {
			text += " (∞)"
		} else {
			text += fmt.Sprintf(" (x%.2f)", ratio)
		}
		text += ", run ANALYZE TABLE or add a histogram"
		severity := SeverityWarning
		if ratio >= cfg.RowEstimateCriticalHigh || ratio <= cfg.RowEstimateCriticalLow {
			severity = SeverityCritical
		}
		msgs = append(msgs, Message{Severity: severity, Text: text})
	}
	return msgs
}

func nestedLoopMessages(analysis *analyzer.PlanAnalysis) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	walkNodes(analysis.Root, func(node *analyzer.NodeStats) {
		if len(msgs) == 2 || !strings.HasPrefix(strings.ToLower(node.Node.Operation), "nested loop") {
			return
		}
		for _, child := range node.Children {
			if child.Loops <= cfg.NestedLoopWarnStarts {
				continue
			}
			text := fmt.Sprintf("Nested loop: %s started %s %.0f times, check the join index", CompactLabel(node), CompactLabel(child), child.Loops)
			severity := SeverityWarning
			if child.Loops >= cfg.NestedLoopCriticalStart {
				severity = SeverityCritical
			}
			msgs = append(msgs, Message{Severity: severity, Text: text})
			break
		}
	})
	return msgs
}

func tableScanMessages(analysis *analyzer.PlanAnalysis) []Message {
	cfg := config.Active().Insights
	var msgs []Message
	walkNodes(analysis.Root, func(node *analyzer.NodeStats) {
		if !strings.HasPrefix(strings.ToLower(node.Node.Operation), "table scan") {
			return
		}
		scanned := node.Rows * node.Loops
		if scanned < cfg.TableScanRowsHint {
			return
		}
		text := fmt.Sprintf("Full scan: %s read %.0f rows, consider an index", CompactLabel(node), scanned)
		msgs = append(msgs, Message{Severity: SeverityInfo, Text: text})
	})
	return msgs
}

func walkNodes(node *analyzer.NodeStats, fn func(*analyzer.NodeStats)) {
	for _, n := range analyzer.Flatten(node) {
		fn(n)
	}
}

// CompactLabel shortens long labels for inline summaries.
func CompactLabel(node *analyzer.NodeStats) string {
	if node == nil {
		return ""
	}
	return label.Truncate(node.Label, 60)
}

// Icon returns the glyph used for a severity in text output.
func Icon(sev Severity) string {
	switch sev {
	case SeverityCritical:
		return "🔥"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
