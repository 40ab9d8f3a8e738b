package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/vgrippa/myflames/internal/label"
	"github.com/vgrippa/myflames/internal/model"
)

// PlanAnalysis contains derived metrics for a parsed plan.
type PlanAnalysis struct {
	Root           *NodeStats
	Query          string
	TotalTimeMs    float64
	NodeCount      int
	HotNodes       []*NodeStats
	DivergentNodes []*NodeStats
}

// NodeStats augments a plan node with its label and attributed time.
type NodeStats struct {
	Node              *model.PlanNode
	Parent            *NodeStats
	Label             string
	Path              []string
	Depth             int
	TotalTimeMs       float64
	SelfTimeMs        float64
	PercentSelf       float64
	PercentTotal      float64
	Rows              float64
	EstimatedRows     float64
	Loops             float64
	RowEstimateFactor float64
	Warnings          []string
	Children          []*NodeStats
}

// TimedOperation is the flat, path-indexed view of one node's time.
type TimedOperation struct {
	Path       []string
	SelfTimeMs float64
	TotalMs    float64
	Rows       float64
	Loops      float64
	Depth      int
}

// Analyze derives metrics for the provided plan, labelling nodes with synth.
func Analyze(plan *model.Plan, synth *label.Synthesizer) (*PlanAnalysis, error) {
	if plan == nil || plan.Root == nil {
		return nil, fmt.Errorf("analyze: missing plan")
	}
	if synth == nil {
		synth = label.New(label.FlameOptions())
	}

	root := buildStats(plan.Root, nil, synth)
	total := root.TotalTimeMs
	annotateRatios(root, total)

	all := Flatten(root)
	return &PlanAnalysis{
		Root:           root,
		Query:          plan.Query,
		TotalTimeMs:    total,
		NodeCount:      len(all),
		HotNodes:       selectHotNodes(all),
		DivergentNodes: selectDivergentNodes(all),
	}, nil
}

// Attribute converts cumulative timings into one TimedOperation per node, in
// depth-first pre-order.
func Attribute(root *model.PlanNode, synth *label.Synthesizer) []TimedOperation {
	if root == nil {
		return nil
	}
	if synth == nil {
		synth = label.New(label.FlameOptions())
	}
	return Operations(buildStats(root, nil, synth))
}

// Operations flattens a stats tree into TimedOperations.
func Operations(root *NodeStats) []TimedOperation {
	nodes := Flatten(root)
	out := make([]TimedOperation, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, TimedOperation{
			Path:       n.Path,
			SelfTimeMs: n.SelfTimeMs,
			TotalMs:    n.TotalTimeMs,
			Rows:       n.Rows,
			Loops:      n.Loops,
			Depth:      n.Depth,
		})
	}
	return out
}

// Operations returns the flattened timed view of the analysis.
func (a *PlanAnalysis) Operations() []TimedOperation {
	return Operations(a.Root)
}

// Nodes returns every node in depth-first pre-order.
func (a *PlanAnalysis) Nodes() []*NodeStats {
	return Flatten(a.Root)
}

func buildStats(node *model.PlanNode, parent *NodeStats, synth *label.Synthesizer) *NodeStats {
	stats := &NodeStats{
		Node:        node,
		Parent:      parent,
		Label:       synth.Synthesize(node),
		TotalTimeMs: node.TotalTimeMs(),
		Loops:       node.Loops(),
	}
	if parent != nil {
		stats.Depth = parent.Depth + 1
		stats.Path = make([]string, 0, len(parent.Path)+1)
		stats.Path = append(stats.Path, parent.Path...)
	}
	stats.Path = append(stats.Path, stats.Label)
	if node.ActualRows != nil {
		stats.Rows = *node.ActualRows
	}
	if node.EstimatedRows != nil {
		stats.EstimatedRows = *node.EstimatedRows
	}

	var childTime float64
	for _, childNode := range node.Children {
		child := buildStats(childNode, stats, synth)
		stats.Children = append(stats.Children, child)
		// The child's own total, not its self time.
		childTime += childNode.TotalTimeMs()
	}

	stats.SelfTimeMs = math.Max(0, stats.TotalTimeMs-childTime)
	stats.RowEstimateFactor = computeEstimateFactor(stats.EstimatedRows, stats.Rows)
	return stats
}

func annotateRatios(node *NodeStats, total float64) {
	if total > 0 {
		node.PercentSelf = node.SelfTimeMs / total
		node.PercentTotal = node.TotalTimeMs / total
	}
	node.Warnings = deriveWarnings(node)
	for _, child := range node.Children {
		annotateRatios(child, total)
	}
}

// Flatten lists root and its descendants in depth-first pre-order.
func Flatten(root *NodeStats) []*NodeStats {
	var out []*NodeStats
	var walk func(*NodeStats)
	walk = func(n *NodeStats) {
		if n == nil {
			return
		}
		out = append(out, n)
		for _, child := range n.Children {
			walk(child)
		}
	}
	walk(root)
	return out
}

func selectHotNodes(nodes []*NodeStats) []*NodeStats {
	candidates := make([]*NodeStats, 0, len(nodes))
	for _, n := range nodes {
		if n.PercentSelf > 0 {
			candidates = append(candidates, n)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].PercentSelf > candidates[j].PercentSelf
	})

	limit := min(5, len(candidates))
	const cutoff = 0.10

	var out []*NodeStats
	for _, candidate := range candidates[:limit] {
		if candidate.PercentSelf < cutoff {
			break
		}
		out = append(out, candidate)
	}
	if len(out) == 0 {
		out = candidates[:limit]
	}
	return out
}

func selectDivergentNodes(nodes []*NodeStats) []*NodeStats {
	var out []*NodeStats
	for _, n := range nodes {
		if n.Node.ActualRows == nil || n.Node.EstimatedRows == nil {
			continue
		}
		if math.IsInf(n.RowEstimateFactor, 1) || n.RowEstimateFactor >= 2.0 || n.RowEstimateFactor <= 0.5 {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return estimateDistance(out[i].RowEstimateFactor) > estimateDistance(out[j].RowEstimateFactor)
	})
	return out[:min(5, len(out))]
}

func estimateDistance(factor float64) float64 {
	if factor <= 0 {
		return math.Inf(1)
	}
	return math.Abs(math.Log(factor))
}

func computeEstimateFactor(estimated, actual float64) float64 {
	const epsilon = 1e-9
	if estimated <= epsilon {
		if actual <= epsilon {
			return 1
		}
		return math.Inf(1)
	}
	return actual / estimated
}

func deriveWarnings(stats *NodeStats) []string {
	var warnings []string
	if stats.PercentSelf >= 0.20 {
		warnings = append(warnings, fmt.Sprintf("self time %.1f%% of plan", stats.PercentSelf*100))
	}
	if stats.Node.ActualRows == nil || stats.Node.EstimatedRows == nil {
		return warnings
	}
	switch {
	case math.IsInf(stats.RowEstimateFactor, 1):
		warnings = append(warnings, "rows returned where none were estimated")
	case stats.RowEstimateFactor >= 2.0:
		warnings = append(warnings, fmt.Sprintf("rows %.1fx higher than estimate", stats.RowEstimateFactor))
	case stats.RowEstimateFactor <= 0.5:
		warnings = append(warnings, fmt.Sprintf("rows %.1fx lower than estimate", stats.RowEstimateFactor))
	}
	return warnings
}
