package reconcile

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/label"
)

// LabelDetail is the subset of a plan node used to enrich rendered titles.
type LabelDetail struct {
	Label           string
	Key             string
	Operation       string
	Schema          string
	Table           string
	Index           string
	AccessType      string
	Condition       string
	LookupCondition string
	Ranges          []string
	Covering        bool
	Rows            *float64
	EstimatedRows   *float64
	Loops           *float64
	FirstRowMs      *float64
	LastRowMs       *float64
	Cost            *float64
}

// RoundedRows is the actual row count as it appears in a rows=N fragment.
func (d *LabelDetail) RoundedRows() (int64, bool) {
	if d.Rows == nil {
		return 0, false
	}
	return label.Round(*d.Rows), true
}

// RoundedLoops is the loop count as it appears in a starts=N fragment.
func (d *LabelDetail) RoundedLoops() (int64, bool) {
	if d.Loops == nil {
		return 0, false
	}
	return label.Round(*d.Loops), true
}

// Table maps labels to details. Iteration follows first insertion; a label
// seen again replaces the stored detail but keeps its position.
type Table struct {
	order []*LabelDetail
	index map[string]int
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{index: map[string]int{}}
}

// BuildTable collects one detail per distinct label in the analysis.
func BuildTable(analysis *analyzer.PlanAnalysis) *Table {
	t := NewTable()
	if analysis == nil {
		return t
	}
	for _, n := range analysis.Nodes() {
		t.Put(FromStats(n))
	}
	return t
}

// FromStats extracts the detail for one analyzed node.
func FromStats(n *analyzer.NodeStats) *LabelDetail {
	node := n.Node
	return &LabelDetail{
		Label:           n.Label,
		Key:             MatchKey(n),
		Operation:       label.Clean(node.Operation),
		Schema:          node.SchemaName,
		Table:           node.Table(),
		Index:           node.IndexName,
		AccessType:      node.AccessType,
		Condition:       node.Condition,
		LookupCondition: node.LookupCondition,
		Ranges:          node.Ranges,
		Covering:        node.IsCovering(),
		Rows:            node.ActualRows,
		EstimatedRows:   node.EstimatedRows,
		Loops:           node.ActualLoops,
		FirstRowMs:      node.ActualFirstRowMs,
		LastRowMs:       node.ActualLastRowMs,
		Cost:            node.EstimatedCost,
	}
}

// MatchKey normalizes operation, table, index, rows and loops into one key.
func MatchKey(n *analyzer.NodeStats) string {
	node := n.Node
	parts := []string{
		strings.ToLower(label.Clean(node.Operation)),
		strings.ToLower(node.Table()),
		strings.ToLower(node.IndexName),
		strconv.FormatInt(label.Round(n.Rows), 10),
		strconv.FormatInt(label.Round(n.Loops), 10),
	}
	return strings.Join(parts, "|")
}

// Put stores d under its label.
func (t *Table) Put(d *LabelDetail) {
	if i, ok := t.index[d.Label]; ok {
		if prev := t.order[i]; prev.Key != d.Key {
			slog.Debug("label collision, keeping last detail", "label", d.Label, "previous", prev.Key, "current", d.Key)
		}
		t.order[i] = d
		return
	}
	t.index[d.Label] = len(t.order)
	t.order = append(t.order, d)
}

// Lookup returns the detail stored for an exact label.
func (t *Table) Lookup(lbl string) (*LabelDetail, bool) {
	i, ok := t.index[lbl]
	if !ok {
		return nil, false
	}
	return t.order[i], true
}

// Details lists entries in first-seen order.
func (t *Table) Details() []*LabelDetail {
	return t.order
}

// Len returns the number of distinct labels.
func (t *Table) Len() int {
	return len(t.order)
}

// Describe renders the multi-line tooltip body for d.
func (d *LabelDetail) Describe() []string {
	var lines []string
	if d.Table != "" {
		table := d.Table
		if d.Schema != "" {
			table = d.Schema + "." + table
		}
		lines = append(lines, "Table: "+table)
	}
	if d.Index != "" {
		index := d.Index
		if d.Covering {
			index += " (covering)"
		}
		lines = append(lines, "Index: "+index)
	}
	if d.AccessType != "" {
		lines = append(lines, "Access: "+d.AccessType)
	}
	if rows := describeRows(d); rows != "" {
		lines = append(lines, rows)
	}
	if loops, ok := d.RoundedLoops(); ok {
		lines = append(lines, fmt.Sprintf("Loops: %d", loops))
	}
	if d.FirstRowMs != nil || d.LastRowMs != nil {
		lines = append(lines, fmt.Sprintf("Time: first row %s ms, last row %s ms", formatOpt(d.FirstRowMs), formatOpt(d.LastRowMs)))
	}
	if d.Cost != nil {
		lines = append(lines, "Cost: "+strconv.FormatFloat(*d.Cost, 'f', -1, 64))
	}
	if d.Condition != "" {
		lines = append(lines, "Condition: "+label.Clean(d.Condition))
	}
	if d.LookupCondition != "" {
		lines = append(lines, "Lookup: "+label.Clean(d.LookupCondition))
	}
	if len(d.Ranges) > 0 {
		lines = append(lines, "Ranges: "+strings.Join(d.Ranges, ", "))
	}
	return lines
}

func describeRows(d *LabelDetail) string {
	switch {
	case d.Rows != nil && d.EstimatedRows != nil:
		text := fmt.Sprintf("Rows: actual %s / estimated %s", formatOpt(d.Rows), formatOpt(d.EstimatedRows))
		if *d.EstimatedRows > 0 {
			text += fmt.Sprintf(" (x%.2f)", *d.Rows / *d.EstimatedRows)
		}
		return text
	case d.Rows != nil:
		return "Rows: actual " + formatOpt(d.Rows)
	case d.EstimatedRows != nil:
		return "Rows: estimated " + formatOpt(d.EstimatedRows)
	default:
		return ""
	}
}

func formatOpt(v *float64) string {
	if v == nil {
		return "?"
	}
	if *v == math.Trunc(*v) && math.Abs(*v) < 1e15 {
		return strconv.FormatInt(int64(*v), 10)
	}
	return strconv.FormatFloat(*v, 'f', 3, 64)
}
