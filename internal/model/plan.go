package model

// Plan represents the root of a MySQL EXPLAIN ANALYZE (FORMAT=JSON) document.
type Plan struct {
	Root  *PlanNode
	Query string
}

// PlanNode captures one operation in the execution plan tree.
// Optional fields are nil when the source document omits them or carries a
// value that is not numeric.
type PlanNode struct {
	Operation        string
	TableName        string
	Alias            string
	SchemaName       string
	IndexName        string
	AccessType       string
	Condition        string
	LookupCondition  string
	ActualRows       *float64
	EstimatedRows    *float64
	ActualLoops      *float64
	ActualLastRowMs  *float64
	ActualFirstRowMs *float64
	EstimatedCost    *float64
	Ranges           []string
	Covering         *bool
	Extra            map[string]any
	Children         []*PlanNode
}

// Loops returns the number of times the node executed, defaulting to 1.
func (n *PlanNode) Loops() float64 {
	if n == nil || n.ActualLoops == nil {
		return 1
	}
	return *n.ActualLoops
}

// LastRowMs returns the per-iteration time to the last row, defaulting to 0.
func (n *PlanNode) LastRowMs() float64 {
	if n == nil || n.ActualLastRowMs == nil {
		return 0
	}
	return *n.ActualLastRowMs
}

// TotalTimeMs is the time spent across all iterations, children included.
func (n *PlanNode) TotalTimeMs() float64 {
	return n.LastRowMs() * n.Loops()
}

// Table returns the table name, or the alias when no table name is recorded.
func (n *PlanNode) Table() string {
	if n.TableName != "" {
		return n.TableName
	}
	return n.Alias
}

// IsCovering reports whether the access used a covering index.
func (n *PlanNode) IsCovering() bool {
	return n.Covering != nil && *n.Covering
}

// Float returns a pointer to v; handy for optional fields.
func Float(v float64) *float64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
