package reconcile_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/label"
	"github.com/vgrippa/myflames/internal/model"
	"github.com/vgrippa/myflames/internal/reconcile"
	"github.com/vgrippa/myflames/test"
)

func detail(lbl, op, table, index string, rows, loops float64) *reconcile.LabelDetail {
	return &reconcile.LabelDetail{
		Label:     lbl,
		Operation: op,
		Table:     table,
		Index:     index,
		Rows:      model.Float(rows),
		Loops:     model.Float(loops),
	}
}

func TestMatchExactLabelBeatsEarlierTableOnly(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultWeights())
	tableOnly := detail("FILTER (t.a > 1) starts=1 rows=3", "Filter: (t.a > 1)", "t", "", 99, 99)
	exact := detail("TABLE SCAN [t] starts=1 rows=10", "Table scan on t", "t", "", 10, 1)

	got, ok := m.Match("TABLE SCAN [t] starts=1 rows=10 (2 ms, 40.00%)", []*reconcile.LabelDetail{tableOnly, exact})
	require.True(t, ok)
	assert.Same(t, exact, got)
}

func TestMatchTableOnlyIsBelowFloor(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultWeights())
	d := detail("SOMETHING ELSE", "Materialize", "orders", "", 5, 5)

	assert.Equal(t, 3, m.Score("unrelated frame mentioning orders", d))
	_, ok := m.Match("unrelated frame mentioning orders", []*reconcile.LabelDetail{d})
	assert.False(t, ok)
}

func TestMatchTiesGoToFirstSeen(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultWeights())
	first := detail("X1", "Table scan on t", "t", "", 10, 1)
	second := detail("X2", "Table scan on t", "t", "", 10, 1)

	title := "TABLE SCAN [t] starts=1 rows=10"
	require.Equal(t, m.Score(title, first), m.Score(title, second))

	got, ok := m.Match(title, []*reconcile.LabelDetail{first, second})
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestScoreSignals(t *testing.T) {
	w := reconcile.DefaultWeights()
	m := reconcile.NewMatcher(w)

	lookup := detail("INDEX LOOKUP [orders.idx_status]", "Index lookup on orders using idx_status (status = 'open')", "orders", "idx_status", 10, 1)

	cases := []struct {
		name  string
		title string
		want  int
	}{
		{name: "index fragment", title: "[orders.idx_status]", want: w.Index + w.Table},
		{name: "using clause", title: "lookup using idx_status", want: w.Index},
		{name: "rows fragment", title: "x rows=10", want: w.Rows},
		{name: "rows colon fragment", title: "x rows: 10", want: w.Rows},
		{name: "wrong rows", title: "x rows=11", want: 0},
		{name: "starts fragment", title: "x starts=1", want: w.Starts},
		{name: "loops fragment", title: "x loops:1", want: w.Starts},
		{name: "keyword family", title: "INDEX LOOKUP", want: w.Keyword},
		{
			name:  "everything",
			title: "INDEX LOOKUP [orders.idx_status] starts=1 rows=10 (0.5 ms)",
			want:  w.ExactLabel + w.Index + w.Table + w.Rows + w.Starts + w.Keyword,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, m.Score(tc.title, lookup))
		})
	}
}

func TestScoreHashJoinKeyword(t *testing.T) {
	m := reconcile.NewMatcher(reconcile.DefaultWeights())
	d := &reconcile.LabelDetail{Label: "X", Operation: "Inner hash join (o.cid = c.id)"}
	assert.Equal(t, reconcile.DefaultWeights().Keyword, m.Score("INNER HASH JOIN something", d))
}

func TestMatchCustomFloor(t *testing.T) {
	w := reconcile.DefaultWeights()
	w.Floor = 1
	m := reconcile.NewMatcher(w)
	d := detail("SOMETHING ELSE", "Materialize", "orders", "", 5, 5)

	got, ok := m.Match("orders", []*reconcile.LabelDetail{d})
	require.True(t, ok)
	assert.Same(t, d, got)

	_, ok = m.Match("orders", nil)
	assert.False(t, ok)
}

func TestBuildTable(t *testing.T) {
	analysis := test.LoadSampleAnalysis(t, "join.json")
	table := reconcile.BuildTable(analysis)

	require.Equal(t, 5, table.Len())
	assert.Equal(t, analysis.Root.Label, table.Details()[0].Label)

	d, ok := table.Lookup("SINGLE-ROW INDEX LOOKUP [customers.PRIMARY] starts=10 rows=1")
	require.True(t, ok)
	assert.Equal(t, "customers", d.Table)
	assert.Equal(t, "PRIMARY", d.Index)
	assert.Equal(t, "single-row index lookup on c using primary (id = o.customer_id)|customers|primary|1|10", d.Key)

	_, ok = table.Lookup("missing")
	assert.False(t, ok)
	assert.Equal(t, 0, reconcile.BuildTable(nil).Len())
}

func TestTableCollisionKeepsPositionAndLastDetail(t *testing.T) {
	table := reconcile.NewTable()
	first := &reconcile.LabelDetail{Label: "TABLE SCAN [t]", Key: "a"}
	other := &reconcile.LabelDetail{Label: "FILTER", Key: "b"}
	second := &reconcile.LabelDetail{Label: "TABLE SCAN [t]", Key: "c"}

	table.Put(first)
	table.Put(other)
	table.Put(second)

	require.Equal(t, 2, table.Len())
	assert.Same(t, second, table.Details()[0])
	assert.Same(t, other, table.Details()[1])
}

func TestDescribe(t *testing.T) {
	d := &reconcile.LabelDetail{
		Label:           "INDEX RANGE SCAN [t.idx_a]",
		Schema:          "test",
		Table:           "t",
		Index:           "idx_a",
		Covering:        true,
		AccessType:      "index",
		Rows:            model.Float(20),
		EstimatedRows:   model.Float(10),
		Loops:           model.Float(1),
		FirstRowMs:      model.Float(0.125),
		LastRowMs:       model.Float(2),
		Cost:            model.Float(4.5),
		Condition:       "(`t`.`a` > 1)",
		LookupCondition: "a = 1",
		Ranges:          []string{"(1 < a)"},
	}
	assert.Equal(t, []string{
		"Table: test.t",
		"Index: idx_a (covering)",
		"Access: index",
		"Rows: actual 20 / estimated 10 (x2.00)",
		"Loops: 1",
		"Time: first row 0.125 ms, last row 2 ms",
		"Cost: 4.5",
		"Condition: (t.a > 1)",
		"Lookup: a = 1",
		"Ranges: (1 < a)",
	}, d.Describe())

	assert.Empty(t, (&reconcile.LabelDetail{Label: "X"}).Describe())
	assert.Equal(t, []string{"Rows: estimated 3"}, (&reconcile.LabelDetail{EstimatedRows: model.Float(3)}).Describe())
}

func TestEnrich(t *testing.T) {
	analysis := test.LoadSampleAnalysis(t, "simple_filter.json")
	table := reconcile.BuildTable(analysis)
	m := reconcile.NewMatcher(reconcile.DefaultWeights())

	svg := `<svg><g><title>all (5 ms, 100%)</title></g>` +
		`<g><title>FILTER (t.a &gt; 1) starts=1 rows=3 (5 ms, 100.00%)</title></g>` +
		`<g><title>TABLE SCAN [t] starts=1 rows=10 (2 ms, 40.00%)</title></g></svg>`

	out, n := reconcile.Enrich([]byte(svg), table, m)
	assert.Equal(t, 2, n)

	doc := string(out)
	assert.Contains(t, doc, "<title>all (5 ms, 100%)</title>")
	assert.Contains(t, doc, "<title>FILTER (t.a &gt; 1) starts=1 rows=3 (5 ms, 100.00%)\nAccess: filter\n")
	assert.Contains(t, doc, "Condition: (t.a &gt; 1)</title>")
	assert.Contains(t, doc, "TABLE SCAN [t] starts=1 rows=10 (2 ms, 40.00%)\nTable: test.t\n")
	assert.False(t, strings.Contains(doc, "t.a > 1"), "titles must stay escaped")
}

func TestEnrichWithoutDetails(t *testing.T) {
	svg := []byte("<svg><title>x</title></svg>")
	out, n := reconcile.Enrich(svg, reconcile.NewTable(), reconcile.NewMatcher(reconcile.DefaultWeights()))
	assert.Equal(t, 0, n)
	assert.Equal(t, svg, out)
}

func TestFromStatsUsesCleanOperation(t *testing.T) {
	node := &model.PlanNode{Operation: "Table  scan on `t`", TableName: "t", ActualRows: model.Float(2.4)}
	analysis, err := analyzer.Analyze(&model.Plan{Root: node}, label.New(label.CompactOptions()))
	require.NoError(t, err)

	d := reconcile.FromStats(analysis.Root)
	assert.Equal(t, "Table scan on t", d.Operation)
	assert.Equal(t, "TABLE SCAN [t]", d.Label)
	rows, ok := d.RoundedRows()
	require.True(t, ok)
	assert.Equal(t, int64(2), rows)
	_, ok = d.RoundedLoops()
	assert.False(t, ok)
}
