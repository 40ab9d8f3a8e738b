package label

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/vgrippa/myflames/internal/model"
)

// Options controls truncation budgets and whether metric suffixes are added.
type Options struct {
	ConditionBudget int  `json:"condition_budget" yaml:"condition_budget"`
	SortBudget      int  `json:"sort_budget" yaml:"sort_budget"`
	FallbackBudget  int  `json:"fallback_budget" yaml:"fallback_budget"`
	Metrics         bool `json:"metrics" yaml:"metrics"`
}

// FlameOptions is the vocabulary used for flame graph frames and folded stacks.
func FlameOptions() Options {
	return Options{ConditionBudget: 50, SortBudget: 40, FallbackBudget: 60, Metrics: true}
}

// CompactOptions is the shorter vocabulary used by the bar chart, report and diff,
// which show rows and loops in their own columns.
func CompactOptions() Options {
	return Options{ConditionBudget: 35, SortBudget: 30, FallbackBudget: 45}
}

// Rule classifies an operation and formats its label. Match receives the
// cleaned operation text in lower case; Format receives it as written.
type Rule struct {
	Name   string
	Match  func(lower string) bool
	Format func(n *model.PlanNode, op string, opts Options) string
}

// Synthesizer turns plan nodes into canonical display labels. The first
// matching rule wins, so more specific rules must come first.
type Synthesizer struct {
	rules []Rule
	opts  Options
}

// New builds a Synthesizer. Without explicit rules DefaultRules is used.
func New(opts Options, rules ...Rule) *Synthesizer {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Synthesizer{rules: rules, opts: opts}
}

// Options returns the budgets the synthesizer was built with.
func (s *Synthesizer) Options() Options {
	return s.opts
}

// Synthesize returns the label for n. It never returns an empty string and
// the result never contains a ';'.
func (s *Synthesizer) Synthesize(n *model.PlanNode) string {
	op := Clean(n.Operation)
	lower := strings.ToLower(op)

	base := ""
	for _, rule := range s.rules {
		if rule.Match(lower) {
			base = rule.Format(n, op, s.opts)
			break
		}
	}
	if base == "" {
		base = Truncate(op, s.opts.FallbackBudget)
	}
	if base == "" {
		base = "OPERATION"
		if n.AccessType != "" {
			base = strings.ToUpper(n.AccessType)
		}
	}
	if s.opts.Metrics {
		base += MetricSuffix(n)
	}
	return strings.ReplaceAll(base, ";", ",")
}

// MetricSuffix renders " starts=N rows=N" for whichever counters are known.
func MetricSuffix(n *model.PlanNode) string {
	var b strings.Builder
	if n.ActualLoops != nil {
		b.WriteString(" starts=")
		b.WriteString(strconv.FormatInt(Round(*n.ActualLoops), 10))
	}
	if n.ActualRows != nil {
		b.WriteString(" rows=")
		b.WriteString(strconv.FormatInt(Round(*n.ActualRows), 10))
	}
	return b.String()
}

// Round rounds to the nearest integer, halves away from zero.
func Round(v float64) int64 {
	return int64(math.Round(v))
}

// DefaultRules is the ordered classification table for MySQL operations.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "single-row index lookup", Match: matches(`^single-row (covering )?index lookup`), Format: accessLabel("SINGLE-ROW INDEX LOOKUP")},
		{Name: "covering index", Match: matches(`^covering index `), Format: coveringLabel},
		{Name: "index range scan", Match: prefix("index range scan"), Format: accessLabel("INDEX RANGE SCAN")},
		{Name: "index lookup", Match: prefix("index lookup"), Format: accessLabel("INDEX LOOKUP")},
		{Name: "index scan", Match: prefix("index scan"), Format: accessLabel("INDEX SCAN")},
		{Name: "table scan", Match: prefix("table scan"), Format: tableScanLabel},
		{Name: "filter", Match: prefix("filter"), Format: filterLabel},
		{Name: "sort", Match: prefix("sort"), Format: sortLabel},
		{Name: "nested loop", Match: prefix("nested loop"), Format: nestedLoopLabel},
		{Name: "hash join", Match: hashJoinPattern.MatchString, Format: hashJoinLabel},
		{Name: "group aggregate", Match: prefix("group aggregate"), Format: fixed("GROUP AGGREGATE")},
		{Name: "aggregate", Match: prefix("aggregate"), Format: fixed("AGGREGATE")},
		{Name: "group", Match: prefix("group"), Format: fixed("GROUP")},
		{Name: "materialize", Match: prefix("materialize"), Format: fixed("MATERIALIZE")},
		{Name: "stream results", Match: prefix("stream results"), Format: fixed("STREAM RESULTS")},
		{Name: "limit", Match: prefix("limit"), Format: limitLabel},
		{Name: "intersect", Match: prefix("intersect"), Format: fixed("INTERSECT")},
		{Name: "union", Match: prefix("union"), Format: fixed("UNION")},
	}
}

var (
	onPattern       = regexp.MustCompile(`(?i)\bon\s+(\S+)`)
	usingPattern    = regexp.MustCompile(`(?i)\busing\s+(\S+)`)
	hashJoinPattern = regexp.MustCompile(`^(?:(?:inner|left|right|outer|semi|anti)\s+)?hash\s+(?:join|semijoin|antijoin)`)
	coveringPattern = regexp.MustCompile(`(?i)^covering index\s+(range scan|skip scan|lookup|scan)`)
	numberPattern   = regexp.MustCompile(`\d+`)
)

func prefix(p string) func(string) bool {
	return func(lower string) bool { return strings.HasPrefix(lower, p) }
}

func matches(expr string) func(string) bool {
	re := regexp.MustCompile(expr)
	return re.MatchString
}

func fixed(name string) func(*model.PlanNode, string, Options) string {
	return func(*model.PlanNode, string, Options) string { return name }
}

func accessLabel(name string) func(*model.PlanNode, string, Options) string {
	return func(n *model.PlanNode, op string, _ Options) string {
		return name + " " + tableIndex(n, op)
	}
}

func coveringLabel(n *model.PlanNode, op string, _ Options) string {
	kind := "INDEX"
	if m := coveringPattern.FindStringSubmatch(op); m != nil {
		kind = "INDEX " + strings.ToUpper(m[1])
	}
	return "COVERING " + kind + " " + tableIndex(n, op)
}

func tableScanLabel(n *model.PlanNode, op string, _ Options) string {
	table := tableName(n, op)
	if table == "" {
		return "TABLE SCAN"
	}
	return "TABLE SCAN [" + table + "]"
}

func filterLabel(n *model.PlanNode, op string, opts Options) string {
	cond := n.Condition
	if cond == "" {
		cond = afterColon(op)
	}
	cond = StripOuterParens(Clean(cond))
	if cond == "" {
		return "FILTER"
	}
	return "FILTER (" + Truncate(cond, opts.ConditionBudget) + ")"
}

func sortLabel(_ *model.PlanNode, op string, opts Options) string {
	key := Clean(afterColon(op))
	if key == "" {
		return "SORT"
	}
	return "SORT (" + Truncate(key, opts.SortBudget) + ")"
}

func nestedLoopLabel(_ *model.PlanNode, op string, _ Options) string {
	kind := strings.TrimSpace(op[len("nested loop"):])
	if kind == "" {
		return "NESTED LOOP"
	}
	return "NESTED LOOP " + strings.ToUpper(kind)
}

func hashJoinLabel(_ *model.PlanNode, op string, _ Options) string {
	loc := hashJoinPattern.FindStringIndex(strings.ToLower(op))
	return strings.ToUpper(op[:loc[1]])
}

func limitLabel(_ *model.PlanNode, op string, _ Options) string {
	if count := numberPattern.FindString(op); count != "" {
		return "LIMIT " + count
	}
	return "LIMIT"
}

func tableIndex(n *model.PlanNode, op string) string {
	table := tableName(n, op)
	index := n.IndexName
	if index == "" {
		if m := usingPattern.FindStringSubmatch(op); m != nil {
			index = m[1]
		}
	}
	switch {
	case table != "" && index != "":
		return "[" + table + "." + index + "]"
	case table != "":
		return "[" + table + "]"
	case index != "":
		return "[" + index + "]"
	default:
		return "[?]"
	}
}

func tableName(n *model.PlanNode, op string) string {
	table := Clean(n.Table())
	if table == "" {
		if m := onPattern.FindStringSubmatch(op); m != nil {
			table = m[1]
		}
	}
	if isTemporary(table) {
		return "<temp>"
	}
	return table
}

func isTemporary(table string) bool {
	lower := strings.ToLower(table)
	return strings.Contains(lower, "temporary") || strings.HasPrefix(lower, "#sql") || strings.HasPrefix(lower, "/tmp/")
}

func afterColon(op string) string {
	if idx := strings.IndexByte(op, ':'); idx >= 0 {
		return op[idx+1:]
	}
	return ""
}

var quoting = strings.NewReplacer("`", "", `\"`, `"`)

// Clean strips quoting artifacts and collapses whitespace.
func Clean(s string) string {
	return strings.Join(strings.Fields(quoting.Replace(s)), " ")
}

// StripOuterParens removes parentheses that wrap the whole expression.
func StripOuterParens(s string) string {
	for len(s) >= 2 && s[0] == '(' && s[len(s)-1] == ')' && closingParen(s) == len(s)-1 {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return s
}

func closingParen(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// Truncate shortens s to at most budget runes, marking the cut with "...".
// A budget of zero or less disables truncation.
func Truncate(s string, budget int) string {
	runes := []rune(s)
	if budget <= 0 || len(runes) <= budget {
		return s
	}
	if budget <= 3 {
		return string(runes[:budget])
	}
	return strings.TrimRight(string(runes[:budget-3]), " ") + "..."
}
