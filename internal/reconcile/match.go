package reconcile

import (
	"regexp"
	"strconv"
	"strings"
)

// Weights are the empirically tuned scores for each matching signal. Matching
// is best effort: a title is only enriched when the best score reaches Floor.
type Weights struct {
	ExactLabel int `json:"exact_label" yaml:"exact_label"`
	Index      int `json:"index" yaml:"index"`
	Table      int `json:"table" yaml:"table"`
	Rows       int `json:"rows" yaml:"rows"`
	Starts     int `json:"starts" yaml:"starts"`
	Keyword    int `json:"keyword" yaml:"keyword"`
	Floor      int `json:"floor" yaml:"floor"`
}

// DefaultWeights returns the built-in weights.
func DefaultWeights() Weights {
	return Weights{
		ExactLabel: 20,
		Index:      10,
		Table:      3,
		Rows:       5,
		Starts:     3,
		Keyword:    4,
		Floor:      8,
	}
}

// keywordFamily ties a title keyword to the raw operations it implies.
type keywordFamily struct {
	keyword   string
	operation *regexp.Regexp
}

func family(keyword, operation string) keywordFamily {
	return keywordFamily{keyword: keyword, operation: regexp.MustCompile(`(?i)^` + operation)}
}

var keywordFamilies = []keywordFamily{
	family("FILTER", "filter"),
	family("TABLE SCAN", "table scan"),
	family("INDEX RANGE SCAN", "index range scan"),
	family("INDEX LOOKUP", "index lookup"),
	family("SINGLE-ROW", "single-row"),
	family("COVERING INDEX", "covering index"),
	family("SORT", "sort"),
	family("NESTED LOOP", "nested loop"),
	family("HASH", `((inner|left|right|outer|semi|anti)\s+)?hash\s`),
	family("AGGREGATE", "(group )?aggregate"),
	family("MATERIALIZE", "materialize"),
	family("STREAM RESULTS", "stream results"),
	family("LIMIT", "limit"),
}

var (
	rowsPattern   = regexp.MustCompile(`(?i)\brows[=:]\s*(\d+)`)
	startsPattern = regexp.MustCompile(`(?i)\b(?:starts=|loops:)\s*(\d+)`)
)

// Matcher re-identifies rendered titles against a detail table.
type Matcher struct {
	weights Weights
}

// NewMatcher builds a matcher with the given weights.
func NewMatcher(w Weights) *Matcher {
	return &Matcher{weights: w}
}

// Match returns the best-scoring detail for title, or false when no
// candidate reaches the floor. Ties go to the earliest candidate.
func (m *Matcher) Match(title string, details []*LabelDetail) (*LabelDetail, bool) {
	var (
		best      *LabelDetail
		bestScore int
	)
	for _, d := range details {
		score := m.Score(title, d)
		if best == nil || score > bestScore {
			best, bestScore = d, score
		}
	}
	if best == nil || bestScore < m.weights.Floor {
		return nil, false
	}
	return best, true
}

// Score sums the weights of every signal d shows in title.
func (m *Matcher) Score(title string, d *LabelDetail) int {
	w := m.weights
	lowerTitle := strings.ToLower(title)
	score := 0

	if d.Label != "" && strings.Contains(lowerTitle, strings.ToLower(d.Label)) {
		score += w.ExactLabel
	}
	if d.Index != "" && indexMentioned(title, d.Index) {
		score += w.Index
	}
	if d.Table != "" && strings.Contains(lowerTitle, strings.ToLower(d.Table)) {
		score += w.Table
	}
	if rows, ok := d.RoundedRows(); ok && fragmentEquals(rowsPattern, title, rows) {
		score += w.Rows
	}
	if loops, ok := d.RoundedLoops(); ok && fragmentEquals(startsPattern, title, loops) {
		score += w.Starts
	}

	upperTitle := strings.ToUpper(title)
	for _, kf := range keywordFamilies {
		if strings.Contains(upperTitle, kf.keyword) && kf.operation.MatchString(d.Operation) {
			score += w.Keyword
		}
	}
	return score
}

func indexMentioned(title, index string) bool {
	quoted := regexp.QuoteMeta(index)
	re, err := regexp.Compile(`(?i)(\.` + quoted + `\]|\busing\s+` + quoted + `\b)`)
	if err != nil {
		return false
	}
	return re.MatchString(title)
}

func fragmentEquals(re *regexp.Regexp, title string, want int64) bool {
	for _, m := range re.FindAllStringSubmatch(title, -1) {
		got, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil && got == want {
			return true
		}
	}
	return false
}
