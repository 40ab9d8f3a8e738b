package reconcile

import (
	"html"
	"regexp"
	"strings"
)

var titlePattern = regexp.MustCompile(`(?s)<title>(.*?)</title>`)

// Enrich rewrites every <title> element in svg whose text matches a detail
// in table, appending the detail as extra lines. Unmatched titles are left
// untouched. It returns the new document and the number of enriched titles.
func Enrich(svg []byte, table *Table, m *Matcher) ([]byte, int) {
	if table == nil || table.Len() == 0 {
		return svg, 0
	}
	details := table.Details()
	enriched := 0
	out := titlePattern.ReplaceAllFunc(svg, func(elem []byte) []byte {
		sub := titlePattern.FindSubmatch(elem)
		title := html.UnescapeString(string(sub[1]))
		d, ok := m.Match(title, details)
		if !ok {
			return elem
		}
		enriched++
		lines := append([]string{title}, d.Describe()...)
		return []byte("<title>" + html.EscapeString(strings.Join(lines, "\n")) + "</title>")
	})
	return out, enriched
}
