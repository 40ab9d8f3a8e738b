package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/vgrippa/myflames/internal/model"
)

const maxEchoBytes = 512

// MalformedInputError reports input that is not a plan document once known
// prefixes have been stripped.
type MalformedInputError struct {
	Text string
	Err  error
}

func (e *MalformedInputError) Error() string {
	text := e.Text
	if len(text) > maxEchoBytes {
		text = text[:maxEchoBytes] + "..."
	}
	if e.Err != nil {
		return fmt.Sprintf("malformed plan input: %v: %q", e.Err, text)
	}
	return fmt.Sprintf("malformed plan input: %q", text)
}

func (e *MalformedInputError) Unwrap() error {
	return e.Err
}

var (
	markerPattern = regexp.MustCompile(`(?i)\bexplain\s*:`)
	bannerPattern = regexp.MustCompile(`^\*{3,}.*$`)
)

// ParseJSON reads a MySQL EXPLAIN ANALYZE FORMAT=JSON document, tolerating the
// framing the mysql client prints around it, and produces a Plan.
func ParseJSON(r io.Reader) (*model.Plan, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	return Parse(raw)
}

// Parse is ParseJSON over an in-memory document.
func Parse(raw []byte) (*model.Plan, error) {
	text := StripFraming(string(raw))
	if text == "" {
		return nil, &MalformedInputError{Text: string(raw), Err: errors.New("empty input")}
	}

	payload, err := decode(text)
	if err != nil && strings.Contains(text, `\n`) {
		// mysql -e batch output escapes newlines inside the column value.
		unescaped := strings.NewReplacer(`\n`, "\n", `\t`, "\t").Replace(text)
		if retry, retryErr := decode(unescaped); retryErr == nil {
			payload, err = retry, nil
		}
	}
	if err != nil {
		return nil, &MalformedInputError{Text: text, Err: err}
	}

	entry, err := pickFirstEntry(payload)
	if err != nil {
		return nil, &MalformedInputError{Text: text, Err: err}
	}
	if _, ok := entry["operation"]; !ok {
		return nil, &MalformedInputError{Text: text, Err: errors.New("root record has no operation")}
	}

	root, err := parsePlanNode(entry, "0")
	if err != nil {
		return nil, &MalformedInputError{Text: text, Err: err}
	}

	plan := &model.Plan{
		Root:  root,
		Query: asString(entry["query"]),
	}
	return plan, nil
}

// StripFraming removes whitespace, asterisk banner lines and any leading text
// up to and including an "EXPLAIN:" marker.
func StripFraming(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if bannerPattern.MatchString(strings.TrimSpace(line)) {
			continue
		}
		kept = append(kept, line)
	}
	text = strings.TrimSpace(strings.Join(kept, "\n"))

	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") {
		return text
	}
	if loc := markerPattern.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[loc[1]:])
	}
	return text
}

func decode(text string) (any, error) {
	decoder := json.NewDecoder(strings.NewReader(text))
	decoder.UseNumber()

	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode plan json: %w", err)
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, errors.New("trailing data after plan document")
	}
	return payload, nil
}

func pickFirstEntry(payload any) (map[string]any, error) {
	switch v := payload.(type) {
	case []any:
		if len(v) == 0 {
			return nil, errors.New("empty payload")
		}
		obj, err := asObject(v[0])
		if err != nil {
			return nil, fmt.Errorf("invalid entry: %w", err)
		}
		return obj, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected top-level type %T", payload)
	}
}

var known = map[string]struct{}{
	"operation":            {},
	"table_name":           {},
	"alias":                {},
	"schema_name":          {},
	"index_name":           {},
	"access_type":          {},
	"condition":            {},
	"lookup_condition":     {},
	"actual_rows":          {},
	"estimated_rows":       {},
	"actual_loops":         {},
	"actual_last_row_ms":   {},
	"actual_first_row_ms":  {},
	"estimated_total_cost": {},
	"ranges":               {},
	"covering":             {},
	"inputs":               {},
	"query":                {},
}

func parsePlanNode(data map[string]any, path string) (*model.PlanNode, error) {
	node := &model.PlanNode{
		Operation:        asString(data["operation"]),
		TableName:        asString(data["table_name"]),
		Alias:            asString(data["alias"]),
		SchemaName:       asString(data["schema_name"]),
		IndexName:        asString(data["index_name"]),
		AccessType:       asString(data["access_type"]),
		Condition:        asString(data["condition"]),
		LookupCondition:  asString(data["lookup_condition"]),
		ActualRows:       asOptFloat(data["actual_rows"]),
		EstimatedRows:    asOptFloat(data["estimated_rows"]),
		ActualLoops:      asOptFloat(data["actual_loops"]),
		ActualLastRowMs:  asOptFloat(data["actual_last_row_ms"]),
		ActualFirstRowMs: asOptFloat(data["actual_first_row_ms"]),
		EstimatedCost:    asOptFloat(data["estimated_total_cost"]),
		Ranges:           asStringSlice(data["ranges"]),
		Covering:         asOptBool(data["covering"]),
		Extra:            map[string]any{},
	}

	for i, childVal := range asSlice(data["inputs"]) {
		childMap, err := asObject(childVal)
		if err != nil {
			return nil, fmt.Errorf("parse input (%s.%d): %w", path, i, err)
		}
		child, err := parsePlanNode(childMap, fmt.Sprintf("%s.%d", path, i))
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}

	for k, v := range data {
		if _, ok := known[k]; ok {
			continue
		}
		node.Extra[k] = v
	}
	return node, nil
}

func asObject(val any) (map[string]any, error) {
	if val == nil {
		return nil, errors.New("nil object")
	}
	obj, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("expected object, got %T", val)
	}
	return obj, nil
}

func asSlice(val any) []any {
	v, _ := val.([]any)
	return v
}

func asString(val any) string {
	if val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func asStringSlice(val any) []string {
	switch v := val.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, asString(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}

func asOptFloat(val any) *float64 {
	switch v := val.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil
		}
		return &f
	case float64:
		return &v
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func asOptBool(val any) *bool {
	switch v := val.(type) {
	case bool:
		return &v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil
		}
		return &b
	default:
		return nil
	}
}
