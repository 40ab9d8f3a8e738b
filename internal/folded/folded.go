package folded

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/vgrippa/myflames/internal/analyzer"
)

// ErrEmptyResult is returned when no frame survives rounding.
var ErrEmptyResult = errors.New("folded: no frames with non-zero time")

// Mode selects which time field weights each frame.
type Mode string

const (
	ModeSelf  Mode = "self"
	ModeTotal Mode = "total"
)

// ParseMode validates a mode flag value.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeSelf, "":
		return ModeSelf, nil
	case ModeTotal:
		return ModeTotal, nil
	default:
		return "", fmt.Errorf("unknown mode %q (expected self or total)", s)
	}
}

// Unit is the time unit weights are reported in.
type Unit struct {
	Name  string
	Scale float64
}

var (
	Milliseconds = Unit{Name: "ms", Scale: 1}
	Microseconds = Unit{Name: "µs", Scale: 1000}
)

// UnitFor picks the unit for a dataset whose largest value is maxMs. The
// decision is global: every value in one output uses the same unit.
func UnitFor(maxMs float64) Unit {
	if maxMs > 0 && maxMs < 1 {
		return Microseconds
	}
	return Milliseconds
}

// Line is one retained frame.
type Line struct {
	Path   []string
	Weight int64
}

func (l Line) String() string {
	return strings.Join(l.Path, ";") + " " + strconv.FormatInt(l.Weight, 10)
}

// Result holds the serialized frames and the unit their weights use.
type Result struct {
	Lines []Line
	Unit  Unit
}

// Serialize converts timed operations into folded-stack lines.
func Serialize(ops []analyzer.TimedOperation, mode Mode) (*Result, error) {
	var maxTime float64
	for _, op := range ops {
		maxTime = math.Max(maxTime, pick(op, mode))
	}
	unit := UnitFor(maxTime)

	res := &Result{Unit: unit}
	for _, op := range ops {
		weight := int64(math.Round(pick(op, mode) * unit.Scale))
		if weight == 0 && len(op.Path) == 1 {
			// Renderers drop zero-weight frames; keep the root visible.
			weight = 1
		}
		if weight <= 0 {
			continue
		}
		res.Lines = append(res.Lines, Line{Path: op.Path, Weight: weight})
	}
	if len(res.Lines) == 0 {
		return res, ErrEmptyResult
	}
	return res, nil
}

func pick(op analyzer.TimedOperation, mode Mode) float64 {
	if mode == ModeTotal {
		return op.TotalMs
	}
	return op.SelfTimeMs
}

// WriteTo writes one newline-terminated line per frame.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	var written int64
	for _, line := range r.Lines {
		n, err := io.WriteString(w, line.String()+"\n")
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Bytes renders the result as the renderer's input text.
func (r *Result) Bytes() []byte {
	var b strings.Builder
	_, _ = r.WriteTo(&b)
	return []byte(b.String())
}
