package test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/vgrippa/myflames/internal/analyzer"
	"github.com/vgrippa/myflames/internal/label"
	"github.com/vgrippa/myflames/internal/model"
	"github.com/vgrippa/myflames/internal/parser"
)

var (
	rootPath string
	once     sync.Once
)

// RootPath resolves a path relative to the repository rootPath (where go.mod resides).
func RootPath(t *testing.T) string {
	t.Helper()
	once.Do(func() {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		for {
			if _, err := os.Stat(filepath.Join(wd, "go.mod")); err == nil {
				rootPath = wd
				break
			}
			next := filepath.Dir(wd)
			if next == wd {
				t.Fatalf("go.mod not found from %s", wd)
			}
			wd = next
		}
	})
	return rootPath
}

// SamplePath returns the absolute path of a file under samples/.
func SamplePath(t *testing.T, rel string) string {
	t.Helper()
	return filepath.Join(RootPath(t), "samples", rel)
}

// LoadSamplePlan parses a plan relative to the samples directory.
func LoadSamplePlan(t *testing.T, rel string) *model.Plan {
	t.Helper()
	f, err := os.Open(SamplePath(t, rel))
	if err != nil {
		t.Fatalf("open plan: %v", err)
	}
	defer func() { _ = f.Close() }()

	plan, err := parser.ParseJSON(f)
	if err != nil {
		t.Fatalf("parse plan: %v", err)
	}
	return plan
}

// LoadSampleAnalysis loads and analyzes a plan with flame graph labels.
func LoadSampleAnalysis(t *testing.T, rel string) *analyzer.PlanAnalysis {
	t.Helper()
	return LoadSampleAnalysisWith(t, rel, label.FlameOptions())
}

// LoadSampleAnalysisWith loads and analyzes a plan with the given label vocabulary.
func LoadSampleAnalysisWith(t *testing.T, rel string, opts label.Options) *analyzer.PlanAnalysis {
	t.Helper()
	analysis, err := analyzer.Analyze(LoadSamplePlan(t, rel), label.New(opts))
	if err != nil {
		t.Fatalf("analyze plan: %v", err)
	}
	return analysis
}
