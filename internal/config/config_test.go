package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vgrippa/myflames/test"
)

func TestApplyDefaultAndFile(t *testing.T) {
	Use(Default())
	t.Cleanup(func() { Use(Default()) })

	if Active().Insights.HotspotCriticalPercent == 0 {
		t.Fatalf("expected default hotspot threshold to be non-zero")
	}

	path := filepath.Join(test.RootPath(t), "samples", "config.example.json")
	if err := Apply(path); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	cfg := Active()
	if cfg.Insights.HotspotCriticalPercent != 0.5 {
		t.Fatalf("expected hotspot threshold from sample config, got %v", cfg.Insights.HotspotCriticalPercent)
	}
	if cfg.Diff.MaxItems != 12 {
		t.Fatalf("expected diff max items from sample config, got %v", cfg.Diff.MaxItems)
	}
	if cfg.Flame.Width != 1600 || cfg.Flame.Timeout.Duration != 30*time.Second {
		t.Fatalf("unexpected flame config %+v", cfg.Flame)
	}
	if cfg.Flame.Height != Default().Flame.Height {
		t.Fatalf("expected height default to survive, got %d", cfg.Flame.Height)
	}
	if cfg.Reconcile.Floor != 10 {
		t.Fatalf("expected reconcile floor 10, got %d", cfg.Reconcile.Floor)
	}

	if err := Apply(""); err != nil {
		t.Fatalf("reset config: %v", err)
	}
	if Active().Diff.MaxItems != Default().Diff.MaxItems {
		t.Fatalf("expected defaults restored")
	}
}

func TestApplyYAML(t *testing.T) {
	t.Cleanup(func() { Use(Default()) })

	path := filepath.Join(test.RootPath(t), "samples", "config.example.yaml")
	if err := Apply(path); err != nil {
		t.Fatalf("apply config: %v", err)
	}

	cfg := Active()
	if cfg.Labels.Compact.ConditionBudget != 40 || cfg.Labels.Compact.Metrics {
		t.Fatalf("unexpected compact labels %+v", cfg.Labels.Compact)
	}
	if cfg.Labels.Flame != Default().Labels.Flame {
		t.Fatalf("expected flame labels untouched, got %+v", cfg.Labels.Flame)
	}
	if cfg.Reconcile.Floor != 12 || cfg.Reconcile.ExactLabel != Default().Reconcile.ExactLabel {
		t.Fatalf("unexpected reconcile weights %+v", cfg.Reconcile)
	}
	if cfg.Flame.Binary != "/usr/local/bin/flamegraph.pl" || cfg.Flame.Height != 20 {
		t.Fatalf("unexpected flame config %+v", cfg.Flame)
	}
	if cfg.Flame.Timeout.Duration != 45*time.Second {
		t.Fatalf("expected 45s timeout, got %v", cfg.Flame.Timeout)
	}
	if cfg.Insights.NestedLoopWarnStarts != 500 || cfg.Diff.MaxItems != 5 {
		t.Fatalf("unexpected thresholds %+v %+v", cfg.Insights, cfg.Diff)
	}
}

func TestApplyMissingFile(t *testing.T) {
	if err := Apply(filepath.Join(os.TempDir(), "does-not-exist.json")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestApplyRejectsBadDuration(t *testing.T) {
	t.Cleanup(func() { Use(Default()) })

	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`{"flame": {"timeout": "soon"}}`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if err := Apply(path); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
	if Active().Flame.Timeout != Default().Flame.Timeout {
		t.Fatalf("failed apply must leave the active config alone")
	}
}
