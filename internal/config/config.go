package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vgrippa/myflames/internal/label"
	"github.com/vgrippa/myflames/internal/reconcile"
)

// Config holds label budgets, matcher weights, renderer defaults and the
// thresholds used by insights and diff reports.
type Config struct {
	Labels    LabelConfig       `json:"labels" yaml:"labels"`
	Reconcile reconcile.Weights `json:"reconcile" yaml:"reconcile"`
	Flame     FlameConfig       `json:"flame" yaml:"flame"`
	Insights  InsightConfig     `json:"insights" yaml:"insights"`
	Diff      DiffConfig        `json:"diff" yaml:"diff"`
}

// LabelConfig holds one option set per label vocabulary.
type LabelConfig struct {
	Flame   label.Options `json:"flame" yaml:"flame"`
	Compact label.Options `json:"compact" yaml:"compact"`
}

// FlameConfig holds defaults for the external flame graph renderer.
type FlameConfig struct {
	Binary  string   `json:"binary" yaml:"binary"`
	Width   int      `json:"width" yaml:"width"`
	Height  int      `json:"height" yaml:"height"`
	Colors  string   `json:"colors" yaml:"colors"`
	Timeout Duration `json:"timeout" yaml:"timeout"`
}

// InsightConfig defines thresholds for insight generation.
type InsightConfig struct {
	HotspotCriticalPercent  float64 `json:"hotspot_critical_percent" yaml:"hotspot_critical_percent"`
	HotspotWarningPercent   float64 `json:"hotspot_warning_percent" yaml:"hotspot_warning_percent"`
	NestedLoopWarnStarts    float64 `json:"nested_loop_warn_starts" yaml:"nested_loop_warn_starts"`
	NestedLoopCriticalStart float64 `json:"nested_loop_critical_starts" yaml:"nested_loop_critical_starts"`
	RowEstimateCriticalHigh float64 `json:"row_estimate_critical_high" yaml:"row_estimate_critical_high"`
	RowEstimateCriticalLow  float64 `json:"row_estimate_critical_low" yaml:"row_estimate_critical_low"`
	TableScanRowsHint       float64 `json:"table_scan_rows_hint" yaml:"table_scan_rows_hint"`
}

// DiffConfig defines thresholds for diff summaries.
type DiffConfig struct {
	MinSelfDeltaMs   float64 `json:"min_self_delta_ms" yaml:"min_self_delta_ms"`
	MinPercentChange float64 `json:"min_percent_change" yaml:"min_percent_change"`
	MaxItems         int     `json:"max_items" yaml:"max_items"`
	CriticalDeltaMs  float64 `json:"critical_delta_ms" yaml:"critical_delta_ms"`
}

// Duration accepts "30s"-style strings in config files.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	return d.set(s)
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.set(node.Value)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) set(s string) error {
	if strings.TrimSpace(s) == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	d.Duration = parsed
	return nil
}

var (
	mu     sync.RWMutex
	active = Default()
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Labels: LabelConfig{
			Flame:   label.FlameOptions(),
			Compact: label.CompactOptions(),
		},
		Reconcile: reconcile.DefaultWeights(),
		Flame: FlameConfig{
			Binary:  "flamegraph.pl",
			Width:   1200,
			Height:  16,
			Colors:  "hot",
			Timeout: Duration{Duration: time.Minute},
		},
		Insights: InsightConfig{
			HotspotCriticalPercent:  0.40,
			HotspotWarningPercent:   0.20,
			NestedLoopWarnStarts:    100,
			NestedLoopCriticalStart: 10000,
			RowEstimateCriticalHigh: 10.0,
			RowEstimateCriticalLow:  0.1,
			TableScanRowsHint:       10000,
		},
		Diff: DiffConfig{
			MinSelfDeltaMs:   1.0,
			MinPercentChange: 5.0,
			MaxItems:         8,
			CriticalDeltaMs:  10.0,
		},
	}
}

// Active returns the currently applied configuration.
func Active() Config {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Use replaces the active configuration.
func Use(cfg Config) {
	mu.Lock()
	active = cfg
	mu.Unlock()
}

// Apply loads configuration from path (JSON, or YAML for .yaml/.yml).
// Fields missing from the file keep their defaults. Empty path resets to default.
func Apply(path string) error {
	if path == "" {
		Use(Default())
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		err = json.Unmarshal(data, &cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	Use(cfg)
	return nil
}
