package cli

import (
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vgrippa/myflames/internal/config"
	"github.com/vgrippa/myflames/internal/folded"
	"github.com/vgrippa/myflames/test"
)

const simpleFilterSelf = "FILTER (t.a > 1) starts=1 rows=3 3\n" +
	"FILTER (t.a > 1) starts=1 rows=3;TABLE SCAN [t] starts=1 rows=10 2\n"

func readSample(t *testing.T, rel string) string {
	t.Helper()
	data, err := os.ReadFile(test.SamplePath(t, rel))
	require.NoError(t, err)
	return string(data)
}

func TestFoldFromStdin(t *testing.T) {
	stdout, _, err := execute(t, readSample(t, "simple_filter.json"), "fold")
	require.NoError(t, err)
	assert.Equal(t, simpleFilterSelf, stdout)
}

func TestFoldClientOutput(t *testing.T) {
	stdout, _, err := execute(t, "", "fold", "-i", test.SamplePath(t, "mysql_client.txt"))
	require.NoError(t, err)
	assert.Equal(t, simpleFilterSelf, stdout)
}

func TestFoldTotalToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "plan.folded")
	stdout, _, err := execute(t, "", "fold", "--input", test.SamplePath(t, "simple_filter.json"), "--mode", "total", "-o", out)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		"FILTER (t.a > 1) starts=1 rows=3 5\n"+
			"FILTER (t.a > 1) starts=1 rows=3;TABLE SCAN [t] starts=1 rows=10 2\n",
		string(data))
}

func TestFoldErrors(t *testing.T) {
	cases := []struct {
		name  string
		stdin string
		args  []string
		code  int
	}{
		{name: "malformed plan", stdin: "not json", args: []string{"fold"}, code: ExitFailure},
		{name: "missing operation", stdin: `{"query": "select 1"}`, args: []string{"fold"}, code: ExitFailure},
		{name: "bad mode", stdin: "{}", args: []string{"fold", "--mode", "wall"}, code: ExitCommandError},
		{name: "missing file", args: []string{"fold", "-i", "/nonexistent/plan.json"}, code: ExitCommandError},
		{name: "positional args", args: []string{"fold", "plan.json"}, code: ExitCommandError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := execute(t, tc.stdin, tc.args...)
			require.Error(t, err)
			assert.Equal(t, tc.code, GetExitCode(err))
		})
	}
}

func TestFoldWithConfig(t *testing.T) {
	cfg := filepath.Join(t.TempDir(), "myflames.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("labels:\n  flame:\n    condition_budget: 50\n    metrics: false\n"), 0o644))

	stdout, _, err := execute(t, readSample(t, "simple_filter.json"), "--config", cfg, "fold")
	require.NoError(t, err)
	assert.Equal(t, "FILTER (t.a > 1) 3\nFILTER (t.a > 1);TABLE SCAN [t] 2\n", stdout)
}

func TestBarCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "bar", "-i", test.SamplePath(t, "join.json"), "--title", "join")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "<svg "))
	assert.Equal(t, 5, strings.Count(stdout, "<g>"))
	assert.Contains(t, stdout, ">join</text>")
}

func TestBarNothingToDraw(t *testing.T) {
	stdout, stderr, err := execute(t, "", "bar", "-i", test.SamplePath(t, "not_executed.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "no operation with measurable time")
}

func TestReportCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "report", "-i", test.SamplePath(t, "join.json"), "--color=false")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Execution time 12.000 ms")
	assert.Contains(t, stdout, "Insights:")
	assert.Contains(t, stdout, "SINGLE-ROW INDEX LOOKUP [customers.PRIMARY]")
	assert.NotContains(t, stdout, "\033[")
}

func TestDiffCommand(t *testing.T) {
	stdout, _, err := execute(t, "", "diff",
		"--base", test.SamplePath(t, "join.json"),
		"--target", test.SamplePath(t, "join_indexed.json"),
		"--format", "json")
	require.NoError(t, err)

	var report struct {
		Improvements []struct {
			Signature string `json:"signature"`
		} `json:"improvements"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &report))
	require.NotEmpty(t, report.Improvements)
	assert.Equal(t, "SINGLE-ROW INDEX LOOKUP [customers.PRIMARY]", report.Improvements[0].Signature)

	stdout, _, err = execute(t, readSample(t, "join_indexed.json"), "diff",
		"--base", test.SamplePath(t, "join.json"), "--target", "-")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "# myflames diff\n"))
}

func TestDiffCommandErrors(t *testing.T) {
	base := test.SamplePath(t, "join.json")
	cases := map[string][]string{
		"missing target": {"diff", "--base", base},
		"both stdin":     {"diff", "--base", "-", "--target", "-"},
		"bad format":     {"diff", "--base", base, "--target", base, "--format", "xml"},
		"missing base":   {"diff", "--base", "/nonexistent/base.json", "--target", base},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := execute(t, "", args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

// fakeRenderer writes a shell script standing in for flamegraph.pl.
func fakeRenderer(t *testing.T, body string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "flamegraph.pl")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

const fakeSVG = `cat >/dev/null
printf '%s' '<svg><g><title>TABLE SCAN [t] starts=1 rows=10 (2 ms, 40.00%)</title></g></svg>'`

func TestFlameCommandEnrichesTooltips(t *testing.T) {
	bin := fakeRenderer(t, fakeSVG)
	out := filepath.Join(t.TempDir(), "plan.svg")

	_, _, err := execute(t, readSample(t, "simple_filter.json"), "flame", "--flamegraph", bin, "-o", out)
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "TABLE SCAN [t] starts=1 rows=10 (2 ms, 40.00%)\nTable: test.t\n")
}

func TestFlameCommandNoEnrich(t *testing.T) {
	bin := fakeRenderer(t, fakeSVG)

	stdout, _, err := execute(t, readSample(t, "simple_filter.json"), "flame", "--flamegraph", bin, "--no-enrich")
	require.NoError(t, err)
	assert.Equal(t, "<svg><g><title>TABLE SCAN [t] starts=1 rows=10 (2 ms, 40.00%)</title></g></svg>", stdout)
}

func TestFlameCommandRendererErrors(t *testing.T) {
	plan := readSample(t, "simple_filter.json")

	_, _, err := execute(t, plan, "flame", "--flamegraph", "/nonexistent/flamegraph.pl")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	bin := fakeRenderer(t, "cat >/dev/null\necho 'ERROR: bad input' >&2\nexit 3")
	_, _, err = execute(t, plan, "flame", "--flamegraph", bin)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "bad input")
}

func TestRunRequiresDSN(t *testing.T) {
	t.Setenv(DSNEnv, "")

	_, _, err := execute(t, "", "run", "--query", "select 1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), DSNEnv)
}

func TestRunStatementFlags(t *testing.T) {
	t.Setenv(DSNEnv, "user:pass@tcp(127.0.0.1:1)/db")

	_, _, err := execute(t, "", "run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "", "run", "--query", "select 1", "--sql", "q.sql")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = execute(t, "", "run", "--sql", "/nonexistent/q.sql")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestFlameOptionsMergeConfig(t *testing.T) {
	cfg := config.Default().Flame

	merged := flameOptions(&FlameOptions{Title: "q", Icicle: true}, cfg, folded.Microseconds)
	assert.Equal(t, "flamegraph.pl", merged.Binary)
	assert.Equal(t, cfg.Width, merged.Width)
	assert.Equal(t, cfg.Timeout.Duration, merged.Timeout)
	assert.Equal(t, "µs", merged.CountName)
	assert.True(t, merged.Inverted)

	merged = flameOptions(&FlameOptions{Binary: "fg", Width: 640, Colors: "io", Timeout: time.Second}, cfg, folded.Milliseconds)
	assert.Equal(t, "fg", merged.Binary)
	assert.Equal(t, 640, merged.Width)
	assert.Equal(t, "io", merged.Colors)
	assert.Equal(t, time.Second, merged.Timeout)
	assert.Equal(t, cfg.Height, merged.Height)
}
