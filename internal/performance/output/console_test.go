package output

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{500 * time.Millisecond, "500ms"},
		{1 * time.Second, "1.0s"},
		{1*time.Minute + 30*time.Second, "1m 30s"},
		{1*time.Hour + 2*time.Minute + 3*time.Second, "1h 02m 03s"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDuration(tt.duration); got != tt.expected {
				t.Errorf("formatDuration(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatDurationShort(t *testing.T) {
	tests := []struct {
		duration time.Duration
		expected string
	}{
		{0, "0ms"},
		{500 * time.Microsecond, "500µs"},
		{50 * time.Millisecond, "50ms"},
		{1500 * time.Millisecond, "1.50s"},
		{90 * time.Second, "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatDurationShort(tt.duration); got != tt.expected {
				t.Errorf("formatDurationShort(%v) = %q, want %q", tt.duration, got, tt.expected)
			}
		})
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		number   int64
		expected string
	}{
		{0, "0"},
		{100, "100"},
		{1000, "1,000"},
		{12345, "12,345"},
		{1234567, "1,234,567"},
		{-4200, "-4,200"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := formatNumber(tt.number); got != tt.expected {
				t.Errorf("formatNumber(%d) = %q, want %q", tt.number, got, tt.expected)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		n        int64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.expected {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.expected)
		}
	}
}

func TestStripANSI(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"plain", "plain"},
		{"\033[32mgreen\033[0m", "green"},
		{"\033[1;31mbold red\033[0m text", "bold red text"},
	}

	for _, tt := range tests {
		if got := stripANSI(tt.input); got != tt.expected {
			t.Errorf("stripANSI(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}

	if got := visibleLen("\033[32m✓ ok\033[0m"); got != 4 {
		t.Errorf("visibleLen = %d, want 4", got)
	}
}

func TestRenderProgressBar(t *testing.T) {
	bar := renderProgressBar(0.5, 10)
	if bar != strings.Repeat(progressFilled, 5)+strings.Repeat(progressEmpty, 5) {
		t.Errorf("unexpected bar %q", bar)
	}

	if got := renderProgressBar(2, 4); got != strings.Repeat(progressFilled, 4) {
		t.Errorf("progress above 1 should fill the bar, got %q", got)
	}
}

func sampleResult(passed bool) *engine.TestResult {
	return &engine.TestResult{
		RunID:    "run-1",
		Name:     "pr-create",
		Executor: "ramping-vus",
		Endpoint: "http://localhost:8080/pullRequest/create",
		Duration: 60 * time.Second,
		Metrics: &metrics.Snapshot{
			TotalRequests:         1000,
			SuccessRequests:       920,
			FailedRequests:        80,
			ErrorRate:             0.08,
			RPS:                   16.7,
			Iterations:            998,
			InterruptedIterations: 2,
			Checks: []metrics.CheckResult{
				{Name: "status is 201", Passes: 920, Fails: 80},
			},
			FailureReasons: map[string]int64{"http_500": 60, "PR_EXISTS": 20},
			MaxVUs:         100,
			Latency: metrics.LatencyStats{
				P95: 120 * time.Millisecond,
			},
		},
		Passed: passed,
		Thresholds: []engine.ThresholdResult{
			{Metric: "checks", Expression: "rate > 0.99", Passed: false, Value: "0.9200", Message: "checks rate 0.9200 is not > 0.99"},
		},
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	out := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true})

	out.PrintSummary(sampleResult(false))
	got := buf.String()

	for _, want := range []string{
		"pr-create - Failed ✗",
		"✗ status is 201",
		"↳  92.0% (✓ 920 / ✗ 80)",
		"http_500",
		"PR_EXISTS",
		"Total:         1,000 (16.7/s)",
		"Interrupted:   2",
		"VUs max:       100",
		"P95:       120ms",
		"✗ checks rate > 0.99 (actual: 0.9200)",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("summary missing %q\n%s", want, got)
		}
	}

	if strings.Contains(got, "\033[") {
		t.Error("summary contains ANSI codes with colors disabled")
	}

	// Failure reasons are listed most frequent first.
	if strings.Index(got, "http_500") > strings.Index(got, "PR_EXISTS") {
		t.Error("failure reasons are not sorted by count")
	}
}

func TestPrintSummary_AllPassing(t *testing.T) {
	result := sampleResult(true)
	result.Metrics.Checks[0] = metrics.CheckResult{Name: "status is 201", Passes: 1000}
	result.Metrics.FailureReasons = nil
	result.Thresholds = nil

	var buf bytes.Buffer
	NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true}).PrintSummary(result)
	got := buf.String()

	if !strings.Contains(got, "✓ status is 201") {
		t.Errorf("expected passing check line\n%s", got)
	}
	if strings.Contains(got, "↳") {
		t.Error("a check without failures should not print a breakdown")
	}
	if strings.Contains(got, "Failure Reasons:") || strings.Contains(got, "Thresholds:") {
		t.Error("empty sections should be omitted")
	}
}

func TestPrintSummary_Quiet(t *testing.T) {
	var buf bytes.Buffer
	out := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, Quiet: true, NoColor: true})

	out.PrintHeader("pr-create", "ramping-vus", "http://x/pullRequest/create", nil)
	out.PrintSummary(sampleResult(false))

	if got := strings.TrimSpace(buf.String()); got != "FAILED" {
		t.Errorf("quiet summary = %q, want FAILED", got)
	}
}

func TestPrintHeader(t *testing.T) {
	var buf bytes.Buffer
	out := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true})

	out.PrintHeader("pr-create", "ramping-vus", "http://localhost:8080/pullRequest/create", []executor.Stage{
		{Duration: 10 * time.Second, Target: 10},
		{Duration: 10 * time.Second, Target: 0},
	})

	got := buf.String()
	if !strings.Contains(got, "pr-create - Running [ramping-vus]") {
		t.Errorf("missing title\n%s", got)
	}
	if !strings.Contains(got, "POST http://localhost:8080/pullRequest/create") {
		t.Errorf("missing endpoint\n%s", got)
	}
	if !strings.Contains(got, "10s:10, 10s:0") {
		t.Errorf("missing stages\n%s", got)
	}
}

func TestUpdate_RedrawsInPlace(t *testing.T) {
	var buf bytes.Buffer
	out := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true, ForceTTY: true})

	stats := &LiveStats{Progress: 0.5, ActiveVUs: 3, TargetVUs: 5, TotalRequests: 42, CurrentPhase: "ramp-up"}
	out.Update(stats)
	first := buf.Len()
	if first == 0 {
		t.Fatal("expected live output on a TTY")
	}

	out.Update(stats)
	if !strings.Contains(buf.String()[first:], "\033[") {
		t.Error("second update should move the cursor back up")
	}
}

func TestUpdate_NotTTY(t *testing.T) {
	var buf bytes.Buffer
	out := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true})

	out.Update(&LiveStats{})
	if buf.Len() != 0 {
		t.Error("Update should not draw when output is not a terminal")
	}
}

type fakeSource struct {
	snapshot *metrics.Snapshot
	stats    *executor.Stats
}

func (f *fakeSource) GetMetrics() *metrics.Snapshot { return f.snapshot }
func (f *fakeSource) GetProgress() float64 { return 0.25 }
func (f *fakeSource) GetStats() *executor.Stats { return f.stats }

func TestWatch_NonInteractive(t *testing.T) {
	src := &fakeSource{
		snapshot: &metrics.Snapshot{
			TotalRequests: 10,
			ActiveVUs:     2,
			CurrentPhase:  metrics.PhaseRampUp,
			Checks:        []metrics.CheckResult{{Name: "status is 201", Passes: 10}},
		},
		stats: &executor.Stats{TargetVUs: 4, CurrentStage: 0, TotalStages: 2, TotalDuration: time.Minute},
	}

	var buf bytes.Buffer
	out := NewConsoleOutput(ConsoleOutputConfig{Writer: &buf, NoColor: true})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	out.Watch(ctx, src, 20*time.Millisecond)

	got := buf.String()
	if !strings.Contains(got, "VUs: 2/4 | Reqs: 10") {
		t.Errorf("unexpected progress line\n%s", got)
	}
	if !strings.Contains(got, "Checks: 100.0%") {
		t.Errorf("missing checks rate\n%s", got)
	}
}

func TestStatsFromMetrics(t *testing.T) {
	stats := StatsFromMetrics(nil, 0.1, time.Minute, 10, 1, 4)
	if stats.CurrentPhase != "initializing" || stats.TargetVUs != 10 {
		t.Errorf("unexpected stats for nil snapshot: %+v", stats)
	}

	snap := &metrics.Snapshot{
		Elapsed:               20 * time.Second,
		FailedRequests:        3,
		ErrorRate:             0.03,
		InterruptedIterations: 1,
		Checks:                []metrics.CheckResult{{Name: "status is 201", Passes: 97, Fails: 3}},
	}
	stats = StatsFromMetrics(snap, 0.3, time.Minute, 10, 2, 4)
	if stats.Remaining != 40*time.Second {
		t.Errorf("Remaining = %v, want 40s", stats.Remaining)
	}
	if stats.ChecksRate != 0.97 {
		t.Errorf("ChecksRate = %v, want 0.97", stats.ChecksRate)
	}
	if stats.Interrupted != 1 || stats.Errors != 3 {
		t.Errorf("unexpected counters: %+v", stats)
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, sampleResult(false)); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["runId"] != "run-1" || decoded["passed"] != false {
		t.Errorf("unexpected JSON: %s", buf.String())
	}

	if err := WriteJSON(&buf, nil); err == nil {
		t.Error("expected error for nil result")
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.json")
	if err := WriteJSONFile(path, sampleResult(true)); err != nil {
		t.Fatalf("WriteJSONFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"name": "pr-create"`) {
		t.Errorf("unexpected file content: %s", data)
	}

	if err := WriteJSONFile(filepath.Join(t.TempDir(), "missing", "x.json"), sampleResult(true)); err == nil {
		t.Error("expected error for unwritable path")
	}
}
