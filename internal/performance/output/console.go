// Package output renders live progress and the final summary of a run, and
// writes results as JSON.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/engine"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// ANSI escape codes for redrawing the live display.
const (
	cursorUp  = "\033[%dA"
	clearLine = "\033[2K"

	boxHorizontal  = "━"
	boxVertical    = "│"
	boxTopLeft     = "┌"
	boxTopRight    = "┐"
	boxBottomLeft  = "└"
	boxBottomRight = "┘"

	progressFilled = "█"
	progressEmpty  = "░"
)

// LiveStats contains real-time statistics for display.
type LiveStats struct {
	Progress  float64
	Elapsed   time.Duration
	Remaining time.Duration

	ActiveVUs int
	TargetVUs int

	CurrentRPS    float64
	TotalRequests int64
	Errors        int64
	ErrorRate     float64

	// ChecksRate is the pass fraction of "status is 201" so far.
	ChecksRate  float64
	Iterations  int64
	Interrupted int64

	LatencyP95 time.Duration
	LatencyAvg time.Duration

	CurrentPhase string
	CurrentStage int // 1-indexed
	TotalStages  int
}

// StatsSource is what the live display polls. *engine.Engine satisfies it.
type StatsSource interface {
	GetMetrics() *metrics.Snapshot
	GetProgress() float64
	GetStats() *executor.Stats
}

// ConsoleOutput manages console output during and after a run.
type ConsoleOutput struct {
	writer io.Writer
	isTTY  bool
	quiet  bool
	colors *palette

	mu          sync.Mutex
	linesOutput int
}

// ConsoleOutputConfig contains configuration for ConsoleOutput.
type ConsoleOutputConfig struct {
	Writer      io.Writer
	Quiet       bool
	NoColor     bool
	ForceColors bool
	ForceTTY    bool
}

// NewConsoleOutput creates a new console output handler.
func NewConsoleOutput(cfg ConsoleOutputConfig) *ConsoleOutput {
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	isTTY := cfg.ForceTTY
	if f, ok := cfg.Writer.(*os.File); ok && !isTTY {
		isTTY = isTerminal(f)
	}
	useColors := !cfg.NoColor && (cfg.ForceColors || (isTTY && supportsColors()))

	return &ConsoleOutput{
		writer: cfg.Writer,
		isTTY:  isTTY,
		quiet:  cfg.Quiet,
		colors: newPalette(useColors),
	}
}

// IsTTY returns whether the output is a terminal.
func (c *ConsoleOutput) IsTTY() bool {
	return c.isTTY
}

// PrintHeader prints the run header.
func (c *ConsoleOutput) PrintHeader(name, executorType, endpoint string, stages []executor.Stage) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := strings.Repeat(boxHorizontal, 56)
	c.writeln(c.colors.rule.Sprint(line))
	c.writeln(c.colors.title.Sprintf("%s - Running [%s]", name, executorType))
	c.writeln(c.colors.rule.Sprint(line))
	c.writeln(fmt.Sprintf("Endpoint:  POST %s", c.colors.value.Sprint(endpoint)))
	if len(stages) > 0 {
		parts := make([]string, len(stages))
		for i, st := range stages {
			parts[i] = st.String()
		}
		c.writeln(fmt.Sprintf("Stages:    %s", c.colors.value.Sprint(strings.Join(parts, ", "))))
	}
	c.writeln("")
}

// Watch refreshes the live display every interval until ctx ends. On a
// terminal the display is redrawn in place; otherwise one line is printed
// per update.
func (c *ConsoleOutput) Watch(ctx context.Context, src StatsSource, interval time.Duration) {
	if c.quiet {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := StatsFromSource(src)
			if c.isTTY {
				c.Update(stats)
			} else {
				c.PrintNonInteractiveUpdate(stats)
			}
		}
	}
}

// Update redraws the live display with new statistics.
func (c *ConsoleOutput) Update(stats *LiveStats) {
	if c.quiet || !c.isTTY {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clearLive()

	lines := c.renderLiveStats(stats)
	c.linesOutput = len(lines)
	for _, line := range lines {
		c.writeln(line)
	}
}

func (c *ConsoleOutput) clearLive() {
	if c.linesOutput == 0 {
		return
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	for i := 0; i < c.linesOutput; i++ {
		c.write(clearLine + "\n")
	}
	c.write(fmt.Sprintf(cursorUp, c.linesOutput))
	c.linesOutput = 0
}

func (c *ConsoleOutput) renderLiveStats(stats *LiveStats) []string {
	p := c.colors
	var lines []string

	timeInfo := fmt.Sprintf("%s / %s", formatDuration(stats.Elapsed), formatDuration(stats.Elapsed+stats.Remaining))
	lines = append(lines, fmt.Sprintf("Progress: %s %s | %s",
		p.good.Sprint(renderProgressBar(stats.Progress, 40)),
		p.title.Sprintf("%.0f%%", stats.Progress*100),
		p.dim.Sprint(timeInfo)))

	phaseInfo := stats.CurrentPhase
	if stats.TotalStages > 0 {
		phaseInfo = fmt.Sprintf("%s (%d/%d)", stats.CurrentPhase, stats.CurrentStage, stats.TotalStages)
	}
	lines = append(lines, fmt.Sprintf("Stage:    %s", p.phase.Sprint(phaseInfo)))
	lines = append(lines, "")

	boxWidth := 55
	lines = append(lines, p.dim.Sprint(boxTopLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxTopRight))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("VUs:     %s / %d", p.value.Sprint(stats.ActiveVUs), stats.TargetVUs),
		fmt.Sprintf("Requests:    %s", p.value.Sprint(formatNumber(stats.TotalRequests))),
		boxWidth))

	checkColor := p.rateColor(stats.ChecksRate)
	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("RPS:     %s", p.good.Sprintf("%.1f", stats.CurrentRPS)),
		fmt.Sprintf("Checks:      %s", checkColor.Sprintf("%.1f%%", stats.ChecksRate*100)),
		boxWidth))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("P95:     %s", p.latency.Sprint(formatDurationShort(stats.LatencyP95))),
		fmt.Sprintf("Avg:         %s", p.latency.Sprint(formatDurationShort(stats.LatencyAvg))),
		boxWidth))

	lines = append(lines, c.formatBoxRow(
		fmt.Sprintf("Iters:   %s", p.value.Sprint(formatNumber(stats.Iterations))),
		fmt.Sprintf("Errors:      %s", p.rateColor(1-stats.ErrorRate).Sprintf("%d (%.1f%%)", stats.Errors, stats.ErrorRate*100)),
		boxWidth))

	lines = append(lines, p.dim.Sprint(boxBottomLeft+strings.Repeat(boxHorizontal, boxWidth-2)+boxBottomRight))
	return lines
}

// formatBoxRow formats a row inside the stats box with two columns.
func (c *ConsoleOutput) formatBoxRow(left, right string, boxWidth int) string {
	colWidth := (boxWidth - 4) / 2

	leftPadding := colWidth - visibleLen(left)
	if leftPadding < 0 {
		leftPadding = 0
	}
	rightPadding := colWidth - visibleLen(right)
	if rightPadding < 0 {
		rightPadding = 0
	}

	border := c.colors.dim.Sprint(boxVertical)
	return fmt.Sprintf("%s %s%s%s %s%s %s",
		border,
		left, strings.Repeat(" ", leftPadding),
		border,
		right, strings.Repeat(" ", rightPadding),
		border)
}

// PrintNonInteractiveUpdate prints a one-line status, for CI logs and pipes.
func (c *ConsoleOutput) PrintNonInteractiveUpdate(stats *LiveStats) {
	if c.quiet {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.writeln(fmt.Sprintf("[%s] %s | VUs: %d/%d | Reqs: %d | RPS: %.1f | Checks: %.1f%% | P95: %s",
		formatDuration(stats.Elapsed),
		stats.CurrentPhase,
		stats.ActiveVUs,
		stats.TargetVUs,
		stats.TotalRequests,
		stats.CurrentRPS,
		stats.ChecksRate*100,
		formatDurationShort(stats.LatencyP95)))
}

// PrintSummary prints the end-of-run summary.
func (c *ConsoleOutput) PrintSummary(result *engine.TestResult) {
	p := c.colors
	if c.quiet {
		if result.Passed {
			c.writeln(p.good.Sprint("PASSED"))
		} else {
			c.writeln(p.bad.Sprint("FAILED"))
		}
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isTTY {
		c.clearLive()
	}

	line := strings.Repeat(boxHorizontal, 56)
	status := p.good.Sprint("Completed ✓")
	if !result.Passed {
		status = p.bad.Sprint("Failed ✗")
	}

	c.writeln("")
	c.writeln(p.rule.Sprint(line))
	c.writeln(fmt.Sprintf("%s - %s", p.title.Sprint(result.Name), status))
	c.writeln(p.rule.Sprint(line))
	c.writeln("")

	c.writeln(fmt.Sprintf("Run ID:        %s", p.dim.Sprint(result.RunID)))
	c.writeln(fmt.Sprintf("Duration:      %s", p.value.Sprint(formatDuration(result.Duration))))
	if result.Error != "" {
		c.writeln(fmt.Sprintf("Error:         %s", p.bad.Sprint(result.Error)))
	}
	c.writeln("")

	m := result.Metrics
	if m == nil {
		return
	}

	c.printChecks(m)
	c.printFailureReasons(m)

	c.writeln(p.label.Sprint("Requests:"))
	c.writeln(fmt.Sprintf("  Total:         %s (%.1f/s)", p.value.Sprint(formatNumber(m.TotalRequests)), m.RPS))
	successRate := 1.0 - m.ErrorRate
	if m.TotalRequests == 0 {
		successRate = 0
	}
	c.writeln(fmt.Sprintf("  Status 201:    %s", p.rateColor(successRate).Sprintf("%.1f%%", successRate*100)))
	c.writeln(fmt.Sprintf("  Data received: %s", formatBytes(m.TotalBytes)))
	c.writeln("")

	c.writeln(p.label.Sprint("Iterations:"))
	c.writeln(fmt.Sprintf("  Completed:     %s", p.value.Sprint(formatNumber(m.Iterations))))
	c.writeln(fmt.Sprintf("  Interrupted:   %s", formatNumber(m.InterruptedIterations)))
	c.writeln(fmt.Sprintf("  Duration avg:  %s", formatDurationShort(m.IterationDuration.Mean)))
	c.writeln(fmt.Sprintf("  VUs max:       %d", m.MaxVUs))
	c.writeln("")

	c.writeln(p.label.Sprint("Latency Distribution:"))
	c.writeln(fmt.Sprintf("  Min:       %s", formatDurationShort(m.Latency.Min)))
	c.writeln(fmt.Sprintf("  Avg:       %s", formatDurationShort(m.Latency.Mean)))
	c.writeln(fmt.Sprintf("  P50:       %s", formatDurationShort(m.Latency.P50)))
	c.writeln(fmt.Sprintf("  P90:       %s", formatDurationShort(m.Latency.P90)))
	c.writeln(fmt.Sprintf("  P95:       %s", formatDurationShort(m.Latency.P95)))
	c.writeln(fmt.Sprintf("  P99:       %s", formatDurationShort(m.Latency.P99)))
	c.writeln(fmt.Sprintf("  Max:       %s", formatDurationShort(m.Latency.Max)))
	c.writeln("")

	if len(result.Thresholds) > 0 {
		c.writeln(p.label.Sprint("Thresholds:"))
		for _, t := range result.Thresholds {
			c.writeln(fmt.Sprintf("  %s %s %s (actual: %s)", p.mark(t.Passed), t.Metric, t.Expression, t.Value))
			if !t.Passed && t.Message != "" {
				c.writeln(fmt.Sprintf("      %s", p.dim.Sprint(t.Message)))
			}
		}
		c.writeln("")
	}
}

// printChecks prints checks the way k6 does:
//
//	✗ status is 201
//	 ↳  92% (✓ 920 / ✗ 80)
func (c *ConsoleOutput) printChecks(m *metrics.Snapshot) {
	if len(m.Checks) == 0 {
		return
	}
	p := c.colors

	c.writeln(p.label.Sprint("Checks:"))
	for _, check := range m.Checks {
		c.writeln(fmt.Sprintf("  %s %s", p.mark(check.Fails == 0), check.Name))
		if check.Fails > 0 {
			c.writeln(fmt.Sprintf("   ↳  %s (%s %d / %s %d)",
				p.rateColor(check.Rate()).Sprintf("%.1f%%", check.Rate()*100),
				p.mark(true), check.Passes,
				p.mark(false), check.Fails))
		}
	}
	c.writeln(fmt.Sprintf("  checks rate:   %s", p.rateColor(m.ChecksRate()).Sprintf("%.2f%%", m.ChecksRate()*100)))
	c.writeln("")
}

func (c *ConsoleOutput) printFailureReasons(m *metrics.Snapshot) {
	if len(m.FailureReasons) == 0 {
		return
	}

	c.writeln(c.colors.label.Sprint("Failure Reasons:"))
	for _, reason := range metrics.SortedFailureReasons(m.FailureReasons) {
		c.writeln(fmt.Sprintf("  %-16s %s", reason, c.colors.bad.Sprint(formatNumber(m.FailureReasons[reason]))))
	}
	c.writeln("")
}

func (c *ConsoleOutput) write(s string) {
	fmt.Fprint(c.writer, s)
}

func (c *ConsoleOutput) writeln(s string) {
	fmt.Fprintln(c.writer, s)
}

// StatsFromSource builds LiveStats from a running engine.
func StatsFromSource(src StatsSource) *LiveStats {
	stats := src.GetStats()
	var targetVUs, stage, totalStages int
	var totalDuration time.Duration
	if stats != nil {
		targetVUs = stats.TargetVUs
		stage = stats.CurrentStage + 1
		totalStages = stats.TotalStages
		totalDuration = stats.TotalDuration
	}
	return StatsFromMetrics(src.GetMetrics(), src.GetProgress(), totalDuration, targetVUs, stage, totalStages)
}

// StatsFromMetrics creates LiveStats from a metrics snapshot.
func StatsFromMetrics(
	snapshot *metrics.Snapshot,
	progress float64,
	totalDuration time.Duration,
	targetVUs int,
	currentStage, totalStages int,
) *LiveStats {
	if snapshot == nil {
		return &LiveStats{
			Progress:     progress,
			TargetVUs:    targetVUs,
			CurrentStage: currentStage,
			TotalStages:  totalStages,
			CurrentPhase: "initializing",
		}
	}

	elapsed := snapshot.Elapsed
	remaining := time.Duration(0)
	if totalDuration > elapsed {
		remaining = totalDuration - elapsed
	}

	return &LiveStats{
		Progress:      progress,
		Elapsed:       elapsed,
		Remaining:     remaining,
		ActiveVUs:     snapshot.ActiveVUs,
		TargetVUs:     targetVUs,
		CurrentRPS:    snapshot.RPS,
		TotalRequests: snapshot.TotalRequests,
		Errors:        snapshot.FailedRequests,
		ErrorRate:     snapshot.ErrorRate,
		ChecksRate:    snapshot.ChecksRate(),
		Iterations:    snapshot.Iterations,
		Interrupted:   snapshot.InterruptedIterations,
		LatencyP95:    snapshot.Latency.P95,
		LatencyAvg:    snapshot.Latency.Mean,
		CurrentPhase:  string(snapshot.CurrentPhase),
		CurrentStage:  currentStage,
		TotalStages:   totalStages,
	}
}
