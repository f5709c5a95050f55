package engine

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/config"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// ThresholdResult contains the result of a threshold evaluation.
type ThresholdResult struct {
	Metric     string `json:"metric"`
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Value      string `json:"value"`
	Message    string `json:"message,omitempty"`
}

// EvaluateThresholds checks every configured threshold against snapshot.
// An expression that cannot be evaluated counts as failed.
func EvaluateThresholds(cfg *config.ThresholdsConfig, snapshot *metrics.Snapshot) []ThresholdResult {
	if cfg.IsEmpty() || snapshot == nil {
		return nil
	}

	var results []ThresholdResult
	for _, entry := range cfg.Entries() {
		for _, expr := range entry.Expressions {
			results = append(results, evaluate(entry, expr, snapshot))
		}
	}
	return results
}

func evaluate(entry config.ThresholdEntry, expr string, snapshot *metrics.Snapshot) ThresholdResult {
	result := ThresholdResult{
		Metric:     entry.Metric,
		Expression: expr,
	}

	th, err := entry.Check(expr)
	if err != nil {
		result.Message = fmt.Sprintf("failed to parse expression: %v", err)
		return result
	}

	if entry.Metric == config.MetricHTTPReqDuration {
		actual := latencyStat(th.Stat, snapshot.Latency)
		limit, _ := th.DurationValue()

		result.Value = actual.String()
		result.Passed = th.Compare(float64(actual), float64(limit))
		if !result.Passed {
			result.Message = fmt.Sprintf("%s is %s, threshold: %s %s", th.Stat, actual, th.Op, limit)
		}
		return result
	}

	var actual float64
	switch entry.Metric {
	case config.MetricHTTPReqFailed:
		actual = snapshot.ErrorRate
	case config.MetricChecks:
		actual = snapshot.ChecksRate()
	case config.MetricHTTPReqs:
		if th.Stat == "count" {
			actual = float64(snapshot.TotalRequests)
		} else {
			actual = snapshot.RPS
		}
	}
	limit, _ := th.FloatValue()

	result.Value = fmt.Sprintf("%.4f", actual)
	result.Passed = th.Compare(actual, limit)
	if !result.Passed {
		result.Message = fmt.Sprintf("%s is %.4f, threshold: %s %.4f", th.Stat, actual, th.Op, limit)
	}
	return result
}

func latencyStat(stat string, l metrics.LatencyStats) time.Duration {
	switch stat {
	case "min":
		return l.Min
	case "max":
		return l.Max
	case "p50", "med":
		return l.P50
	case "p90":
		return l.P90
	case "p95":
		return l.P95
	case "p99":
		return l.P99
	default:
		return l.Mean
	}
}
