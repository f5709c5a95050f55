package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Threshold metric names, as used in the thresholds section.
const (
	MetricHTTPReqDuration = "http_req_duration"
	MetricHTTPReqFailed   = "http_req_failed"
	MetricHTTPReqs        = "http_reqs"
	MetricChecks          = "checks"
)

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>=!]+)\s*(.+)$`)

// Threshold is a parsed expression such as "p95 < 500ms".
type Threshold struct {
	Stat  string
	Op    string
	Value string
}

// ParseThreshold parses and checks the syntax of a threshold expression.
// Which stats are allowed depends on the metric; see ThresholdEntry.Check.
func ParseThreshold(expr string) (Threshold, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Threshold{}, fmt.Errorf("threshold expression cannot be empty")
	}

	m := thresholdPattern.FindStringSubmatch(expr)
	if len(m) != 4 {
		return Threshold{}, fmt.Errorf("invalid expression format: %s", expr)
	}

	t := Threshold{Stat: m[1], Op: m[2], Value: strings.TrimSpace(m[3])}
	switch t.Op {
	case "<", "<=", ">", ">=", "==", "!=":
	default:
		return Threshold{}, fmt.Errorf("unknown operator %q (use <, <=, >, >=, ==, !=)", t.Op)
	}
	return t, nil
}

// DurationValue returns the value as a duration ("500ms", or bare milliseconds
// as k6 accepts them).
func (t Threshold) DurationValue() (time.Duration, error) {
	if d, err := time.ParseDuration(t.Value); err == nil {
		return d, nil
	}
	ms, err := strconv.ParseFloat(t.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration value: %s", t.Value)
	}
	return time.Duration(ms * float64(time.Millisecond)), nil
}

// FloatValue returns the value as a number.
func (t Threshold) FloatValue() (float64, error) {
	v, err := strconv.ParseFloat(t.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value: %s", t.Value)
	}
	return v, nil
}

// Compare applies the operator to actual and limit.
func (t Threshold) Compare(actual, limit float64) bool {
	switch t.Op {
	case "<":
		return actual < limit
	case "<=":
		return actual <= limit
	case ">":
		return actual > limit
	case ">=":
		return actual >= limit
	case "==":
		return actual == limit
	case "!=":
		return actual != limit
	default:
		return false
	}
}

// ThresholdEntry is the list of expressions configured for one metric.
type ThresholdEntry struct {
	Metric      string
	Expressions []string
}

// Entries returns the configured thresholds in a fixed metric order.
func (t *ThresholdsConfig) Entries() []ThresholdEntry {
	if t.IsEmpty() {
		return nil
	}

	all := []ThresholdEntry{
		{Metric: MetricHTTPReqDuration, Expressions: t.HTTPReqDuration},
		{Metric: MetricHTTPReqFailed, Expressions: t.HTTPReqFailed},
		{Metric: MetricHTTPReqs, Expressions: t.HTTPReqs},
		{Metric: MetricChecks, Expressions: t.Checks},
	}

	entries := all[:0]
	for _, e := range all {
		if len(e.Expressions) > 0 {
			entries = append(entries, e)
		}
	}
	return entries
}

// Check parses expr and verifies its stat and value suit the metric.
func (e ThresholdEntry) Check(expr string) (Threshold, error) {
	t, err := ParseThreshold(expr)
	if err != nil {
		return t, err
	}

	switch e.Metric {
	case MetricHTTPReqDuration:
		switch t.Stat {
		case "min", "max", "avg", "med", "p50", "p90", "p95", "p99":
		default:
			return t, fmt.Errorf("%s supports min, max, avg, med, p50, p90, p95, p99; got %s", e.Metric, t.Stat)
		}
		_, err = t.DurationValue()
	case MetricHTTPReqFailed, MetricChecks:
		if t.Stat != "rate" {
			return t, fmt.Errorf("%s only supports 'rate', got %s", e.Metric, t.Stat)
		}
		_, err = t.FloatValue()
	case MetricHTTPReqs:
		if t.Stat != "count" && t.Stat != "rate" {
			return t, fmt.Errorf("%s only supports 'count' or 'rate', got %s", e.Metric, t.Stat)
		}
		_, err = t.FloatValue()
	default:
		return t, fmt.Errorf("unknown threshold metric: %s", e.Metric)
	}
	return t, err
}
