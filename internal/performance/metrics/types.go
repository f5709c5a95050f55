package metrics

import "time"

// Phase represents a phase of the load test.
type Phase string

const (
	// PhaseInit is the phase before the first VU starts.
	PhaseInit Phase = "init"

	// PhaseRampUp is active while the VU target is increasing.
	PhaseRampUp Phase = "ramp-up"

	// PhaseSteady is active while the VU target holds.
	PhaseSteady Phase = "steady"

	// PhaseRampDown is active while the VU target is decreasing.
	PhaseRampDown Phase = "ramp-down"

	// PhaseCooldown covers the graceful stop after the last stage.
	PhaseCooldown Phase = "cooldown"

	// PhaseDone indicates the test has completed.
	PhaseDone Phase = "done"
)

// Snapshot contains a point-in-time view of all metrics.
type Snapshot struct {
	TotalRequests   int64 `json:"totalRequests"`
	SuccessRequests int64 `json:"successRequests"`
	FailedRequests  int64 `json:"failedRequests"`
	TotalBytes      int64 `json:"totalBytes"`

	Latency LatencyStats `json:"latency"`

	RPS            float64 `json:"rps"`
	SteadyStateRPS float64 `json:"steadyStateRps"`

	// ErrorRate is the fraction of failed requests (0.0 to 1.0)
	ErrorRate float64 `json:"errorRate"`

	// Iterations counts completed iterations; interrupted ones are separate.
	Iterations            int64        `json:"iterations"`
	InterruptedIterations int64        `json:"interruptedIterations"`
	IterationDuration     LatencyStats `json:"iterationDuration"`

	Checks         []CheckResult    `json:"checks"`
	FailureReasons map[string]int64 `json:"failureReasons,omitempty"`

	ActiveVUs    int   `json:"activeVUs"`
	MaxVUs       int   `json:"maxVUs"`
	CurrentPhase Phase `json:"currentPhase"`

	Elapsed   time.Duration `json:"elapsed"`
	StartTime time.Time     `json:"startTime"`
	Timestamp time.Time     `json:"timestamp"`
}

// ChecksRate returns the fraction of passed check evaluations across all
// checks, or 0 when no check ran.
func (s *Snapshot) ChecksRate() float64 {
	var passes, total int64
	for _, c := range s.Checks {
		passes += c.Passes
		total += c.Passes + c.Fails
	}
	if total == 0 {
		return 0
	}
	return float64(passes) / float64(total)
}

// LatencyStats contains latency statistics.
type LatencyStats struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Mean   time.Duration `json:"mean"`
	StdDev time.Duration `json:"stdDev"`
	P50    time.Duration `json:"p50"`
	P90    time.Duration `json:"p90"`
	P95    time.Duration `json:"p95"`
	P99    time.Duration `json:"p99"`
	Count  int64         `json:"count"`
}

// LatencyPercentiles holds latency percentile values.
type LatencyPercentiles struct {
	Min time.Duration
	Max time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// CheckResult is the tally of one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Rate returns the pass fraction of the check, or 0 when it never ran.
func (c CheckResult) Rate() float64 {
	total := c.Passes + c.Fails
	if total == 0 {
		return 0
	}
	return float64(c.Passes) / float64(total)
}

// TimeBucket captures the state of the run at the end of one bucket interval:
// cumulative totals plus the deltas of that interval.
type TimeBucket struct {
	Timestamp time.Time `json:"timestamp"`

	// Cumulative counters (total since test start)
	TotalRequests  int64 `json:"totalRequests"`
	TotalSuccesses int64 `json:"totalSuccesses"`
	TotalFailures  int64 `json:"totalFailures"`
	TotalBytes     int64 `json:"totalBytes"`

	// Interval metrics
	IntervalRequests   int64   `json:"intervalRequests"`
	IntervalRPS        float64 `json:"intervalRPS"`
	IntervalIterations int64   `json:"intervalIterations"`
	IntervalCheckFails int64   `json:"intervalCheckFails"`

	LatencyMin time.Duration `json:"latencyMin"`
	LatencyMax time.Duration `json:"latencyMax"`
	LatencyP50 time.Duration `json:"latencyP50"`
	LatencyP90 time.Duration `json:"latencyP90"`
	LatencyP95 time.Duration `json:"latencyP95"`
	LatencyP99 time.Duration `json:"latencyP99"`

	ActiveVUs int   `json:"activeVUs"`
	Phase     Phase `json:"phase"`

	IntervalErrorRate float64 `json:"intervalErrorRate"`
}

// PhaseChange records when a phase transition occurred.
type PhaseChange struct {
	Phase     Phase     `json:"phase"`
	Timestamp time.Time `json:"timestamp"`
	Requests  int64     `json:"requests"`
}

// EngineConfig contains configuration for the metrics engine.
type EngineConfig struct {
	// BucketInterval is the interval for time-series buckets (default: 1s)
	BucketInterval time.Duration

	// MaxBuckets is the maximum number of buckets to retain (default: 3600)
	MaxBuckets int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultEngineConfig returns the default configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BucketInterval:   time.Second,
		MaxBuckets:       3600,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}
