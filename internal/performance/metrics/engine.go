// Package metrics aggregates request, check and iteration results of a run.
package metrics

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Engine collects and aggregates performance metrics using HDR histograms.
//
// Key features:
// - HDR histograms for request latency and iteration duration percentiles
// - Named check tallies and failure reason counts
// - Continuous time-bucket emission once started
// - Phase-aware aggregation
//
// # Thread Safety
//
// Engine is safe for concurrent use. Counters use atomic operations,
// histograms and maps are mutex protected, and the background emitter runs
// in its own goroutine between Start and Stop.
type Engine struct {
	// Range: 1 microsecond to 1 hour, 3 significant figures
	latencyHist   *hdrhistogram.Histogram
	latencyHistMu sync.Mutex

	iterationHist   *hdrhistogram.Histogram
	iterationHistMu sync.Mutex

	requestHists   map[string]*hdrhistogram.Histogram
	requestHistsMu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	totalBytes      atomic.Int64

	iterations            atomic.Int64
	interruptedIterations atomic.Int64

	// checks keeps insertion order so summaries list checks as first seen
	checks     map[string]*CheckResult
	checkOrder []string
	failures   map[string]int64
	tallyMu    sync.Mutex

	activeVUs atomic.Int32
	maxVUs    atomic.Int32

	bucketStore *TimeBucketStore

	currentPhase Phase
	phaseMu      sync.RWMutex
	phaseHistory []PhaseChange

	startTime atomic.Int64
	endTime   atomic.Int64

	emitterMu     sync.Mutex
	emitterCancel context.CancelFunc
	emitterWg     sync.WaitGroup

	config EngineConfig
}

// NewEngine creates a new metrics engine with default configuration.
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig())
}

// NewEngineWithConfig creates a new metrics engine with custom configuration.
// Zero fields take their defaults.
func NewEngineWithConfig(config EngineConfig) *Engine {
	defaults := DefaultEngineConfig()
	if config.BucketInterval <= 0 {
		config.BucketInterval = defaults.BucketInterval
	}
	if config.MaxBuckets <= 0 {
		config.MaxBuckets = defaults.MaxBuckets
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}

	e := &Engine{
		latencyHist:   hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		iterationHist: hdrhistogram.New(config.HistogramMin, config.HistogramMax, config.HistogramSigFigs),
		requestHists:  make(map[string]*hdrhistogram.Histogram),
		checks:        make(map[string]*CheckResult),
		failures:      make(map[string]int64),
		bucketStore:   NewTimeBucketStore(config.MaxBuckets),
		currentPhase:  PhaseInit,
		phaseHistory:  make([]PhaseChange, 0),
		config:        config,
	}
	e.startTime.Store(time.Now().UnixNano())
	return e
}

// Start marks the beginning of the run and starts the time-bucket emitter.
// Calling Start on a running engine is a no-op.
func (e *Engine) Start() {
	e.emitterMu.Lock()
	defer e.emitterMu.Unlock()

	if e.emitterCancel != nil {
		return
	}

	e.startTime.Store(time.Now().UnixNano())
	e.endTime.Store(0)
	e.bucketStore.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	e.emitterCancel = cancel
	e.emitterWg.Add(1)
	go e.runEmitter(ctx)
}

// Stop stops the emitter, emits a final bucket and freezes the elapsed time.
func (e *Engine) Stop() {
	e.emitterMu.Lock()
	cancel := e.emitterCancel
	e.emitterCancel = nil
	e.emitterMu.Unlock()

	if cancel == nil {
		return
	}

	cancel()
	e.emitterWg.Wait()
	e.emitBucket()
	e.endTime.Store(time.Now().UnixNano())
}

// RecordLatency records one request.
//
// Parameters:
//   - duration: The request latency
//   - requestName: Optional name for per-request breakdown (empty string to skip)
//   - success: Whether the request counts as successful
//   - bytes: Number of response bytes received
func (e *Engine) RecordLatency(duration time.Duration, requestName string, success bool, bytes int64) {
	latencyMicros := e.clamp(duration)

	// HDR histogram RecordValue is not thread-safe
	e.latencyHistMu.Lock()
	_ = e.latencyHist.RecordValue(latencyMicros)
	e.latencyHistMu.Unlock()

	if requestName != "" {
		e.recordRequestHistogram(requestName, latencyMicros)
	}

	e.totalRequests.Add(1)
	e.totalBytes.Add(bytes)

	if success {
		e.successRequests.Add(1)
	} else {
		e.failedRequests.Add(1)
	}

	e.bucketStore.RecordRequest(success)
}

func (e *Engine) recordRequestHistogram(name string, latencyMicros int64) {
	e.requestHistsMu.Lock()
	defer e.requestHistsMu.Unlock()

	hist, exists := e.requestHists[name]
	if !exists {
		hist = hdrhistogram.New(e.config.HistogramMin, e.config.HistogramMax, e.config.HistogramSigFigs)
		e.requestHists[name] = hist
	}

	_ = hist.RecordValue(latencyMicros)
}

// RecordCheck records one evaluation of the named check.
func (e *Engine) RecordCheck(name string, passed bool) {
	e.tallyMu.Lock()
	c, ok := e.checks[name]
	if !ok {
		c = &CheckResult{Name: name}
		e.checks[name] = c
		e.checkOrder = append(e.checkOrder, name)
	}
	if passed {
		c.Passes++
	} else {
		c.Fails++
	}
	e.tallyMu.Unlock()

	if !passed {
		e.bucketStore.RecordCheckFail()
	}
}

// RecordFailure counts a request that did not pass, by reason.
func (e *Engine) RecordFailure(reason string) {
	e.tallyMu.Lock()
	e.failures[reason]++
	e.tallyMu.Unlock()
}

// RecordIteration records the end of an iteration. Interrupted iterations
// are counted but stay out of the duration histogram.
func (e *Engine) RecordIteration(duration time.Duration, interrupted bool) {
	if interrupted {
		e.interruptedIterations.Add(1)
		return
	}

	value := e.clamp(duration)
	e.iterationHistMu.Lock()
	_ = e.iterationHist.RecordValue(value)
	e.iterationHistMu.Unlock()

	e.iterations.Add(1)
	e.bucketStore.RecordIteration()
}

func (e *Engine) clamp(d time.Duration) int64 {
	v := d.Microseconds()
	if v < e.config.HistogramMin {
		v = e.config.HistogramMin
	}
	if v > e.config.HistogramMax {
		v = e.config.HistogramMax
	}
	return v
}

// SetPhase updates the current test phase.
//
// This is called by executors to mark phase transitions.
// Phase information is included in time-series buckets.
func (e *Engine) SetPhase(phase Phase) {
	e.phaseMu.Lock()
	defer e.phaseMu.Unlock()

	if e.currentPhase == phase {
		return
	}

	e.currentPhase = phase
	e.phaseHistory = append(e.phaseHistory, PhaseChange{
		Phase:     phase,
		Timestamp: time.Now(),
		Requests:  e.totalRequests.Load(),
	})
}

// GetPhase returns the current test phase.
func (e *Engine) GetPhase() Phase {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()
	return e.currentPhase
}

// SetActiveVUs updates the active VU count.
func (e *Engine) SetActiveVUs(count int) {
	e.activeVUs.Store(int32(count))
	for {
		peak := e.maxVUs.Load()
		if int32(count) <= peak || e.maxVUs.CompareAndSwap(peak, int32(count)) {
			return
		}
	}
}

// GetActiveVUs returns the current active VU count.
func (e *Engine) GetActiveVUs() int {
	return int(e.activeVUs.Load())
}

func (e *Engine) runEmitter(ctx context.Context) {
	defer e.emitterWg.Done()

	ticker := time.NewTicker(e.config.BucketInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.emitBucket()
		}
	}
}

func (e *Engine) emitBucket() {
	e.bucketStore.CreateBucket(
		e.totalRequests.Load(), e.successRequests.Load(), e.failedRequests.Load(), e.totalBytes.Load(),
		e.GetLatencyPercentiles(), e.GetActiveVUs(), e.GetPhase(),
	)
}

// GetLatencyPercentiles returns current latency percentiles.
func (e *Engine) GetLatencyPercentiles() LatencyPercentiles {
	e.latencyHistMu.Lock()
	defer e.latencyHistMu.Unlock()

	return LatencyPercentiles{
		Min: micros(e.latencyHist.Min()),
		Max: micros(e.latencyHist.Max()),
		P50: micros(e.latencyHist.ValueAtQuantile(50)),
		P90: micros(e.latencyHist.ValueAtQuantile(90)),
		P95: micros(e.latencyHist.ValueAtQuantile(95)),
		P99: micros(e.latencyHist.ValueAtQuantile(99)),
	}
}

func micros(v int64) time.Duration {
	return time.Duration(v) * time.Microsecond
}

func statsOf(hist *hdrhistogram.Histogram) LatencyStats {
	return LatencyStats{
		Min:    micros(hist.Min()),
		Max:    micros(hist.Max()),
		Mean:   time.Duration(hist.Mean() * float64(time.Microsecond)),
		StdDev: time.Duration(hist.StdDev() * float64(time.Microsecond)),
		P50:    micros(hist.ValueAtQuantile(50)),
		P90:    micros(hist.ValueAtQuantile(90)),
		P95:    micros(hist.ValueAtQuantile(95)),
		P99:    micros(hist.ValueAtQuantile(99)),
		Count:  hist.TotalCount(),
	}
}

// Elapsed returns the time since Start, frozen at Stop.
func (e *Engine) Elapsed() time.Duration {
	start := time.Unix(0, e.startTime.Load())
	if end := e.endTime.Load(); end != 0 {
		return time.Unix(0, end).Sub(start)
	}
	return time.Since(start)
}

// GetChecks returns the check tallies in the order checks were first seen.
func (e *Engine) GetChecks() []CheckResult {
	e.tallyMu.Lock()
	defer e.tallyMu.Unlock()

	result := make([]CheckResult, 0, len(e.checkOrder))
	for _, name := range e.checkOrder {
		result = append(result, *e.checks[name])
	}
	return result
}

// GetFailureReasons returns a copy of the failure reason counts.
func (e *Engine) GetFailureReasons() map[string]int64 {
	e.tallyMu.Lock()
	defer e.tallyMu.Unlock()

	result := make(map[string]int64, len(e.failures))
	for k, v := range e.failures {
		result[k] = v
	}
	return result
}

// SortedFailureReasons returns the failure reasons ordered by count, most
// frequent first, ties by name.
func SortedFailureReasons(reasons map[string]int64) []string {
	names := make([]string, 0, len(reasons))
	for name := range reasons {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if reasons[names[i]] != reasons[names[j]] {
			return reasons[names[i]] > reasons[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// GetSnapshot returns a point-in-time snapshot of all metrics.
func (e *Engine) GetSnapshot() *Snapshot {
	e.latencyHistMu.Lock()
	latencyStats := statsOf(e.latencyHist)
	e.latencyHistMu.Unlock()

	e.iterationHistMu.Lock()
	iterationStats := statsOf(e.iterationHist)
	e.iterationHistMu.Unlock()

	elapsed := e.Elapsed()
	totalReqs := e.totalRequests.Load()
	failedReqs := e.failedRequests.Load()

	overallRPS := 0.0
	if elapsed.Seconds() > 0 {
		overallRPS = float64(totalReqs) / elapsed.Seconds()
	}

	errorRate := 0.0
	if totalReqs > 0 {
		errorRate = float64(failedReqs) / float64(totalReqs)
	}

	steadyRPS, _ := e.bucketStore.CalculateSteadyStateRPS()

	return &Snapshot{
		TotalRequests:         totalReqs,
		SuccessRequests:       e.successRequests.Load(),
		FailedRequests:        failedReqs,
		TotalBytes:            e.totalBytes.Load(),
		Latency:               latencyStats,
		RPS:                   overallRPS,
		SteadyStateRPS:        steadyRPS,
		ErrorRate:             errorRate,
		Iterations:            e.iterations.Load(),
		InterruptedIterations: e.interruptedIterations.Load(),
		IterationDuration:     iterationStats,
		Checks:                e.GetChecks(),
		FailureReasons:        e.GetFailureReasons(),
		ActiveVUs:             e.GetActiveVUs(),
		MaxVUs:                int(e.maxVUs.Load()),
		CurrentPhase:          e.GetPhase(),
		Elapsed:               elapsed,
		StartTime:             time.Unix(0, e.startTime.Load()),
		Timestamp:             time.Now(),
	}
}

// GetTimeSeries returns all time-series buckets.
func (e *Engine) GetTimeSeries() []*TimeBucket {
	return e.bucketStore.GetBuckets()
}

// GetPhaseHistory returns the history of phase changes.
func (e *Engine) GetPhaseHistory() []PhaseChange {
	e.phaseMu.RLock()
	defer e.phaseMu.RUnlock()

	result := make([]PhaseChange, len(e.phaseHistory))
	copy(result, e.phaseHistory)
	return result
}

// GetRequestStats returns per-request latency statistics.
func (e *Engine) GetRequestStats() map[string]LatencyStats {
	e.requestHistsMu.RLock()
	defer e.requestHistsMu.RUnlock()

	result := make(map[string]LatencyStats, len(e.requestHists))
	for name, hist := range e.requestHists {
		result[name] = statsOf(hist)
	}
	return result
}

// Reset resets all metrics to initial state. The emitter keeps running if
// it was started.
func (e *Engine) Reset() {
	e.latencyHistMu.Lock()
	e.latencyHist.Reset()
	e.latencyHistMu.Unlock()

	e.iterationHistMu.Lock()
	e.iterationHist.Reset()
	e.iterationHistMu.Unlock()

	e.requestHistsMu.Lock()
	e.requestHists = make(map[string]*hdrhistogram.Histogram)
	e.requestHistsMu.Unlock()

	e.tallyMu.Lock()
	e.checks = make(map[string]*CheckResult)
	e.checkOrder = nil
	e.failures = make(map[string]int64)
	e.tallyMu.Unlock()

	e.totalRequests.Store(0)
	e.successRequests.Store(0)
	e.failedRequests.Store(0)
	e.totalBytes.Store(0)
	e.iterations.Store(0)
	e.interruptedIterations.Store(0)
	e.activeVUs.Store(0)
	e.maxVUs.Store(0)

	e.phaseMu.Lock()
	e.currentPhase = PhaseInit
	e.phaseHistory = make([]PhaseChange, 0)
	e.phaseMu.Unlock()

	e.bucketStore.Reset()
	e.startTime.Store(time.Now().UnixNano())
	e.endTime.Store(0)
}
