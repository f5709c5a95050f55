package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// TimeBucketStore keeps time-bucketed metrics in a ring buffer of bounded
// size; the oldest bucket is overwritten once the buffer is full.
type TimeBucketStore struct {
	buckets    []*TimeBucket
	head       int // next write position
	count      int
	maxBuckets int
	mu         sync.RWMutex

	lastBucketTime time.Time

	// accumulators for the open interval, swapped to zero on emit
	currentRequests   atomic.Int64
	currentFailures   atomic.Int64
	currentIterations atomic.Int64
	currentCheckFails atomic.Int64
}

// NewTimeBucketStore creates a store retaining at most maxBuckets buckets.
func NewTimeBucketStore(maxBuckets int) *TimeBucketStore {
	if maxBuckets <= 0 {
		maxBuckets = 3600
	}

	return &TimeBucketStore{
		buckets:        make([]*TimeBucket, maxBuckets),
		maxBuckets:     maxBuckets,
		lastBucketTime: time.Now(),
	}
}

// RecordRequest adds a request to the open interval.
func (tbs *TimeBucketStore) RecordRequest(success bool) {
	tbs.currentRequests.Add(1)
	if !success {
		tbs.currentFailures.Add(1)
	}
}

// RecordIteration adds a completed iteration to the open interval.
func (tbs *TimeBucketStore) RecordIteration() {
	tbs.currentIterations.Add(1)
}

// RecordCheckFail adds a failed check evaluation to the open interval.
func (tbs *TimeBucketStore) RecordCheckFail() {
	tbs.currentCheckFails.Add(1)
}

// CreateBucket closes the open interval into a new bucket.
func (tbs *TimeBucketStore) CreateBucket(
	totalRequests, totalSuccesses, totalFailures, totalBytes int64,
	latencies LatencyPercentiles,
	activeVUs int,
	phase Phase,
) *TimeBucket {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	now := time.Now()

	intervalRequests := tbs.currentRequests.Swap(0)
	intervalFailures := tbs.currentFailures.Swap(0)

	intervalDuration := now.Sub(tbs.lastBucketTime).Seconds()
	if intervalDuration <= 0 {
		intervalDuration = 1.0
	}

	intervalErrorRate := 0.0
	if intervalRequests > 0 {
		intervalErrorRate = float64(intervalFailures) / float64(intervalRequests)
	}

	bucket := &TimeBucket{
		Timestamp:          now,
		TotalRequests:      totalRequests,
		TotalSuccesses:     totalSuccesses,
		TotalFailures:      totalFailures,
		TotalBytes:         totalBytes,
		IntervalRequests:   intervalRequests,
		IntervalRPS:        float64(intervalRequests) / intervalDuration,
		IntervalIterations: tbs.currentIterations.Swap(0),
		IntervalCheckFails: tbs.currentCheckFails.Swap(0),
		LatencyMin:         latencies.Min,
		LatencyMax:         latencies.Max,
		LatencyP50:         latencies.P50,
		LatencyP90:         latencies.P90,
		LatencyP95:         latencies.P95,
		LatencyP99:         latencies.P99,
		ActiveVUs:          activeVUs,
		Phase:              phase,
		IntervalErrorRate:  intervalErrorRate,
	}

	tbs.buckets[tbs.head] = bucket
	tbs.head = (tbs.head + 1) % tbs.maxBuckets
	if tbs.count < tbs.maxBuckets {
		tbs.count++
	}
	tbs.lastBucketTime = now

	return bucket
}

// GetBuckets returns all retained buckets in chronological order.
func (tbs *TimeBucketStore) GetBuckets() []*TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}

	result := make([]*TimeBucket, tbs.count)
	start := 0
	if tbs.count == tbs.maxBuckets {
		start = tbs.head
	}
	for i := 0; i < tbs.count; i++ {
		result[i] = tbs.buckets[(start+i)%tbs.maxBuckets]
	}
	return result
}

// GetBucketsForPhase returns the buckets emitted during phase.
func (tbs *TimeBucketStore) GetBucketsForPhase(phase Phase) []*TimeBucket {
	result := make([]*TimeBucket, 0)
	for _, b := range tbs.GetBuckets() {
		if b.Phase == phase {
			result = append(result, b)
		}
	}
	return result
}

// GetLatestBucket returns the most recent bucket, or nil if none.
func (tbs *TimeBucketStore) GetLatestBucket() *TimeBucket {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()

	if tbs.count == 0 {
		return nil
	}
	return tbs.buckets[(tbs.head-1+tbs.maxBuckets)%tbs.maxBuckets]
}

// Count returns the number of retained buckets.
func (tbs *TimeBucketStore) Count() int {
	tbs.mu.RLock()
	defer tbs.mu.RUnlock()
	return tbs.count
}

// Reset clears all buckets and accumulators.
func (tbs *TimeBucketStore) Reset() {
	tbs.mu.Lock()
	defer tbs.mu.Unlock()

	tbs.buckets = make([]*TimeBucket, tbs.maxBuckets)
	tbs.head = 0
	tbs.count = 0
	tbs.lastBucketTime = time.Now()

	tbs.currentRequests.Store(0)
	tbs.currentFailures.Store(0)
	tbs.currentIterations.Store(0)
	tbs.currentCheckFails.Store(0)
}

// CalculateSteadyStateRPS averages the interval RPS of steady-phase buckets.
// The second return value is the number of buckets used.
func (tbs *TimeBucketStore) CalculateSteadyStateRPS() (float64, int) {
	steady := tbs.GetBucketsForPhase(PhaseSteady)
	if len(steady) == 0 {
		return 0, 0
	}

	var sum float64
	for _, b := range steady {
		sum += b.IntervalRPS
	}
	return sum / float64(len(steady)), len(steady)
}
