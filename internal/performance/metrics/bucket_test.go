package metrics

import "testing"

func TestTimeBucketStore_RingBuffer(t *testing.T) {
	store := NewTimeBucketStore(3)

	for i := int64(1); i <= 5; i++ {
		store.RecordRequest(true)
		store.CreateBucket(i, i, 0, 0, LatencyPercentiles{}, int(i), PhaseSteady)
	}

	if store.Count() != 3 {
		t.Fatalf("Count() = %d, want 3", store.Count())
	}

	buckets := store.GetBuckets()
	for i, want := range []int64{3, 4, 5} {
		if buckets[i].TotalRequests != want {
			t.Errorf("buckets[%d].TotalRequests = %d, want %d", i, buckets[i].TotalRequests, want)
		}
	}
	if latest := store.GetLatestBucket(); latest.TotalRequests != 5 {
		t.Errorf("GetLatestBucket().TotalRequests = %d, want 5", latest.TotalRequests)
	}
}

func TestTimeBucketStore_IntervalAccumulators(t *testing.T) {
	store := NewTimeBucketStore(10)

	store.RecordRequest(true)
	store.RecordRequest(false)
	store.RecordIteration()
	store.RecordCheckFail()

	b := store.CreateBucket(2, 1, 1, 0, LatencyPercentiles{}, 1, PhaseRampUp)
	if b.IntervalRequests != 2 || b.IntervalIterations != 1 || b.IntervalCheckFails != 1 {
		t.Errorf("bucket = %+v", b)
	}
	if b.IntervalErrorRate != 0.5 {
		t.Errorf("IntervalErrorRate = %v, want 0.5", b.IntervalErrorRate)
	}

	next := store.CreateBucket(2, 1, 1, 0, LatencyPercentiles{}, 1, PhaseSteady)
	if next.IntervalRequests != 0 || next.IntervalIterations != 0 {
		t.Errorf("accumulators not reset: %+v", next)
	}

	if got := len(store.GetBucketsForPhase(PhaseSteady)); got != 1 {
		t.Errorf("steady buckets = %d, want 1", got)
	}
	if _, n := store.CalculateSteadyStateRPS(); n != 1 {
		t.Errorf("CalculateSteadyStateRPS() used %d buckets, want 1", n)
	}

	store.Reset()
	if store.Count() != 0 || store.GetLatestBucket() != nil {
		t.Error("Reset() did not clear buckets")
	}
}
