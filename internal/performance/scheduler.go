package performance

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// VUScheduler manages the lifecycle of Virtual Users.
//
// It provides:
// - VU pool management (acquiring, stopping and reusing VUs)
// - Goroutine tracking for graceful shutdown
//
// The scheduler is used by executors to control VU counts.
type VUScheduler struct {
	// newIteration binds the iteration function of a freshly created VU
	newIteration func(id int) IterationFunc

	metrics *metrics.Engine

	vus   map[int]*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32

	// iterations counts iterations that returned without error
	iterations atomic.Int64

	wg           sync.WaitGroup
	shutdownCh   chan struct{}
	shutdownOnce sync.Once
}

// NewVUScheduler creates a new VU scheduler. newIteration is called exactly
// once per VU ID, when that VU is first created. metricsEngine may be nil.
func NewVUScheduler(newIteration func(id int) IterationFunc, metricsEngine *metrics.Engine) *VUScheduler {
	return &VUScheduler{
		newIteration: newIteration,
		metrics:      metricsEngine,
		vus:          make(map[int]*VirtualUser),
		shutdownCh:   make(chan struct{}),
	}
}

// Acquire returns an idle VU ready to run. The stopped VU with the lowest ID
// is reactivated if there is one; otherwise a new VU is created with the next
// ID, starting at 1.
func (s *VUScheduler) Acquire() *VirtualUser {
	s.vusMu.Lock()
	defer s.vusMu.Unlock()

	var stopped []int
	for id, vu := range s.vus {
		if vu.GetState() == VUStateStopped {
			stopped = append(stopped, id)
		}
	}
	sort.Ints(stopped)
	for _, id := range stopped {
		if s.vus[id].reactivate() {
			return s.vus[id]
		}
	}

	id := int(s.nextVUID.Add(1))
	vu := NewVirtualUser(id, s.newIteration(id))
	s.vus[id] = vu
	return vu
}

// Start runs vu in its own goroutine until it is stopped or ctx ends.
func (s *VUScheduler) Start(ctx context.Context, vu *VirtualUser) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunVU(ctx, vu)
	}()
}

// GetActiveVUs returns all VUs that have not stopped, ordered by ID.
func (s *VUScheduler) GetActiveVUs() []*VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	result := make([]*VirtualUser, 0, len(s.vus))
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			result = append(result, vu)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// GetActiveVUCount returns the count of non-stopped VUs, including VUs that
// are finishing their last iteration.
func (s *VUScheduler) GetActiveVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateStopped {
			count++
		}
	}
	return count
}

// GetRunningVUCount returns the count of VUs that will start another
// iteration, i.e. neither stopping nor stopped.
func (s *VUScheduler) GetRunningVUCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		switch vu.GetState() {
		case VUStateIdle, VUStateRunning:
			count++
		}
	}
	return count
}

// Iterations returns the number of iterations completed through RunVU.
func (s *VUScheduler) Iterations() int64 {
	return s.iterations.Load()
}

// TotalVUs returns how many distinct VUs were ever created.
func (s *VUScheduler) TotalVUs() int {
	return int(s.nextVUID.Load())
}

// StopNewest requests the n running VUs with the highest IDs to stop and
// returns them.
func (s *VUScheduler) StopNewest(n int) []*VirtualUser {
	if n <= 0 {
		return nil
	}

	running := make([]*VirtualUser, 0)
	for _, vu := range s.GetActiveVUs() {
		switch vu.GetState() {
		case VUStateIdle, VUStateRunning:
			running = append(running, vu)
		}
	}

	stopped := make([]*VirtualUser, 0, n)
	for i := len(running) - 1; i >= 0 && len(stopped) < n; i-- {
		running[i].RequestStop()
		stopped = append(stopped, running[i])
	}
	return stopped
}

// StopAllVUs requests all VUs to stop.
func (s *VUScheduler) StopAllVUs() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// Wait blocks until every goroutine started by Start has returned.
func (s *VUScheduler) Wait() {
	s.wg.Wait()
}

// RunVU runs a VU until it's stopped or the context is cancelled.
//
// This is a helper method for executors. It runs iterations back to back
// and marks the VU stopped when it returns.
func (s *VUScheduler) RunVU(ctx context.Context, vu *VirtualUser) {
	defer s.UpdateMetrics()
	defer vu.MarkStopped()

	stop := vu.StopRequested()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdownCh:
			return
		case <-stop:
			return
		default:
		}

		if err := vu.RunIteration(ctx); err != nil {
			if ctx.Err() != nil || vu.GetState() != VUStateIdle {
				return
			}
			continue
		}
		s.iterations.Add(1)
	}
}

// Shutdown stops all VUs and waits up to timeout for the goroutines started
// by Start. VUs still in an iteration leave at the end of it. Returns false
// if some goroutines were still running at the deadline.
func (s *VUScheduler) Shutdown(timeout time.Duration) bool {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
	s.StopAllVUs()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

// UpdateMetrics updates the metrics engine with current VU count.
func (s *VUScheduler) UpdateMetrics() {
	if s.metrics == nil {
		return
	}
	s.metrics.SetActiveVUs(s.GetActiveVUCount())
}
