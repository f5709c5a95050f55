package executor

import (
	"context"
	"sync"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// vuPool runs VUs for one executor. Every VU gets its own context so a VU
// can be interrupted individually once its ramp-down grace period is over.
type vuPool struct {
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine

	mu      sync.Mutex
	cancels map[int]context.CancelFunc
}

func newVUPool(scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) *vuPool {
	return &vuPool{
		scheduler: scheduler,
		metrics:   metricsEngine,
		cancels:   make(map[int]context.CancelFunc),
	}
}

// start brings up n VUs under parent.
func (p *vuPool) start(parent context.Context, n int) {
	for i := 0; i < n; i++ {
		vu := p.scheduler.Acquire()
		ctx, cancel := context.WithCancel(parent)

		p.mu.Lock()
		if prev, ok := p.cancels[vu.ID]; ok {
			prev()
		}
		p.cancels[vu.ID] = cancel
		p.mu.Unlock()

		p.scheduler.Start(ctx, vu)
	}
	p.scheduler.UpdateMetrics()
}

// rampDown asks the n newest running VUs to stop after their current
// iteration and interrupts any that are still busy after grace.
func (p *vuPool) rampDown(n int, grace time.Duration) {
	stopped := p.scheduler.StopNewest(n)

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, vu := range stopped {
		cancel, ok := p.cancels[vu.ID]
		if !ok {
			continue
		}
		vu := vu
		go func() {
			if !vu.WaitForStop(grace) {
				cancel()
			}
		}()
	}
}

// running returns the number of VUs that will start another iteration.
func (p *vuPool) running() int {
	return p.scheduler.GetRunningVUCount()
}

// shutdown stops every VU, waits up to grace for in-flight iterations and
// then interrupts what is left. It returns once all VU goroutines are done.
func (p *vuPool) shutdown(grace time.Duration) {
	if p.metrics != nil {
		p.metrics.SetPhase(metrics.PhaseCooldown)
	}

	if !p.scheduler.Shutdown(grace) {
		p.cancelAll()
		p.scheduler.Wait()
	}
	p.cancelAll()

	p.scheduler.UpdateMetrics()
}

func (p *vuPool) cancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, cancel := range p.cancels {
		cancel()
	}
}
