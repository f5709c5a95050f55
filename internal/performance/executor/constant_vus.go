package executor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// ConstantVUs runs a fixed number of VUs for a specified duration.
//
// Each VU runs iterations back to back (closed model); pacing comes from the
// iteration itself.
type ConstantVUs struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine
	pool      *vuPool

	startTime time.Time
	running   atomic.Bool

	cancelFunc context.CancelFunc

	mu sync.RWMutex
}

// NewConstantVUs creates a new constant VUs executor.
func NewConstantVUs() *ConstantVUs {
	return &ConstantVUs{}
}

// Type returns the executor type.
func (e *ConstantVUs) Type() Type {
	return TypeConstantVUs
}

// Init initializes the executor with configuration.
func (e *ConstantVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeConstantVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeConstantVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *ConstantVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
	if e.config == nil {
		return fmt.Errorf("executor not initialized")
	}
	if scheduler == nil || metricsEngine == nil {
		return fmt.Errorf("scheduler and metrics engine are required")
	}

	e.mu.Lock()
	e.scheduler = scheduler
	e.metrics = metricsEngine
	e.pool = newVUPool(scheduler, metricsEngine)
	e.startTime = time.Now()
	scheduleCtx, cancel := context.WithTimeout(ctx, e.config.Duration)
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	e.running.Store(true)
	defer e.running.Store(false)

	e.metrics.SetPhase(metrics.PhaseSteady)
	e.pool.start(ctx, e.config.VUs)

	<-scheduleCtx.Done()

	e.pool.shutdown(e.config.gracefulStop())
	e.metrics.SetPhase(metrics.PhaseDone)

	return nil
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *ConstantVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if start.IsZero() {
		return 0.0
	}
	if !e.running.Load() {
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(e.config.Duration)
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *ConstantVUs) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.scheduler == nil {
		return 0
	}
	return e.scheduler.GetActiveVUCount()
}

// GetStats returns executor statistics.
func (e *ConstantVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		TotalDuration: e.config.Duration,
		TargetVUs:     e.config.VUs,
	}
	if !e.startTime.IsZero() {
		stats.Elapsed = time.Since(e.startTime)
	}
	if e.scheduler != nil {
		stats.ActiveVUs = e.scheduler.GetActiveVUCount()
		stats.Iterations = e.scheduler.Iterations()
	}
	return stats
}

// Stop ends the schedule early.
func (e *ConstantVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

var _ Executor = (*ConstantVUs)(nil)
