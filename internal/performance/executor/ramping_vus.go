package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// controllerInterval is how often the VU target is recomputed.
const controllerInterval = 100 * time.Millisecond

// RampingVUs ramps VU count up and down according to stages.
//
// The target is interpolated linearly within each stage, from the previous
// stage's target (StartVUs for the first stage) to the stage's own target.
// VUs removed on the way down finish their current iteration, bounded by
// GracefulRampDown.
//
// Example stages:
//
//	stages:
//	  - duration: 10s
//	    target: 10     # 0 -> 10 VUs
//	  - duration: 20s
//	    target: 50     # 10 -> 50 VUs
//	  - duration: 20s
//	    target: 100    # 50 -> 100 VUs
//	  - duration: 10s
//	    target: 0      # 100 -> 0 VUs
type RampingVUs struct {
	config    *Config
	scheduler *performance.VUScheduler
	metrics   *metrics.Engine
	pool      *vuPool

	startTime    time.Time
	targetVUs    atomic.Int32
	currentStage atomic.Int32
	running      atomic.Bool

	cancelFunc context.CancelFunc

	mu sync.RWMutex
}

// NewRampingVUs creates a new ramping VUs executor.
func NewRampingVUs() *RampingVUs {
	return &RampingVUs{}
}

// Type returns the executor type.
func (e *RampingVUs) Type() Type {
	return TypeRampingVUs
}

// Init initializes the executor with configuration.
func (e *RampingVUs) Init(ctx context.Context, config *Config) error {
	if config.Type != TypeRampingVUs {
		return fmt.Errorf("invalid config type: expected %s, got %s", TypeRampingVUs, config.Type)
	}

	if err := config.Validate(); err != nil {
		return err
	}

	e.config = config
	return nil
}

// Run starts the executor and blocks until completion.
func (e *RampingVUs) Run(ctx context.Context, scheduler *performance.VUScheduler, metricsEngine *metrics.Engine) error {
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
	scheduleCtx, cancel := context.WithTimeout(ctx, e.config.TotalDuration())
	e.cancelFunc = cancel
	e.mu.Unlock()
	defer cancel()

	e.running.Store(true)
	defer e.running.Store(false)

	// Iterations outlive the schedule by the graceful stop, so VUs run
	// under ctx rather than scheduleCtx.
	e.vuController(ctx, scheduleCtx)

	// A schedule that ran to completion ends at the last stage's target;
	// VUs above it get the ramp-down grace rather than the stop grace.
	if errors.Is(scheduleCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		e.adjust(ctx, e.config.Stages[len(e.config.Stages)-1].Target)
	}

	e.pool.shutdown(e.config.gracefulStop())
	e.metrics.SetPhase(metrics.PhaseDone)

	return nil
}

// vuController adjusts VU count according to stages until scheduleCtx ends.
func (e *RampingVUs) vuController(vuCtx, scheduleCtx context.Context) {
	ticker := time.NewTicker(controllerInterval)
	defer ticker.Stop()

	e.tick(vuCtx)
	for {
		select {
		case <-scheduleCtx.Done():
			return
		case <-ticker.C:
			e.tick(vuCtx)
		}
	}
}

func (e *RampingVUs) tick(vuCtx context.Context) {
	target := e.calculateTargetVUs(time.Since(e.startTime))
	e.adjust(vuCtx, target)
	e.updatePhase()
}

func (e *RampingVUs) adjust(vuCtx context.Context, target int) {
	e.targetVUs.Store(int32(target))

	current := e.pool.running()
	switch {
	case target > current:
		e.pool.start(vuCtx, target-current)
	case target < current:
		e.pool.rampDown(current-target, e.config.gracefulRampDown())
	}
}

// calculateTargetVUs calculates the target VU count at elapsed.
func (e *RampingVUs) calculateTargetVUs(elapsed time.Duration) int {
	var stageStart time.Duration
	prevTarget := e.config.StartVUs

	for i, stage := range e.config.Stages {
		stageEnd := stageStart + stage.Duration

		if elapsed < stageEnd {
			e.currentStage.Store(int32(i))

			progress := float64(elapsed-stageStart) / float64(stage.Duration)
			if progress < 0 {
				progress = 0
			}
			if progress > 1 {
				progress = 1
			}

			target := float64(prevTarget) + float64(stage.Target-prevTarget)*progress
			return int(target + 0.5)
		}

		prevTarget = stage.Target
		stageStart = stageEnd
	}

	e.currentStage.Store(int32(len(e.config.Stages) - 1))
	return e.config.Stages[len(e.config.Stages)-1].Target
}

// TargetAt returns the interpolated VU target at elapsed.
func (e *RampingVUs) TargetAt(elapsed time.Duration) int {
	return e.calculateTargetVUs(elapsed)
}

// updatePhase derives the metrics phase from the current stage's direction.
func (e *RampingVUs) updatePhase() {
	stageIdx := int(e.currentStage.Load())
	if stageIdx >= len(e.config.Stages) {
		return
	}

	prevTarget := e.config.StartVUs
	if stageIdx > 0 {
		prevTarget = e.config.Stages[stageIdx-1].Target
	}

	switch target := e.config.Stages[stageIdx].Target; {
	case target > prevTarget:
		e.metrics.SetPhase(metrics.PhaseRampUp)
	case target < prevTarget:
		e.metrics.SetPhase(metrics.PhaseRampDown)
	default:
		e.metrics.SetPhase(metrics.PhaseSteady)
	}
}

// GetProgress returns current progress (0.0 to 1.0).
func (e *RampingVUs) GetProgress() float64 {
	e.mu.RLock()
	start := e.startTime
	e.mu.RUnlock()

	if start.IsZero() {
		return 0.0
	}
	if !e.running.Load() {
		return 1.0
	}

	progress := float64(time.Since(start)) / float64(e.config.TotalDuration())
	if progress > 1.0 {
		progress = 1.0
	}
	return progress
}

// GetActiveVUs returns current active VU count.
func (e *RampingVUs) GetActiveVUs() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.scheduler == nil {
		return 0
	}
	return e.scheduler.GetActiveVUCount()
}

// GetStats returns executor statistics.
func (e *RampingVUs) GetStats() *Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := &Stats{
		StartTime:     e.startTime,
		CurrentTime:   time.Now(),
		TotalDuration: e.config.TotalDuration(),
		TargetVUs:     int(e.targetVUs.Load()),
		CurrentStage:  int(e.currentStage.Load()),
		TotalStages:   len(e.config.Stages),
	}
	if !e.startTime.IsZero() {
		stats.Elapsed = time.Since(e.startTime)
	}
	if stats.CurrentStage < len(e.config.Stages) {
		stats.CurrentStageName = e.config.Stages[stats.CurrentStage].Name
	}
	if e.scheduler != nil {
		stats.ActiveVUs = e.scheduler.GetActiveVUCount()
		stats.Iterations = e.scheduler.Iterations()
	}
	return stats
}

// Stop ends the schedule early.
func (e *RampingVUs) Stop(ctx context.Context) error {
	e.mu.RLock()
	cancel := e.cancelFunc
	e.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	return nil
}

var _ Executor = (*RampingVUs)(nil)
