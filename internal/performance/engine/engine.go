// Package engine runs the pull request scenario under the configured load
// profile and produces the test result.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/config"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
	"github.com/wesleyorama2/prload/internal/scenario"
)

// Engine is the orchestrator of a run.
//
// It coordinates:
//   - the executor that decides how many VUs run
//   - the scheduler that owns the VUs
//   - the metrics engine every iteration records into
//   - threshold evaluation at the end
//
// Engine implements scenario.Driver, so any scenario can be driven by it.
// Example usage:
//
//	cfg, _ := config.Resolve("run.yaml", os.LookupEnv, config.Overrides{})
//	eng, _ := engine.New(cfg)
//	result, _ := eng.Run(ctx)
//	fmt.Printf("passed: %v\n", result.Passed)
type Engine struct {
	config        *config.RunConfig
	client        *http.Client
	metricsEngine *metrics.Engine
	executor      executor.Executor
	logger        *slog.Logger

	mu        sync.RWMutex
	scheduler *performance.VUScheduler
	runID     string
	startTime time.Time
	running   bool
	done      bool
	result    *TestResult
}

// TestResult contains the complete results of a run.
type TestResult struct {
	RunID     string        `json:"runId"`
	Name      string        `json:"name"`
	Executor  string        `json:"executor"`
	Endpoint  string        `json:"endpoint,omitempty"`
	StartTime time.Time     `json:"startTime"`
	EndTime   time.Time     `json:"endTime"`
	Duration  time.Duration `json:"duration"`

	Metrics      *metrics.Snapshot               `json:"metrics"`
	RequestStats map[string]metrics.LatencyStats `json:"requestStats,omitempty"`
	TimeSeries   []*metrics.TimeBucket           `json:"timeSeries,omitempty"`
	Phases       []metrics.PhaseChange           `json:"phases,omitempty"`

	Passed     bool              `json:"passed"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`

	// Error is set when the run itself failed, not when checks failed.
	Error string `json:"error,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for run lifecycle events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithHTTPClient replaces the client built from the configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Engine) {
		if client != nil {
			e.client = client
		}
	}
}

// New creates an engine for cfg.
//
// Returns an error if the configuration is invalid.
func New(cfg *config.RunConfig, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	execCfg := cfg.ExecutorConfig()
	exec, err := executor.CreateAndInitExecutor(context.Background(), execCfg)
	if err != nil {
		return nil, err
	}

	metricsConfig := metrics.DefaultEngineConfig()
	metricsConfig.BucketInterval = cfg.Metrics.BucketInterval.Std()

	e := &Engine{
		config:        cfg,
		client:        performance.NewHTTPClient(cfg.HTTPClientConfig().SizedFor(execCfg.MaxVUs())),
		metricsEngine: metrics.NewEngineWithConfig(metricsConfig),
		executor:      exec,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run drives the pull request creation scenario and returns the result.
//
// A configuration problem in the scenario fails before any request is sent.
// Cancelling ctx ends the schedule early; in-flight iterations are cut off
// and counted as interrupted.
func (e *Engine) Run(ctx context.Context) (*TestResult, error) {
	sc, err := scenario.New(e.config.ScenarioConfig(), e.client, e.metricsEngine)
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario: %w", err)
	}

	e.logger.Debug("scenario ready", "endpoint", sc.Endpoint(), "pause", e.config.Pause.Std())

	runErr := sc.Run(ctx, e)

	result := e.Result()
	if result == nil {
		return nil, runErr
	}
	result.Endpoint = sc.Endpoint()
	return result, runErr
}

// Drive implements scenario.Driver. Every VU the executor brings up calls
// spawn once with its ID; the returned function is the VU's iteration.
func (e *Engine) Drive(ctx context.Context, spawn func(vuID int) func(context.Context) error) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine is already running")
	}
	if e.done {
		e.mu.Unlock()
		return fmt.Errorf("engine has already run; create a new one")
	}
	scheduler := performance.NewVUScheduler(func(id int) performance.IterationFunc {
		return spawn(id)
	}, e.metricsEngine)
	e.scheduler = scheduler
	e.running = true
	e.runID = uuid.NewString()
	e.startTime = time.Now()
	runID := e.runID
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.done = true
		e.mu.Unlock()
	}()

	execCfg := e.config.ExecutorConfig()
	e.logger.Info("run started",
		"run_id", runID,
		"executor", execCfg.Type,
		"duration", execCfg.TotalDuration(),
		"max_vus", execCfg.MaxVUs(),
	)

	e.metricsEngine.SetPhase(metrics.PhaseInit)
	e.metricsEngine.Start()

	runErr := e.executor.Run(ctx, scheduler, e.metricsEngine)

	e.metricsEngine.Stop()
	scheduler.UpdateMetrics()

	result := e.buildResult(runErr)

	e.mu.Lock()
	e.result = result
	e.mu.Unlock()

	e.logger.Info("run finished",
		"run_id", runID,
		"duration", result.Duration.Round(time.Millisecond),
		"requests", result.Metrics.TotalRequests,
		"iterations", result.Metrics.Iterations,
		"interrupted", result.Metrics.InterruptedIterations,
		"vus_created", scheduler.TotalVUs(),
		"passed", result.Passed,
	)

	if runErr != nil {
		return fmt.Errorf("executor failed: %w", runErr)
	}
	return nil
}

func (e *Engine) buildResult(runErr error) *TestResult {
	snapshot := e.metricsEngine.GetSnapshot()
	thresholds := EvaluateThresholds(e.config.Thresholds, snapshot)

	passed := runErr == nil
	for _, tr := range thresholds {
		if !tr.Passed {
			passed = false
			break
		}
	}

	e.mu.RLock()
	runID, start := e.runID, e.startTime
	e.mu.RUnlock()
	end := time.Now()

	result := &TestResult{
		RunID:        runID,
		Name:         e.config.Name,
		Executor:     e.config.Executor,
		StartTime:    start,
		EndTime:      end,
		Duration:     end.Sub(start),
		Metrics:      snapshot,
		RequestStats: e.metricsEngine.GetRequestStats(),
		TimeSeries:   e.metricsEngine.GetTimeSeries(),
		Phases:       e.metricsEngine.GetPhaseHistory(),
		Passed:       passed,
		Thresholds:   thresholds,
	}
	if runErr != nil {
		result.Error = runErr.Error()
	}
	return result
}

// Result returns the result of the finished run, or nil before it ends.
func (e *Engine) Result() *TestResult {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result
}

// IsRunning returns true if the engine is currently running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// GetProgress returns the schedule progress (0.0 to 1.0).
func (e *Engine) GetProgress() float64 {
	return e.executor.GetProgress()
}

// GetStats returns the executor statistics.
func (e *Engine) GetStats() *executor.Stats {
	return e.executor.GetStats()
}

// GetMetrics returns the current metrics snapshot.
func (e *Engine) GetMetrics() *metrics.Snapshot {
	return e.metricsEngine.GetSnapshot()
}

// Stop ends the schedule early. VUs get the graceful stop period to finish.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.IsRunning() {
		return nil
	}
	return e.executor.Stop(ctx)
}

var _ scenario.Driver = (*Engine)(nil)
