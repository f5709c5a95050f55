// Package executor provides the VU scheduling strategies of a load run.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/metrics"
)

// Type identifies the type of executor.
type Type string

const (
	// TypeConstantVUs runs a fixed number of VUs for a duration.
	TypeConstantVUs Type = "constant-vus"

	// TypeRampingVUs ramps VU count up and down according to stages.
	TypeRampingVUs Type = "ramping-vus"
)

const (
	// DefaultGracefulStop bounds how long in-flight iterations may run after
	// the schedule ends.
	DefaultGracefulStop = 30 * time.Second

	// DefaultGracefulRampDown bounds how long a VU removed during ramp-down
	// may take to finish its current iteration.
	DefaultGracefulRampDown = 30 * time.Second
)

// Executor defines the interface for load generation strategies.
//
// Executors control how many VUs run over time. What a VU does in one
// iteration is decided by the scheduler's iteration functions.
type Executor interface {
	// Type returns the executor type.
	Type() Type

	// Init initializes the executor with configuration.
	// Called once before Run().
	Init(ctx context.Context, config *Config) error

	// Run starts the executor and blocks until the schedule and the graceful
	// stop are over. Cancelling ctx interrupts in-flight iterations.
	Run(ctx context.Context, scheduler *performance.VUScheduler, metrics *metrics.Engine) error

	// GetProgress returns current progress (0.0 to 1.0).
	GetProgress() float64

	// GetActiveVUs returns current active VU count.
	GetActiveVUs() int

	// GetStats returns executor-specific statistics.
	GetStats() *Stats

	// Stop ends the schedule early. In-flight iterations still get the
	// graceful stop period.
	Stop(ctx context.Context) error
}

// Config contains configuration for an executor.
type Config struct {
	Name string `json:"name" yaml:"name"`
	Type Type   `json:"type" yaml:"type"`

	// constant-vus
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration time.Duration `json:"duration,omitempty" yaml:"duration,omitempty"`

	// ramping-vus
	StartVUs int     `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []Stage `json:"stages,omitempty" yaml:"stages,omitempty"`

	GracefulRampDown time.Duration `json:"gracefulRampDown,omitempty" yaml:"gracefulRampDown,omitempty"`
	GracefulStop     time.Duration `json:"gracefulStop,omitempty" yaml:"gracefulStop,omitempty"`
}

// Stage defines a stage in ramping executors.
type Stage struct {
	// Duration of this stage
	Duration time.Duration `json:"duration" yaml:"duration"`

	// Target VU count reached at the end of the stage
	Target int `json:"target" yaml:"target"`

	// Optional name for this stage (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// String renders the stage the way the --stages flag accepts it.
func (s Stage) String() string {
	return fmt.Sprintf("%s:%d", s.Duration, s.Target)
}

// Stats contains real-time executor statistics.
type Stats struct {
	StartTime     time.Time     `json:"startTime"`
	CurrentTime   time.Time     `json:"currentTime"`
	Elapsed       time.Duration `json:"elapsed"`
	TotalDuration time.Duration `json:"totalDuration"`

	ActiveVUs int `json:"activeVUs"`
	TargetVUs int `json:"targetVUs"`

	Iterations int64 `json:"iterations"`

	// Stage info (for ramping executors)
	CurrentStage     int    `json:"currentStage"`
	CurrentStageName string `json:"currentStageName"`
	TotalStages      int    `json:"totalStages"`
}

// Validate validates the executor configuration.
func (c *Config) Validate() error {
	if c.Type == "" {
		return &ValidationError{Field: "type", Message: "executor type is required"}
	}
	if c.GracefulStop < 0 {
		return &ValidationError{Field: "gracefulStop", Message: "gracefulStop must be >= 0"}
	}
	if c.GracefulRampDown < 0 {
		return &ValidationError{Field: "gracefulRampDown", Message: "gracefulRampDown must be >= 0"}
	}

	switch c.Type {
	case TypeConstantVUs:
		if c.VUs <= 0 {
			return &ValidationError{Field: "vus", Message: "vus must be > 0"}
		}
		if c.Duration <= 0 {
			return &ValidationError{Field: "duration", Message: "duration must be > 0"}
		}

	case TypeRampingVUs:
		if len(c.Stages) == 0 {
			return &ValidationError{Field: "stages", Message: "at least one stage is required"}
		}
		if c.StartVUs < 0 {
			return &ValidationError{Field: "startVUs", Message: "startVUs must be >= 0"}
		}
		for i, stage := range c.Stages {
			if stage.Duration < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].duration", i), Message: "duration must be >= 0"}
			}
			if stage.Target < 0 {
				return &ValidationError{Field: fmt.Sprintf("stages[%d].target", i), Message: "target must be >= 0"}
			}
		}
		if c.TotalDuration() <= 0 {
			return &ValidationError{Field: "stages", Message: "total stage duration must be > 0"}
		}

	default:
		return &ValidationError{Field: "type", Message: "unknown executor type: " + string(c.Type)}
	}

	return nil
}

// TotalDuration calculates the scheduled duration, excluding graceful stop.
func (c *Config) TotalDuration() time.Duration {
	switch c.Type {
	case TypeConstantVUs:
		return c.Duration

	case TypeRampingVUs:
		var total time.Duration
		for _, stage := range c.Stages {
			total += stage.Duration
		}
		return total

	default:
		return 0
	}
}

// MaxVUs returns the largest VU count the schedule asks for.
func (c *Config) MaxVUs() int {
	switch c.Type {
	case TypeConstantVUs:
		return c.VUs
	case TypeRampingVUs:
		maxVUs := c.StartVUs
		for _, stage := range c.Stages {
			if stage.Target > maxVUs {
				maxVUs = stage.Target
			}
		}
		return maxVUs
	default:
		return 0
	}
}

func (c *Config) gracefulStop() time.Duration {
	if c.GracefulStop == 0 {
		return DefaultGracefulStop
	}
	return c.GracefulStop
}

func (c *Config) gracefulRampDown() time.Duration {
	if c.GracefulRampDown == 0 {
		return DefaultGracefulRampDown
	}
	return c.GracefulRampDown
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "validation error on field '" + e.Field + "': " + e.Message
}
