// Package config defines the run configuration of a load test and how it is
// loaded from a file, the environment and command-line overrides.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/prload/internal/performance"
	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/scenario"
)

// RunConfig is the complete configuration of one run.
//
// Example YAML:
//
//	name: create-pull-request
//	baseUrl: http://localhost:8080
//	executor: ramping-vus
//	stages:
//	  - duration: 10s
//	    target: 10
//	  - duration: 20s
//	    target: 50
//	pause: 100ms
//	thresholds:
//	  http_req_duration: ["p95 < 500ms"]
//	  checks: ["rate > 0.99"]
type RunConfig struct {
	Name    string `json:"name" yaml:"name" default:"create-pull-request"`
	BaseURL string `json:"baseUrl" yaml:"baseUrl" default:"http://localhost:8080"`

	// Executor is "ramping-vus" (uses Stages) or "constant-vus" (uses VUs and Duration).
	Executor string        `json:"executor" yaml:"executor" default:"ramping-vus"`
	StartVUs int           `json:"startVUs,omitempty" yaml:"startVUs,omitempty"`
	Stages   []StageConfig `json:"stages,omitempty" yaml:"stages,omitempty"`
	VUs      int           `json:"vus,omitempty" yaml:"vus,omitempty"`
	Duration Duration      `json:"duration,omitempty" yaml:"duration,omitempty"`

	// Pause is the sleep at the end of every iteration.
	Pause Duration `json:"pause" yaml:"pause" default:"100ms"`

	// Zero graceful periods fall back to the executor default of 30s.
	GracefulRampDown Duration `json:"gracefulRampDown" yaml:"gracefulRampDown" default:"30s"`
	GracefulStop     Duration `json:"gracefulStop" yaml:"gracefulStop" default:"30s"`

	HTTP       HTTPConfig        `json:"http" yaml:"http"`
	Payload    PayloadConfig     `json:"payload" yaml:"payload"`
	Metrics    MetricsConfig     `json:"metrics" yaml:"metrics"`
	Thresholds *ThresholdsConfig `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// StageConfig is one ramp stage.
type StageConfig struct {
	Duration Duration `json:"duration" yaml:"duration"`
	Target   int      `json:"target" yaml:"target"`
	Name     string   `json:"name,omitempty" yaml:"name,omitempty"`
}

// HTTPConfig configures the client shared by all VUs.
type HTTPConfig struct {
	Timeout             Duration `json:"timeout" yaml:"timeout" default:"30s"`
	MaxIdleConnsPerHost int      `json:"maxIdleConnsPerHost" yaml:"maxIdleConnsPerHost" default:"100"`
	DisableKeepAlives   bool     `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`
	InsecureSkipVerify  bool     `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
}

// PayloadConfig holds the constants of the request body.
type PayloadConfig struct {
	IDPrefix        string `json:"idPrefix" yaml:"idPrefix" default:"pr-load"`
	PullRequestName string `json:"pullRequestName" yaml:"pullRequestName" default:"Load test PR"`
	AuthorID        string `json:"authorId" yaml:"authorId" default:"u1"`
}

// MetricsConfig tunes the metrics engine.
type MetricsConfig struct {
	BucketInterval Duration `json:"bucketInterval" yaml:"bucketInterval" default:"1s"`
}

// ThresholdsConfig defines pass/fail criteria for the run.
type ThresholdsConfig struct {
	// e.g. ["p95 < 500ms", "avg < 200ms"]
	HTTPReqDuration []string `json:"http_req_duration,omitempty" yaml:"http_req_duration,omitempty"`

	// e.g. ["rate < 0.01"]
	HTTPReqFailed []string `json:"http_req_failed,omitempty" yaml:"http_req_failed,omitempty"`

	// e.g. ["count > 1000", "rate > 100"]
	HTTPReqs []string `json:"http_reqs,omitempty" yaml:"http_reqs,omitempty"`

	// e.g. ["rate > 0.99"]
	Checks []string `json:"checks,omitempty" yaml:"checks,omitempty"`
}

// IsEmpty reports whether no threshold is configured.
func (t *ThresholdsConfig) IsEmpty() bool {
	return t == nil || len(t.HTTPReqDuration)+len(t.HTTPReqFailed)+len(t.HTTPReqs)+len(t.Checks) == 0
}

// DefaultStages is the reference load profile.
func DefaultStages() []StageConfig {
	return []StageConfig{
		{Duration: Duration(10 * time.Second), Target: 10},
		{Duration: Duration(20 * time.Second), Target: 50},
		{Duration: Duration(20 * time.Second), Target: 100},
		{Duration: Duration(10 * time.Second), Target: 0},
	}
}

// fillStages uses the reference profile for a ramping-vus config without stages.
func (c *RunConfig) fillStages() {
	if c.Executor == string(executor.TypeRampingVUs) && len(c.Stages) == 0 {
		c.Stages = DefaultStages()
	}
}

// ExecutorConfig converts the run configuration to an executor configuration.
func (c *RunConfig) ExecutorConfig() *executor.Config {
	cfg := &executor.Config{
		Name:             c.Name,
		Type:             executor.Type(c.Executor),
		VUs:              c.VUs,
		Duration:         c.Duration.Std(),
		StartVUs:         c.StartVUs,
		GracefulRampDown: c.GracefulRampDown.Std(),
		GracefulStop:     c.GracefulStop.Std(),
	}
	if cfg.Type != executor.TypeRampingVUs {
		return cfg
	}
	for _, s := range c.Stages {
		cfg.Stages = append(cfg.Stages, executor.Stage{
			Duration: s.Duration.Std(),
			Target:   s.Target,
			Name:     s.Name,
		})
	}
	return cfg
}

// ScenarioConfig returns the scenario part of the configuration.
func (c *RunConfig) ScenarioConfig() scenario.Config {
	return scenario.Config{
		BaseURL:         c.BaseURL,
		Pause:           c.Pause.Std(),
		IDPrefix:        c.Payload.IDPrefix,
		PullRequestName: c.Payload.PullRequestName,
		AuthorID:        c.Payload.AuthorID,
	}
}

// HTTPClientConfig returns the HTTP client settings.
func (c *RunConfig) HTTPClientConfig() performance.HTTPClientConfig {
	cfg := performance.DefaultHTTPClientConfig()
	cfg.Timeout = c.HTTP.Timeout.Std()
	cfg.MaxIdleConnsPerHost = c.HTTP.MaxIdleConnsPerHost
	cfg.DisableKeepAlives = c.HTTP.DisableKeepAlives
	cfg.InsecureSkipVerify = c.HTTP.InsecureSkipVerify
	return cfg
}

// Duration is a time.Duration that can be unmarshaled from JSON/YAML strings.
type Duration time.Duration

// Std returns the duration as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Strings use Go duration syntax;
// bare numbers are seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case nil:
		*d = 0
	case float64:
		*d = Duration(value * float64(time.Second))
	case string:
		dur, err := ParseDurationString(value)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: duration must be a scalar", value.Line)
	}

	dur, err := ParseDurationString(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(dur)
	return nil
}
