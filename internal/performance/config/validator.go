package config

import (
	"fmt"
	"strings"

	"github.com/wesleyorama2/prload/internal/performance/executor"
	"github.com/wesleyorama2/prload/internal/scenario"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Validate checks the whole configuration and reports every problem at once.
//
// Returns nil if valid, or a *ValidationErrors.
func (c *RunConfig) Validate() error {
	errs := &ValidationErrors{}

	if strings.TrimSpace(c.Name) == "" {
		errs.Add("name", "name is required")
	}
	if _, err := scenario.ParseBaseURL(c.BaseURL); err != nil {
		errs.Add("baseUrl", err.Error())
	}

	switch executor.Type(c.Executor) {
	case executor.TypeRampingVUs:
		validateRampingVUs(c, errs)
	case executor.TypeConstantVUs:
		validateConstantVUs(c, errs)
	case "":
		errs.Add("executor", "executor type is required")
	default:
		errs.Add("executor", fmt.Sprintf("unknown executor type: %s (supported: %v)",
			c.Executor, executor.SupportedTypes()))
	}

	if c.Pause < 0 {
		errs.Add("pause", "cannot be negative")
	}
	if c.GracefulRampDown < 0 {
		errs.Add("gracefulRampDown", "cannot be negative")
	}
	if c.GracefulStop < 0 {
		errs.Add("gracefulStop", "cannot be negative")
	}

	validateHTTP(&c.HTTP, errs)
	validatePayload(&c.Payload, errs)

	if c.Metrics.BucketInterval <= 0 {
		errs.Add("metrics.bucketInterval", "must be positive")
	}

	if c.Thresholds != nil {
		validateThresholds(c.Thresholds, errs)
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateRampingVUs(c *RunConfig, errs *ValidationErrors) {
	if c.StartVUs < 0 {
		errs.Add("startVUs", "cannot be negative")
	}
	if len(c.Stages) == 0 {
		errs.Add("stages", "at least one stage is required for ramping-vus")
		return
	}

	var total Duration
	for i, stage := range c.Stages {
		prefix := fmt.Sprintf("stages[%d]", i)
		if stage.Duration < 0 {
			errs.Add(prefix+".duration", "cannot be negative")
		}
		if stage.Target < 0 {
			errs.Add(prefix+".target", "cannot be negative")
		}
		total += stage.Duration
	}
	if total <= 0 {
		errs.Add("stages", "total stage duration must be positive")
	}
}

func validateConstantVUs(c *RunConfig, errs *ValidationErrors) {
	if c.VUs <= 0 {
		errs.Add("vus", "must be positive for constant-vus")
	}
	if c.Duration <= 0 {
		errs.Add("duration", "must be positive for constant-vus")
	}
}

func validateHTTP(h *HTTPConfig, errs *ValidationErrors) {
	if h.Timeout <= 0 {
		errs.Add("http.timeout", "must be positive")
	}
	if h.MaxIdleConnsPerHost < 0 {
		errs.Add("http.maxIdleConnsPerHost", "cannot be negative")
	}
}

func validatePayload(p *PayloadConfig, errs *ValidationErrors) {
	if strings.TrimSpace(p.IDPrefix) == "" {
		errs.Add("payload.idPrefix", "cannot be empty")
	}
	if strings.TrimSpace(p.PullRequestName) == "" {
		errs.Add("payload.pullRequestName", "cannot be empty")
	}
	if strings.TrimSpace(p.AuthorID) == "" {
		errs.Add("payload.authorId", "cannot be empty")
	}
}

func validateThresholds(t *ThresholdsConfig, errs *ValidationErrors) {
	for _, entry := range t.Entries() {
		for i, expr := range entry.Expressions {
			if _, err := entry.Check(expr); err != nil {
				errs.Add(fmt.Sprintf("thresholds.%s[%d]", entry.Metric, i), err.Error())
			}
		}
	}
}
