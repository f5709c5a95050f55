// Package scenario implements the pull request creation workload.
//
// One iteration builds a unique payload, POSTs it to the create endpoint,
// evaluates the "status is 201" check and pauses. Scheduling is not done here:
// a Driver decides how many virtual users run and calls each user's iteration
// function. Failures are measured outcomes, never errors: the scenario does not
// retry, back off or abort.
package scenario

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// CheckName is the single check evaluated per iteration.
	CheckName = "status is 201"

	// RequestName tags the create request in per-request metrics.
	RequestName = "create_pull_request"

	DefaultIDPrefix        = "pr-load"
	DefaultPullRequestName = "Load test PR"
	DefaultAuthorID        = "u1"
	DefaultPause           = 100 * time.Millisecond
)

// maxResponseBody caps how much of a response is kept for failure
// classification. The rest is drained so the connection can be reused.
const maxResponseBody = 64 << 10

// Config configures the scenario. Empty strings take the defaults above; a
// zero Pause means no pause, so callers wanting the reference pacing pass
// DefaultPause.
type Config struct {
	BaseURL         string
	Pause           time.Duration
	IDPrefix        string
	PullRequestName string
	AuthorID        string
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.IDPrefix == "" {
		c.IDPrefix = DefaultIDPrefix
	}
	if c.PullRequestName == "" {
		c.PullRequestName = DefaultPullRequestName
	}
	if c.AuthorID == "" {
		c.AuthorID = DefaultAuthorID
	}
}

// Recorder receives the outcome of every iteration.
type Recorder interface {
	RecordLatency(duration time.Duration, requestName string, success bool, bytes int64)
	RecordCheck(name string, passed bool)
	RecordFailure(reason string)
	RecordIteration(duration time.Duration, interrupted bool)
}

// Driver schedules iterations. For every virtual user it brings up, it calls
// spawn once with the user's index and then invokes the returned function once
// per iteration, never concurrently for the same user. Drive returns when the
// schedule is over.
type Driver interface {
	Drive(ctx context.Context, spawn func(vuID int) func(context.Context) error) error
}

// HTTPDoer is the subset of *http.Client the scenario needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CreatePullRequest is the pull request creation scenario.
type CreatePullRequest struct {
	cfg       Config
	endpoint  string
	client    HTTPDoer
	recorder  Recorder
	validator *PayloadValidator
}

// New resolves the endpoint and validates the payload configuration. A
// malformed base URL or payload constant fails here, before any request.
func New(cfg Config, client HTTPDoer, recorder Recorder) (*CreatePullRequest, error) {
	cfg.applyDefaults()
	if cfg.Pause < 0 {
		return nil, fmt.Errorf("pause must not be negative, got %s", cfg.Pause)
	}
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}

	base, err := ParseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	validator, err := NewPayloadValidator()
	if err != nil {
		return nil, err
	}

	s := &CreatePullRequest{
		cfg:       cfg,
		endpoint:  EndpointURL(base, CreatePath),
		client:    client,
		recorder:  recorder,
		validator: validator,
	}

	sample, err := json.Marshal(s.payloadFor(cfg.IDPrefix + "-0-0"))
	if err != nil {
		return nil, fmt.Errorf("encode sample payload: %w", err)
	}
	if err := validator.Validate(sample); err != nil {
		return nil, fmt.Errorf("invalid payload configuration: %w", err)
	}

	return s, nil
}

// Endpoint returns the resolved create URL.
func (s *CreatePullRequest) Endpoint() string {
	return s.endpoint
}

// Config returns the effective configuration.
func (s *CreatePullRequest) Config() Config {
	return s.cfg
}

// Validator returns the payload schema validator.
func (s *CreatePullRequest) Validator() *PayloadValidator {
	return s.validator
}

// NewPayload builds the payload for the next iteration of vu.
func (s *CreatePullRequest) NewPayload(vu *VU) Payload {
	return s.payloadFor(vu.NextID(s.cfg.IDPrefix))
}

func (s *CreatePullRequest) payloadFor(id string) Payload {
	return Payload{
		PullRequestID:   id,
		PullRequestName: s.cfg.PullRequestName,
		AuthorID:        s.cfg.AuthorID,
	}
}

// Run hands the scenario to a driver. Each virtual user gets its own VU
// context, created when the driver spawns it.
func (s *CreatePullRequest) Run(ctx context.Context, d Driver) error {
	return d.Drive(ctx, func(vuID int) func(context.Context) error {
		vu := NewVU(vuID)
		return func(ctx context.Context) error {
			return s.RunIteration(ctx, vu)
		}
	})
}

// RunIteration executes one build-send-check-pause pass for vu.
//
// The returned error is non-nil only when ctx ended during the iteration; such
// an iteration is recorded as interrupted. Transport failures and unexpected
// status codes are recorded as a failed check and return nil.
func (s *CreatePullRequest) RunIteration(ctx context.Context, vu *VU) error {
	start := time.Now()

	body, err := json.Marshal(s.NewPayload(vu))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	reqStart := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			s.recorder.RecordIteration(time.Since(start), true)
			return ctx.Err()
		}
		s.recorder.RecordLatency(time.Since(reqStart), RequestName, false, 0)
		s.recorder.RecordFailure(FailureTransport)
		s.recorder.RecordCheck(CheckName, false)
	} else {
		respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		size := int64(len(respBody))
		if readErr == nil {
			var n int64
			n, readErr = io.Copy(io.Discard, resp.Body)
			size += n
		}
		resp.Body.Close()
		latency := time.Since(reqStart)

		if readErr != nil && ctx.Err() != nil {
			s.recorder.RecordIteration(time.Since(start), true)
			return ctx.Err()
		}

		passed := resp.StatusCode == http.StatusCreated
		s.recorder.RecordLatency(latency, RequestName, passed, size)
		if !passed {
			s.recorder.RecordFailure(classifyFailure(resp.StatusCode, respBody))
		}
		s.recorder.RecordCheck(CheckName, passed)
	}

	if err := s.pause(ctx); err != nil {
		s.recorder.RecordIteration(time.Since(start), true)
		return err
	}

	s.recorder.RecordIteration(time.Since(start), false)
	return nil
}

// pause sleeps for the configured pause or until ctx ends.
func (s *CreatePullRequest) pause(ctx context.Context) error {
	if s.cfg.Pause <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.cfg.Pause)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
