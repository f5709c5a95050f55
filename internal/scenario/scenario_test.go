package scenario_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/prload/internal/scenario"
)

// fakeRecorder keeps everything the scenario reports.
type fakeRecorder struct {
	mu          sync.Mutex
	requests    int
	successes   int
	bytes       int64
	checks      map[string][2]int // [passes, fails]
	failures    map[string]int
	iterations  int
	interrupted int
	durations   []time.Duration
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		checks:   make(map[string][2]int),
		failures: make(map[string]int),
	}
}

func (r *fakeRecorder) RecordLatency(_ time.Duration, _ string, success bool, n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests++
	r.bytes += n
	if success {
		r.successes++
	}
}

func (r *fakeRecorder) RecordCheck(name string, passed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.checks[name]
	if passed {
		c[0]++
	} else {
		c[1]++
	}
	r.checks[name] = c
}

func (r *fakeRecorder) RecordFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[reason]++
}

func (r *fakeRecorder) RecordIteration(d time.Duration, interrupted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if interrupted {
		r.interrupted++
		return
	}
	r.iterations++
	r.durations = append(r.durations, d)
}

// capturedRequest is what the test server saw.
type capturedRequest struct {
	method      string
	path        string
	contentType string
	body        []byte
}

func newCaptureServer(t *testing.T, status int, respBody string) (*httptest.Server, func() []capturedRequest) {
	t.Helper()

	var mu sync.Mutex
	var seen []capturedRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, capturedRequest{
			method:      r.Method,
			path:        r.URL.Path,
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(server.Close)

	return server, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		out := make([]capturedRequest, len(seen))
		copy(out, seen)
		return out
	}
}

func newScenario(t *testing.T, baseURL string, pause time.Duration, rec scenario.Recorder) *scenario.CreatePullRequest {
	t.Helper()
	s, err := scenario.New(scenario.Config{BaseURL: baseURL, Pause: pause}, &http.Client{Timeout: 5 * time.Second}, rec)
	require.NoError(t, err)
	return s
}

func TestNew_Defaults(t *testing.T) {
	s := newScenario(t, "", 0, newFakeRecorder())

	cfg := s.Config()
	assert.Equal(t, scenario.DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, scenario.DefaultIDPrefix, cfg.IDPrefix)
	assert.Equal(t, scenario.DefaultPullRequestName, cfg.PullRequestName)
	assert.Equal(t, scenario.DefaultAuthorID, cfg.AuthorID)
	assert.Equal(t, "http://localhost:8080/pullRequest/create", s.Endpoint())
}

func TestNew_RejectsBadConfig(t *testing.T) {
	client := &http.Client{}
	rec := newFakeRecorder()

	tests := []struct {
		name string
		cfg  scenario.Config
	}{
		{"malformed url", scenario.Config{BaseURL: "://nope"}},
		{"missing scheme", scenario.Config{BaseURL: "localhost:8080"}},
		{"unsupported scheme", scenario.Config{BaseURL: "ftp://localhost"}},
		{"negative pause", scenario.Config{Pause: -time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := scenario.New(tt.cfg, client, rec)
			assert.Error(t, err)
		})
	}

	_, err := scenario.New(scenario.Config{}, nil, rec)
	assert.Error(t, err, "nil client must be rejected")

	_, err = scenario.New(scenario.Config{}, client, nil)
	assert.Error(t, err, "nil recorder must be rejected")
}

func TestRunIteration_Created(t *testing.T) {
	server, seen := newCaptureServer(t, http.StatusCreated, `{"pr":{"status":"OPEN"}}`)
	rec := newFakeRecorder()
	s := newScenario(t, server.URL, 0, rec)

	vu := scenario.NewVU(7)
	require.NoError(t, s.RunIteration(context.Background(), vu))

	reqs := seen()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, scenario.CreatePath, reqs[0].path)
	assert.Equal(t, "application/json", reqs[0].contentType)

	var body map[string]string
	require.NoError(t, json.Unmarshal(reqs[0].body, &body))
	assert.Equal(t, map[string]string{
		"pull_request_id":   "pr-load-7-0",
		"pull_request_name": "Load test PR",
		"author_id":         "u1",
	}, body)
	assert.NoError(t, s.Validator().Validate(reqs[0].body))

	assert.Equal(t, [2]int{1, 0}, rec.checks[scenario.CheckName])
	assert.Equal(t, 1, rec.successes)
	assert.Empty(t, rec.failures)
	assert.Equal(t, 1, rec.iterations)
}

func TestRunIteration_ServerErrorFailsCheckOnly(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusInternalServerError, "boom")
	rec := newFakeRecorder()
	s := newScenario(t, server.URL, 0, rec)

	vu := scenario.NewVU(1)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.RunIteration(context.Background(), vu))
	}

	assert.Equal(t, [2]int{0, 5}, rec.checks[scenario.CheckName])
	assert.Equal(t, 5, rec.requests)
	assert.Equal(t, 0, rec.successes)
	assert.Equal(t, 5, rec.failures["http_500"])
	assert.Equal(t, 5, rec.iterations)
}

func TestRunIteration_ClassifiesServiceErrorCode(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusConflict, `{"error":{"code":"PR_EXISTS","message":"PR id already exists"}}`)
	rec := newFakeRecorder()
	s := newScenario(t, server.URL, 0, rec)

	require.NoError(t, s.RunIteration(context.Background(), scenario.NewVU(1)))

	assert.Equal(t, 1, rec.failures["PR_EXISTS"])
	assert.Equal(t, [2]int{0, 1}, rec.checks[scenario.CheckName])
}

func TestRunIteration_LargeErrorBodyCountsEveryByte(t *testing.T) {
	large := strings.Repeat("x", 1<<20)
	server, _ := newCaptureServer(t, http.StatusBadGateway, large)
	rec := newFakeRecorder()
	s := newScenario(t, server.URL, 0, rec)

	for i := 0; i < 2; i++ {
		require.NoError(t, s.RunIteration(context.Background(), scenario.NewVU(1)))
	}

	assert.Equal(t, 2, rec.failures["http_502"])
	assert.Equal(t, int64(2*len(large)), rec.bytes)
	assert.Equal(t, 2, rec.iterations)
}

func TestRunIteration_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	rec := newFakeRecorder()
	s := newScenario(t, url, 0, rec)

	err := s.RunIteration(context.Background(), scenario.NewVU(1))
	require.NoError(t, err, "transport failures are measured, not returned")

	assert.Equal(t, 1, rec.failures[scenario.FailureTransport])
	assert.Equal(t, [2]int{0, 1}, rec.checks[scenario.CheckName])
	assert.Equal(t, 1, rec.iterations)
}

func TestRunIteration_PauseIsAtLeastConfigured(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusCreated, "{}")
	rec := newFakeRecorder()
	pause := 100 * time.Millisecond
	s := newScenario(t, server.URL, pause, rec)

	vu := scenario.NewVU(1)
	for i := 0; i < 3; i++ {
		start := time.Now()
		require.NoError(t, s.RunIteration(context.Background(), vu))
		assert.GreaterOrEqual(t, time.Since(start), pause)
	}

	for _, d := range rec.durations {
		assert.GreaterOrEqual(t, d, pause)
	}
}

func TestRunIteration_CancelledDuringPause(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusCreated, "{}")
	rec := newFakeRecorder()
	s := newScenario(t, server.URL, time.Minute, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.RunIteration(ctx, scenario.NewVU(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, rec.interrupted)
	assert.Equal(t, [2]int{1, 0}, rec.checks[scenario.CheckName], "the check ran before the pause")
}

func TestRunIteration_CancelledDuringRequest(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()
	defer close(release)

	rec := newFakeRecorder()
	s := newScenario(t, server.URL, 0, rec)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := s.RunIteration(ctx, scenario.NewVU(1))
	assert.Error(t, err)
	assert.Equal(t, 1, rec.interrupted)
	assert.Empty(t, rec.checks, "interrupted requests record no check")
}

// loopDriver runs a fixed number of iterations on a fixed number of VUs.
type loopDriver struct {
	vus        int
	iterations int
}

func (d loopDriver) Drive(ctx context.Context, spawn func(int) func(context.Context) error) error {
	var wg sync.WaitGroup
	for id := 1; id <= d.vus; id++ {
		iterate := spawn(id)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < d.iterations; i++ {
				if err := iterate(ctx); err != nil {
					return
				}
			}
		}()
	}
	wg.Wait()
	return nil
}

func TestRun_IdentifiersUniqueAcrossVUs(t *testing.T) {
	server, seen := newCaptureServer(t, http.StatusCreated, "{}")
	rec := newFakeRecorder()
	s := newScenario(t, server.URL, 0, rec)

	require.NoError(t, s.Run(context.Background(), loopDriver{vus: 4, iterations: 10}))

	reqs := seen()
	require.Len(t, reqs, 40)

	ids := make(map[string]bool)
	names := make(map[string]bool)
	authors := make(map[string]bool)
	for _, r := range reqs {
		var p scenario.Payload
		require.NoError(t, json.Unmarshal(r.body, &p))
		assert.False(t, ids[p.PullRequestID], "duplicate id %s", p.PullRequestID)
		ids[p.PullRequestID] = true
		names[p.PullRequestName] = true
		authors[p.AuthorID] = true
	}
	assert.Len(t, names, 1)
	assert.Len(t, authors, 1)

	for vu := 1; vu <= 4; vu++ {
		for i := 0; i < 10; i++ {
			assert.True(t, ids[fmt.Sprintf("pr-load-%d-%d", vu, i)])
		}
	}
	assert.Equal(t, [2]int{40, 0}, rec.checks[scenario.CheckName])
}

func TestNewPayload_CustomConstants(t *testing.T) {
	s, err := scenario.New(scenario.Config{
		IDPrefix:        "soak",
		PullRequestName: "Soak PR",
		AuthorID:        "u42",
	}, &http.Client{}, newFakeRecorder())
	require.NoError(t, err)

	vu := scenario.NewVU(3)
	first := s.NewPayload(vu)
	second := s.NewPayload(vu)

	assert.Equal(t, "soak-3-0", first.PullRequestID)
	assert.Equal(t, "soak-3-1", second.PullRequestID)
	assert.Equal(t, "Soak PR", second.PullRequestName)
	assert.Equal(t, "u42", second.AuthorID)
	assert.True(t, strings.HasPrefix(first.PullRequestID, "soak-"))
}
