// Package mocktarget is a stand-in for the reviewer service's pull request
// creation endpoint, for local runs and tests.
package mocktarget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wesleyorama2/prload/internal/scenario"
)

// Error codes of the reviewer service's error envelope.
const (
	ErrorCodePRExists = "PR_EXISTS"
	ErrorCodeNotFound = "NOT_FOUND"
)

// Config configures the mock.
type Config struct {
	// Status is returned for accepted requests (default 201).
	Status int

	// Latency is added before every create response.
	Latency time.Duration

	// Dedupe answers 409 PR_EXISTS for an id that was already created.
	Dedupe bool

	// KnownAuthors, when not empty, lists the author ids the service knows.
	// Any other author gets 404 NOT_FOUND.
	KnownAuthors []string
}

// Server is the mock reviewer service.
type Server struct {
	cfg    Config
	logger *slog.Logger

	authors map[string]struct{}

	mu   sync.Mutex
	seen map[string]struct{}

	received   atomic.Int64
	created    atomic.Int64
	duplicates atomic.Int64
	notFound   atomic.Int64
	rejected   atomic.Int64
}

// Stats are the request counters of a Server.
type Stats struct {
	Received   int64 `json:"received"`
	Created    int64 `json:"created"`
	Duplicates int64 `json:"duplicates"`
	NotFound   int64 `json:"not_found"`
	Rejected   int64 `json:"rejected"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error apiError `json:"error"`
}

type createPRRequest struct {
	PullRequestID   string `json:"pull_request_id"`
	PullRequestName string `json:"pull_request_name"`
	AuthorID        string `json:"author_id"`
}

type pullRequest struct {
	PullRequestID     string   `json:"pull_request_id"`
	PullRequestName   string   `json:"pull_request_name"`
	AuthorID          string   `json:"author_id"`
	Status            string   `json:"status"`
	AssignedReviewers []string `json:"assigned_reviewers"`
}

type prResponse struct {
	PR pullRequest `json:"pr"`
}

// New creates a mock server. A nil logger discards logs.
func New(cfg Config, logger *slog.Logger) *Server {
	if cfg.Status == 0 {
		cfg.Status = http.StatusCreated
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var authors map[string]struct{}
	if len(cfg.KnownAuthors) > 0 {
		authors = make(map[string]struct{}, len(cfg.KnownAuthors))
		for _, id := range cfg.KnownAuthors {
			authors[id] = struct{}{}
		}
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		authors: authors,
		seen:    make(map[string]struct{}),
	}
}

// Handler returns the HTTP routes of the mock.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.HealthCheck)
	r.Get("/stats", s.HandleStats)
	r.Post(scenario.CreatePath, s.HandlePullRequestCreate)

	return r
}

// ListenAndServe serves the mock on addr until ctx ends, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mock target listening", "addr", addr, "status", s.cfg.Status, "latency", s.cfg.Latency, "dedupe", s.cfg.Dedupe, "known_authors", len(s.authors))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("mock target: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("mock target shutdown: %w", err)
	}
	s.logger.Info("mock target stopped", "received", s.received.Load())
	return nil
}

// Stats returns a snapshot of the request counters.
func (s *Server) Stats() Stats {
	return Stats{
		Received:   s.received.Load(),
		Created:    s.created.Load(),
		Duplicates: s.duplicates.Load(),
		NotFound:   s.notFound.Load(),
		Rejected:   s.rejected.Load(),
	}
}

// IDs returns every pull request id accepted so far, only tracked with Dedupe.
func (s *Server) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.seen))
	for id := range s.seen {
		ids = append(ids, id)
	}
	return ids
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, errorResponse{Error: apiError{Code: code, Message: message}})
}

// HandlePullRequestCreate mimics POST /pullRequest/create.
func (s *Server) HandlePullRequestCreate(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	s.received.Add(1)

	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		select {
		case <-r.Context().Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	var req createPRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.rejected.Add(1)
		// The service reports malformed bodies under NOT_FOUND.
		s.writeError(w, http.StatusBadRequest, ErrorCodeNotFound, "invalid JSON body")
		return
	}
	if missing := missingFields(req); len(missing) > 0 {
		s.rejected.Add(1)
		s.writeError(w, http.StatusBadRequest, ErrorCodeNotFound, "missing fields: "+strings.Join(missing, ", "))
		return
	}

	if s.authors != nil {
		if _, ok := s.authors[req.AuthorID]; !ok {
			s.notFound.Add(1)
			s.logger.Debug("unknown author", "author_id", req.AuthorID)
			s.writeError(w, http.StatusNotFound, ErrorCodeNotFound, "resource not found")
			return
		}
	}

	if s.cfg.Dedupe {
		s.mu.Lock()
		_, dup := s.seen[req.PullRequestID]
		if !dup {
			s.seen[req.PullRequestID] = struct{}{}
		}
		s.mu.Unlock()

		if dup {
			s.duplicates.Add(1)
			s.logger.Debug("duplicate pull request", "pull_request_id", req.PullRequestID)
			s.writeError(w, http.StatusConflict, ErrorCodePRExists, "PR id already exists")
			return
		}
	}

	if s.cfg.Status != http.StatusCreated {
		s.writeJSON(w, s.cfg.Status, nil)
		return
	}

	s.created.Add(1)
	s.writeJSON(w, http.StatusCreated, prResponse{PR: pullRequest{
		PullRequestID:     req.PullRequestID,
		PullRequestName:   req.PullRequestName,
		AuthorID:          req.AuthorID,
		Status:            "OPEN",
		AssignedReviewers: []string{},
	}})
}

// HandleStats reports the request counters.
func (s *Server) HandleStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Stats())
}

// HealthCheck reports liveness.
func (s *Server) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func missingFields(req createPRRequest) []string {
	var missing []string
	if req.PullRequestID == "" {
		missing = append(missing, "pull_request_id")
	}
	if req.PullRequestName == "" {
		missing = append(missing, "pull_request_name")
	}
	if req.AuthorID == "" {
		missing = append(missing, "author_id")
	}
	return missing
}
