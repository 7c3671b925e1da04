package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/karthikgk97/notion-llm/internal/logging"
)

// pingTimeout bounds each dependency check so /api/ready answers quickly
// when a dependency hangs.
const pingTimeout = 5 * time.Second

// Pinger reports whether one dependency (the vector store, an embedding
// server, a chat model server) is reachable. Implementations must be safe
// for concurrent use.
type Pinger interface {
	Ping(ctx context.Context) error
	// Name labels the dependency in readiness responses, e.g. "qdrant".
	Name() string
}

// MultiPinger runs several pingers in order and fails on the first error.
// The serve command uses it for the startup preflight.
type MultiPinger struct {
	pingers []Pinger
}

// NewMultiPinger constructs a MultiPinger.
func NewMultiPinger(pingers ...Pinger) *MultiPinger {
	return &MultiPinger{pingers: pingers}
}

// Ping returns the first failure, prefixed with the dependency name.
func (m *MultiPinger) Ping(ctx context.Context) error {
	for _, p := range m.pingers {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// Name implements [Pinger].
func (m *MultiPinger) Name() string { return "multi" }

// readyCheck is one dependency's check result.
type readyCheck struct {
	Name      string `json:"name"`
	OK        bool   `json:"ok"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// collectionStatus reports whether the default collection exists. It is
// informational: a missing collection does not make the server unready,
// since it is created by the first ingest.
type collectionStatus struct {
	Name   string `json:"name"`
	Exists bool   `json:"exists"`
}

// readyResponse is the body of GET /api/ready.
type readyResponse struct {
	Ready      bool              `json:"ready"`
	Checks     []readyCheck      `json:"checks"`
	Collection *collectionStatus `json:"collection,omitempty"`
}

// handleReady checks every dependency concurrently and answers 200 when all
// are reachable, 503 otherwise. Checks keep the order the pingers were
// registered in.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.FromContext(ctx)

	checks := make([]readyCheck, len(s.pingers))
	var wg sync.WaitGroup
	for i, p := range s.pingers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			checks[i] = checkDependency(ctx, p)
		}()
	}
	wg.Wait()

	resp := readyResponse{Ready: true, Checks: checks}
	for _, c := range checks {
		if !c.OK {
			resp.Ready = false
			log.Warn("readiness check failed",
				slog.String("dependency", c.Name),
				slog.String("error", c.Error),
			)
		}
	}

	if resp.Ready && s.deps.Collections != nil && s.cfg.DefaultCollection != "" {
		if names, err := s.deps.Collections.List(ctx); err == nil {
			resp.Collection = &collectionStatus{
				Name:   s.cfg.DefaultCollection,
				Exists: slices.Contains(names, s.cfg.DefaultCollection),
			}
		}
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(ctx, w, status, resp)
}

func checkDependency(ctx context.Context, p Pinger) readyCheck {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	err := p.Ping(pingCtx)
	c := readyCheck{Name: p.Name(), OK: err == nil, LatencyMS: time.Since(start).Milliseconds()}
	if err != nil {
		c.Error = err.Error()
	}
	return c
}
