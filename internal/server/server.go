// Package server implements the HTTP API of notion-llm: filtered similarity
// queries, streamed answers over Server-Sent Events, collection management,
// health and readiness checks, and Prometheus metrics.
// The server is started by the `notion-llm serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/karthikgk97/notion-llm/internal/answer"
	"github.com/karthikgk97/notion-llm/internal/audit"
	"github.com/karthikgk97/notion-llm/internal/logging"
	"github.com/karthikgk97/notion-llm/internal/rag"
)

const (
	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 1 << 20

	// maxLimit caps the number of results one query may ask for.
	maxLimit = 100
)

// New constructs a Server from the retrieval components and config.
func New(deps Deps, cfg *Config) (*Server, error) {
	if deps.Retriever == nil {
		return nil, fmt.Errorf("server: retriever must not be nil")
	}
	if deps.Collections == nil {
		return nil, fmt.Errorf("server: collections must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// Must outlast AskTimeout for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 2 * time.Minute
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		deps:    deps,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: newServerMetrics(cfg.MetricsRegistry),
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.metrics.reject)
	s.stopRL = stop

	protect := func(h http.HandlerFunc) http.Handler {
		return authMiddleware(cfg.APIKey, s.metrics.reject, rl.middleware(h))
	}

	mux := http.NewServeMux()
	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, s.metrics.instrument(pattern, h))
	}
	route("GET /api/health", http.HandlerFunc(s.handleHealth))
	route("GET /api/ready", http.HandlerFunc(s.handleReady))
	route("POST /api/query", protect(s.handleQuery))
	if deps.Asker != nil {
		route("POST /api/ask", protect(s.handleAsk))
	}
	route("GET /api/collections", protect(s.handleListCollections))
	route("POST /api/collections/{name}", protect(s.handleCreateCollection))
	route("DELETE /api/collections/{name}", protect(s.handleDeleteCollection))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()

	if s.cfg.APIKey == "" {
		s.log.Warn("server: authentication disabled, set NOTION_LLM_API_KEY to require a Bearer token")
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening",
			slog.String("addr", "http://"+s.httpServer.Addr),
			slog.Bool("ask_enabled", s.deps.Asker != nil),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		s.log.Info("server stopped")
		return nil
	}
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleQuery handles POST /api/query.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	collection := s.collection(req.Collection)
	if msg := validateQuery(collection, req.Query, req.Mode, req.Limit); msg != "" {
		writeError(r.Context(), w, http.StatusBadRequest, msg)
		return
	}

	docs, err := s.deps.Retriever.Retrieve(r.Context(), rag.QueryRequest{
		Collection: collection,
		Text:       req.Query,
		Conditions: req.Filter,
		Mode:       rag.FilterMode(req.Mode),
		Limit:      req.Limit,
	})
	s.cfg.Audit.Record(r.Context(), audit.Event{
		Kind:       "endpoint",
		Name:       "query",
		Collection: collection,
		QueryLen:   len(req.Query),
		Duration:   time.Since(start),
		Err:        err,
	})
	if err != nil {
		status := statusFor(err)
		s.metrics.queryRequestsTotal.WithLabelValues(outcomeFor(status)).Inc()
		log.Error("query failed", slog.String("collection", collection), slog.Any("error", err))
		writeError(r.Context(), w, status, err.Error())
		return
	}
	s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK).Inc()

	resp := queryResponse{Results: make([]queryResult, 0, len(docs))}
	for _, d := range docs {
		resp.Results = append(resp.Results, queryResult{Text: d.Text, Score: d.Score, Title: d.Key})
	}
	log.Debug("query served",
		slog.String("collection", collection),
		slog.Int("results", len(resp.Results)),
	)
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// handleAsk handles POST /api/ask. The answer streams as SSE data frames,
// followed by a "sources" event listing the pages it was grounded in and a
// final "done" event. Failures after the stream has started are delivered
// in-band as an "error" event.
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	if s.deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "no chat model configured")
		return
	}

	var req askRequest
	if !decodeBody(w, r, &req) {
		return
	}
	collection := s.collection(req.Collection)
	if msg := validateQuery(collection, req.Question, req.Mode, 0); msg != "" {
		writeError(r.Context(), w, http.StatusBadRequest, strings.Replace(msg, "query", "question", 1))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(r.Context(), w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.metrics.askActiveStreams.Inc()
	defer s.metrics.askActiveStreams.Dec()

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.AskTimeout)
	defer cancel()

	sw := &sseWriter{w: w, flusher: flusher}
	docs, err := s.deps.Asker.Ask(ctx, answer.Request{
		Collection: collection,
		Question:   req.Question,
		Conditions: req.Filter,
		Mode:       rag.FilterMode(req.Mode),
	}, sw)

	outcome := outcomeOK
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		outcome = outcomeTimeout
	case err != nil:
		outcome = outcomeError
	}
	elapsed := time.Since(start)
	s.metrics.askRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.askDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
	s.cfg.Audit.Record(r.Context(), audit.Event{
		Kind:       "endpoint",
		Name:       "ask",
		Collection: collection,
		QueryLen:   len(req.Question),
		Outcome:    outcome,
		Duration:   elapsed,
		Err:        err,
	})

	if err != nil {
		log.Error("ask failed", slog.String("collection", collection), slog.String("outcome", outcome), slog.Any("error", err))
		writeEvent(w, "error", strings.ReplaceAll(err.Error(), "\n", " "))
		flusher.Flush()
		return
	}

	sources := make([]source, 0, len(docs))
	for _, d := range docs {
		sources = append(sources, source{Title: d.Key, Score: d.Score})
	}
	if data, err := json.Marshal(sources); err == nil {
		writeEvent(w, "sources", string(data))
	}
	writeEvent(w, "done", "[DONE]")
	flusher.Flush()
}

// handleListCollections handles GET /api/collections.
func (s *Server) handleListCollections(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Collections.List(r.Context())
	if err != nil {
		logging.FromContext(r.Context()).Error("list collections failed", slog.Any("error", err))
		writeError(r.Context(), w, statusFor(err), err.Error())
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(r.Context(), w, http.StatusOK, collectionsResponse{Collections: names})
}

// handleCreateCollection handles POST /api/collections/{name}. It answers
// 201 when the collection was created and 200 when it already existed.
func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	created, err := s.deps.Collections.Create(r.Context(), name)
	if err != nil {
		logging.FromContext(r.Context()).Error("create collection failed", slog.String("collection", name), slog.Any("error", err))
		writeError(r.Context(), w, statusFor(err), err.Error())
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(r.Context(), w, status, collectionResponse{Name: name, Created: &created})
}

// handleDeleteCollection handles DELETE /api/collections/{name}. Ledger
// entries for the collection are dropped so a later ingest re-embeds every
// page.
func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	name := r.PathValue("name")

	deleted, err := s.deps.Collections.Delete(r.Context(), name)
	if err != nil {
		log.Error("delete collection failed", slog.String("collection", name), slog.Any("error", err))
		writeError(r.Context(), w, statusFor(err), err.Error())
		return
	}

	resp := collectionResponse{Name: name, Deleted: &deleted}
	if s.deps.Ledger != nil {
		n, err := s.deps.Ledger.Forget(r.Context(), name)
		if err != nil {
			log.Error("ledger forget failed", slog.String("collection", name), slog.Any("error", err))
			writeError(r.Context(), w, http.StatusInternalServerError, err.Error())
			return
		}
		resp.Forgotten = n
	}
	writeJSON(r.Context(), w, http.StatusOK, resp)
}

// collection returns name, or the configured default when name is empty.
func (s *Server) collection(name string) string {
	if name != "" {
		return name
	}
	return s.cfg.DefaultCollection
}

// validateQuery returns a client-facing message describing the first problem
// with a query, or "" when it is acceptable.
func validateQuery(collection, text, mode string, limit int) string {
	switch {
	case collection == "":
		return "collection is required"
	case strings.TrimSpace(text) == "":
		return "query is required"
	case limit < 0 || limit > maxLimit:
		return fmt.Sprintf("limit must be between 0 and %d", maxLimit)
	}
	if _, ok := rag.ParseFilterMode(mode); !ok {
		return `mode must be "all" or "any"`
	}
	return ""
}

// decodeBody decodes a size-limited JSON body into v. On failure it writes a
// 400 and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// statusFor maps a retrieval error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, rag.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrConnection), errors.Is(err, rag.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// outcomeFor maps an error status to a metrics outcome label.
func outcomeFor(status int) string {
	switch status {
	case http.StatusNotFound:
		return outcomeNotFound
	case http.StatusGatewayTimeout:
		return outcomeTimeout
	default:
		return outcomeError
	}
}

// writeJSON encodes v with the given status.
func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(ctx).Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes {"error": msg} with the given status.
func writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	writeJSON(ctx, w, status, map[string]string{"error": msg})
}

// writeEvent writes one named SSE event.
func writeEvent(w http.ResponseWriter, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event data frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	chunk := strings.TrimRight(string(bytes.Clone(p)), "\n")
	lines := strings.Split(chunk, "\n")
	var buf strings.Builder
	for _, line := range lines {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	if _, err = fmt.Fprint(s.w, buf.String()); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}
