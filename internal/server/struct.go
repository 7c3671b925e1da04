package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/karthikgk97/notion-llm/internal/answer"
	"github.com/karthikgk97/notion-llm/internal/audit"
	"github.com/karthikgk97/notion-llm/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// AskTimeout bounds one /api/ask stream (default: 2 minutes).
	AskTimeout time.Duration
	// DefaultCollection is used when a request names no collection.
	DefaultCollection string
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency checks run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on the /api/*
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// Audit receives one event per query and ask request. May be nil.
	Audit *audit.Logger
}

// Retriever runs similarity queries. *rag.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, req rag.QueryRequest) ([]rag.Document, error)
}

// Collections manages collection lifecycle. *rag.CollectionManager satisfies it.
type Collections interface {
	Create(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Asker streams a grounded answer. *answer.Answerer satisfies it.
type Asker interface {
	Ask(ctx context.Context, req answer.Request, w io.Writer) ([]rag.Document, error)
}

// Forgetter drops ledger entries for a deleted collection. store.Ledger
// satisfies it.
type Forgetter interface {
	Forget(ctx context.Context, collection string) (int64, error)
}

// Deps are the components the handlers call. Retriever and Collections are
// required; Asker and Ledger are optional.
type Deps struct {
	Retriever   Retriever
	Collections Collections
	// Asker enables POST /api/ask when set.
	Asker Asker
	// Ledger is told about collection deletes when set.
	Ledger Forgetter
}

// Server is the HTTP server that exposes retrieval and question answering
// over a set of ingested Notion pages.
type Server struct {
	// deps are the retrieval components behind the handlers.
	deps Deps
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency checks for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// queryRequest is the JSON body for POST /api/query.
type queryRequest struct {
	// Collection is the collection to search; empty selects the default.
	Collection string `json:"collection"`
	// Query is the text to embed and search for.
	Query string `json:"query"`
	// Filter holds payload equality conditions.
	Filter map[string]string `json:"filter,omitempty"`
	// Mode combines Filter conditions: "all" (default) or "any".
	Mode string `json:"mode,omitempty"`
	// Limit caps the number of results; 0 selects the default.
	Limit int `json:"limit,omitempty"`
}

// queryResult is one ranked hit in a query response.
type queryResult struct {
	// Text is the stored document text.
	Text string `json:"text"`
	// Score is the cosine similarity, higher is closer.
	Score float32 `json:"score"`
	// Title is the document title when the payload carries one.
	Title string `json:"title,omitempty"`
}

// queryResponse is the JSON response for POST /api/query.
type queryResponse struct {
	// Results are ordered best first.
	Results []queryResult `json:"results"`
}

// askRequest is the JSON body for POST /api/ask.
type askRequest struct {
	// Collection is the collection to ground the answer in.
	Collection string `json:"collection"`
	// Question is the user's natural language question.
	Question string `json:"question"`
	// Filter holds payload equality conditions applied to retrieval.
	Filter map[string]string `json:"filter,omitempty"`
	// Mode combines Filter conditions.
	Mode string `json:"mode,omitempty"`
}

// source is one page an answer was grounded in.
type source struct {
	// Title is the page title.
	Title string `json:"title"`
	// Score is the retrieval similarity.
	Score float32 `json:"score"`
}

// collectionsResponse is the JSON response for GET /api/collections.
type collectionsResponse struct {
	// Collections are the collection names in store order.
	Collections []string `json:"collections"`
}

// collectionResponse is the JSON response for POST and DELETE
// /api/collections/{name}.
type collectionResponse struct {
	// Name is the collection name.
	Name string `json:"name"`
	// Created is set on POST: false means the collection already existed.
	Created *bool `json:"created,omitempty"`
	// Deleted is set on DELETE: false means there was nothing to delete.
	Deleted *bool `json:"deleted,omitempty"`
	// Forgotten is the number of ledger entries dropped on DELETE.
	Forgotten int64 `json:"forgotten,omitempty"`
}
