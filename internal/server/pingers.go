package server

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantPinger checks a Qdrant instance using its native HealthCheck RPC.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to ping.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// CollectionsPinger checks any vector store by listing its collections. It
// is used when the store has no dedicated health RPC (the in-memory store).
type CollectionsPinger struct {
	// collections is listed on every check.
	collections Collections
	// name identifies the store in readiness responses.
	name string
}

// NewCollectionsPinger constructs a CollectionsPinger labelled name.
func NewCollectionsPinger(c Collections, name string) *CollectionsPinger {
	return &CollectionsPinger{collections: c, name: name}
}

// Name returns the dependency label used in readiness responses.
func (p *CollectionsPinger) Name() string { return p.name }

// Ping lists collections and discards the result.
func (p *CollectionsPinger) Ping(ctx context.Context) error {
	if _, err := p.collections.List(ctx); err != nil {
		return fmt.Errorf("list collections failed: %w", err)
	}
	return nil
}

// HTTPPinger checks an HTTP dependency (an embedding or chat model server)
// with a GET that must answer 2xx. It never calls a model, so no tokens are
// spent on readiness checks.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the pinged endpoint, e.g. http://localhost:11434/api/version.
	url string
	// client performs the request.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. A nil client uses http.DefaultClient.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET and checks the status code.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", p.url, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: status %d", p.url, resp.StatusCode)
	}
	return nil
}
