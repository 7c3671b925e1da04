// Package rag is the embedding-and-vector-index layer of notion-llm. It turns
// documents into points with deterministic identity, manages the lifecycle of
// the collection they live in, and answers filtered similarity queries.
// Concrete stores (Qdrant, in-memory) satisfy [Store] so callers never depend
// on a specific backend.
package rag

import (
	"context"

	"github.com/google/uuid"
)

const (
	// DocumentKey is the reserved payload key that holds a point's source text.
	// Caller metadata must not use it.
	DocumentKey = "document_for_embeddings"

	// DefaultBatchSize is the number of points sent per upsert request.
	DefaultBatchSize = 100
)

// Document is a unit of text keyed by a stable, human-readable identifier
// such as a page title. Retrieval results reuse it with Score populated.
type Document struct {
	// Key identifies the document; the point ID is derived from it alone.
	Key string

	// Text is the raw document text that gets embedded.
	Text string

	// Metadata holds caller-supplied payload fields.
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Point is a vector ready to be written to a collection.
type Point struct {
	// ID is the deterministic point identifier, see [PointID].
	ID uuid.UUID

	// Vector is the embedding; its length must equal the collection dimension.
	Vector []float32

	// Payload always contains DocumentKey plus the caller metadata.
	Payload map[string]string
}

// Hit is a single search result.
type Hit struct {
	// ID is the point identifier as reported by the store.
	ID string

	// Payload is the full payload stored with the point.
	Payload map[string]string

	// Score is the cosine similarity to the query vector, higher is closer.
	Score float32
}

// Embedder converts text into dense vectors of a fixed dimension.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of every vector produced by Embed.
	Dimension() int
}

// Store is the vector index backend. Implementations must be safe to call
// from multiple goroutines and must map backend failures onto the error
// kinds in errors.go.
type Store interface {
	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, name string) (bool, error)

	// CreateCollection creates a cosine collection of the given dimension.
	// created is false when the store reports the collection already exists.
	CreateCollection(ctx context.Context, name string, dimension int) (created bool, err error)

	// DeleteCollection removes the named collection and reports the store's
	// boolean outcome.
	DeleteCollection(ctx context.Context, name string) (bool, error)

	// ListCollections returns the names of all collections.
	ListCollections(ctx context.Context) ([]string, error)

	// CollectionDimension returns the vector size the collection was created with.
	CollectionDimension(ctx context.Context, name string) (int, error)

	// Upsert inserts or replaces points by ID in a single request.
	Upsert(ctx context.Context, name string, points []Point) error

	// Search returns up to limit points nearest to vector, best first.
	// A nil filter searches the whole collection.
	Search(ctx context.Context, name string, vector []float32, filter *Filter, limit int) ([]Hit, error)

	// Close releases any resources held by the store.
	Close() error
}
