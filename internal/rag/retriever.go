package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/karthikgk97/notion-llm/internal/logging"
)

// DefaultLimit is the number of results returned when a request passes 0.
const DefaultLimit = 5

// QueryRequest describes a similarity query.
type QueryRequest struct {
	// Collection is the collection to search.
	Collection string

	// Text is the query text; it is embedded as a one-element batch.
	Text string

	// Conditions are payload equality tests. Empty means unfiltered.
	Conditions map[string]string

	// Mode combines Conditions; the empty value means FilterAll.
	// Unrecognised modes search unfiltered and log a warning.
	Mode FilterMode

	// Limit caps the number of results; 0 selects DefaultLimit.
	Limit int
}

// Retriever embeds queries and runs filtered similarity searches.
// It is safe for concurrent use.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// collections performs the vector similarity search.
	collections *CollectionManager

	// titleKey is the payload key copied into Document.Key on results.
	titleKey string
}

// NewRetriever constructs a Retriever. titleKey names the payload field that
// identifies a document in results; it may be empty.
func NewRetriever(embedder Embedder, collections *CollectionManager, titleKey string) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if collections == nil {
		return nil, fmt.Errorf("rag: collection manager must not be nil")
	}
	return &Retriever{embedder: embedder, collections: collections, titleKey: titleKey}, nil
}

// Retrieve returns ranked documents for req, best first. Document.Text holds
// the stored text with incidental surrounding quotes removed.
func (r *Retriever) Retrieve(ctx context.Context, req QueryRequest) ([]Document, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	vectors, err := r.embedder.Embed(ctx, []string{req.Text})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("rag: embedder returned %d vectors for query: %w", len(vectors), ErrEmbedding)
	}

	filter := r.filter(ctx, req)
	hits, err := r.collections.Search(ctx, req.Collection, vectors[0], filter, limit)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(hits))
	for _, h := range hits {
		meta := make(map[string]string, len(h.Payload))
		for k, v := range h.Payload {
			if k != DocumentKey {
				meta[k] = v
			}
		}
		docs = append(docs, Document{
			Key:      h.Payload[r.titleKey],
			Text:     strings.Trim(h.Payload[DocumentKey], `"`),
			Metadata: meta,
			Score:    h.Score,
		})
	}
	return docs, nil
}

// Query runs Retrieve and collapses the results into a text → score mapping.
// Two hits with identical text keep the later score.
func (r *Retriever) Query(ctx context.Context, req QueryRequest) (map[string]float32, error) {
	docs, err := r.Retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float32, len(docs))
	for _, d := range docs {
		out[d.Text] = d.Score
	}
	return out, nil
}

// filter builds the request's filter, or nil when there are no conditions or
// the mode is not recognised.
func (r *Retriever) filter(ctx context.Context, req QueryRequest) *Filter {
	if len(req.Conditions) == 0 {
		return nil
	}
	mode, ok := ParseFilterMode(string(req.Mode))
	if !ok {
		logging.FromContext(ctx).Warn("rag: unsupported filter mode, searching without filter",
			slog.String("mode", string(req.Mode)),
			slog.Int("conditions", len(req.Conditions)),
		)
		return nil
	}
	return NewFilter(mode, req.Conditions)
}
