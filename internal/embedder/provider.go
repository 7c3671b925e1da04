// Package embedder turns text into dense vectors for the rag layer. A
// [Provider] pairs one registry model with the backend that computes its
// vectors: fastembed locally, or a text-embeddings-inference, Ollama or
// OpenAI-compatible HTTP server.
package embedder

import (
	"context"
	"fmt"
	"io"

	"github.com/karthikgk97/notion-llm/internal/rag"
)

// Backend computes vectors for a batch of texts. Implementations must be
// safe for concurrent use and return one vector per input, in order.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Provider implements rag.Embedder for one selected model. Its model and
// backend are fixed at construction and read-only afterwards.
type Provider struct {
	// model is the selected registry entry.
	model ModelDescriptor

	// backend computes the vectors.
	backend Backend
}

// NewProvider pairs a model with the backend serving it.
func NewProvider(model ModelDescriptor, backend Backend) (*Provider, error) {
	if backend == nil {
		return nil, fmt.Errorf("embedder: backend must not be nil")
	}
	if model.Dimension <= 0 {
		return nil, fmt.Errorf("embedder: model %q has no dimension", model.Name)
	}
	return &Provider{model: model, backend: backend}, nil
}

// Model returns the selected model descriptor.
func (p *Provider) Model() ModelDescriptor {
	return p.model
}

// Dimension returns the selected model's vector length.
func (p *Provider) Dimension() int {
	return p.model.Dimension
}

// Embed returns one vector per text. Backend failures wrap rag.ErrEmbedding;
// a vector of the wrong length is rag.ErrDimensionMismatch. Failures are not
// retried.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors, err := p.backend.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedder: %s: %w: %w", p.model.Name, rag.ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder: %s: got %d vectors for %d texts: %w",
			p.model.Name, len(vectors), len(texts), rag.ErrEmbedding)
	}
	for i, v := range vectors {
		if len(v) != p.model.Dimension {
			return nil, fmt.Errorf("embedder: %s: vector %d has %d values, want %d: %w",
				p.model.Name, i, len(v), p.model.Dimension, rag.ErrDimensionMismatch)
		}
	}
	return vectors, nil
}

// Close releases the backend when it holds resources (the fastembed ONNX
// session does).
func (p *Provider) Close() error {
	if c, ok := p.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
