package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OllamaBackend computes vectors with the Ollama /api/embed endpoint.
// It is safe for concurrent use. No API key is required; Ollama runs locally.
type OllamaBackend struct {
	// host is the Ollama server base URL (e.g. "http://localhost:11434").
	host string
	// model is the Ollama model tag (e.g. "nomic-embed-text").
	model string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// OllamaConfig holds the settings for constructing an OllamaBackend.
type OllamaConfig struct {
	// Host is the Ollama server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the Ollama model tag. Its output size must match the
	// registry model the provider was built for.
	Model string
	// Client overrides the default HTTP client; tests use it.
	Client *http.Client
}

// NewOllamaBackend constructs an OllamaBackend from the given config.
func NewOllamaBackend(cfg *OllamaConfig) *OllamaBackend {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &OllamaBackend{
		host:   strings.TrimRight(cfg.Host, "/"),
		model:  cfg.Model,
		client: client,
	}
}

// ollamaEmbedRequest is the JSON body sent to the Ollama /api/embed endpoint.
type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// ollamaEmbedResponse is the JSON body returned from the Ollama /api/embed endpoint.
type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
func (b *OllamaBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var result ollamaEmbedResponse
	err := postJSON(ctx, b.client, b.host+"/api/embed", nil,
		ollamaEmbedRequest{Model: b.model, Input: texts}, &result,
		func(raw []byte) string {
			return decodeErrorField(raw, func(r *ollamaEmbedResponse) string { return r.Error })
		})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	return result.Embeddings, nil
}
