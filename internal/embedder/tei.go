package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// TEIBackend computes vectors with a HuggingFace text-embeddings-inference
// server. The server is started with a fixed model, so no model name is sent.
type TEIBackend struct {
	// baseURL is the TEI server root (e.g. "http://localhost:8080").
	baseURL string
	// apiKey is sent as a Bearer token when non-empty.
	apiKey string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// TEIConfig holds the settings for constructing a TEIBackend.
type TEIConfig struct {
	// BaseURL is the TEI server root (e.g. "http://localhost:8080").
	BaseURL string
	// APIKey is an optional Bearer token for protected deployments.
	APIKey string
	// Client overrides the default HTTP client; tests use it.
	Client *http.Client
}

// NewTEIBackend constructs a TEIBackend from the given config.
func NewTEIBackend(cfg *TEIConfig) *TEIBackend {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &TEIBackend{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  client,
	}
}

// teiEmbedRequest is the JSON body sent to the TEI /embed endpoint.
type teiEmbedRequest struct {
	Inputs   []string `json:"inputs"`
	Truncate bool     `json:"truncate"`
}

// teiError is the JSON body TEI returns on failure.
type teiError struct {
	Error     string `json:"error"`
	ErrorType string `json:"error_type"`
}

// Embed converts a batch of texts into their corresponding embeddings.
// Inputs longer than the model's window are truncated by the server.
func (b *TEIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	headers := map[string]string{}
	if b.apiKey != "" {
		headers["Authorization"] = "Bearer " + b.apiKey
	}

	var vectors [][]float32
	err := postJSON(ctx, b.client, b.baseURL+"/embed", headers,
		teiEmbedRequest{Inputs: texts, Truncate: true}, &vectors,
		func(raw []byte) string { return decodeErrorField(raw, func(e *teiError) string { return e.Error }) })
	if err != nil {
		return nil, fmt.Errorf("tei embedder: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("tei embedder: expected %d embeddings, got %d", len(texts), len(vectors))
	}
	return vectors, nil
}
