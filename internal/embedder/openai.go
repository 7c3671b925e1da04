package embedder

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIBackend computes vectors with an OpenAI-compatible /embeddings
// endpoint (OpenAI, Azure OpenAI, vLLM, LocalAI). It is safe for concurrent use.
type OpenAIBackend struct {
	// baseURL is the API base (e.g. "https://api.openai.com/v1" or an Azure endpoint).
	baseURL string
	// apiKey is the Bearer token (OpenAI) or api-key header value (Azure).
	apiKey string
	// model is the embedding model or Azure deployment name.
	model string
	// dimensions requests a shortened vector from models that support it (0 = model default).
	dimensions int
	// azure selects Azure-style auth (api-key header) over Bearer token.
	azure bool
	// apiVersion is the Azure OpenAI API version query param (ignored for OpenAI).
	apiVersion string
	// client is the shared HTTP client with a sensible timeout.
	client *http.Client
}

// OpenAIConfig holds the settings for constructing an OpenAIBackend.
type OpenAIConfig struct {
	// BaseURL is the API base URL. For OpenAI: "https://api.openai.com/v1".
	// For Azure: "https://<resource>.openai.azure.com/openai".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name, or the deployment name on Azure.
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode (api-key header + api-version param).
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
	// Client overrides the default HTTP client; tests use it.
	Client *http.Client
}

// NewOpenAIBackend constructs an OpenAIBackend from the given config.
func NewOpenAIBackend(cfg *OpenAIConfig) *OpenAIBackend {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &OpenAIBackend{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		azure:      cfg.Azure,
		apiVersion: cfg.APIVersion,
		client:     client,
	}
}

// openaiEmbedRequest is the JSON body sent to the embeddings endpoint.
type openaiEmbedRequest struct {
	Input      []string `json:"input"`
	Model      string   `json:"model"`
	Dimensions int      `json:"dimensions,omitempty"`
}

// openaiEmbedResponse is the JSON body returned from the embeddings endpoint.
type openaiEmbedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Embed converts a batch of texts into their corresponding embeddings.
func (b *OpenAIBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	url := b.baseURL + "/embeddings"
	headers := map[string]string{"Authorization": "Bearer " + b.apiKey}
	if b.azure {
		url = b.baseURL + "/deployments/" + b.model + "/embeddings?api-version=" + b.apiVersion
		headers = map[string]string{"api-key": b.apiKey}
	}

	var result openaiEmbedResponse
	err := postJSON(ctx, b.client, url, headers,
		openaiEmbedRequest{Input: texts, Model: b.model, Dimensions: b.dimensions}, &result,
		func(raw []byte) string {
			return decodeErrorField(raw, func(r *openaiEmbedResponse) string {
				if r.Error == nil {
					return ""
				}
				return r.Error.Message
			})
		})
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}

	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(result.Data))
	}

	// The API may return data out of order; place each by index.
	embeddings := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embedder: index %d out of range [0, %d)", d.Index, len(texts))
		}
		embeddings[d.Index] = d.Embedding
	}
	return embeddings, nil
}
