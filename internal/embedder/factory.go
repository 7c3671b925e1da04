package embedder

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/karthikgk97/notion-llm/internal/config"
)

// Embedding backends accepted by EMBEDDING_BACKEND.
const (
	BackendFastEmbed = "fastembed"
	BackendTEI       = "tei"
	BackendOllama    = "ollama"
	BackendOpenAI    = "openai"
	BackendAzure     = "azure"
)

// Default endpoints per HTTP backend.
const (
	defaultTEIEndpoint    = "http://localhost:8080"
	defaultOllamaEndpoint = "http://localhost:11434"
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultAzureVersion   = "2025-04-01-preview"
)

// NewFromEnv builds a Provider from the environment, which config.Load has
// already merged with the YAML file.
//
// Resolution order:
//
//  1. EMBEDDING_MODEL selects the registry model. Unknown or empty names fall
//     back to DefaultModel with a warning.
//  2. EMBEDDING_BACKEND selects the backend (default: fastembed).
//  3. EMBEDDING_REMOTE_MODEL names the model on HTTP backends (default: the
//     model's HuggingFace id).
//  4. EMBEDDING_ENDPOINT and EMBEDDING_API_KEY override the backend defaults;
//     openai and azure inherit OPENAI_API_KEY / AZURE_OPENAI_* otherwise.
func NewFromEnv(log *slog.Logger) (*Provider, error) {
	name := config.String("EMBEDDING_MODEL", "")
	model := Select(name)
	if name != "" && name != model.Name {
		log.Warn("embedder: unknown model, using default",
			slog.String("requested", name),
			slog.String("model", model.Name),
		)
	}

	backend, err := newBackend(config.String("EMBEDDING_BACKEND", BackendFastEmbed), model, log)
	if err != nil {
		return nil, err
	}
	return NewProvider(model, backend)
}

// HealthURL returns an endpoint that answers 2xx when the configured HTTP
// embedding server is up, or "" for backends without one (fastembed runs
// in-process; hosted OpenAI and Azure are not pinged).
func HealthURL() string {
	switch config.String("EMBEDDING_BACKEND", BackendFastEmbed) {
	case BackendTEI:
		return strings.TrimRight(config.String("EMBEDDING_ENDPOINT", defaultTEIEndpoint), "/") + "/health"
	case BackendOllama:
		endpoint := config.String("EMBEDDING_ENDPOINT", "")
		if endpoint == "" {
			endpoint = config.String("OLLAMA_HOST", defaultOllamaEndpoint)
		}
		return strings.TrimRight(endpoint, "/") + "/api/version"
	default:
		return ""
	}
}

// newBackend constructs the named backend for model.
func newBackend(name string, model ModelDescriptor, log *slog.Logger) (Backend, error) {
	remote := config.String("EMBEDDING_REMOTE_MODEL", model.HuggingFaceID)
	if problem := remoteModelProblem(remote, model); problem != "" {
		log.Warn("embedder: EMBEDDING_REMOTE_MODEL "+problem,
			slog.String("model", remote),
			slog.String("registry_model", model.Name),
			slog.String("hint", "use an embedding model of the same size, e.g. "+model.HuggingFaceID),
		)
	}

	switch name {
	case BackendFastEmbed:
		cacheDir := config.String("EMBEDDING_CACHE_DIR", "")
		if cacheDir == "" {
			cacheDir = filepath.Join(config.Dir(), "models")
		}
		b, err := NewFastEmbedBackend(model, &FastEmbedConfig{CacheDir: cacheDir})
		if err != nil {
			return nil, fmt.Errorf("embedder: %w", err)
		}
		return b, nil

	case BackendTEI:
		return NewTEIBackend(&TEIConfig{
			BaseURL: config.String("EMBEDDING_ENDPOINT", defaultTEIEndpoint),
			APIKey:  config.String("EMBEDDING_API_KEY", ""),
		}), nil

	case BackendOllama:
		endpoint := config.String("EMBEDDING_ENDPOINT", "")
		if endpoint == "" {
			endpoint = config.String("OLLAMA_HOST", defaultOllamaEndpoint)
		}
		return NewOllamaBackend(&OllamaConfig{Host: endpoint, Model: remote}), nil

	case BackendOpenAI:
		apiKey := config.String("EMBEDDING_API_KEY", "")
		if apiKey == "" {
			apiKey = config.String("OPENAI_API_KEY", "")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		return NewOpenAIBackend(&OpenAIConfig{
			BaseURL:    config.String("EMBEDDING_ENDPOINT", defaultOpenAIEndpoint),
			APIKey:     apiKey,
			Model:      remote,
			Dimensions: model.Dimension,
		}), nil

	case BackendAzure:
		apiKey := config.String("EMBEDDING_API_KEY", "")
		if apiKey == "" {
			apiKey = config.String("AZURE_OPENAI_API_KEY", "")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := config.String("EMBEDDING_ENDPOINT", "")
		if endpoint == "" {
			endpoint = config.String("AZURE_OPENAI_ENDPOINT", "")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		return NewOpenAIBackend(&OpenAIConfig{
			BaseURL:    endpoint + "/openai",
			APIKey:     apiKey,
			Model:      remote,
			Dimensions: model.Dimension,
			Azure:      true,
			APIVersion: config.String("AZURE_OPENAI_API_VERSION", defaultAzureVersion),
		}), nil

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q, valid values: fastembed, tei, ollama, openai, azure", name)
	}
}

// remoteDimensions are the fixed output sizes of embedding models commonly
// served by Ollama and OpenAI, keyed by name without the ":tag" suffix.
var remoteDimensions = map[string]int{
	"all-minilm":             384,
	"nomic-embed-text":       768,
	"mxbai-embed-large":      1024,
	"bge-m3":                 1024,
	"snowflake-arctic-embed": 1024,
	"text-embedding-ada-002": 1536,
}

// embeddingNameHints mark a name as an embedding model.
var embeddingNameHints = []string{"embed", "bge", "e5", "minilm", "mpnet", "gte"}

// chatFamilies are name prefixes of chat models that serve no embeddings.
var chatFamilies = []string{
	"gpt-", "o1", "o3", "claude", "llama", "mistral", "mixtral",
	"gemma", "phi", "qwen", "deepseek", "command-r",
}

// remoteModelProblem describes why the remote model name will not produce
// vectors of model's dimension, or returns "" when nothing looks wrong.
func remoteModelProblem(remote string, model ModelDescriptor) string {
	name := strings.ToLower(remote)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	base, _, _ := strings.Cut(name, ":")

	if dim, ok := remoteDimensions[base]; ok && dim != model.Dimension {
		return fmt.Sprintf("produces %d values but %s collections expect %d", dim, model.Name, model.Dimension)
	}
	for _, hint := range embeddingNameHints {
		if strings.Contains(base, hint) {
			return ""
		}
	}
	for _, family := range chatFamilies {
		if strings.HasPrefix(base, family) {
			return "looks like a chat model, not an embedding model"
		}
	}
	return ""
}
