// Package config provides YAML-based configuration for notion-llm.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a single exported variable can override
// any value from a shared config file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. NOTION_LLM_CONFIG environment variable
//  3. ~/.notion-llm/config.yaml
//  4. ./notion-llm.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Notion configures the Notion content-source connector.
	Notion NotionConfig `yaml:"notion"`

	// Embedding configures the embedding model and its backend.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore configures the vector index the pages are written to.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Model configures the optional chat model used by `ask`.
	Model ModelConfig `yaml:"model"`

	// Answer tunes how many pages ground an answer and how much of them fits.
	Answer AnswerConfig `yaml:"answer"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Ledger configures the local ingestion ledger.
	Ledger LedgerConfig `yaml:"ledger"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing of chat model calls.
	Tracing TracingConfig `yaml:"tracing"`
}

// NotionConfig holds Notion API settings.
type NotionConfig struct {
	// APIKey is the Notion integration secret. Prefer env var NOTION_API_KEY.
	APIKey string `yaml:"api_key"`
	// RootPageID is the page whose child pages are ingested.
	RootPageID string `yaml:"root_page_id"`
	// Version is the Notion-Version header sent with every request.
	Version string `yaml:"version"`
	// BaseURL overrides the Notion API base URL.
	BaseURL string `yaml:"base_url"`
	// PageSize is the page_size sent when listing block children (max 100).
	PageSize int `yaml:"page_size"`
	// RateLimit is the maximum number of Notion requests per second.
	RateLimit float64 `yaml:"rate_limit"`
	// TitleKey is the payload key that holds each page title.
	TitleKey string `yaml:"title_key"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Backend selects where vectors are computed: fastembed, tei, ollama, openai.
	Backend string `yaml:"backend"`
	// Model is the registry model name (e.g. BGEBaseEN). Unknown names fall
	// back to the default model.
	Model string `yaml:"model"`
	// RemoteModel is the model identifier sent to HTTP backends.
	RemoteModel string `yaml:"remote_model"`
	// CacheDir is where fastembed keeps downloaded ONNX models.
	CacheDir string `yaml:"cache_dir"`
	// Endpoint is the base URL of an HTTP embedding backend.
	Endpoint string `yaml:"endpoint"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Backend selects the store: qdrant or memory.
	Backend string `yaml:"backend"`
	// URL is the Qdrant gRPC endpoint, e.g. http://localhost:6334.
	URL string `yaml:"url"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// Collection is the default collection name.
	Collection string `yaml:"collection"`
	// BatchSize is the number of points per upsert request.
	BatchSize int `yaml:"batch_size"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
	// BaseURL points at an OpenAI-compatible server instead of api.openai.com.
	BaseURL string `yaml:"base_url"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Ark endpoint/model ID.
	Model string `yaml:"model"`
	// BaseURL overrides the Ark API endpoint.
	BaseURL string `yaml:"base_url"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// AnswerConfig holds answer-generation settings.
type AnswerConfig struct {
	// TopK is the number of pages retrieved per question.
	TopK int `yaml:"top_k"`
	// MaxContextTokens is the estimated token budget for the model input.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var NOTION_LLM_API_KEY.
	APIKey string `yaml:"api_key"`
	// RateLimitRPS is the sustained per-client request rate.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	// RateLimitBurst is the per-client burst size.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// LedgerConfig holds ingestion ledger settings.
type LedgerConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
	// AuditPath is the audit log file. Defaults to ~/.notion-llm/audit.log.
	AuditPath string `yaml:"audit_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"NOTION_API_KEY", func(c *Config) string { return c.Notion.APIKey }},
	{"NOTION_ROOT_PAGE_ID", func(c *Config) string { return c.Notion.RootPageID }},
	{"NOTION_VERSION", func(c *Config) string { return c.Notion.Version }},
	{"NOTION_BASE_URL", func(c *Config) string { return c.Notion.BaseURL }},
	{"NOTION_PAGE_SIZE", func(c *Config) string { return intStr(c.Notion.PageSize) }},
	{"NOTION_RATE_LIMIT", func(c *Config) string { return float64Str(c.Notion.RateLimit) }},
	{"NOTION_TITLE_KEY", func(c *Config) string { return c.Notion.TitleKey }},
	{"EMBEDDING_BACKEND", func(c *Config) string { return c.Embedding.Backend }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_REMOTE_MODEL", func(c *Config) string { return c.Embedding.RemoteModel }},
	{"EMBEDDING_CACHE_DIR", func(c *Config) string { return c.Embedding.CacheDir }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"VECTOR_STORE", func(c *Config) string { return c.VectorStore.Backend }},
	{"QDRANT_URL", func(c *Config) string { return c.VectorStore.URL }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.APIKey }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.VectorStore.Collection }},
	{"UPSERT_BATCH_SIZE", func(c *Config) string { return intStr(c.VectorStore.BatchSize) }},
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ANSWER_TOP_K", func(c *Config) string { return intStr(c.Answer.TopK) }},
	{"ANSWER_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Answer.MaxContextTokens) }},
	{"NOTION_LLM_HOST", func(c *Config) string { return c.Server.Host }},
	{"NOTION_LLM_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"NOTION_LLM_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"NOTION_LLM_RATE_LIMIT_RPS", func(c *Config) string { return float64Str(c.Server.RateLimitRPS) }},
	{"NOTION_LLM_RATE_LIMIT_BURST", func(c *Config) string { return intStr(c.Server.RateLimitBurst) }},
	{"NOTION_LLM_LEDGER_DB", func(c *Config) string { return c.Ledger.DBPath }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"NOTION_LLM_AUDIT_LOG", func(c *Config) string { return c.Logging.AuditPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// Dir returns the per-user state directory (~/.notion-llm). It falls back to
// the working directory when the home directory cannot be resolved.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notion-llm"
	}
	return filepath.Join(home, ".notion-llm")
}

// String returns the value of the named environment variable, or fallback if
// the variable is unset or empty.
func String(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Int returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func Int(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// Float32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func Float32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}

// Float64 is the float64 counterpart of [Float32].
func Float64(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("NOTION_LLM_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	p := filepath.Join(Dir(), "config.yaml")
	if _, err := os.Stat(p); err == nil {
		return p
	}

	if _, err := os.Stat("notion-llm.yaml"); err == nil {
		return "notion-llm.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return strconv.Itoa(v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
