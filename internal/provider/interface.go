// Package provider selects and constructs the chat model used by the answer
// step. Supported backends: Ollama, OpenAI, Azure OpenAI, Volcengine Ark and
// Google Gemini, all through eino's model abstraction.
package provider

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or a compatible server.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
)

// Config holds the chat model configuration. Only the section matching
// Backend is read.
type Config struct {
	// Backend identifies which inference provider to use.
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Ark         ProviderArk
	Gemini      ProviderGemini

	// Tuning applies to every backend that supports it.
	Tuning SharedTuning
}

// ProviderOllama configures a local Ollama server.
type ProviderOllama struct {
	// Host is the server base URL (e.g. "http://localhost:11434").
	Host string
	// Model is the model tag (e.g. "llama3").
	Model string
}

// ProviderOpenAI configures the OpenAI API.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the API base for OpenAI-compatible servers.
	BaseURL string
}

// ProviderAzureOpenAI configures Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	// APIVersion is the REST API version (e.g. "2024-02-01").
	APIVersion string
}

// ProviderArk configures Volcengine Ark.
type ProviderArk struct {
	APIKey string
	// Model is the Ark endpoint id or model name.
	Model   string
	BaseURL string
}

// ProviderGemini configures Google Gemini.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// SharedTuning holds generation settings shared by all backends.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}
