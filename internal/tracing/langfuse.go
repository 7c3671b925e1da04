// Package tracing sends chat model callbacks to Langfuse when it is configured.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/karthikgk97/notion-llm/internal/config"
)

// defaultHost is the Langfuse host used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit so buffered traces are sent. When Langfuse is not
// configured, ok is false and the other return values are nil.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := config.String("LANGFUSE_PUBLIC_KEY", "")
	secretKey := config.String("LANGFUSE_SECRET_KEY", "")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      config.String("LANGFUSE_HOST", defaultHost),
		PublicKey: publicKey,
		SecretKey: secretKey,
	})
	return handler, flush, true
}

// Install registers the Langfuse handler globally when configured and
// returns its flush function, or a no-op.
func Install() (flush func(), ok bool) {
	handler, flush, ok := Setup()
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}
