//go:build !cgo

package embedder

import (
	"context"
	"errors"
)

// ErrFastEmbedUnavailable is returned when the binary was built without cgo,
// which the ONNX runtime requires.
var ErrFastEmbedUnavailable = errors.New("fastembed: not available in builds without cgo, use EMBEDDING_BACKEND=tei, ollama or openai")

// FastEmbedConfig holds the settings for constructing a FastEmbedBackend.
type FastEmbedConfig struct {
	CacheDir     string
	MaxLength    int
	BatchSize    int
	ShowProgress bool
}

// FastEmbedBackend is a stub for builds without cgo.
type FastEmbedBackend struct{}

// NewFastEmbedBackend always fails without cgo.
func NewFastEmbedBackend(_ ModelDescriptor, _ *FastEmbedConfig) (*FastEmbedBackend, error) {
	return nil, ErrFastEmbedUnavailable
}

// Embed always fails without cgo.
func (b *FastEmbedBackend) Embed(_ context.Context, _ []string) ([][]float32, error) {
	return nil, ErrFastEmbedUnavailable
}

// Close is a no-op.
func (b *FastEmbedBackend) Close() error { return nil }
