//go:build cgo

package embedder

import (
	"context"
	"fmt"
	"sync"

	fastembed "github.com/anush008/fastembed-go"
)

// FastEmbedConfig holds the settings for constructing a FastEmbedBackend.
type FastEmbedConfig struct {
	// CacheDir is where downloaded ONNX models are kept.
	CacheDir string
	// MaxLength is the maximum input sequence length in tokens (default 512).
	MaxLength int
	// BatchSize is the number of texts per inference call (default 256).
	BatchSize int
	// ShowProgress prints model download progress to stdout.
	ShowProgress bool
}

// FastEmbedBackend computes vectors in-process with fastembed's ONNX runtime.
// The model is loaded once in NewFastEmbedBackend.
type FastEmbedBackend struct {
	// mu guards model against use after Close.
	mu sync.RWMutex
	// model is the loaded ONNX embedding session.
	model *fastembed.FlagEmbedding
	// batchSize is the inference batch size.
	batchSize int
}

// checkFastEmbedModel reports whether fastembed ships m with the registry's
// dimension. It runs before any download.
func checkFastEmbedModel(m ModelDescriptor) error {
	for _, info := range fastembed.ListSupportedModels() {
		if string(info.Model) != m.FastEmbedModel {
			continue
		}
		if info.Dim != m.Dimension {
			return fmt.Errorf("fastembed: %s produces %d values, registry expects %d: %w",
				m.FastEmbedModel, info.Dim, m.Dimension, ErrFastEmbedUnsupported)
		}
		return nil
	}
	return fmt.Errorf("%w: %s (%s)", ErrFastEmbedUnsupported, m.Name, m.FastEmbedModel)
}

// NewFastEmbedBackend loads the ONNX model for m, downloading it into the
// cache directory on first use.
func NewFastEmbedBackend(m ModelDescriptor, cfg *FastEmbedConfig) (*FastEmbedBackend, error) {
	if err := checkFastEmbedModel(m); err != nil {
		return nil, err
	}
	maxLength := cfg.MaxLength
	if maxLength <= 0 {
		maxLength = 512
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 256
	}
	showProgress := cfg.ShowProgress

	model, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:                fastembed.EmbeddingModel(m.FastEmbedModel),
		CacheDir:             cfg.CacheDir,
		MaxLength:            maxLength,
		ShowDownloadProgress: &showProgress,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed: failed to load %s: %w", m.FastEmbedModel, err)
	}
	return &FastEmbedBackend{model: model, batchSize: batchSize}, nil
}

// Embed runs inference for texts. The context is checked before the call;
// inference itself cannot be interrupted.
func (b *FastEmbedBackend) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.model == nil {
		return nil, fmt.Errorf("fastembed: backend is closed")
	}

	vectors, err := b.model.Embed(texts, b.batchSize)
	if err != nil {
		return nil, fmt.Errorf("fastembed: embed failed: %w", err)
	}
	return vectors, nil
}

// Close releases the ONNX session.
func (b *FastEmbedBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.model == nil {
		return nil
	}
	err := b.model.Destroy()
	b.model = nil
	return err
}
