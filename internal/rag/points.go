package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PointID derives the point identifier from a document key: a UUIDv5 in the
// DNS namespace. Re-ingesting a key replaces the earlier point; two unrelated
// documents sharing a key overwrite each other.
func PointID(key string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(key))
}

// PointBuilder turns documents into points using an Embedder.
type PointBuilder struct {
	embedder Embedder
}

// NewPointBuilder returns a PointBuilder backed by embedder.
func NewPointBuilder(embedder Embedder) *PointBuilder {
	return &PointBuilder{embedder: embedder}
}

// Build embeds text and returns its point.
func (b *PointBuilder) Build(ctx context.Context, key, text string, metadata map[string]string) (Point, error) {
	points, err := b.BuildBatch(ctx, []string{key}, []string{text}, []map[string]string{metadata})
	if err != nil {
		return Point{}, err
	}
	return points[0], nil
}

// BuildBatch converts parallel slices into points. Lengths are checked
// before anything is embedded; on any failure no points are returned.
func (b *PointBuilder) BuildBatch(ctx context.Context, keys, texts []string, metadata []map[string]string) ([]Point, error) {
	if len(keys) != len(texts) || len(keys) != len(metadata) {
		return nil, fmt.Errorf("rag: build batch: %d keys, %d texts, %d metadata: %w",
			len(keys), len(texts), len(metadata), ErrInputLengthMismatch)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vectors, err := b.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("rag: build batch: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("rag: build batch: embedder returned %d vectors for %d texts: %w",
			len(vectors), len(texts), ErrEmbedding)
	}

	points := make([]Point, len(keys))
	for i, key := range keys {
		points[i] = Point{
			ID:      PointID(key),
			Vector:  vectors[i],
			Payload: buildPayload(texts[i], metadata[i]),
		}
	}
	return points, nil
}

// buildPayload copies metadata and writes the document text last, so the
// reserved key always holds the text.
func buildPayload(text string, metadata map[string]string) map[string]string {
	payload := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		payload[k] = v
	}
	payload[DocumentKey] = text
	return payload
}
