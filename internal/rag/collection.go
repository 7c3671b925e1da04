package rag

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/karthikgk97/notion-llm/internal/logging"
)

// CollectionManager owns the lifecycle of collections sized to the active
// embedding model, and is the only path through which points are written.
type CollectionManager struct {
	// store is the vector index backend.
	store Store

	// dimension is the embedder's vector length, used for new collections.
	dimension int

	// batchSize is the default number of points per upsert request.
	batchSize int
}

// NewCollectionManager returns a manager creating collections of the
// embedder's dimension. batchSize <= 0 selects DefaultBatchSize.
func NewCollectionManager(store Store, embedder Embedder, batchSize int) (*CollectionManager, error) {
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &CollectionManager{store: store, dimension: embedder.Dimension(), batchSize: batchSize}, nil
}

// Dimension returns the vector size used for newly created collections.
func (m *CollectionManager) Dimension() int {
	return m.dimension
}

// BatchSize returns the default upsert batch size.
func (m *CollectionManager) BatchSize() int {
	return m.batchSize
}

// Create makes a cosine collection sized to the embedder unless one with that
// name exists already, in which case it logs a warning and returns false.
// The existence check and the create are separate calls; a concurrent create
// of the same name can land in between and is reported by the store.
func (m *CollectionManager) Create(ctx context.Context, name string) (bool, error) {
	log := logging.FromContext(ctx).With(slog.String("collection", name))

	exists, err := m.store.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("rag: create collection: %w", err)
	}
	if exists {
		log.Warn("rag: collection already exists, skipping create")
		return false, nil
	}

	created, err := m.store.CreateCollection(ctx, name, m.dimension)
	if err != nil {
		return false, fmt.Errorf("rag: create collection: %w", err)
	}
	if !created {
		log.Warn("rag: collection was created concurrently, skipping create")
		return false, nil
	}
	log.Info("rag: collection created", slog.Int("dimension", m.dimension), slog.String("distance", "cosine"))
	return true, nil
}

// Delete removes a collection and returns the store's outcome. An absent
// collection is reported as false, not as an error.
func (m *CollectionManager) Delete(ctx context.Context, name string) (bool, error) {
	ok, err := m.store.DeleteCollection(ctx, name)
	if err != nil {
		return false, fmt.Errorf("rag: delete collection: %w", err)
	}
	logging.FromContext(ctx).Info("rag: collection delete",
		slog.String("collection", name),
		slog.Bool("deleted", ok),
	)
	return ok, nil
}

// List returns the names of existing collections in lexical order.
func (m *CollectionManager) List(ctx context.Context) ([]string, error) {
	names, err := m.store.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("rag: list collections: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Upsert writes points in sequential batches of batchSize (the manager's
// default when <= 0). Every vector is checked against the collection's
// dimension before the first batch is sent. A failing batch stops the upsert;
// earlier batches stay committed.
func (m *CollectionManager) Upsert(ctx context.Context, name string, points []Point, batchSize int) error {
	if len(points) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = m.batchSize
	}

	dim, err := m.store.CollectionDimension(ctx, name)
	if err != nil {
		return fmt.Errorf("rag: upsert: %w", err)
	}
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("rag: upsert: point %s has %d values, collection %q expects %d: %w",
				p.ID, len(p.Vector), name, dim, ErrDimensionMismatch)
		}
	}

	log := logging.FromContext(ctx)
	batches := (len(points) + batchSize - 1) / batchSize
	for i := 0; i < batches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(points))
		if err := m.store.Upsert(ctx, name, points[start:end]); err != nil {
			return fmt.Errorf("rag: upsert batch %d/%d (%d points committed): %w", i+1, batches, start, err)
		}
		log.Debug("rag: upsert batch written",
			slog.String("collection", name),
			slog.Int("batch", i+1),
			slog.Int("batches", batches),
			slog.Int("points", end-start),
		)
	}
	return nil
}

// Search returns up to limit hits nearest to vector, best first. A limit of
// zero or less selects DefaultLimit.
func (m *CollectionManager) Search(ctx context.Context, name string, vector []float32, filter *Filter, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(vector) != m.dimension {
		return nil, fmt.Errorf("rag: search: query has %d values, model dimension is %d: %w",
			len(vector), m.dimension, ErrDimensionMismatch)
	}
	hits, err := m.store.Search(ctx, name, vector, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("rag: search: %w", err)
	}
	return hits, nil
}
