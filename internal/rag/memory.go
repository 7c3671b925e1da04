package rag

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"github.com/viant/vec/search"
)

// memoryCollection holds the points and fixed dimension of one collection.
type memoryCollection struct {
	dimension int
	points    map[string]memoryPoint
}

// memoryPoint is a stored point.
type memoryPoint struct {
	vector  []float32
	payload map[string]string
}

// MemoryStore is an in-process Store ranking by cosine similarity. It backs
// tests and the "memory" vector store mode; nothing survives the process.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// CollectionExists reports whether the named collection exists.
func (m *MemoryStore) CollectionExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.collections[name]
	return ok, nil
}

// CreateCollection creates the collection unless it exists already.
func (m *MemoryStore) CreateCollection(_ context.Context, name string, dimension int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; ok {
		return false, nil
	}
	m.collections[name] = &memoryCollection{dimension: dimension, points: make(map[string]memoryPoint)}
	return true, nil
}

// DeleteCollection removes the collection; false when it did not exist.
func (m *MemoryStore) DeleteCollection(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[name]; !ok {
		return false, nil
	}
	delete(m.collections, name)
	return true, nil
}

// ListCollections returns collection names in lexical order.
func (m *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CollectionDimension returns the dimension given at creation.
func (m *MemoryStore) CollectionDimension(_ context.Context, name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return 0, fmt.Errorf("memory: collection %q: %w", name, ErrNotFound)
	}
	return c.dimension, nil
}

// Upsert inserts or replaces points by ID.
func (m *MemoryStore) Upsert(_ context.Context, name string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("memory: collection %q: %w", name, ErrNotFound)
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return fmt.Errorf("memory: point %s has %d values, collection %q expects %d: %w",
				p.ID, len(p.Vector), name, c.dimension, ErrDimensionMismatch)
		}
		c.points[p.ID.String()] = memoryPoint{
			vector:  append([]float32(nil), p.Vector...),
			payload: maps.Clone(p.Payload),
		}
	}
	return nil
}

// Search scores every point matching filter by cosine similarity and
// returns the best limit. A negative limit returns every match.
func (m *MemoryStore) Search(_ context.Context, name string, vector []float32, filter *Filter, limit int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("memory: collection %q: %w", name, ErrNotFound)
	}
	if len(vector) != c.dimension {
		return nil, fmt.Errorf("memory: query has %d values, collection %q expects %d: %w",
			len(vector), name, c.dimension, ErrDimensionMismatch)
	}

	// A zero vector has no direction; it scores 0 against everything.
	query := search.Float32s(vector)
	zeroQuery := query.Magnitude() == 0

	hits := make([]Hit, 0, len(c.points))
	for id, p := range c.points {
		if !filter.Matches(p.payload) {
			continue
		}
		var score float32
		if !zeroQuery {
			score = 1 - query.CosineDistance(p.vector)
		}
		hits = append(hits, Hit{ID: id, Payload: maps.Clone(p.payload), Score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if limit >= 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// Len returns the number of points in a collection, or zero when it does not exist.
func (m *MemoryStore) Len(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[name]; ok {
		return len(c.points)
	}
	return 0
}
