package rag

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"
)

// hashEmbedder is a deterministic bag-of-words embedder: every lower-cased
// word increments one bucket chosen by FNV hash. Texts sharing words get a
// positive cosine similarity.
type hashEmbedder struct {
	dim int

	mu    sync.Mutex
	calls int
	texts int
	err   error
}

func newHashEmbedder(dim int) *hashEmbedder {
	return &hashEmbedder{dim: dim}
}

func (h *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	h.texts += len(texts)
	err := h.err
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, h.dim)
		words := strings.FieldsFunc(strings.ToLower(t), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, w := range words {
			f := fnv.New32a()
			_, _ = f.Write([]byte(w))
			vec[int(f.Sum32())%h.dim]++
		}
		out[i] = vec
	}
	return out, nil
}

func (h *hashEmbedder) Dimension() int { return h.dim }

func (h *hashEmbedder) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// recordingStore wraps a MemoryStore and counts calls by method.
type recordingStore struct {
	*MemoryStore

	mu          sync.Mutex
	creates     int
	upserts     []int
	limits      []int
	failUpsertN int
}

func newRecordingStore() *recordingStore {
	return &recordingStore{MemoryStore: NewMemoryStore()}
}

var errInjected = errors.New("injected store failure")

func (r *recordingStore) CreateCollection(ctx context.Context, name string, dimension int) (bool, error) {
	r.mu.Lock()
	r.creates++
	r.mu.Unlock()
	return r.MemoryStore.CreateCollection(ctx, name, dimension)
}

func (r *recordingStore) Upsert(ctx context.Context, name string, points []Point) error {
	r.mu.Lock()
	r.upserts = append(r.upserts, len(points))
	n := len(r.upserts)
	fail := r.failUpsertN
	r.mu.Unlock()
	if fail > 0 && n == fail {
		return errInjected
	}
	return r.MemoryStore.Upsert(ctx, name, points)
}

func (r *recordingStore) Search(ctx context.Context, name string, vector []float32, filter *Filter, limit int) ([]Hit, error) {
	r.mu.Lock()
	r.limits = append(r.limits, limit)
	r.mu.Unlock()
	return r.MemoryStore.Search(ctx, name, vector, filter, limit)
}

func (r *recordingStore) searchLimits() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.limits...)
}

func (r *recordingStore) upsertSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.upserts...)
}

func (r *recordingStore) createCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}
