package rag

import (
	"context"
	"errors"
	"math"
	"testing"
)

func seedMemory(t *testing.T, dim int, vectors map[string][]float32) *MemoryStore {
	t.Helper()
	ctx := context.Background()
	m := NewMemoryStore()
	if _, err := m.CreateCollection(ctx, "c", dim); err != nil {
		t.Fatal(err)
	}
	points := make([]Point, 0, len(vectors))
	for key, v := range vectors {
		points = append(points, Point{ID: PointID(key), Vector: v, Payload: map[string]string{"key": key}})
	}
	if err := m.Upsert(ctx, "c", points); err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMemoryStore_CosineScores(t *testing.T) {
	t.Parallel()

	m := seedMemory(t, 3, map[string][]float32{
		"same":       {2, 0, 0},
		"diagonal":   {1, 1, 0},
		"orthogonal": {0, 3, 0},
		"opposite":   {-1, 0, 0},
		"zero":       {0, 0, 0},
	})

	hits, err := m.Search(context.Background(), "c", []float32{1, 0, 0}, nil, -1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	want := map[string]float64{
		"same":       1,
		"diagonal":   1 / math.Sqrt2,
		"orthogonal": 0,
		"zero":       0,
		"opposite":   -1,
	}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d", len(hits), len(want))
	}
	for _, h := range hits {
		key := h.Payload["key"]
		if math.Abs(float64(h.Score)-want[key]) > 1e-5 {
			t.Errorf("%s: score = %v, want %v", key, h.Score, want[key])
		}
	}
	if hits[0].Payload["key"] != "same" || hits[len(hits)-1].Payload["key"] != "opposite" {
		t.Errorf("hits not ordered best first: first=%s last=%s",
			hits[0].Payload["key"], hits[len(hits)-1].Payload["key"])
	}
}

func TestMemoryStore_ZeroQueryScoresZero(t *testing.T) {
	t.Parallel()

	m := seedMemory(t, 2, map[string][]float32{"a": {1, 0}, "b": {0, 1}})
	hits, err := m.Search(context.Background(), "c", []float32{0, 0}, nil, -1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, h := range hits {
		if h.Score != 0 {
			t.Errorf("%s: score = %v, want 0", h.Payload["key"], h.Score)
		}
	}
}

func TestMemoryStore_SearchLimit(t *testing.T) {
	t.Parallel()

	m := seedMemory(t, 2, map[string][]float32{"a": {1, 0}, "b": {1, 1}, "c": {0, 1}})
	cases := []struct {
		limit int
		want  int
	}{
		{-1, 3},
		{0, 0},
		{2, 2},
		{10, 3},
	}
	for _, tc := range cases {
		hits, err := m.Search(context.Background(), "c", []float32{1, 0}, nil, tc.limit)
		if err != nil {
			t.Fatalf("limit %d: %v", tc.limit, err)
		}
		if len(hits) != tc.want {
			t.Errorf("limit %d: got %d hits, want %d", tc.limit, len(hits), tc.want)
		}
	}
}

func TestMemoryStore_SearchErrors(t *testing.T) {
	t.Parallel()

	m := seedMemory(t, 2, map[string][]float32{"a": {1, 0}})
	if _, err := m.Search(context.Background(), "missing", []float32{1, 0}, nil, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing collection: err = %v, want ErrNotFound", err)
	}
	if _, err := m.Search(context.Background(), "c", []float32{1, 0, 0}, nil, 1); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("wrong query length: err = %v, want ErrDimensionMismatch", err)
	}
}
