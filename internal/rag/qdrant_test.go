package rag

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantClientConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url      string
		wantHost string
		wantPort int
		wantTLS  bool
		wantErr  bool
	}{
		{"", "localhost", 6334, false, false},
		{"http://localhost:6334", "localhost", 6334, false, false},
		{"https://cluster.cloud.qdrant.io:6334", "cluster.cloud.qdrant.io", 6334, true, false},
		{"http://qdrant.internal", "qdrant.internal", 6334, false, false},
		{"http://qdrant:7000", "qdrant", 7000, false, false},
		{"http://:6334", "", 0, false, true},
		{"http://qdrant:port", "", 0, false, true},
	}
	for _, tc := range tests {
		cfg, err := qdrantClientConfig(&QdrantConfig{URL: tc.url, APIKey: "k"})
		if tc.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", tc.url)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: unexpected error: %v", tc.url, err)
			continue
		}
		if cfg.Host != tc.wantHost || cfg.Port != tc.wantPort || cfg.UseTLS != tc.wantTLS {
			t.Errorf("%q: got host=%q port=%d tls=%v, want host=%q port=%d tls=%v",
				tc.url, cfg.Host, cfg.Port, cfg.UseTLS, tc.wantHost, tc.wantPort, tc.wantTLS)
		}
		if cfg.APIKey != "k" {
			t.Errorf("%q: api key not propagated", tc.url)
		}
	}
}

func TestToQdrantFilter(t *testing.T) {
	t.Parallel()

	if f := toQdrantFilter(nil); f != nil {
		t.Errorf("nil filter mapped to %v", f)
	}

	conds := map[string]string{"category": "dessert", "cuisine": "italian"}

	all := toQdrantFilter(NewFilter(FilterAll, conds))
	if len(all.GetMust()) != 2 || len(all.GetShould()) != 0 {
		t.Errorf("ALL filter: must=%d should=%d, want must=2", len(all.GetMust()), len(all.GetShould()))
	}

	anyOf := toQdrantFilter(NewFilter(FilterAny, conds))
	if len(anyOf.GetShould()) != 2 || len(anyOf.GetMust()) != 0 {
		t.Errorf("ANY filter: must=%d should=%d, want should=2", len(anyOf.GetMust()), len(anyOf.GetShould()))
	}

	field := all.GetMust()[0].GetField()
	if field.GetKey() != "category" || field.GetMatch().GetKeyword() != "dessert" {
		t.Errorf("first condition = %v, want category=dessert", field)
	}
}

func TestValueString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   *qdrant.Value
		want string
	}{
		{qdrant.NewValueString("plain"), "plain"},
		{qdrant.NewValueInt(42), "42"},
		{qdrant.NewValueDouble(1.5), "1.5"},
		{qdrant.NewValueBool(true), "true"},
		{qdrant.NewValueNull(), ""},
	}
	for _, tc := range tests {
		if got := valueString(tc.in); got != tc.want {
			t.Errorf("valueString(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	notFound := classify(fmt.Errorf("wrapped: %w", status.Error(codes.NotFound, "Collection `x` doesn't exist!")))
	if !errors.Is(notFound, ErrNotFound) {
		t.Errorf("NotFound mapped to %v", notFound)
	}

	unavailable := classify(status.Error(codes.Unavailable, "connection refused"))
	if !errors.Is(unavailable, ErrConnection) {
		t.Errorf("Unavailable mapped to %v", unavailable)
	}

	canceled := classify(context.Canceled)
	if errors.Is(canceled, ErrConnection) || !errors.Is(canceled, context.Canceled) {
		t.Errorf("context.Canceled mapped to %v", canceled)
	}
}
