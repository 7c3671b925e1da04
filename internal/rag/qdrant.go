package rag

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultQdrantURL is the gRPC endpoint used when no URL is configured.
const DefaultQdrantURL = "http://localhost:6334"

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// URL is the gRPC endpoint, e.g. http://localhost:6334. An https scheme
	// enables TLS. Defaults to DefaultQdrantURL.
	URL string

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UserAgent is sent with every gRPC call.
	UserAgent string
}

// QdrantStore implements Store backed by a Qdrant instance over gRPC.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
}

// NewQdrantStore parses the configured URL and opens a client. The
// connection is lazy; the first call surfaces an unreachable server.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	clientCfg, err := qdrantClientConfig(cfg)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w: %w", ErrConnection, err)
	}
	return &QdrantStore{client: client}, nil
}

// qdrantClientConfig converts a QdrantConfig into the go-client config.
func qdrantClientConfig(cfg *QdrantConfig) (*qdrant.Config, error) {
	raw := cfg.URL
	if raw == "" {
		raw = DefaultQdrantURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("qdrant: invalid url %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("qdrant: invalid url %q: missing host", raw)
	}

	port := 6334
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("qdrant: invalid port in %q: %w", raw, err)
		}
	}

	var opts []grpc.DialOption
	if cfg.UserAgent != "" {
		opts = append(opts, grpc.WithUserAgent(cfg.UserAgent))
	}

	return &qdrant.Config{
		Host:        u.Hostname(),
		Port:        port,
		APIKey:      cfg.APIKey,
		UseTLS:      u.Scheme == "https",
		GrpcOptions: opts,
		// Compatibility probing issues a call at construction time.
		SkipCompatibilityCheck: true,
	}, nil
}

// Client exposes the underlying client for health checks.
func (s *QdrantStore) Client() *qdrant.Client {
	return s.client
}

// CollectionExists reports whether the named collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection %q: %w", name, classify(err))
	}
	return exists, nil
}

// CreateCollection creates a cosine collection sized to dimension.
func (s *QdrantStore) CreateCollection(ctx context.Context, name string, dimension int) (bool, error) {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return false, nil
		}
		return false, fmt.Errorf("qdrant: failed to create collection %q: %w", name, classify(err))
	}
	return true, nil
}

// DeleteCollection drops a collection. The raw collections client is used so
// the store's boolean result is reported instead of being turned into an error.
func (s *QdrantStore) DeleteCollection(ctx context.Context, name string) (bool, error) {
	resp, err := s.client.GetCollectionsClient().Delete(ctx, &qdrant.DeleteCollection{
		CollectionName: name,
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("qdrant: failed to delete collection %q: %w", name, classify(err))
	}
	return resp.GetResult(), nil
}

// ListCollections returns the names of all collections.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to list collections: %w", classify(err))
	}
	return names, nil
}

// CollectionDimension returns the vector size of a single-vector collection.
func (s *QdrantStore) CollectionDimension(ctx context.Context, name string) (int, error) {
	info, err := s.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("qdrant: failed to get collection %q: %w", name, classify(err))
	}
	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		return 0, fmt.Errorf("qdrant: collection %q has no single vector config: %w", name, ErrParse)
	}
	return int(params.GetSize()), nil
}

// Upsert writes points in a single blocking request so they are searchable
// when it returns.
func (s *QdrantStore) Upsert(ctx context.Context, name string, points []Point) error {
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload := make(map[string]*qdrant.Value, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = qdrant.NewValueString(v)
		}
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID.String()),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: name,
		Wait:           qdrant.PtrOf(true),
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", name, classify(err))
	}
	return nil
}

// Search runs a nearest-neighbour query with an optional payload filter.
func (s *QdrantStore) Search(ctx context.Context, name string, vector []float32, filter *Filter, limit int) ([]Hit, error) {
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: name,
		Query:          qdrant.NewQueryDense(vector),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         toQdrantFilter(filter),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search in %q failed: %w", name, classify(err))
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit := Hit{
			ID:      r.GetId().GetUuid(),
			Score:   r.GetScore(),
			Payload: make(map[string]string, len(r.GetPayload())),
		}
		for k, v := range r.GetPayload() {
			hit.Payload[k] = valueString(v)
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// toQdrantFilter maps ALL onto Must and ANY onto Should.
func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || len(f.Conditions) == 0 {
		return nil
	}
	conds := make([]*qdrant.Condition, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		conds = append(conds, qdrant.NewMatch(c.Key, c.Value))
	}
	if f.Mode == FilterAny {
		return &qdrant.Filter{Should: conds}
	}
	return &qdrant.Filter{Must: conds}
}

// valueString renders a payload value as text. Points written by this
// package only carry strings; other kinds come from foreign writers.
func valueString(v *qdrant.Value) string {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return strconv.FormatInt(k.IntegerValue, 10)
	case *qdrant.Value_DoubleValue:
		return strconv.FormatFloat(k.DoubleValue, 'f', -1, 64)
	case *qdrant.Value_BoolValue:
		return strconv.FormatBool(k.BoolValue)
	default:
		return ""
	}
}

// classify attaches the matching failure kind to a gRPC error.
func classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case codes.Canceled, codes.DeadlineExceeded:
		return err
	default:
		return fmt.Errorf("%w: %w", ErrConnection, err)
	}
}
