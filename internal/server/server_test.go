package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/karthikgk97/notion-llm/internal/answer"
	"github.com/karthikgk97/notion-llm/internal/logging"
	"github.com/karthikgk97/notion-llm/internal/rag"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeRetriever returns fixed documents and remembers the last request.
type fakeRetriever struct {
	mu   sync.Mutex
	docs []rag.Document
	err  error
	got  rag.QueryRequest
}

func (f *fakeRetriever) Retrieve(_ context.Context, req rag.QueryRequest) ([]rag.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = req
	return f.docs, f.err
}

// fakeCollections is a test double for the Collections interface.
type fakeCollections struct {
	names   []string
	created bool
	deleted bool
	err     error
}

func (f *fakeCollections) Create(context.Context, string) (bool, error) { return f.created, f.err }
func (f *fakeCollections) Delete(context.Context, string) (bool, error) { return f.deleted, f.err }
func (f *fakeCollections) List(context.Context) ([]string, error)       { return f.names, f.err }

// fakeAsker writes chunks to w, or blocks until the context ends when block is set.
type fakeAsker struct {
	chunks []string
	docs   []rag.Document
	err    error
	block  bool
}

func (f *fakeAsker) Ask(ctx context.Context, _ answer.Request, w io.Writer) ([]rag.Document, error) {
	if f.block {
		<-ctx.Done()
		return nil, fmt.Errorf("answer: stream: %w", ctx.Err())
	}
	for _, c := range f.chunks {
		_, _ = io.WriteString(w, c)
	}
	return f.docs, f.err
}

// fakeLedger records the collections it was asked to forget.
type fakeLedger struct {
	forgotten []string
	n         int64
	err       error
}

func (f *fakeLedger) Forget(_ context.Context, collection string) (int64, error) {
	f.forgotten = append(f.forgotten, collection)
	return f.n, f.err
}

// newTestServer builds a *Server around deps without starting a listener.
// Handlers are called directly.
func newTestServer(deps Deps) *Server {
	return &Server{
		deps: deps,
		cfg: &Config{
			AskTimeout:        time.Minute,
			DefaultCollection: "recipes",
		},
		log:     logging.Discard(),
		metrics: newServerMetrics(prometheus.NewRegistry()),
	}
}

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// ---------------------------------------------------------------------------
// POST /api/query
// ---------------------------------------------------------------------------

func TestHandleQuery_Success(t *testing.T) {
	t.Parallel()

	r := &fakeRetriever{docs: []rag.Document{
		{Key: "Tiramisu", Text: "layer mascarpone and coffee", Score: 0.91},
		{Key: "Risotto", Text: "toast rice and add stock", Score: 0.42},
	}}
	s := newTestServer(Deps{Retriever: r})

	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query",
		`{"query":"coffee","filter":{"category":"dessert"},"mode":"any","limit":2}`))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp queryResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Results) != 2 || resp.Results[0].Title != "Tiramisu" || resp.Results[0].Score != 0.91 {
		t.Errorf("unexpected results: %+v", resp.Results)
	}

	if r.got.Collection != "recipes" {
		t.Errorf("collection: expected default %q, got %q", "recipes", r.got.Collection)
	}
	if r.got.Mode != rag.FilterAny || r.got.Limit != 2 || r.got.Conditions["category"] != "dessert" {
		t.Errorf("request not forwarded: %+v", r.got)
	}
	if got := testutil.ToFloat64(s.metrics.queryRequestsTotal.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("query ok counter: want 1, got %v", got)
	}
}

func TestHandleQuery_EmptyResultsIsArray(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Retriever: &fakeRetriever{}})
	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{"collection":"c","query":"anything"}`))

	if !strings.Contains(w.Body.String(), `"results":[]`) {
		t.Errorf("expected an empty results array, got %s", w.Body.String())
	}
}

func TestHandleQuery_Validation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
	}{
		{"invalid json", `not-json`},
		{"missing query", `{"collection":"c"}`},
		{"blank query", `{"query":"   "}`},
		{"unknown mode", `{"query":"q","mode":"some"}`},
		{"negative limit", `{"query":"q","limit":-1}`},
		{"limit too large", `{"query":"q","limit":101}`},
	}
	for _, tc := range cases {
		s := newTestServer(Deps{Retriever: &fakeRetriever{}})
		w := httptest.NewRecorder()
		s.handleQuery(w, postJSON("/api/query", tc.body))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
		}
	}
}

func TestHandleQuery_NoCollection(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Retriever: &fakeRetriever{}})
	s.cfg.DefaultCollection = ""
	w := httptest.NewRecorder()
	s.handleQuery(w, postJSON("/api/query", `{"query":"q"}`))

	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "collection is required") {
		t.Errorf("expected 400 collection is required, got %d %s", w.Code, w.Body.String())
	}
}

func TestHandleQuery_ErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err     error
		want    int
		outcome string
	}{
		{fmt.Errorf("memory: collection %q: %w", "x", rag.ErrNotFound), http.StatusNotFound, outcomeNotFound},
		{fmt.Errorf("qdrant: %w", rag.ErrConnection), http.StatusBadGateway, outcomeError},
		{fmt.Errorf("embedder: %w", rag.ErrEmbedding), http.StatusBadGateway, outcomeError},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, outcomeTimeout},
		{errors.New("boom"), http.StatusInternalServerError, outcomeError},
	}
	for _, tc := range cases {
		s := newTestServer(Deps{Retriever: &fakeRetriever{err: tc.err}})
		w := httptest.NewRecorder()
		s.handleQuery(w, postJSON("/api/query", `{"query":"q"}`))

		if w.Code != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
		var body map[string]string
		if err := json.NewDecoder(w.Body).Decode(&body); err != nil || body["error"] == "" {
			t.Errorf("%v: expected JSON error body, got %v", tc.err, err)
		}
		if got := testutil.ToFloat64(s.metrics.queryRequestsTotal.WithLabelValues(tc.outcome)); got != 1 {
			t.Errorf("%v: %s counter: want 1, got %v", tc.err, tc.outcome, got)
		}
	}
}

// ---------------------------------------------------------------------------
// POST /api/ask
// ---------------------------------------------------------------------------

func TestHandleAsk_NotConfigured(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Retriever: &fakeRetriever{}})
	w := httptest.NewRecorder()
	s.handleAsk(w, postJSON("/api/ask", `{"question":"q"}`))

	if w.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", w.Code)
	}
}

func TestHandleAsk_MissingQuestion(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Retriever: &fakeRetriever{}, Asker: &fakeAsker{}})
	w := httptest.NewRecorder()
	s.handleAsk(w, postJSON("/api/ask", `{"collection":"recipes"}`))

	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "question is required") {
		t.Errorf("expected 400 question is required, got %d %s", w.Code, w.Body.String())
	}
}

// TestHandleAsk_Streams verifies the answer is streamed as SSE data frames,
// multi-line chunks stay inside one frame, and the sources and done events
// close the stream.
func TestHandleAsk_Streams(t *testing.T) {
	t.Parallel()

	a := &fakeAsker{
		chunks: []string{"Layer mascarpone", "\nthen dust cocoa."},
		docs:   []rag.Document{{Key: "Tiramisu", Score: 0.8}},
	}
	s := newTestServer(Deps{Retriever: &fakeRetriever{}, Asker: a})

	w := httptest.NewRecorder()
	s.handleAsk(w, postJSON("/api/ask", `{"question":"how do I make tiramisu?"}`))

	body := w.Body.String()
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type: expected text/event-stream, got %q", ct)
	}
	for _, want := range []string{
		"data: Layer mascarpone\n\n",
		"data: \ndata: then dust cocoa.\n\n",
		"event: sources\ndata: [{\"title\":\"Tiramisu\",\"score\":0.8}]",
		"event: done\ndata: [DONE]",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body, got:\n%s", want, body)
		}
	}
	if got := testutil.ToFloat64(s.metrics.askRequestsTotal.WithLabelValues(outcomeOK)); got != 1 {
		t.Errorf("ask ok counter: want 1, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.askActiveStreams); got != 0 {
		t.Errorf("active streams after completion: want 0, got %v", got)
	}
}

// TestHandleAsk_Error verifies that a failing answer is reported in-band as
// an SSE error event with a 200 status.
func TestHandleAsk_Error(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Retriever: &fakeRetriever{}, Asker: &fakeAsker{err: errors.New("model unavailable")}})
	w := httptest.NewRecorder()
	s.handleAsk(w, postJSON("/api/ask", `{"question":"q"}`))

	body := w.Body.String()
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 for in-band error, got %d", w.Code)
	}
	if !strings.Contains(body, "event: error\ndata: model unavailable") {
		t.Errorf("expected error event in body, got: %s", body)
	}
	if strings.Contains(body, "event: done") {
		t.Errorf("did not expect done event after error, got: %s", body)
	}
}

func TestHandleAsk_Timeout(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Retriever: &fakeRetriever{}, Asker: &fakeAsker{block: true}})
	s.cfg.AskTimeout = 20 * time.Millisecond

	w := httptest.NewRecorder()
	s.handleAsk(w, postJSON("/api/ask", `{"question":"q"}`))

	if !strings.Contains(w.Body.String(), "event: error") {
		t.Errorf("expected error event, got: %s", w.Body.String())
	}
	if got := testutil.ToFloat64(s.metrics.askRequestsTotal.WithLabelValues(outcomeTimeout)); got != 1 {
		t.Errorf("ask timeout counter: want 1, got %v", got)
	}
}

// ---------------------------------------------------------------------------
// /api/collections
// ---------------------------------------------------------------------------

func TestHandleListCollections(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Collections: &fakeCollections{names: []string{"recipes", "travel"}}})
	w := httptest.NewRecorder()
	s.handleListCollections(w, httptest.NewRequest(http.MethodGet, "/api/collections", nil))

	var resp collectionsResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Collections) != 2 || resp.Collections[1] != "travel" {
		t.Errorf("unexpected collections: %v", resp.Collections)
	}

	s = newTestServer(Deps{Collections: &fakeCollections{}})
	w = httptest.NewRecorder()
	s.handleListCollections(w, httptest.NewRequest(http.MethodGet, "/api/collections", nil))
	if !strings.Contains(w.Body.String(), `"collections":[]`) {
		t.Errorf("expected empty array, got %s", w.Body.String())
	}
}

func TestHandleCreateCollection(t *testing.T) {
	t.Parallel()

	cases := []struct {
		created bool
		want    int
	}{
		{true, http.StatusCreated},
		{false, http.StatusOK},
	}
	for _, tc := range cases {
		s := newTestServer(Deps{Collections: &fakeCollections{created: tc.created}})
		req := httptest.NewRequest(http.MethodPost, "/api/collections/recipes", nil)
		req.SetPathValue("name", "recipes")
		w := httptest.NewRecorder()
		s.handleCreateCollection(w, req)

		if w.Code != tc.want {
			t.Errorf("created=%v: expected %d, got %d", tc.created, tc.want, w.Code)
		}
		want := fmt.Sprintf(`"created":%v`, tc.created)
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("created=%v: expected %s in %s", tc.created, want, w.Body.String())
		}
	}
}

func TestHandleDeleteCollection_ForgetsLedger(t *testing.T) {
	t.Parallel()

	ledger := &fakeLedger{n: 3}
	s := newTestServer(Deps{Collections: &fakeCollections{deleted: true}, Ledger: ledger})
	req := httptest.NewRequest(http.MethodDelete, "/api/collections/recipes", nil)
	req.SetPathValue("name", "recipes")
	w := httptest.NewRecorder()
	s.handleDeleteCollection(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp collectionResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Deleted == nil || !*resp.Deleted || resp.Forgotten != 3 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(ledger.forgotten) != 1 || ledger.forgotten[0] != "recipes" {
		t.Errorf("ledger.Forget calls: %v", ledger.forgotten)
	}
}

func TestHandleDeleteCollection_Errors(t *testing.T) {
	t.Parallel()

	s := newTestServer(Deps{Collections: &fakeCollections{err: fmt.Errorf("qdrant: %w", rag.ErrConnection)}})
	req := httptest.NewRequest(http.MethodDelete, "/api/collections/recipes", nil)
	req.SetPathValue("name", "recipes")
	w := httptest.NewRecorder()
	s.handleDeleteCollection(w, req)
	if w.Code != http.StatusBadGateway {
		t.Errorf("store failure: expected 502, got %d", w.Code)
	}

	ledger := &fakeLedger{err: errors.New("database is locked")}
	s = newTestServer(Deps{Collections: &fakeCollections{deleted: true}, Ledger: ledger})
	w = httptest.NewRecorder()
	s.handleDeleteCollection(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("ledger failure: expected 500, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// New: full handler chain over an in-memory store
// ---------------------------------------------------------------------------

// letterEmbedder counts letters a-z; texts sharing letters are similar.
type letterEmbedder struct{}

func (letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

func (letterEmbedder) Dimension() int { return 26 }

func newMemoryDeps(t *testing.T) Deps {
	t.Helper()
	ctx := context.Background()
	emb := letterEmbedder{}
	cm, err := rag.NewCollectionManager(rag.NewMemoryStore(), emb, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cm.Create(ctx, "recipes"); err != nil {
		t.Fatal(err)
	}
	points, err := rag.NewPointBuilder(emb).BuildBatch(ctx,
		[]string{"Tiramisu", "Risotto"},
		[]string{"mascarpone coffee ladyfingers", "arborio rice stock parmesan"},
		[]map[string]string{{"dish_name": "Tiramisu"}, {"dish_name": "Risotto"}},
	)
	if err != nil {
		t.Fatal(err)
	}
	if err := cm.Upsert(ctx, "recipes", points, 0); err != nil {
		t.Fatal(err)
	}
	r, err := rag.NewRetriever(emb, cm, "dish_name")
	if err != nil {
		t.Fatal(err)
	}
	return Deps{Retriever: r, Collections: cm}
}

func TestNew_RequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, nil); err == nil {
		t.Error("expected error for missing retriever")
	}
	if _, err := New(Deps{Retriever: &fakeRetriever{}}, nil); err == nil {
		t.Error("expected error for missing collections")
	}
}

func TestNew_Routes(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	s, err := New(newMemoryDeps(t), &Config{
		APIKey:          "secret",
		Logger:          logging.Discard(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.stopRL)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	do := func(method, path, body, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequestWithContext(t.Context(), method, srv.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		return resp
	}

	if resp := do(http.MethodGet, "/api/health", "", ""); resp.StatusCode != http.StatusOK {
		t.Errorf("health without token: expected 200, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodPost, "/api/query", `{"collection":"recipes","query":"coffee"}`, ""); resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("query without token: expected 401, got %d", resp.StatusCode)
	}

	resp := do(http.MethodPost, "/api/query", `{"collection":"recipes","query":"mascarpone coffee","limit":1}`, "secret")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query: expected 200, got %d", resp.StatusCode)
	}
	var qr queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(qr.Results) != 1 || qr.Results[0].Title != "Tiramisu" {
		t.Errorf("unexpected results: %+v", qr.Results)
	}

	if resp := do(http.MethodPost, "/api/query", `{"collection":"missing","query":"x"}`, "secret"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("query on missing collection: expected 404, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodPost, "/api/ask", `{"question":"x"}`, "secret"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("ask without chat model: expected 404, got %d", resp.StatusCode)
	}
	if resp := do(http.MethodPost, "/api/collections/travel", "", "secret"); resp.StatusCode != http.StatusCreated {
		t.Errorf("create collection: expected 201, got %d", resp.StatusCode)
	}

	resp = do(http.MethodGet, "/api/collections", "", "secret")
	var cr collectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(cr.Collections, ",") != "recipes,travel" {
		t.Errorf("collections: got %v", cr.Collections)
	}

	resp = do(http.MethodGet, "/metrics", "", "")
	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), `notion_llm_http_requests_total{code="200",handler="POST /api/query",method="POST"} 1`) {
		t.Errorf("expected instrumented query request in /metrics, got:\n%s", raw)
	}
}
