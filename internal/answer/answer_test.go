package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/karthikgk97/notion-llm/internal/rag"
)

// fakeChatModel streams canned chunks and records the messages it was sent.
type fakeChatModel struct {
	chunks    []string
	streamErr error

	mu   sync.Mutex
	sent []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.record(msgs)
	return schema.AssistantMessage(strings.Join(f.chunks, ""), nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(msgs)
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	out := make([]*schema.Message, len(f.chunks))
	for i, c := range f.chunks {
		out[i] = schema.AssistantMessage(c, nil)
	}
	return schema.StreamReaderFromArray(out), nil
}

func (f *fakeChatModel) record(msgs []*schema.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = msgs
}

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

func newRetriever(t *testing.T, pages map[string]string) *rag.Retriever {
	t.Helper()
	ctx := context.Background()
	emb := letterEmbedder{}
	cm, err := rag.NewCollectionManager(rag.NewMemoryStore(), emb, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cm.Create(ctx, "cooking"); err != nil {
		t.Fatal(err)
	}
	var keys, texts []string
	var metas []map[string]string
	for k, v := range pages {
		keys = append(keys, k)
		texts = append(texts, v)
		metas = append(metas, map[string]string{"dish_name": k})
	}
	points, err := rag.NewPointBuilder(emb).BuildBatch(ctx, keys, texts, metas)
	if err != nil {
		t.Fatal(err)
	}
	if err := cm.Upsert(ctx, "cooking", points, 0); err != nil {
		t.Fatal(err)
	}
	r, err := rag.NewRetriever(emb, cm, "dish_name")
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(&Config{Retriever: &rag.Retriever{}}); err == nil {
		t.Error("expected error for nil ChatModel")
	}
	if _, err := New(&Config{ChatModel: &fakeChatModel{}}); err == nil {
		t.Error("expected error for nil Retriever")
	}
}

func TestAsk_StreamsAnswerWithContext(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{chunks: []string{"Use ", "mascarpone", "."}}
	a, err := New(&Config{
		ChatModel: cm,
		Retriever: newRetriever(t, map[string]string{
			"Tiramisu": "mascarpone coffee ladyfingers cocoa",
			"Risotto":  "arborio rice stock parmesan",
		}),
		TopK: 1,
	})
	if err != nil {
		t.Fatal(err)
	}

	var out strings.Builder
	used, err := a.Ask(context.Background(), Request{Collection: "cooking", Question: "mascarpone coffee ladyfingers?"}, &out)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if out.String() != "Use mascarpone." {
		t.Errorf("streamed %q", out.String())
	}
	if len(used) != 1 || used[0].Key != "Tiramisu" {
		t.Fatalf("used = %+v, want Tiramisu", used)
	}

	if len(cm.sent) != 3 {
		t.Fatalf("sent %d messages, want system+context+user", len(cm.sent))
	}
	if cm.sent[0].Role != schema.System || cm.sent[2].Role != schema.User {
		t.Errorf("unexpected roles %s/%s", cm.sent[0].Role, cm.sent[2].Role)
	}
	if !strings.Contains(cm.sent[1].Content, "### 1. Tiramisu") ||
		!strings.Contains(cm.sent[1].Content, "mascarpone coffee ladyfingers cocoa") {
		t.Errorf("context message = %q", cm.sent[1].Content)
	}
}

func TestAsk_BudgetDropsLowestRanked(t *testing.T) {
	t.Parallel()

	cm := &fakeChatModel{chunks: []string{"ok"}}
	a, err := New(&Config{
		ChatModel: cm,
		Retriever: newRetriever(t, map[string]string{
			"Tiramisu": "tiramisu " + strings.Repeat("mascarpone ", 60),
			"Risotto":  "risotto " + strings.Repeat("arborio ", 60),
		}),
		TopK:             2,
		MaxContextTokens: 400,
	})
	if err != nil {
		t.Fatal(err)
	}

	used, err := a.Ask(context.Background(), Request{Collection: "cooking", Question: "tiramisu mascarpone"}, &strings.Builder{})
	if err != nil {
		t.Fatal(err)
	}
	if len(used) != 1 || used[0].Key != "Tiramisu" {
		t.Errorf("used = %+v, want only Tiramisu", used)
	}
	if strings.Contains(cm.sent[1].Content, "Risotto") {
		t.Error("dropped page still sent to the model")
	}
}

func TestAsk_Errors(t *testing.T) {
	t.Parallel()

	r := newRetriever(t, map[string]string{"Pho": "broth noodles"})

	a, _ := New(&Config{ChatModel: &fakeChatModel{}, Retriever: r})
	if _, err := a.Ask(context.Background(), Request{Collection: "cooking", Question: "  "}, &strings.Builder{}); err == nil {
		t.Error("expected error for empty question")
	}
	if _, err := a.Ask(context.Background(), Request{Collection: "missing", Question: "pho"}, &strings.Builder{}); !errors.Is(err, rag.ErrNotFound) {
		t.Errorf("missing collection: err = %v, want ErrNotFound", err)
	}

	boom := errors.New("model offline")
	a, _ = New(&Config{ChatModel: &fakeChatModel{streamErr: boom}, Retriever: r})
	if _, err := a.Ask(context.Background(), Request{Collection: "cooking", Question: "pho"}, &strings.Builder{}); !errors.Is(err, boom) {
		t.Errorf("stream failure: err = %v", err)
	}
}
