package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/karthikgk97/notion-llm/internal/answer"
	"github.com/karthikgk97/notion-llm/internal/config"
	"github.com/karthikgk97/notion-llm/internal/embedder"
	"github.com/karthikgk97/notion-llm/internal/ingestion"
	"github.com/karthikgk97/notion-llm/internal/provider"
	"github.com/karthikgk97/notion-llm/internal/rag"
	"github.com/karthikgk97/notion-llm/internal/store"
	"github.com/karthikgk97/notion-llm/internal/tracing"
	"github.com/karthikgk97/notion-llm/internal/version"
)

// DefaultCollection is the collection used when neither --collection nor
// QDRANT_COLLECTION names one.
const DefaultCollection = "notion-llm-cooking"

// Vector store backends accepted by VECTOR_STORE.
const (
	storeQdrant = "qdrant"
	storeMemory = "memory"
)

// ragStack holds the retrieval components a command needs. close releases
// them in reverse order of construction.
type ragStack struct {
	store       rag.Store
	qdrant      *rag.QdrantStore
	embedder    *embedder.Provider
	collections *rag.CollectionManager
	retriever   *rag.Retriever
	closers     []func() error
}

// close releases every component, logging failures.
func (r *ragStack) close(log *slog.Logger) {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Warn("close failed", slog.Any("error", err))
		}
	}
}

// buildRAG wires the configured vector store and embedding model into a
// collection manager and retriever.
func buildRAG(log *slog.Logger) (*ragStack, error) {
	r := &ragStack{}

	switch backend := config.String("VECTOR_STORE", storeQdrant); backend {
	case storeQdrant:
		qs, err := rag.NewQdrantStore(&rag.QdrantConfig{
			URL:       config.String("QDRANT_URL", rag.DefaultQdrantURL),
			APIKey:    config.String("QDRANT_API_KEY", ""),
			UserAgent: version.UserAgent(),
		})
		if err != nil {
			return nil, err
		}
		r.store, r.qdrant = qs, qs
		r.closers = append(r.closers, qs.Close)
		log.Info("vector store ready", slog.String("backend", backend), slog.String("url", config.String("QDRANT_URL", rag.DefaultQdrantURL)))
	case storeMemory:
		r.store = rag.NewMemoryStore()
		log.Info("vector store ready", slog.String("backend", backend))
	default:
		return nil, fmt.Errorf("unknown VECTOR_STORE %q, valid values: qdrant, memory", backend)
	}

	emb, err := embedder.NewFromEnv(log)
	if err != nil {
		r.close(log)
		return nil, err
	}
	r.embedder = emb
	r.closers = append(r.closers, emb.Close)
	log.Info("embedder ready",
		slog.String("model", emb.Model().Name),
		slog.Int("dimension", emb.Dimension()),
		slog.String("backend", config.String("EMBEDDING_BACKEND", embedder.BackendFastEmbed)),
	)

	cm, err := rag.NewCollectionManager(r.store, emb, config.Int("UPSERT_BATCH_SIZE", rag.DefaultBatchSize))
	if err != nil {
		r.close(log)
		return nil, err
	}
	r.collections = cm

	ret, err := rag.NewRetriever(emb, cm, titleKey())
	if err != nil {
		r.close(log)
		return nil, err
	}
	r.retriever = ret
	return r, nil
}

// openLedger opens the ingestion ledger, or returns nil when it is disabled
// with NOTION_LLM_LEDGER_DB=disabled.
func openLedger(log *slog.Logger) (store.Ledger, error) {
	path := config.String("NOTION_LLM_LEDGER_DB", "")
	if path == "disabled" {
		log.Info("ledger: disabled via NOTION_LLM_LEDGER_DB=disabled")
		return nil, nil
	}
	if path == "" {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, err
		}
	}
	l, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	log.Debug("ledger: opened", slog.String("path", path))
	return l, nil
}

// buildAnswerer constructs the chat model from MODEL_PROVIDER and wraps it
// around retriever. The returned flush sends buffered Langfuse traces.
func buildAnswerer(ctx context.Context, retriever *rag.Retriever, log *slog.Logger) (*answer.Answerer, func(), error) {
	flush, traced := tracing.Install()
	if traced {
		log.Info("langfuse tracing enabled")
	}

	cfg := provider.ConfigFromEnv()
	chatModel, err := provider.New(ctx, cfg)
	if err != nil {
		flush()
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("chat model ready", slog.String("provider", string(cfg.Backend)))

	a, err := answer.New(&answer.Config{
		ChatModel:        chatModel,
		Retriever:        retriever,
		TopK:             config.Int("ANSWER_TOP_K", answer.DefaultTopK),
		MaxContextTokens: config.Int("ANSWER_MAX_CONTEXT_TOKENS", 0),
	})
	if err != nil {
		flush()
		return nil, nil, err
	}
	return a, flush, nil
}

// collectionName resolves the --collection flag against the environment.
func collectionName(flag string) string {
	if flag != "" {
		return flag
	}
	return config.String("QDRANT_COLLECTION", DefaultCollection)
}

// titleKey is the payload key holding each page's title.
func titleKey() string {
	return config.String("NOTION_TITLE_KEY", ingestion.DefaultTitleKey)
}

// parseFilter turns --filter key=value pairs and --mode into retrieval
// conditions. An unknown mode is an error on the command line.
func parseFilter(pairs []string, mode string) (map[string]string, rag.FilterMode, error) {
	conds, err := ingestion.ParsePairs(pairs)
	if err != nil {
		return nil, "", fmt.Errorf("--filter: %w", err)
	}
	m, ok := rag.ParseFilterMode(mode)
	if !ok {
		return nil, "", errors.New(`--mode must be "all" or "any"`)
	}
	return conds, m, nil
}

// questionText joins positional arguments into one query string.
func questionText(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}
