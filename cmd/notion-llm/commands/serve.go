package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/karthikgk97/notion-llm/internal/config"
	"github.com/karthikgk97/notion-llm/internal/embedder"
	"github.com/karthikgk97/notion-llm/internal/ingestion"
	"github.com/karthikgk97/notion-llm/internal/logging"
	"github.com/karthikgk97/notion-llm/internal/provider"
	"github.com/karthikgk97/notion-llm/internal/server"
)

// pingClientTimeout bounds each HTTP readiness check.
const pingClientTimeout = 5 * time.Second

// NewServeCmd constructs the `notion-llm serve` command, which starts the
// HTTP API.
func NewServeCmd(s *session) *cobra.Command {
	var (
		host   string
		port   int
		ingest bool
		noAsk  bool
		opts   ingestOptions
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the notion-llm HTTP API",
		Long: `Start the HTTP API on localhost.

Endpoints:
  POST   /api/query               filtered similarity query
  POST   /api/ask                 streamed answer (SSE), when MODEL_PROVIDER is set
  GET    /api/collections         list collections
  POST   /api/collections/{name}  create a collection
  DELETE /api/collections/{name}  delete a collection
  GET    /api/health, /api/ready  liveness and readiness
  GET    /metrics                 Prometheus metrics

Set NOTION_LLM_API_KEY to require "Authorization: Bearer <key>" on /api/query,
/api/ask and /api/collections.

With VECTOR_STORE=memory the index lives only as long as the process; pass
--ingest to fill it from Notion at startup.

Examples:
  notion-llm serve
  notion-llm serve --port 9090
  VECTOR_STORE=memory notion-llm serve --ingest`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := s.log
			ctx = logging.WithLogger(ctx, log)
			collection := collectionName(opts.collection)
			s.collection = collection

			r, err := buildRAG(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer r.close(log)

			ledger, err := openLedger(log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			if ledger != nil {
				defer func() { _ = ledger.Close() }()
			}

			if ingest {
				metrics := ingestion.NewMetrics(prometheus.DefaultRegisterer)
				if _, err := runIngest(ctx, r, ledger, &opts, metrics, io.Discard, log); err != nil {
					return fmt.Errorf("serve: startup ingest: %w", err)
				}
			}

			deps := server.Deps{
				Retriever:   r.retriever,
				Collections: r.collections,
			}
			if ledger != nil {
				deps.Ledger = ledger
			}

			var pingers []server.Pinger
			if r.qdrant != nil {
				pingers = append(pingers, server.NewQdrantPinger(r.qdrant.Client()))
			} else {
				pingers = append(pingers, server.NewCollectionsPinger(r.collections, storeMemory))
			}
			pingClient := &http.Client{Timeout: pingClientTimeout}
			if u := embedder.HealthURL(); u != "" {
				pingers = append(pingers, server.NewHTTPPinger("embedder", u, pingClient))
			}

			if noAsk || config.String("MODEL_PROVIDER", "") == "" {
				log.Info("ask endpoint disabled", slog.String("reason", "MODEL_PROVIDER not set or --no-ask"))
			} else {
				a, flush, err := buildAnswerer(ctx, r.retriever, log)
				if err != nil {
					return fmt.Errorf("serve: %w", err)
				}
				defer flush()
				deps.Asker = a

				if pc := provider.ConfigFromEnv(); pc.Backend == provider.BackendOllama {
					pingers = append(pingers, server.NewHTTPPinger("ollama",
						strings.TrimRight(pc.Ollama.Host, "/")+"/api/version", pingClient))
				}
			}

			pingCtx, cancel := context.WithTimeout(ctx, pingClientTimeout)
			if err := server.NewMultiPinger(pingers...).Ping(pingCtx); err != nil {
				log.Warn("dependency not ready at startup", slog.Any("error", err))
			}
			cancel()

			if host == "" {
				host = config.String("NOTION_LLM_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = config.Int("NOTION_LLM_PORT", 8080)
			}

			srv, err := server.New(deps, &server.Config{
				Host:              host,
				Port:              port,
				DefaultCollection: collection,
				Logger:            log,
				Pingers:           pingers,
				RateLimit:         config.Float64("NOTION_LLM_RATE_LIMIT_RPS", 0),
				RateBurst:         config.Int("NOTION_LLM_RATE_LIMIT_BURST", 0),
				APIKey:            config.String("NOTION_LLM_API_KEY", ""),
				Audit:             s.audit,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: $NOTION_LLM_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: $NOTION_LLM_PORT or 8080)")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "Ingest the Notion pages before serving")
	cmd.Flags().BoolVar(&noAsk, "no-ask", false, "Do not expose /api/ask even when a chat model is configured")
	addIngestFlags(cmd, &opts)

	return cmd
}
