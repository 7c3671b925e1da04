package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/karthikgk97/notion-llm/internal/config"
	"github.com/karthikgk97/notion-llm/internal/ingestion"
	"github.com/karthikgk97/notion-llm/internal/notion"
	"github.com/karthikgk97/notion-llm/internal/rag"
	"github.com/karthikgk97/notion-llm/internal/store"
)

// ingestOptions are the flags shared by `ingest` and `serve --ingest`.
type ingestOptions struct {
	collection string
	rootPageID string
	meta       []string
	force      bool
	batchSize  int
	quiet      bool
}

// NewIngestCmd constructs the `notion-llm ingest` command, which indexes the
// child pages of a Notion page into the vector store.
func NewIngestCmd(s *session) *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index the child pages of a Notion page into the vector store",
		Long: `Fetch every child page of a Notion page, flatten its blocks to text and
upsert one point per page into the collection. The collection is created
when missing, sized to the embedding model.

Pages whose content has not changed since the last ingest are skipped, using
the local ledger (~/.notion-llm/ledger.db). Use --force to re-embed them.

Required environment variables:
  NOTION_API_KEY        Notion integration token
  NOTION_ROOT_PAGE_ID   Page whose children are indexed (or --root)

Examples:
  notion-llm ingest
  notion-llm ingest --root 34e444a4324c4e98b5f01d0965580fb2 --collection recipes
  notion-llm ingest --meta cuisine=italian --meta source=notion --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := s.log
			s.collection = collectionName(opts.collection)

			r, err := buildRAG(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer r.close(log)

			ledger, err := openLedger(log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			if ledger != nil {
				defer func() { _ = ledger.Close() }()
			}

			var out io.Writer = os.Stderr
			if opts.quiet {
				out = io.Discard
			}
			res, err := runIngest(ctx, r, ledger, &opts, nil, out, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "collection %s: %d pages, %d upserted, %d unchanged\n",
				s.collection, res.Total, res.Upserted, res.Skipped)
			return nil
		},
	}

	addIngestFlags(cmd, &opts)
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Do not draw a progress bar")

	return cmd
}

// addIngestFlags registers the ingestion flags on cmd.
func addIngestFlags(cmd *cobra.Command, opts *ingestOptions) {
	cmd.Flags().StringVarP(&opts.collection, "collection", "c", "", "Collection name (default: $QDRANT_COLLECTION or "+DefaultCollection+")")
	cmd.Flags().StringVar(&opts.rootPageID, "root", "", "Notion page whose children are indexed (default: $NOTION_ROOT_PAGE_ID)")
	cmd.Flags().StringArrayVar(&opts.meta, "meta", nil, "Static key=value metadata added to every page (repeatable)")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Re-embed pages even when unchanged")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Pages embedded and upserted per batch (default: $UPSERT_BATCH_SIZE or 100)")
}

// runIngest fetches the Notion pages and runs them through the pipeline,
// drawing a progress bar on out.
func runIngest(ctx context.Context, r *ragStack, ledger store.Ledger, opts *ingestOptions, metrics *ingestion.Metrics, out io.Writer, log *slog.Logger) (ingestion.Result, error) {
	rootID := opts.rootPageID
	if rootID == "" {
		rootID = config.String("NOTION_ROOT_PAGE_ID", "")
	}
	if rootID == "" {
		return ingestion.Result{}, fmt.Errorf("a root page is required: set NOTION_ROOT_PAGE_ID or pass --root")
	}

	extra, err := ingestion.ParsePairs(opts.meta)
	if err != nil {
		return ingestion.Result{}, err
	}

	client, err := notion.NewClientFromEnv()
	if err != nil {
		return ingestion.Result{}, err
	}

	log.Info("fetching notion pages", slog.String("root", rootID))
	docs, err := client.Documents(ctx, rootID)
	if err != nil {
		return ingestion.Result{}, err
	}
	log.Info("notion pages fetched", slog.Int("pages", len(docs)))

	collection := collectionName(opts.collection)
	p, err := ingestion.NewPipeline(r.collections, rag.NewPointBuilder(r.embedder), ledger, &ingestion.Config{
		Collection: collection,
		TitleKey:   titleKey(),
		BatchSize:  opts.batchSize,
		Extra:      extra,
		Force:      opts.force,
		Metrics:    metrics,
	})
	if err != nil {
		return ingestion.Result{}, err
	}

	bar := progressbar.NewOptions(len(docs),
		progressbar.OptionSetWriter(out),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Ingesting[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(out)
		}),
	)

	res, err := p.Run(ctx, docs, func(done, _ int) {
		_ = bar.Set(done)
	})
	if err != nil {
		return res, err
	}
	_ = bar.Finish()

	log.Info("ingestion complete",
		slog.String("collection", collection),
		slog.Bool("created", res.Created),
		slog.Int("total", res.Total),
		slog.Int("upserted", res.Upserted),
		slog.Int("skipped", res.Skipped),
		slog.Any("metadata", ingestion.FormatPairs(extra)),
	)
	return res, nil
}
