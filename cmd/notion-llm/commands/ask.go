package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/karthikgk97/notion-llm/internal/answer"
)

// NewAskCmd constructs the `notion-llm ask` command, which answers a question
// from the indexed pages and streams the response to stdout.
func NewAskCmd(s *session) *cobra.Command {
	var (
		collection  string
		filters     []string
		mode        string
		showSources bool
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question from the indexed Notion pages",
		Long: `Retrieve the pages most relevant to the question and ask the configured
chat model to answer from them. The answer streams to stdout as it is
generated.

The chat model is selected with MODEL_PROVIDER (ollama, openai, azure, ark,
gemini) and its provider-specific variables.

Examples:
  notion-llm ask "what do I need for tiramisu?"
  MODEL_PROVIDER=openai notion-llm ask --sources "which dishes use arborio rice?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := s.log
			question := questionText(args)
			s.collection = collectionName(collection)
			s.queryLen = len(question)

			conds, m, err := parseFilter(filters, mode)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			r, err := buildRAG(log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer r.close(log)

			a, flush, err := buildAnswerer(ctx, r.retriever, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer flush()

			out := cmd.OutOrStdout()
			docs, err := a.Ask(ctx, answer.Request{
				Collection: s.collection,
				Question:   question,
				Conditions: conds,
				Mode:       m,
			}, out)
			fmt.Fprintln(out)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			log.Debug("answer grounded", slog.Int("pages", len(docs)))

			if showSources && len(docs) > 0 {
				fmt.Fprintln(out, "\nSources:")
				for i, d := range docs {
					fmt.Fprintf(out, "  %d. %s (%.2f)\n", i+1, d.Key, d.Score)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (default: $QDRANT_COLLECTION or "+DefaultCollection+")")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Metadata condition key=value applied to retrieval (repeatable)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "all", "How filter conditions combine: all or any")
	cmd.Flags().BoolVar(&showSources, "sources", false, "List the pages the answer was grounded in")

	return cmd
}
