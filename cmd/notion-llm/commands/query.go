package commands

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/karthikgk97/notion-llm/internal/rag"
)

// NewQueryCmd constructs the `notion-llm query` command, which runs a
// filtered similarity query and prints the ranked pages.
func NewQueryCmd(s *session) *cobra.Command {
	var (
		collection string
		filters    []string
		mode       string
		limit      int
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Find the pages most similar to a query",
		Long: `Embed the query text and return the closest pages in the collection, best
first. --filter restricts results to pages whose metadata matches; --mode
decides whether every condition (all) or at least one (any) must hold.

Examples:
  notion-llm query "something with mascarpone"
  notion-llm query --filter cuisine=italian --limit 3 "quick dinner"
  notion-llm query --filter dish_name=Tiramisu --filter dish_name=Risotto --mode any "coffee"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := s.log
			text := questionText(args)
			s.collection = collectionName(collection)
			s.queryLen = len(text)

			conds, m, err := parseFilter(filters, mode)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			r, err := buildRAG(log)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			defer r.close(log)

			docs, err := r.retriever.Retrieve(ctx, rag.QueryRequest{
				Collection: s.collection,
				Text:       text,
				Conditions: conds,
				Mode:       m,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				type result struct {
					Title string  `json:"title,omitempty"`
					Text  string  `json:"text"`
					Score float32 `json:"score"`
				}
				results := make([]result, 0, len(docs))
				for _, d := range docs {
					results = append(results, result{Title: d.Key, Text: d.Text, Score: d.Score})
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			if len(docs) == 0 {
				fmt.Fprintln(out, "no matching pages")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tTITLE\tTEXT")
			for _, d := range docs {
				fmt.Fprintf(tw, "%.4f\t%s\t%s\n", d.Score, d.Key, snippet(d.Text, 80))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "Collection name (default: $QDRANT_COLLECTION or "+DefaultCollection+")")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Metadata condition key=value (repeatable)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "all", "How filter conditions combine: all or any")
	cmd.Flags().IntVarP(&limit, "limit", "n", rag.DefaultLimit, "Maximum number of results")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	return cmd
}

// snippet returns the first line of s, cut to at most n runes.
func snippet(s string, n int) string {
	for i, r := range s {
		if r == '\n' {
			s = s[:i]
			break
		}
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
