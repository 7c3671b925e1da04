package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/karthikgk97/notion-llm/internal/config"
	"github.com/karthikgk97/notion-llm/internal/embedder"
)

// NewModelsCmd constructs the `notion-llm models` command, which lists the
// supported embedding models.
func NewModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the supported embedding models",
		Long: `List every embedding model notion-llm can use, with its vector dimension.
The model marked with * is the one EMBEDDING_MODEL currently selects.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			selected := embedder.Select(config.String("EMBEDDING_MODEL", "")).Name

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "\tNAME\tDIM\tHUGGING FACE\tDESCRIPTION")
			for _, m := range embedder.ListModels() {
				mark := ""
				if m.Name == selected {
					mark = "*"
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", mark, m.Name, m.Dimension, m.HuggingFaceID, m.Description)
			}
			return tw.Flush()
		},
	}
}
