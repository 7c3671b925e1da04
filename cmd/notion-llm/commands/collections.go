package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

// NewCollectionsCmd constructs the `notion-llm collections` command group.
func NewCollectionsCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Create, list and delete vector collections",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "create <name>",
			Short: "Create a collection sized to the configured embedding model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				s.collection = args[0]
				r, err := buildRAG(s.log)
				if err != nil {
					return fmt.Errorf("collections create: %w", err)
				}
				defer r.close(s.log)

				created, err := r.collections.Create(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("collections create: %w", err)
				}
				if created {
					fmt.Fprintf(cmd.OutOrStdout(), "created %s (dimension %d, cosine)\n", args[0], r.collections.Dimension())
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s already exists\n", args[0])
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List collections",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				r, err := buildRAG(s.log)
				if err != nil {
					return fmt.Errorf("collections list: %w", err)
				}
				defer r.close(s.log)

				names, err := r.collections.List(cmd.Context())
				if err != nil {
					return fmt.Errorf("collections list: %w", err)
				}
				for _, n := range names {
					fmt.Fprintln(cmd.OutOrStdout(), n)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a collection and forget its ingestion history",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := cmd.Context()
				s.collection = args[0]
				r, err := buildRAG(s.log)
				if err != nil {
					return fmt.Errorf("collections delete: %w", err)
				}
				defer r.close(s.log)

				deleted, err := r.collections.Delete(ctx, args[0])
				if err != nil {
					return fmt.Errorf("collections delete: %w", err)
				}

				ledger, err := openLedger(s.log)
				if err != nil {
					return fmt.Errorf("collections delete: %w", err)
				}
				if ledger != nil {
					defer func() { _ = ledger.Close() }()
					n, err := ledger.Forget(ctx, args[0])
					if err != nil {
						return fmt.Errorf("collections delete: %w", err)
					}
					s.log.Debug("ledger entries forgotten", slog.String("collection", args[0]), slog.Int64("entries", n))
				}

				if deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s did not exist\n", args[0])
				}
				return nil
			},
		},
	)

	return cmd
}
