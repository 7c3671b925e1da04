// Package commands defines all Cobra CLI commands for the notion-llm binary.
package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/karthikgk97/notion-llm/internal/audit"
	"github.com/karthikgk97/notion-llm/internal/config"
	"github.com/karthikgk97/notion-llm/internal/logging"
)

// session is the state shared by the root command and its subcommands for
// one invocation.
type session struct {
	// configPath holds the --config flag value.
	configPath string
	// loadedConfigPath is the config file actually read, for audit logging.
	loadedConfigPath string
	// log is built after the config file has been applied to the environment.
	log *slog.Logger
	// audit receives the command's outcome. Nil when the log cannot be opened.
	audit *audit.Logger
	// start is when the command began.
	start time.Time
	// collection and queryLen are filled in by subcommands for the audit event.
	collection string
	queryLen   int
}

// Execute runs the root command and appends its outcome to the audit log.
func Execute(ctx context.Context) error {
	root, s := newRoot()
	cmd, err := root.ExecuteContextC(ctx)

	if s.audit != nil {
		name := root.Name()
		if cmd != nil {
			name = cmd.CommandPath()
		}
		s.audit.Record(ctx, audit.Event{
			Kind:       "command",
			Name:       name,
			Collection: s.collection,
			QueryLen:   s.queryLen,
			Duration:   time.Since(s.start),
			Err:        err,
		})
		_ = s.audit.Close()
	}
	return err
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root, _ := newRoot()
	return root
}

func newRoot() (*cobra.Command, *session) {
	s := &session{log: logging.New()}

	root := &cobra.Command{
		Use:   "notion-llm",
		Short: "Semantic search and Q&A over your Notion pages",
		Long: `notion-llm indexes the child pages of a Notion page into a vector store
(Qdrant, or an in-memory index) and answers filtered similarity queries over
them. With a chat model configured it also answers questions grounded in the
retrieved pages.

Configuration comes from environment variables or a YAML config file
(~/.notion-llm/config.yaml). Environment variables always win.
See 'notion-llm --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			s.start = time.Now()

			path, err := config.Load(s.configPath, s.log)
			if err != nil {
				return err
			}
			s.loadedConfigPath = path

			// LOG_LEVEL and LOG_FORMAT may have come from the file.
			s.log = logging.New()
			cmd.SetContext(logging.WithLogger(cmd.Context(), s.log))

			auditLog, err := audit.Open(config.String("NOTION_LLM_AUDIT_LOG", audit.DefaultPath()))
			if err != nil {
				s.log.Warn("audit: log unavailable, continuing without it", slog.Any("error", err))
			} else {
				s.audit = auditLog
			}
			audit.LogCommandStart(s.log, cmd.Name(), s.loadedConfigPath)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&s.configPath, "config", "", "Path to YAML config file (default: ~/.notion-llm/config.yaml)")

	root.AddCommand(
		NewIngestCmd(s),
		NewQueryCmd(s),
		NewAskCmd(s),
		NewCollectionsCmd(s),
		NewModelsCmd(),
		NewServeCmd(s),
		NewVersionCmd(),
	)

	return root, s
}
