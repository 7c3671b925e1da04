// Package audit records one JSON line per CLI command and HTTP query so
// operators can trace what ran, against which collection, and how it ended.
//
// Secrets are logged as presence/absence only, never their values. Query
// text is recorded as a length.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/karthikgk97/notion-llm/internal/config"
)

// Outcome values recorded on every event.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// secretEnvKeys lists environment variable names whose values must never be
// logged. Only presence ("set") or absence ("unset") is recorded.
var secretEnvKeys = map[string]bool{
	"NOTION_API_KEY":       true,
	"OPENAI_API_KEY":       true,
	"AZURE_OPENAI_API_KEY": true,
	"ARK_API_KEY":          true,
	"GOOGLE_API_KEY":       true,
	"EMBEDDING_API_KEY":    true,
	"QDRANT_API_KEY":       true,
	"NOTION_LLM_API_KEY":   true,
	"LANGFUSE_PUBLIC_KEY":  true,
	"LANGFUSE_SECRET_KEY":  true,
}

// auditEntry defines an env var to include in the command start entry.
type auditEntry struct {
	// key is the environment variable name.
	key string
	// secret indicates the value should be redacted to presence/absence.
	secret bool
}

// auditKeys is the ordered list of env vars included in every command start entry.
var auditKeys = []auditEntry{
	{"NOTION_API_KEY", true},
	{"NOTION_ROOT_PAGE_ID", false},
	{"NOTION_VERSION", false},
	{"EMBEDDING_BACKEND", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_ENDPOINT", false},
	{"EMBEDDING_API_KEY", true},
	{"VECTOR_STORE", false},
	{"QDRANT_URL", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"ARK_API_KEY", true},
	{"ARK_MODEL", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"NOTION_LLM_API_KEY", true},
	{"NOTION_LLM_LEDGER_DB", false},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// Event is one audited operation.
type Event struct {
	// Kind is "command" for CLI invocations and "endpoint" for HTTP handlers.
	Kind string
	// Name is the command name or the endpoint pattern.
	Name string
	// Collection is the collection the operation targeted, if any.
	Collection string
	// QueryLen is the length in bytes of the query or question text.
	QueryLen int
	// Outcome is OutcomeOK or OutcomeError.
	Outcome string
	// Duration is the wall-clock time the operation took.
	Duration time.Duration
	// Err is the failure, recorded as its message when Outcome is an error.
	Err error
}

// Logger appends audit events as JSON lines. A nil *Logger discards events.
type Logger struct {
	// log writes through a slog JSON handler.
	log *slog.Logger
	// closer releases the underlying file; nil for caller-owned writers.
	closer io.Closer
	// once guards closer.
	once sync.Once
}

// DefaultPath returns ~/.notion-llm/audit.log.
func DefaultPath() string {
	return filepath.Join(config.Dir(), "audit.log")
}

// Open appends to the audit log at path, creating the file and its parent
// directory when needed.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("audit: failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open %s: %w", path, err)
	}
	l := New(f)
	l.closer = f
	return l, nil
}

// New returns a Logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{log: slog.New(slog.NewJSONHandler(w, nil))}
}

// Record appends e. Safe for concurrent use.
func (l *Logger) Record(ctx context.Context, e Event) {
	if l == nil {
		return
	}
	outcome := e.Outcome
	if outcome == "" {
		outcome = OutcomeOK
		if e.Err != nil {
			outcome = OutcomeError
		}
	}
	attrs := []slog.Attr{
		slog.String("kind", e.Kind),
		slog.String("name", e.Name),
		slog.String("collection", e.Collection),
		slog.Int("query_len", e.QueryLen),
		slog.String("outcome", outcome),
		slog.Int64("duration_ms", e.Duration.Milliseconds()),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	l.log.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

// Close releases the file opened by Open. It is a no-op for New.
func (l *Logger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	var err error
	l.once.Do(func() { err = l.closer.Close() })
	return err
}

// LogCommandStart emits a structured entry on log when a CLI command begins.
// It records the command name, config file source, and sanitised environment.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := []slog.Attr{
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	}

	for _, entry := range auditKeys {
		val := os.Getenv(entry.key)
		if entry.secret {
			attrs = append(attrs, slog.String(entry.key, presence(val)))
		} else {
			attrs = append(attrs, slog.String(entry.key, valOrUnset(val)))
		}
	}

	log.LogAttrs(context.Background(), slog.LevelDebug, "audit: command start", attrs...)
}

// SanitiseKey returns "set" or "unset" for known secret keys, or the actual
// value for non-secret keys. This is safe to use in log messages.
func SanitiseKey(key, value string) string {
	if secretEnvKeys[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

// presence returns "set" if the value is non-empty, "unset" otherwise.
func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

// valOrUnset returns the value if non-empty, "unset" otherwise.
func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath returns the config path or "none" if empty.
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
