package ingestion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/karthikgk97/notion-llm/internal/rag"
)

// DefaultTitleKey is the payload key that holds each page title when none is
// configured. The first notion-llm collections indexed recipes.
const DefaultTitleKey = "dish_name"

// ParsePairs parses "key=value" strings, as given to --meta and --filter,
// into a map. Whitespace around keys and values is trimmed; the value may
// contain further '=' characters. A later pair overrides an earlier one.
func ParsePairs(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("ingestion: invalid pair %q, want key=value", p)
		}
		if k == rag.DocumentKey {
			return nil, fmt.Errorf("ingestion: %q is reserved for the document text", rag.DocumentKey)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

// FormatPairs renders m as sorted "key=value" strings.
func FormatPairs(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// documentMetadata merges, in increasing precedence, the static extra
// metadata, the document's own metadata and the title under titleKey.
func documentMetadata(doc rag.Document, titleKey string, extra map[string]string) map[string]string {
	meta := make(map[string]string, len(extra)+len(doc.Metadata)+1)
	for k, v := range extra {
		meta[k] = v
	}
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta[titleKey] = doc.Key
	return meta
}
