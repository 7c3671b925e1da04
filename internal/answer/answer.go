// Package answer turns a question into a grounded reply: it retrieves the
// most similar pages from a collection, fits them into the chat model's
// context budget and streams the model's answer to the caller.
package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/karthikgk97/notion-llm/internal/budget"
	"github.com/karthikgk97/notion-llm/internal/logging"
	"github.com/karthikgk97/notion-llm/internal/rag"
)

// systemPrompt establishes how the model uses the retrieved pages.
const systemPrompt = `You answer questions about a personal Notion workspace.

You are given excerpts of the pages most similar to the question, each under a
heading with the page title. Base your answer on those excerpts:

- Quote quantities, steps and names exactly as they appear in the pages.
- When several pages are relevant, say which page each part of the answer comes from.
- If the excerpts do not contain the answer, say so plainly instead of guessing.
- Keep the answer short; use a list when the pages do.`

// DefaultTopK is the number of pages retrieved per question.
const DefaultTopK = 3

// Config holds the dependencies required to construct an Answerer.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.BaseChatModel

	// Retriever finds the pages the answer is grounded on.
	Retriever *rag.Retriever

	// TopK controls how many pages are retrieved per question.
	// Defaults to DefaultTopK if zero.
	TopK int

	// MaxContextTokens is the estimated token budget for the full input
	// (system prompt + pages + question). Lowest-ranked pages are dropped to
	// fit. Defaults to budget.DefaultMaxContextTokens if zero.
	MaxContextTokens int
}

// Request is one question against one collection.
type Request struct {
	// Collection is the collection to retrieve pages from.
	Collection string
	// Question is the user's question; it is also the retrieval query.
	Question string
	// Conditions and Mode restrict retrieval, as in rag.QueryRequest.
	Conditions map[string]string
	Mode       rag.FilterMode
}

// Answerer retrieves context and streams chat model answers.
// It is safe for concurrent use.
type Answerer struct {
	chatModel        model.BaseChatModel
	retriever        *rag.Retriever
	topK             int
	maxContextTokens int
}

// New constructs an Answerer from the provided Config.
func New(cfg *Config) (*Answerer, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("answer: ChatModel must not be nil")
	}
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("answer: Retriever must not be nil")
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Answerer{
		chatModel:        cfg.ChatModel,
		retriever:        cfg.Retriever,
		topK:             topK,
		maxContextTokens: maxCtx,
	}, nil
}

// Ask retrieves pages for req, streams the model's answer to w as it is
// generated and returns the pages the answer was grounded on, best first.
func (a *Answerer) Ask(ctx context.Context, req Request, w io.Writer) ([]rag.Document, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("answer: question must not be empty")
	}

	docs, err := a.retriever.Retrieve(ctx, rag.QueryRequest{
		Collection: req.Collection,
		Text:       req.Question,
		Conditions: req.Conditions,
		Mode:       req.Mode,
		Limit:      a.topK,
	})
	if err != nil {
		return nil, fmt.Errorf("answer: retrieval failed: %w", err)
	}

	messages, used := a.buildMessages(ctx, req.Question, docs)

	sr, err := a.chatModel.Stream(ctx, messages)
	if err != nil {
		return used, fmt.Errorf("answer: stream failed: %w", err)
	}
	defer sr.Close()

	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return used, fmt.Errorf("answer: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		if _, err := io.WriteString(w, msg.Content); err != nil {
			return used, fmt.Errorf("answer: write error: %w", err)
		}
	}
	return used, nil
}

// buildMessages assembles [system, pages, question], dropping the
// lowest-ranked pages that do not fit the token budget. It returns the
// messages and the documents that made it in.
func (a *Answerer) buildMessages(ctx context.Context, question string, docs []rag.Document) ([]*schema.Message, []rag.Document) {
	fixed := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.SystemMessage(contextHeader),
		schema.UserMessage(question),
	}

	sections := make([]string, len(docs))
	for i, d := range docs {
		sections[i] = formatSection(i+1, d)
	}
	// The best page is always included, cut down if it alone is too large.
	if room := a.maxContextTokens - budget.EstimateMessages(fixed); len(sections) > 0 && room > 0 {
		sections[0] = budget.Truncate(sections[0], room)
	}

	kept := budget.FitSections(fixed, sections, a.maxContextTokens)
	if dropped := len(sections) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped pages to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", a.maxContextTokens),
		)
	}

	messages := []*schema.Message{schema.SystemMessage(systemPrompt)}
	if len(kept) > 0 {
		messages = append(messages, schema.SystemMessage(contextHeader+strings.Join(kept, "")))
	}
	messages = append(messages, schema.UserMessage(question))
	return messages, docs[:len(kept)]
}

// contextHeader introduces the retrieved pages.
const contextHeader = "## Relevant Pages\n\n"

// formatSection renders one retrieved page.
func formatSection(rank int, d rag.Document) string {
	title := d.Key
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf("### %d. %s (similarity %.2f)\n%s\n\n", rank, title, d.Score, strings.TrimSpace(d.Text))
}
