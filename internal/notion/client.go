// Package notion reads page trees from the Notion REST API and flattens each
// child page into a rag.Document for ingestion.
package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/karthikgk97/notion-llm/internal/config"
	"github.com/karthikgk97/notion-llm/internal/logging"
	"github.com/karthikgk97/notion-llm/internal/rag"
)

// Defaults for the Notion API.
const (
	DefaultBaseURL = "https://api.notion.com/v1"
	DefaultVersion = "2022-06-28"

	// DefaultPageSize is the largest page size the API accepts.
	DefaultPageSize = 100

	// DefaultRateLimit is Notion's published average request rate per integration.
	DefaultRateLimit = 3.0

	defaultTimeout = 30 * time.Second
)

// Config holds the settings for constructing a Client.
type Config struct {
	// APIKey is the integration secret, sent as a Bearer token.
	APIKey string
	// BaseURL overrides DefaultBaseURL; tests point it at httptest.
	BaseURL string
	// Version is the Notion-Version header (default DefaultVersion).
	Version string
	// PageSize is the page_size query value, 1..100 (default 100).
	PageSize int
	// RateLimit is the request budget in requests per second (default 3).
	RateLimit float64
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Client is a minimal read-only Notion API client. It is safe for
// concurrent use; all requests share one rate limiter.
type Client struct {
	baseURL  string
	apiKey   string
	version  string
	pageSize int
	limiter  *rate.Limiter
	http     *http.Client
}

// Page is a child page of a Notion page.
type Page struct {
	// Title is the page title.
	Title string
	// ID is the page (and block) id.
	ID string
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, fmt.Errorf("notion: API key is required (set NOTION_API_KEY)")
	}
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		version:  cfg.Version,
		pageSize: cfg.PageSize,
		http:     cfg.HTTPClient,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.version == "" {
		c.version = DefaultVersion
	}
	if c.pageSize <= 0 || c.pageSize > DefaultPageSize {
		c.pageSize = DefaultPageSize
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: defaultTimeout}
	}
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = DefaultRateLimit
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	return c, nil
}

// NewClientFromEnv builds a Client from NOTION_* variables, which
// config.Load has already merged with the YAML file.
func NewClientFromEnv() (*Client, error) {
	return NewClient(&Config{
		APIKey:    config.String("NOTION_API_KEY", ""),
		BaseURL:   config.String("NOTION_BASE_URL", DefaultBaseURL),
		Version:   config.String("NOTION_VERSION", DefaultVersion),
		PageSize:  config.Int("NOTION_PAGE_SIZE", DefaultPageSize),
		RateLimit: config.Float64("NOTION_RATE_LIMIT", DefaultRateLimit),
	})
}

// ChildPages lists the child pages directly under pageID, in Notion's order.
func (c *Client) ChildPages(ctx context.Context, pageID string) ([]Page, error) {
	blocks, err := c.children(ctx, pageID)
	if err != nil {
		return nil, err
	}
	var pages []Page
	for _, b := range blocks {
		if b.Type != "child_page" {
			continue
		}
		pages = append(pages, Page{Title: b.body.Title, ID: b.ID})
	}
	return pages, nil
}

// PageContent returns the text of pageID's top-level blocks, one line per
// block, with markdown-style prefixes for headings, lists, to-dos and quotes.
func (c *Client) PageContent(ctx context.Context, pageID string) (string, error) {
	blocks, err := c.children(ctx, pageID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range blocks {
		if line, ok := b.line(); ok {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	return sb.String(), nil
}

// Documents returns one document per child page of rootID, keyed by page
// title, with the page id under the "notion_page_id" metadata key.
func (c *Client) Documents(ctx context.Context, rootID string) ([]rag.Document, error) {
	log := logging.FromContext(ctx)

	pages, err := c.ChildPages(ctx, rootID)
	if err != nil {
		return nil, err
	}
	docs := make([]rag.Document, 0, len(pages))
	for _, p := range pages {
		text, err := c.PageContent(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("notion: page %q: %w", p.Title, err)
		}
		log.Debug("notion: fetched page", slog.String("title", p.Title), slog.Int("bytes", len(text)))
		docs = append(docs, rag.Document{
			Key:      p.Title,
			Text:     text,
			Metadata: map[string]string{PageIDKey: p.ID},
		})
	}
	return docs, nil
}

// PageIDKey is the metadata key Documents stores the Notion page id under.
const PageIDKey = "notion_page_id"

// childrenResponse is one page of GET /blocks/{id}/children.
type childrenResponse struct {
	Results    []block `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

// apiError is the body Notion returns with a non-2xx status.
type apiError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// children fetches every child block of id, following start_cursor until
// has_more is false.
func (c *Client) children(ctx context.Context, id string) ([]block, error) {
	var all []block
	cursor := ""
	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(c.pageSize))
		if cursor != "" {
			q.Set("start_cursor", cursor)
		}
		var page childrenResponse
		if err := c.get(ctx, "/blocks/"+url.PathEscape(id)+"/children?"+q.Encode(), &page); err != nil {
			return nil, err
		}
		all = append(all, page.Results...)
		if !page.HasMore || page.NextCursor == nil || *page.NextCursor == "" {
			return all, nil
		}
		cursor = *page.NextCursor
	}
}

// get waits for the rate limiter, issues an authenticated GET and decodes
// the JSON response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notion: rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("notion: creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("notion: GET %s: %w: %w", path, rag.ErrConnection, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("notion: reading body: %w: %w", rag.ErrConnection, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return fmt.Errorf("notion: GET %s: HTTP %d %s: %s: %w",
				path, resp.StatusCode, apiErr.Code, apiErr.Message, rag.ErrConnection)
		}
		return fmt.Errorf("notion: GET %s: unexpected status %d: %w", path, resp.StatusCode, rag.ErrConnection)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("notion: decoding %s: %w: %w", path, rag.ErrParse, err)
	}
	return nil
}
