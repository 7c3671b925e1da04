package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/karthikgk97/notion-llm/internal/rag"
)

// defaultHTTPTimeout bounds a single request to an HTTP embedding backend.
const defaultHTTPTimeout = 60 * time.Second

// postJSON sends body as JSON to url and decodes a 2xx response into out.
// Transport failures and non-2xx statuses wrap rag.ErrConnection; undecodable
// bodies wrap rag.ErrParse. errMsg extracts a server-provided message from a
// failed response body and may be nil.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body, out any, errMsg func([]byte) string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w: %w", rag.ErrConnection, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w: %w", rag.ErrConnection, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := ""
		if errMsg != nil {
			msg = errMsg(raw)
		}
		if msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return fmt.Errorf("HTTP %d: %s: %w", resp.StatusCode, msg, rag.ErrConnection)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w: %w", rag.ErrParse, err)
	}
	return nil
}

// decodeErrorField decodes raw as T and returns the message pick selects, or
// "" when raw is not a T.
func decodeErrorField[T any](raw []byte, pick func(*T) string) string {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	return pick(&v)
}
