package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenRouter fetches the model catalog from an OpenRouter-compatible
// /models endpoint. The catalog is public, but an API key (when configured)
// raises the rate limit.
type OpenRouter struct {
	url    string
	apiKey string
	client *http.Client
}

func NewOpenRouter(url, apiKey string, timeout time.Duration) *OpenRouter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &OpenRouter{
		url:    url,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type modelListResponse struct {
	Data []Model `json:"data"`
}

func (o *OpenRouter) ListModels(ctx context.Context) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch model catalog: %w", err)
	}
	defer resp.Body.Close()

	// The catalog is large but bounded; 8MB is generous.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read catalog body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(body)
		if len(msg) > 500 {
			msg = msg[:500]
		}
		return nil, fmt.Errorf("model catalog %d: %s", resp.StatusCode, msg)
	}

	var parsed modelListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("model catalog returned no models")
	}
	return parsed.Data, nil
}
