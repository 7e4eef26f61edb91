package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"periodic-engine/internal/domain"
)

const defaultTimeout = 15 * time.Second

type httpAction struct {
	client *http.Client
	method string
	url    string
}

// NewHttpAction returns an action that sends every batch as a JSON array to
// spec.URL. Any non-2xx response fails the batch.
func NewHttpAction(spec domain.ActionSpec, client *http.Client) (domain.Action, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("%w: http action needs a url", domain.ErrInvalidConfig)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	method := spec.Method
	if method == "" {
		method = http.MethodPost
	}
	return &httpAction{client: client, method: method, url: spec.URL}, nil
}

// Execute performs a single HTTP request for the batch.
func (a *httpAction) Execute(ctx context.Context, batch domain.Batch) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, a.method, a.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read a small portion of the body for the error message.
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("http request returned 5xx server error: %s", resp.Status)
	}
	if resp.StatusCode >= 400 {
		if len(bodyBytes) > 0 {
			return fmt.Errorf("http request returned 4xx client error: %s: %s", resp.Status, bytes.TrimSpace(bodyBytes))
		}
		return fmt.Errorf("http request returned 4xx client error: %s", resp.Status)
	}
	return nil
}
