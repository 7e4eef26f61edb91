package http

import (
	"context"
	"fmt"
	"net/http"

	"periodic-engine/internal/domain"
)

type httpPredicate struct {
	client *http.Client
	url    string
	spec   domain.PredicateSpec
}

// NewHttpPredicate returns a predicate that GETs spec.URL and reads the loop
// value from a field of the returned JSON object.
func NewHttpPredicate(spec domain.PredicateSpec, client *http.Client) (domain.Predicate, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("%w: http predicate needs a url", domain.ErrInvalidConfig)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	return &httpPredicate{client: client, url: spec.URL, spec: spec}, nil
}

func (p *httpPredicate) Evaluate(ctx context.Context, previous any) (any, error) {
	target, err := withPrevious(p.url, previous)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http predicate returned %s", resp.Status)
	}

	return p.spec.DecodeValue(resp.Body)
}
