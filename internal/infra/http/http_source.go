// internal/infra/http/http_source.go
package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"periodic-engine/internal/domain"
)

// PreviousParam is the query parameter carrying the loop value to sources
// and predicates.
const PreviousParam = "previous"

type sourceFactory struct {
	client *http.Client
	method string
	url    string
}

// NewHttpSourceFactory returns a factory that streams rows from spec.URL.
// The response is either a JSON array of objects or newline delimited JSON;
// rows are decoded one at a time as the engine pulls them.
func NewHttpSourceFactory(spec domain.SourceSpec, client *http.Client) (domain.SourceFactory, error) {
	if spec.URL == "" {
		return nil, fmt.Errorf("%w: http source needs a url", domain.ErrInvalidConfig)
	}
	if _, err := url.Parse(spec.URL); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}
	if client == nil {
		// no overall timeout, sources may stream for a long time
		client = &http.Client{}
	}
	method := spec.Method
	if method == "" {
		method = http.MethodGet
	}
	return &sourceFactory{client: client, method: method, url: spec.URL}, nil
}

// Open issues the request. carry, when set, is sent as the previous query
// parameter.
func (f *sourceFactory) Open(ctx context.Context, carry any) (domain.WorkSource, error) {
	target, err := withPrevious(f.url, carry)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, f.method, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/x-ndjson")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("http source returned %s", resp.Status)
	}

	br := bufio.NewReader(resp.Body)
	first, err := peekNonSpace(br)
	if err != nil && !errors.Is(err, io.EOF) {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to read http source: %w", err)
	}

	dec := json.NewDecoder(br)
	dec.UseNumber()
	src := &httpSource{body: resp.Body, dec: dec}
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			resp.Body.Close()
			return nil, fmt.Errorf("failed to read http source: %w", err)
		}
		src.array = true
	}
	return src, nil
}

type httpSource struct {
	body  io.ReadCloser
	dec   *json.Decoder
	array bool
}

func (s *httpSource) Next(ctx context.Context) (domain.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.array && !s.dec.More() {
		return nil, io.EOF
	}

	var v any
	if err := s.dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) && !s.array {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("failed to decode row: %w", err)
	}
	return toRow(v), nil
}

func (s *httpSource) Close() error {
	return s.body.Close()
}

// toRow keeps objects as they are and wraps any other value.
func toRow(v any) domain.Row {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return domain.Row{"value": v}
}

func peekNonSpace(r *bufio.Reader) (byte, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, r.UnreadByte()
	}
}

// withPrevious adds the loop value to rawURL. Strings are sent verbatim,
// anything else as JSON.
func withPrevious(rawURL string, previous any) (string, error) {
	if previous == nil {
		return rawURL, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidConfig, err)
	}

	var value string
	if s, ok := previous.(string); ok {
		value = s
	} else {
		b, err := json.Marshal(previous)
		if err != nil {
			return "", fmt.Errorf("failed to encode previous value: %w", err)
		}
		value = string(b)
	}

	q := u.Query()
	q.Set(PreviousParam, value)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
