package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"periodic-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, src domain.WorkSource) []domain.Row {
	t.Helper()
	var rows []domain.Row
	for {
		r, err := src.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return rows
		}
		require.NoError(t, err)
		rows = append(rows, r)
	}
}

func TestHttpAction_PostsBatch(t *testing.T) {
	var got []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	action, err := NewHttpAction(domain.ActionSpec{Type: domain.ActionTypeHTTP, URL: server.URL}, server.Client())
	require.NoError(t, err)

	err = action.Execute(context.Background(), domain.Batch{{"id": 1}, {"id": 2}})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestHttpAction_StatusErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   string
	}{
		{"server error", http.StatusBadGateway, "5xx server error"},
		{"client error", http.StatusConflict, "4xx client error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "row 7 conflicts", tt.status)
			}))
			defer server.Close()

			action, err := NewHttpAction(domain.ActionSpec{URL: server.URL}, server.Client())
			require.NoError(t, err)
			err = action.Execute(context.Background(), domain.Batch{{"id": 7}})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHttpAction_RequiresURL(t *testing.T) {
	_, err := NewHttpAction(domain.ActionSpec{Type: domain.ActionTypeHTTP}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestHttpSource_Formats(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"array", `[{"id": 1}, {"id": 2}, {"id": 3}]`},
		{"ndjson", "{\"id\": 1}\n{\"id\": 2}\n\n{\"id\": 3}\n"},
		{"array with leading space", "\n  [{\"id\": 1},{\"id\": 2},{\"id\": 3}]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			f, err := NewHttpSourceFactory(domain.SourceSpec{URL: server.URL}, server.Client())
			require.NoError(t, err)
			src, err := f.Open(context.Background(), nil)
			require.NoError(t, err)
			defer src.Close()

			rows := drain(t, src)
			require.Len(t, rows, 3)
			assert.Equal(t, json.Number("3"), rows[2]["id"])
		})
	}
}

func TestHttpSource_EmptyBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer server.Close()

	f, err := NewHttpSourceFactory(domain.SourceSpec{URL: server.URL}, server.Client())
	require.NoError(t, err)
	src, err := f.Open(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, drain(t, src))
}

func TestHttpSource_SendsPrevious(t *testing.T) {
	var previous []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		previous = append(previous, r.URL.Query().Get(PreviousParam))
		_, _ = io.WriteString(w, `[]`)
	}))
	defer server.Close()

	f, err := NewHttpSourceFactory(domain.SourceSpec{URL: server.URL + "?table=users"}, server.Client())
	require.NoError(t, err)

	for _, carry := range []any{nil, "cursor-9", json.Number("42")} {
		src, err := f.Open(context.Background(), carry)
		require.NoError(t, err)
		assert.Empty(t, drain(t, src))
		require.NoError(t, src.Close())
	}
	assert.Equal(t, []string{"", "cursor-9", "42"}, previous)
}

func TestHttpSource_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	f, err := NewHttpSourceFactory(domain.SourceSpec{URL: server.URL}, server.Client())
	require.NoError(t, err)
	_, err = f.Open(context.Background(), nil)
	assert.ErrorContains(t, err, "503")
}

func TestHttpPredicate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		field     string
		want      any
		malformed bool
	}{
		{"default field", `{"loop": true}`, "", true, false},
		{"custom field", `{"remaining": 12}`, "remaining", json.Number("12"), false},
		{"falsy value", `{"loop": 0}`, "", json.Number("0"), false},
		{"missing field", `{"other": 1}`, "", nil, true},
		{"empty body", ``, "", nil, true},
		{"not an object", `[1,2]`, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			p, err := NewHttpPredicate(domain.PredicateSpec{URL: server.URL, Field: tt.field}, server.Client())
			require.NoError(t, err)

			got, err := p.Evaluate(context.Background(), nil)
			if tt.malformed {
				assert.ErrorIs(t, err, domain.ErrMalformedPredicate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
