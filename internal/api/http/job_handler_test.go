package http

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/engine"
	"periodic-engine/internal/infra"
	"periodic-engine/internal/infra/memory"
	"periodic-engine/internal/pool"
	"periodic-engine/internal/scheduler"
	"periodic-engine/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	server *httptest.Server
	sink   *httptest.Server
	rows   atomic.Int64
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &apiFixture{}

	f.sink = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var batch []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.rows.Add(int64(len(batch)))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(f.sink.Close)

	pools := pool.NewRegistry(4, map[string]int{"bulk": 2}, logger)
	execRepo := memory.NewExecutionRepository()
	runner := usecase.NewRunner(
		engine.New(pools, logger),
		infra.NewFactory(nil, f.sink.Client(), logger),
		usecase.NewStatementValidator(),
		execRepo,
		memory.NewLocker(),
		logger,
	)
	sched := scheduler.NewCronScheduler(runner, logger)
	service := usecase.NewJobService(memory.NewJobRepository(), execRepo, sched, runner, logger)

	mux := http.NewServeMux()
	NewJobHandler(service, runner, pools, logger).RegisterRoutes(mux)
	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *apiFixture) job(name string, rows int) map[string]any {
	source := make([]map[string]any, rows)
	for i := range source {
		source[i] = map[string]any{"id": i + 1}
	}
	return map[string]any{
		"name":   name,
		"source": map[string]any{"type": "static", "rows": source},
		"action": map[string]any{"type": "http", "url": f.sink.URL},
		"config": map[string]any{"batchSize": 2},
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, f.server.URL+path, r)
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestJobHandler_SubmitAndWait(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/jobs?wait=true", f.job("users", 5))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-ndjson", resp.Header.Get("Content-Type"))

	var results []domain.JobResult
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		var r domain.JobResult
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		results = append(results, r)
	}
	require.Len(t, results, 1)
	assert.Equal(t, int64(3), results[0].Batches)
	assert.Equal(t, int64(5), results[0].CommittedOperations)
	assert.Equal(t, int64(5), f.rows.Load())

	require.Eventually(t, func() bool {
		resp := f.do(t, http.MethodGet, "/jobs/users/history", nil)
		var history []domain.ExecutionRecord
		if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
			return false
		}
		return len(history) == 1 && history[0].Status == domain.ExecutionStatusSuccess
	}, time.Second, 10*time.Millisecond)
}

func TestJobHandler_SubmitAsync(t *testing.T) {
	f := newAPIFixture(t)

	resp := f.do(t, http.MethodPost, "/jobs", f.job("async", 3))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var info usecase.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "async", info.Name)
	assert.NotEmpty(t, info.ID)

	require.Eventually(t, func() bool { return f.rows.Load() == 3 }, time.Second, 10*time.Millisecond)
}

func TestJobHandler_SubmitRejected(t *testing.T) {
	f := newAPIFixture(t)

	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{"missing name", func(j map[string]any) { delete(j, "name") }, "Validation failed"},
		{"unknown source", func(j map[string]any) { j["source"] = map[string]any{"type": "ftp"} }, "Validation failed"},
		{"loop without predicate", func(j map[string]any) { j["kind"] = "loop" }, "Validation failed"},
		{"bad cron", func(j map[string]any) { j["cron_expr"] = "every tuesday" }, "Validation failed"},
		{"unknown config key", func(j map[string]any) { j["config"] = map[string]any{"parallel": 2} }, "invalid configuration"},
		{"shell without schema", func(j map[string]any) {
			j["action"] = map[string]any{"type": "shell", "command": "cat"}
		}, "not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := f.job("rejected", 1)
			tt.mutate(job)
			resp := f.do(t, http.MethodPost, "/jobs", job)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, _ := io.ReadAll(resp.Body)
			assert.Contains(t, string(body), tt.want)
		})
	}
	assert.Zero(t, f.rows.Load())
}

func TestJobHandler_SaveGetDelete(t *testing.T) {
	f := newAPIFixture(t)

	job := f.job("nightly", 2)
	job["cron_expr"] = "0 0 3 * * *"
	resp := f.do(t, http.MethodPut, "/jobs", job)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/jobs/nightly", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view JobView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	require.NotNil(t, view.Definition)
	assert.Equal(t, "0 0 3 * * *", view.Definition.CronExpr)
	assert.NotEmpty(t, view.Definition.ID)

	resp = f.do(t, http.MethodGet, "/jobs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list JobList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list.Definitions, 1)

	resp = f.do(t, http.MethodDelete, "/jobs/nightly", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/jobs/nightly", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/jobs/nightly", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJobHandler_Routing(t *testing.T) {
	f := newAPIFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/jobs/a/b/c", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/jobs/a", f.job("a", 1)).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodDelete, "/jobs", nil).StatusCode)
	assert.Equal(t, http.StatusMethodNotAllowed, f.do(t, http.MethodPatch, "/jobs", nil).StatusCode)

	job := f.job("bulk-job", 1)
	job["config"] = map[string]any{"poolName": "bulk"}
	resp := f.do(t, http.MethodPost, "/jobs?wait=true", job)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, _ = io.ReadAll(resp.Body)

	resp = f.do(t, http.MethodGet, "/pools", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.True(t, strings.Contains(string(body), "bulk"))
}
