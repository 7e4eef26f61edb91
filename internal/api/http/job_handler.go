// internal/api/http/job_handler.go
package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/metrics"
	"periodic-engine/internal/pool"
	"periodic-engine/internal/scheduler"
	"periodic-engine/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobHandler serves the job API.
type JobHandler struct {
	service  *usecase.JobService
	runner   *usecase.Runner
	pools    *pool.Registry
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewJobHandler creates a JobHandler and registers the custom validations.
func NewJobHandler(service *usecase.JobService, runner *usecase.Runner, pools *pool.Registry, logger *slog.Logger) *JobHandler {
	validate := validator.New()

	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := scheduler.Parser.Parse(fl.Field().String())
		return err == nil
	})

	return &JobHandler{
		service:  service,
		runner:   runner,
		pools:    pools,
		logger:   logger.With("component", "job-handler"),
		validate: validate,
		tracer:   otel.Tracer("periodic-engine-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Flush lets streamed responses through the wrapper.
func (w *instrumentedResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RegisterRoutes registers job-related routes to the http.ServeMux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/jobs", h.instrument("/jobs", http.HandlerFunc(h.handleJobs)))
	mux.Handle("/jobs/", h.instrument("", http.HandlerFunc(h.handleJobs)))
	mux.Handle("/pools", h.instrument("/pools", http.HandlerFunc(h.handlePools)))
}

func (h *JobHandler) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := route
		if path == "" {
			path = "/jobs/{name}"
			if strings.HasSuffix(strings.TrimSuffix(r.URL.Path, "/"), "/history") {
				path = "/jobs/{name}/history"
			}
		}

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// handleJobs is a general dispatcher for the /jobs paths.
func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	// e.g. /jobs/my-job/history -> ["jobs", "my-job", "history"]
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")

	if len(pathParts) < 1 || pathParts[0] != "jobs" || len(pathParts) > 3 {
		http.NotFound(w, r)
		return
	}

	var jobName, action string
	if len(pathParts) > 1 {
		jobName = pathParts[1]
	}
	if len(pathParts) > 2 {
		action = pathParts[2]
	}

	switch r.Method {
	case http.MethodGet:
		switch {
		case jobName != "" && action == "history":
			h.handleGetJobHistory(w, r, jobName)
		case jobName != "" && action == "":
			h.handleGetJob(w, r, jobName)
		case jobName == "" && action == "":
			h.handleListJobs(w, r)
		default:
			http.NotFound(w, r)
		}
	case http.MethodPost:
		if jobName != "" {
			http.NotFound(w, r)
			return
		}
		h.handleSubmitJob(w, r)
	case http.MethodPut:
		if jobName != "" {
			http.NotFound(w, r)
			return
		}
		h.handleSaveJob(w, r)
	case http.MethodDelete:
		if jobName != "" && action == "" {
			h.handleDeleteJob(w, r, jobName)
		} else {
			http.Error(w, "Job name is required for deletion", http.StatusBadRequest)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// decodeJob reads and validates a JobRequest, writing the error response
// itself when the request is unusable.
func (h *JobHandler) decodeJob(w http.ResponseWriter, r *http.Request, span trace.Span) (*domain.JobDefinition, bool) {
	var req JobRequest
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, err := range verrs {
				validationErrors = append(validationErrors,
					"Field '"+err.Namespace()+"' failed on the '"+err.Tag()+"' tag.",
				)
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return nil, false
	}

	job := req.ToDomainJob()
	span.SetAttributes(attribute.String("job.name", job.Name))
	return job, true
}

// handleSubmitJob starts a run (POST /jobs). Definitions with a cron
// expression are stored and scheduled instead. With ?wait=true the results
// are streamed as NDJSON until the run ends.
func (h *JobHandler) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SubmitJob")
	defer span.End()

	job, ok := h.decodeJob(w, r, span)
	if !ok {
		return
	}

	if job.CronExpr != "" {
		h.save(w, r, span, job)
		return
	}

	handle, err := h.runner.Start(ctx, job)
	if err != nil {
		h.writeError(w, span, "error submitting job", job.Name, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, handle.Info())
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for result := range handle.Results(r.Context()) {
		if err := enc.Encode(result); err != nil {
			h.logger.Warn("client went away while streaming results", "job_name", job.Name, "error", err)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if err := handle.Err(); err != nil {
		_ = enc.Encode(map[string]string{"error": err.Error()})
	}
}

// handleSaveJob stores a definition (PUT /jobs).
func (h *JobHandler) handleSaveJob(w http.ResponseWriter, r *http.Request) {
	_, span := h.tracer.Start(r.Context(), "handler.SaveJob")
	defer span.End()

	job, ok := h.decodeJob(w, r, span)
	if !ok {
		return
	}
	h.save(w, r, span, job)
}

func (h *JobHandler) save(w http.ResponseWriter, r *http.Request, span trace.Span, job *domain.JobDefinition) {
	if err := h.service.Save(r.Context(), job); err != nil {
		h.writeError(w, span, "error saving job", job.Name, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *JobHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.DeleteJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	if err := h.service.Delete(ctx, name); err != nil {
		h.writeError(w, span, "error deleting job", name, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// JobView is the response of GET /jobs/{name}.
type JobView struct {
	Definition *domain.JobDefinition `json:"definition,omitempty"`
	Run        *usecase.Info         `json:"run,omitempty"`
}

func (h *JobHandler) handleGetJob(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	var view JobView
	def, err := h.service.Get(ctx, name)
	switch {
	case err == nil:
		view.Definition = def
	case !errors.Is(err, domain.ErrJobNotFound):
		h.writeError(w, span, "error getting job", name, err)
		return
	}
	if handle, err := h.runner.Get(name); err == nil {
		info := handle.Info()
		view.Run = &info
	}

	if view.Definition == nil && view.Run == nil {
		http.Error(w, domain.ErrJobNotFound.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// JobList is the response of GET /jobs.
type JobList struct {
	Definitions []*domain.JobDefinition `json:"definitions"`
	Running     []usecase.Info          `json:"running"`
}

func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListJobs")
	defer span.End()

	jobs, err := h.service.List(ctx)
	if err != nil {
		h.writeError(w, span, "error listing jobs", "", err)
		return
	}

	list := JobList{Definitions: jobs, Running: []usecase.Info{}}
	for _, handle := range h.runner.List() {
		list.Running = append(list.Running, handle.Info())
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetJobHistory handles listing execution history for a job (GET /jobs/{name}/history)
func (h *JobHandler) handleGetJobHistory(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJobHistory")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20 // default and max page size
	}
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	history, err := h.service.ListHistory(ctx, name, page, pageSize)
	if err != nil {
		h.writeError(w, span, "error listing job history", name, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// handlePools reports the shared worker pools (GET /pools).
func (h *JobHandler) handlePools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.pools.Stats())
}

// writeError maps service errors to status codes.
func (h *JobHandler) writeError(w http.ResponseWriter, span trace.Span, msg, name string, err error) {
	span.RecordError(err)
	switch {
	case errors.Is(err, domain.ErrInvalidConfig):
		h.logger.Warn(msg, "job_name", name, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, domain.ErrJobNotFound):
		h.logger.Warn(msg, "job_name", name, "error", err)
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		span.SetStatus(codes.Error, msg)
		h.logger.Error(msg, "job_name", name, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
