// internal/infra/etcd/etcd_job_repository.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"

	"periodic-engine/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	JobSaveDir = "/periodic/jobs/"
)

type etcdJobRepository struct {
	client *clientv3.Client
	logger *slog.Logger
	tracer trace.Tracer
}

// NewEtcdJobRepository creates a repository for job definitions backed by etcd.
func NewEtcdJobRepository(client *clientv3.Client, logger *slog.Logger) domain.JobRepository {
	return &etcdJobRepository{
		client: client,
		logger: logger.With("component", "etcd-job-repo"),
		tracer: otel.Tracer("periodic-engine-etcd-repo"),
	}
}

// Save persists the definition under its name.
func (r *etcdJobRepository) Save(ctx context.Context, job *domain.JobDefinition) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Save")
	defer span.End()

	jobJSON, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job to JSON: %w", err)
	}

	key := path.Join(JobSaveDir, job.Name)
	span.SetAttributes(
		attribute.String("job.name", job.Name),
		attribute.String("etcd.key", key),
	)

	if _, err := r.client.Put(ctx, key, string(jobJSON)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to put job to etcd")
		return fmt.Errorf("failed to save job %s to etcd: %w", job.Name, err)
	}
	return nil
}

// Delete removes a definition. Deleting a missing definition is ErrJobNotFound.
func (r *etcdJobRepository) Delete(ctx context.Context, name string) error {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	key := path.Join(JobSaveDir, name)
	resp, err := r.client.Delete(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete job from etcd")
		return fmt.Errorf("failed to delete job %s from etcd: %w", name, err)
	}
	if resp.Deleted == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Get retrieves a definition by name.
func (r *etcdJobRepository) Get(ctx context.Context, name string) (*domain.JobDefinition, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.Get")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	key := path.Join(JobSaveDir, name)
	resp, err := r.client.Get(ctx, key)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to get job from etcd")
		return nil, fmt.Errorf("failed to get job %s from etcd: %w", name, err)
	}

	if len(resp.Kvs) == 0 {
		return nil, domain.ErrJobNotFound
	}

	var job domain.JobDefinition
	if err := json.Unmarshal(resp.Kvs[0].Value, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job %s from JSON: %w", name, err)
	}
	return &job, nil
}

// List retrieves every stored definition. Entries that fail to decode are
// logged and skipped.
func (r *etcdJobRepository) List(ctx context.Context) ([]*domain.JobDefinition, error) {
	ctx, span := r.tracer.Start(ctx, "repo.etcd.List")
	defer span.End()

	resp, err := r.client.Get(ctx, JobSaveDir, clientv3.WithPrefix())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list jobs from etcd")
		return nil, fmt.Errorf("failed to list jobs from etcd: %w", err)
	}
	span.SetAttributes(attribute.Int("etcd.kv_count", len(resp.Kvs)))

	jobs := make([]*domain.JobDefinition, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var job domain.JobDefinition
		if err := json.Unmarshal(kv.Value, &job); err != nil {
			r.logger.Warn("failed to unmarshal job from etcd", "key", string(kv.Key), "error", err)
			continue
		}
		jobs = append(jobs, &job)
	}
	return jobs, nil
}
