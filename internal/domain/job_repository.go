package domain

import (
	"context"
	"errors"
)

// ErrJobNotFound is a sentinel error returned when a job is not found.
var ErrJobNotFound = errors.New("job not found")

// JobRepository persists scheduled job definitions.
type JobRepository interface {
	Save(ctx context.Context, job *JobDefinition) error
	Delete(ctx context.Context, name string) error
	Get(ctx context.Context, name string) (*JobDefinition, error)
	List(ctx context.Context) ([]*JobDefinition, error)
}
