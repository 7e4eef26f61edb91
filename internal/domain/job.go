package domain

import (
	"fmt"
	"time"
)

// JobKind distinguishes a single pass from a predicate-driven loop.
type JobKind string

const (
	JobKindIterate JobKind = "iterate"
	JobKindLoop    JobKind = "loop"
)

// ConcurrencyPolicy defines how overlapping scheduled runs of the same job are handled.
type ConcurrencyPolicy string

const (
	ConcurrencyPolicyAllow  ConcurrencyPolicy = "Allow"
	ConcurrencyPolicyForbid ConcurrencyPolicy = "Forbid"
)

// JobDefinition describes a batched job. Config is kept in its raw form so
// stored definitions round-trip; it is parsed with ParseJobConfig on submission.
type JobDefinition struct {
	ID                string            `json:"id" yaml:"id,omitempty"`
	Name              string            `json:"name" yaml:"name"`
	Kind              JobKind           `json:"kind" yaml:"kind"`
	Source            SourceSpec        `json:"source" yaml:"source"`
	Action            ActionSpec        `json:"action" yaml:"action"`
	Predicate         *PredicateSpec    `json:"predicate,omitempty" yaml:"predicate,omitempty"`
	Config            map[string]any    `json:"config,omitempty" yaml:"config,omitempty"`
	Schema            bool              `json:"schema,omitempty" yaml:"schema,omitempty"`
	CronExpr          string            `json:"cron_expr,omitempty" yaml:"cron_expr,omitempty"`
	ConcurrencyPolicy ConcurrencyPolicy `json:"concurrency_policy,omitempty" yaml:"concurrency_policy,omitempty"`
	CreatedAt         time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt         time.Time         `json:"updated_at" yaml:"-"`
}

// Validate checks the shape of the definition and fills in defaults.
func (j *JobDefinition) Validate() error {
	if j.Name == "" {
		return fmt.Errorf("%w: job name cannot be empty", ErrInvalidConfig)
	}
	switch j.Kind {
	case "":
		j.Kind = JobKindIterate
	case JobKindIterate, JobKindLoop:
	default:
		return fmt.Errorf("%w: invalid job kind: %s", ErrInvalidConfig, j.Kind)
	}
	if j.Kind == JobKindLoop && j.Predicate == nil {
		return fmt.Errorf("%w: loop job %s needs a predicate", ErrInvalidConfig, j.Name)
	}
	if j.Source.Type == "" {
		return fmt.Errorf("%w: source type cannot be empty", ErrInvalidConfig)
	}
	if j.Action.Type == "" {
		return fmt.Errorf("%w: action type cannot be empty", ErrInvalidConfig)
	}
	if j.ConcurrencyPolicy == "" {
		j.ConcurrencyPolicy = ConcurrencyPolicyAllow
	}
	return nil
}

// AllowedModes returns the statement modes a submission of this job may use.
func (j *JobDefinition) AllowedModes() []StatementMode {
	if j.Schema {
		return []StatementMode{ModeRead, ModeWrite, ModeSchema}
	}
	return []StatementMode{ModeRead, ModeWrite}
}
