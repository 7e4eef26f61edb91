package http

import (
	"periodic-engine/internal/domain"
)

// SourceRequest is the DTO for a work source.
type SourceRequest struct {
	Type     string       `json:"type" validate:"required,oneof=http etcd static"`
	URL      string       `json:"url" validate:"required_if=Type http,omitempty,url"`
	Method   string       `json:"method" validate:"omitempty,oneof=GET POST get post"`
	Prefix   string       `json:"prefix" validate:"required_if=Type etcd"`
	PageSize int          `json:"page_size" validate:"gte=0,lte=10000"`
	Rows     []domain.Row `json:"rows"`
}

// ActionRequest is the DTO for the batch action.
type ActionRequest struct {
	Type     string `json:"type" validate:"required,oneof=http shell etcd"`
	URL      string `json:"url" validate:"required_if=Type http,omitempty,url"`
	Method   string `json:"method"`
	Command  string `json:"command" validate:"required_if=Type shell"`
	Prefix   string `json:"prefix" validate:"required_if=Type etcd"`
	KeyField string `json:"key_field"`
	Op       string `json:"op" validate:"omitempty,oneof=put delete"`
}

// PredicateRequest is the DTO for a loop predicate.
type PredicateRequest struct {
	Type    string `json:"type" validate:"required,oneof=http shell static"`
	URL     string `json:"url" validate:"required_if=Type http,omitempty,url"`
	Command string `json:"command" validate:"required_if=Type shell"`
	Field   string `json:"field"`
	Values  []any  `json:"values"`
}

// JobRequest is the Data Transfer Object for submitting or saving a job.
type JobRequest struct {
	Name              string            `json:"name" validate:"required,min=1,max=128,excludesall=/"`
	Kind              string            `json:"kind" validate:"omitempty,oneof=iterate loop"`
	Source            SourceRequest     `json:"source"`
	Action            ActionRequest     `json:"action"`
	Predicate         *PredicateRequest `json:"predicate,omitempty" validate:"required_if=Kind loop,omitempty"`
	Config            map[string]any    `json:"config"`
	Schema            bool              `json:"schema"`
	CronExpr          string            `json:"cron_expr" validate:"omitempty,cron"`
	ConcurrencyPolicy string            `json:"concurrency_policy" validate:"omitempty,oneof=Allow Forbid"`
}

// ToDomainJob converts a JobRequest DTO to a domain.JobDefinition.
func (r *JobRequest) ToDomainJob() *domain.JobDefinition {
	def := &domain.JobDefinition{
		Name: r.Name,
		Kind: domain.JobKind(r.Kind),
		Source: domain.SourceSpec{
			Type:     domain.SourceType(r.Source.Type),
			URL:      r.Source.URL,
			Method:   r.Source.Method,
			Prefix:   r.Source.Prefix,
			PageSize: r.Source.PageSize,
			Rows:     r.Source.Rows,
		},
		Action: domain.ActionSpec{
			Type:     domain.ActionType(r.Action.Type),
			URL:      r.Action.URL,
			Method:   r.Action.Method,
			Command:  r.Action.Command,
			Prefix:   r.Action.Prefix,
			KeyField: r.Action.KeyField,
			Op:       r.Action.Op,
		},
		Config:            r.Config,
		Schema:            r.Schema,
		CronExpr:          r.CronExpr,
		ConcurrencyPolicy: domain.ConcurrencyPolicy(r.ConcurrencyPolicy),
	}
	if r.Predicate != nil {
		def.Predicate = &domain.PredicateSpec{
			Type:    domain.PredicateType(r.Predicate.Type),
			URL:     r.Predicate.URL,
			Command: r.Predicate.Command,
			Field:   r.Predicate.Field,
			Values:  r.Predicate.Values,
		}
	}
	return def
}
