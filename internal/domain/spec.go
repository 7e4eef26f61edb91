// internal/domain/spec.go
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ActionType selects the Action implementation of a job.
type ActionType string

const (
	ActionTypeHTTP  ActionType = "http"
	ActionTypeShell ActionType = "shell"
	ActionTypeEtcd  ActionType = "etcd"
)

// ActionSpec describes the action applied to every batch.
type ActionSpec struct {
	Type     ActionType `json:"type" yaml:"type"`
	URL      string     `json:"url,omitempty" yaml:"url,omitempty"`             // http
	Method   string     `json:"method,omitempty" yaml:"method,omitempty"`       // http, defaults to POST
	Command  string     `json:"command,omitempty" yaml:"command,omitempty"`     // shell
	Prefix   string     `json:"prefix,omitempty" yaml:"prefix,omitempty"`       // etcd
	KeyField string     `json:"key_field,omitempty" yaml:"key_field,omitempty"` // etcd, defaults to "id"
	Op       string     `json:"op,omitempty" yaml:"op,omitempty"`               // etcd: put or delete
}

// Mode implements Statement. Shell commands can do anything, so they need
// the schema mode.
func (s ActionSpec) Mode() StatementMode {
	switch s.Type {
	case ActionTypeHTTP:
		return httpMode(s.Method, http.MethodPost)
	case ActionTypeEtcd:
		return ModeWrite
	default:
		return ModeSchema
	}
}

func (s ActionSpec) String() string {
	switch s.Type {
	case ActionTypeHTTP:
		return fmt.Sprintf("http %s %s", methodOr(s.Method, http.MethodPost), s.URL)
	case ActionTypeShell:
		return "shell " + s.Command
	case ActionTypeEtcd:
		return fmt.Sprintf("etcd %s %s", s.Op, s.Prefix)
	default:
		return string(s.Type)
	}
}

// SourceType selects the WorkSource implementation of a job.
type SourceType string

const (
	SourceTypeHTTP   SourceType = "http"
	SourceTypeEtcd   SourceType = "etcd"
	SourceTypeStatic SourceType = "static"
)

// SourceSpec describes where the rows of a job come from.
type SourceSpec struct {
	Type     SourceType `json:"type" yaml:"type"`
	URL      string     `json:"url,omitempty" yaml:"url,omitempty"`
	Method   string     `json:"method,omitempty" yaml:"method,omitempty"`
	Prefix   string     `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	PageSize int        `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	Rows     []Row      `json:"rows,omitempty" yaml:"rows,omitempty"`
}

// Mode implements Statement.
func (s SourceSpec) Mode() StatementMode {
	if s.Type == SourceTypeHTTP {
		return httpMode(s.Method, http.MethodGet)
	}
	return ModeRead
}

func (s SourceSpec) String() string {
	switch s.Type {
	case SourceTypeHTTP:
		return fmt.Sprintf("http %s %s", methodOr(s.Method, http.MethodGet), s.URL)
	case SourceTypeEtcd:
		return "etcd " + s.Prefix
	case SourceTypeStatic:
		return fmt.Sprintf("static (%d rows)", len(s.Rows))
	default:
		return string(s.Type)
	}
}

// PredicateType selects the Predicate implementation of a loop job.
type PredicateType string

const (
	PredicateTypeHTTP   PredicateType = "http"
	PredicateTypeShell  PredicateType = "shell"
	PredicateTypeStatic PredicateType = "static"
)

// DefaultPredicateField is the field holding the loop value in predicate output.
const DefaultPredicateField = "loop"

// PredicateSpec describes the continuation predicate of a loop job.
type PredicateSpec struct {
	Type    PredicateType `json:"type" yaml:"type"`
	URL     string        `json:"url,omitempty" yaml:"url,omitempty"`
	Command string        `json:"command,omitempty" yaml:"command,omitempty"`
	Field   string        `json:"field,omitempty" yaml:"field,omitempty"`
	Values  []any         `json:"values,omitempty" yaml:"values,omitempty"`
}

// FieldName returns the output field read by the predicate.
func (s PredicateSpec) FieldName() string {
	if s.Field == "" {
		return DefaultPredicateField
	}
	return s.Field
}

// DecodeValue reads the JSON object printed or returned by a predicate and
// returns its loop field. Empty output, a non-object or a missing field
// is a malformed predicate. Numbers are kept as json.Number.
func (s PredicateSpec) DecodeValue(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty output", ErrMalformedPredicate)
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedPredicate, err)
	}
	v, ok := out[s.FieldName()]
	if !ok {
		return nil, fmt.Errorf("%w: field %q missing", ErrMalformedPredicate, s.FieldName())
	}
	return v, nil
}

// Mode implements Statement.
func (s PredicateSpec) Mode() StatementMode {
	if s.Type == PredicateTypeShell {
		return ModeSchema
	}
	return ModeRead
}

func (s PredicateSpec) String() string {
	switch s.Type {
	case PredicateTypeHTTP:
		return "http GET " + s.URL
	case PredicateTypeShell:
		return "shell " + s.Command
	case PredicateTypeStatic:
		return fmt.Sprintf("static %v", s.Values)
	default:
		return string(s.Type)
	}
}

func methodOr(method, fallback string) string {
	if method == "" {
		return fallback
	}
	return strings.ToUpper(method)
}

func httpMode(method, fallback string) StatementMode {
	switch methodOr(method, fallback) {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ModeRead
	default:
		return ModeWrite
	}
}
