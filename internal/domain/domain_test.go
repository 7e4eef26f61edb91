package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobConfig(t *testing.T) {
	tests := []struct {
		name    string
		raw     map[string]any
		want    func(*JobConfig)
		wantErr bool
	}{
		{name: "defaults", raw: nil, want: func(*JobConfig) {}},
		{
			name: "all keys",
			raw: map[string]any{
				"batchSize":       500,
				"concurrency":     4,
				"retries":         2,
				"retryBackoff":    "250ms",
				"failedParamsCap": 0,
				"commitMode":      "row",
				"poolName":        "bulk",
				"timeout":         "1h",
			},
			want: func(c *JobConfig) {
				c.BatchSize = 500
				c.Concurrency = 4
				c.Retries = 2
				c.RetryBackoff = 250 * time.Millisecond
				c.FailedParamsCap = 0
				c.CommitMode = CommitModeRow
				c.PoolName = "bulk"
				c.Timeout = time.Hour
			},
		},
		{
			name: "weakly typed numbers",
			raw:  map[string]any{"batchSize": "25", "concurrency": json.Number("2")},
			want: func(c *JobConfig) {
				c.BatchSize = 25
				c.Concurrency = 2
			},
		},
		{name: "batching disabled", raw: map[string]any{"batchSize": -1}, want: func(c *JobConfig) { c.BatchSize = -1 }},
		{name: "unknown key", raw: map[string]any{"parallelism": 3}, wantErr: true},
		{name: "bad commit mode", raw: map[string]any{"commitMode": "sometimes"}, wantErr: true},
		{name: "negative concurrency", raw: map[string]any{"concurrency": -2}, wantErr: true},
		{name: "too many retries", raw: map[string]any{"retries": 1000}, wantErr: true},
		{name: "bad duration", raw: map[string]any{"timeout": "soon"}, wantErr: true},
		{name: "empty pool", raw: map[string]any{"poolName": ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJobConfig(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				return
			}
			require.NoError(t, err)
			want := DefaultJobConfig()
			tt.want(&want)
			assert.Equal(t, want, got)
		})
	}
}

func TestJobDefinition_Validate(t *testing.T) {
	valid := func() *JobDefinition {
		return &JobDefinition{
			Name:   "j",
			Source: SourceSpec{Type: SourceTypeStatic},
			Action: ActionSpec{Type: ActionTypeHTTP, URL: "http://x"},
		}
	}

	def := valid()
	require.NoError(t, def.Validate())
	assert.Equal(t, JobKindIterate, def.Kind)
	assert.Equal(t, ConcurrencyPolicyAllow, def.ConcurrencyPolicy)

	tests := []struct {
		name   string
		mutate func(*JobDefinition)
	}{
		{"no name", func(d *JobDefinition) { d.Name = "" }},
		{"bad kind", func(d *JobDefinition) { d.Kind = "repeat" }},
		{"loop without predicate", func(d *JobDefinition) { d.Kind = JobKindLoop }},
		{"no source", func(d *JobDefinition) { d.Source = SourceSpec{} }},
		{"no action", func(d *JobDefinition) { d.Action = ActionSpec{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			assert.ErrorIs(t, d.Validate(), ErrInvalidConfig)
		})
	}
}

func TestJobDefinition_AllowedModes(t *testing.T) {
	d := &JobDefinition{}
	assert.NotContains(t, d.AllowedModes(), ModeSchema)
	d.Schema = true
	assert.Contains(t, d.AllowedModes(), ModeSchema)
}

func TestStatementModes(t *testing.T) {
	tests := []struct {
		name string
		stmt Statement
		want StatementMode
	}{
		{"http action defaults to post", ActionSpec{Type: ActionTypeHTTP}, ModeWrite},
		{"http get action", ActionSpec{Type: ActionTypeHTTP, Method: "get"}, ModeRead},
		{"shell action", ActionSpec{Type: ActionTypeShell}, ModeSchema},
		{"etcd action", ActionSpec{Type: ActionTypeEtcd, Op: "delete"}, ModeWrite},
		{"http source", SourceSpec{Type: SourceTypeHTTP}, ModeRead},
		{"http post source", SourceSpec{Type: SourceTypeHTTP, Method: "POST"}, ModeWrite},
		{"etcd source", SourceSpec{Type: SourceTypeEtcd}, ModeRead},
		{"shell predicate", PredicateSpec{Type: PredicateTypeShell}, ModeSchema},
		{"http predicate", PredicateSpec{Type: PredicateTypeHTTP}, ModeRead},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.stmt.Mode())
		})
	}
}

func TestPredicateSpec_DecodeValue(t *testing.T) {
	spec := PredicateSpec{Field: "more"}

	v, err := spec.DecodeValue(strings.NewReader(`{"more": 3}`))
	require.NoError(t, err)
	assert.Equal(t, json.Number("3"), v)

	_, err = spec.DecodeValue(strings.NewReader(``))
	assert.ErrorIs(t, err, ErrMalformedPredicate)

	_, err = spec.DecodeValue(strings.NewReader(`{"loop": true}`))
	assert.ErrorIs(t, err, ErrMalformedPredicate)
}

func TestJobResult_Status(t *testing.T) {
	tests := []struct {
		name   string
		result JobResult
		want   ExecutionStatus
	}{
		{"clean", JobResult{CommittedOperations: 3}, ExecutionStatusSuccess},
		{"empty", JobResult{}, ExecutionStatusSuccess},
		{"partial", JobResult{CommittedOperations: 3, FailedOperations: 1}, ExecutionStatusPartial},
		{"all failed", JobResult{FailedOperations: 1}, ExecutionStatusFailed},
		{"source error", JobResult{CommittedOperations: 3, Error: "eof"}, ExecutionStatusFailed},
		{"terminated", JobResult{WasTerminated: true, FailedOperations: 1}, ExecutionStatusTerminated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.result.Status())
		})
	}
}

func TestJobResult_InLoop(t *testing.T) {
	r := &JobResult{Batches: 2}
	tagged := r.InLoop("cursor")
	assert.Equal(t, "cursor", tagged.Loop)
	assert.Nil(t, r.Loop)
	assert.Equal(t, int64(2), tagged.Batches)
}
