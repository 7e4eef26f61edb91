// internal/domain/execution.go
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrExecutionNotFound is returned when an execution record does not exist.
var ErrExecutionNotFound = errors.New("execution record not found")

// ExecutionStatus defines the status of a job execution.
type ExecutionStatus string

const (
	ExecutionStatusSuccess    ExecutionStatus = "success"
	ExecutionStatusPartial    ExecutionStatus = "partial"
	ExecutionStatusFailed     ExecutionStatus = "failed"
	ExecutionStatusTerminated ExecutionStatus = "terminated"
)

// ExecutionRecord is the persisted form of one JobResult.
type ExecutionRecord struct {
	ID        string          `json:"id"`
	JobID     string          `json:"job_id"`   // run the record belongs to
	JobName   string          `json:"job_name"`
	Cycle     int             `json:"cycle"`    // 1-based, always 1 for iterate jobs
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Status    ExecutionStatus `json:"status"`
	Result    *JobResult      `json:"result"`
}

// NewExecutionRecord builds a record for a result that just completed.
func NewExecutionRecord(id, jobID, jobName string, cycle int, result *JobResult, end time.Time) *ExecutionRecord {
	return &ExecutionRecord{
		ID:        id,
		JobID:     jobID,
		JobName:   jobName,
		Cycle:     cycle,
		StartTime: end.Add(-result.TimeTaken),
		EndTime:   end,
		Status:    result.Status(),
		Result:    result,
	}
}

// Validate checks if the execution record is valid.
func (r *ExecutionRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("execution record ID cannot be empty")
	}
	if r.JobName == "" {
		return fmt.Errorf("execution record job name cannot be empty")
	}
	if r.Result == nil {
		return fmt.Errorf("execution record %s has no result", r.ID)
	}
	return nil
}

// ExecutionRepository persists execution records.
type ExecutionRepository interface {
	Save(ctx context.Context, record *ExecutionRecord) error
	// ListByJobName returns records of a job newest first, paginated from page 1.
	ListByJobName(ctx context.Context, jobName string, page, pageSize int) ([]*ExecutionRecord, error)
	Get(ctx context.Context, jobName, executionID string) (*ExecutionRecord, error)
}
