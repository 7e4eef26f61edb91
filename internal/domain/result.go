// internal/domain/result.go
package domain

import "time"

// FailedBatch keeps the rows of a failed batch for later inspection.
type FailedBatch struct {
	Batch int64 `json:"batch"`
	Rows  Batch `json:"rows"`
}

// JobResult is the frozen outcome of one pass over a work source. In loop
// jobs one JobResult is produced per cycle and Loop holds the value that
// triggered it.
type JobResult struct {
	Batches             int64            `json:"batches"`
	Total               int64            `json:"total"`
	TimeTaken           time.Duration    `json:"timeTaken"`
	CommittedOperations int64            `json:"committedOperations"`
	FailedOperations    int64            `json:"failedOperations"`
	FailedBatches       int64            `json:"failedBatches"`
	Retries             int64            `json:"retries"`
	ErrorMessages       map[string]int64 `json:"errorMessages"`
	BatchErrors         map[string]int64 `json:"batchErrors"`
	FailedParams        []FailedBatch    `json:"failedParams"`
	WasTerminated       bool             `json:"wasTerminated"`
	Loop                any              `json:"loop,omitempty"`
	Error               string           `json:"error,omitempty"`
}

// InLoop returns a copy of the result tagged with a loop value.
func (r *JobResult) InLoop(value any) *JobResult {
	tagged := *r
	tagged.Loop = value
	return &tagged
}

// Status classifies a result for history records and metrics.
func (r *JobResult) Status() ExecutionStatus {
	switch {
	case r.WasTerminated:
		return ExecutionStatusTerminated
	case r.Error != "":
		return ExecutionStatusFailed
	case r.FailedOperations > 0 && r.CommittedOperations == 0:
		return ExecutionStatusFailed
	case r.FailedOperations > 0:
		return ExecutionStatusPartial
	default:
		return ExecutionStatusSuccess
	}
}
