package engine

import (
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"periodic-engine/internal/domain"
)

// Collector accumulates the counters of one pass. Every method takes the
// same lock, so a snapshot never shows half of an update.
type Collector struct {
	mu              sync.Mutex
	failedParamsCap int
	started         time.Time
	result          domain.JobResult
}

// NewCollector creates an empty collector. At most failedParamsCap failed
// batches keep their rows; the rest are only counted.
func NewCollector(failedParamsCap int) *Collector {
	return &Collector{
		failedParamsCap: failedParamsCap,
		started:         time.Now(),
		result: domain.JobResult{
			ErrorMessages: make(map[string]int64),
			BatchErrors:   make(map[string]int64),
			FailedParams:  []domain.FailedBatch{},
		},
	}
}

// BatchStarted records that a batch of size rows was admitted.
func (c *Collector) BatchStarted(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Batches++
	c.result.Total += int64(size)
}

// Committed records n successful rows.
func (c *Collector) Committed(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.CommittedOperations += int64(n)
}

// Retried records one retry attempt of a batch.
func (c *Collector) Retried() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Retries++
}

// BatchFailed fails a whole batch: every row fails and the root cause is
// tallied once.
func (c *Collector) BatchFailed(seq int64, rows domain.Batch, err error) {
	msg := rootCauseMessage(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.FailedOperations += int64(len(rows))
	c.result.ErrorMessages[msg]++
	c.failBatchLocked(seq, rows, msg)
}

// RowFailed fails a single row retried on its own.
func (c *Collector) RowFailed(err error) {
	msg := rootCauseMessage(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.FailedOperations++
	c.result.ErrorMessages[msg]++
}

// RowsAbandoned fails n rows that were never attempted because the job
// was terminated; they share a single tally.
func (c *Collector) RowsAbandoned(n int) {
	if n == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.FailedOperations += int64(n)
	c.result.ErrorMessages[domain.ErrTerminated.Error()]++
}

// RowBatchFailed marks a batch failed after row-by-row handling left rows
// uncommitted. The rows were already counted by RowFailed.
func (c *Collector) RowBatchFailed(seq int64, rows domain.Batch, err error) {
	msg := rootCauseMessage(err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.failBatchLocked(seq, rows, msg)
}

func (c *Collector) failBatchLocked(seq int64, rows domain.Batch, msg string) {
	c.result.FailedBatches++
	c.result.BatchErrors[msg]++
	if len(c.result.FailedParams) < c.failedParamsCap {
		c.result.FailedParams = append(c.result.FailedParams, domain.FailedBatch{
			Batch: seq,
			Rows:  slices.Clone(rows),
		})
	}
}

// Terminated records that the pass was cut short.
func (c *Collector) Terminated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.WasTerminated = true
}

// SourceFailed records a work source failure. Only the first one is kept.
func (c *Collector) SourceFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result.Error == "" {
		c.result.Error = err.Error()
	}
}

// Result returns a frozen copy of the counters.
func (c *Collector) Result() *domain.JobResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.result
	r.TimeTaken = time.Since(c.started)
	r.ErrorMessages = maps.Clone(c.result.ErrorMessages)
	r.BatchErrors = maps.Clone(c.result.BatchErrors)
	r.FailedParams = slices.Clone(c.result.FailedParams)
	return &r
}

// rootCauseMessage unwraps err down to its innermost cause.
func rootCauseMessage(err error) string {
	if err == nil {
		return "unknown error"
	}
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}
