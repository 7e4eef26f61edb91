package domain

import "context"

// Schedular fires stored job definitions on their cron expression.
type Schedular interface {
	Start(ctx context.Context) error
	Stop()

	AddJob(job *JobDefinition) error
	RemoveJob(name string) error
}

// ScheduledRunner starts a run of a definition when its schedule fires.
type ScheduledRunner interface {
	RunScheduled(ctx context.Context, job *JobDefinition) error
}
