// internal/domain/coordination.go
package domain

import (
	"context"
	"errors"
	"time"
)

// ErrLockNotAcquired is returned when a run lock is already held elsewhere.
var ErrLockNotAcquired = errors.New("lock not acquired")

// Lock is a held run lock.
type Lock interface {
	Unlock(ctx context.Context) error
}

// Locker hands out per-job run locks so that scheduled jobs with the Forbid
// policy never overlap. Lock must not block: a held lock yields ErrLockNotAcquired.
type Locker interface {
	Lock(ctx context.Context, name string) (Lock, error)
}

// LeaderElectionManager decides which process fires scheduled jobs.
// Campaign blocks until leadership is won and returns a channel closed when it is lost.
type LeaderElectionManager interface {
	Campaign(ctx context.Context) (<-chan struct{}, error)
	Resign(ctx context.Context) error
	IsLeader() bool
}

// Node is a running engine process as seen by the cluster.
type Node struct {
	ID        string    `json:"id"`
	HttpAddr  string    `json:"http_addr"`
	GrpcAddr  string    `json:"grpc_addr,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Membership registers this process with the cluster and tracks the others.
// Watch blocks until ctx ends.
type Membership interface {
	Join(ctx context.Context, node Node) error
	Leave(ctx context.Context) error
	Watch(ctx context.Context)
	Nodes() []Node
}
