// internal/infra/etcd/etcd_locker.go
package etcd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periodic-engine/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"
)

const (
	// LockPrefix is the etcd root of all run locks.
	LockPrefix = "/periodic/locks/"
	// DefaultLockTTL is the lease TTL of a lock session when none is configured.
	DefaultLockTTL = 10 * time.Second
)

// etcdLock implements domain.Lock.
type etcdLock struct {
	mutex   *concurrency.Mutex
	session *concurrency.Session
	name    string
}

// Unlock releases the lock and closes its session, revoking the lease.
func (l *etcdLock) Unlock(ctx context.Context) error {
	defer func() {
		if l.session != nil {
			_ = l.session.Close()
		}
	}()

	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("failed to unlock %s: %w", l.name, err)
	}
	return nil
}

// etcdLocker implements domain.Locker.
type etcdLocker struct {
	client *clientv3.Client
	ttl    time.Duration
}

// NewEtcdLocker creates a locker whose locks expire ttl after their holder dies.
func NewEtcdLocker(client *clientv3.Client, ttl time.Duration) domain.Locker {
	if ttl < time.Second {
		ttl = DefaultLockTTL
	}
	return &etcdLocker{client: client, ttl: ttl}
}

// Lock tries to take the named lock without waiting for it.
func (l *etcdLocker) Lock(ctx context.Context, name string) (domain.Lock, error) {
	// 1. Every attempt gets its own session; the lock goes away with its lease.
	session, err := concurrency.NewSession(l.client, concurrency.WithTTL(int(l.ttl.Seconds())))
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd session for lock %s: %w", name, err)
	}

	// 2. Create the mutex on the session.
	mutex := concurrency.NewMutex(session, LockPrefix+name)

	// 3. TryLock returns ErrLocked straight away when someone else holds it.
	tryCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()

	if err := mutex.TryLock(tryCtx); err != nil {
		_ = session.Close()
		if errors.Is(err, concurrency.ErrLocked) || errors.Is(err, context.DeadlineExceeded) {
			return nil, domain.ErrLockNotAcquired
		}
		return nil, fmt.Errorf("failed to try acquiring etcd lock %s: %w", name, err)
	}

	// 4. Locked.
	return &etcdLock{
		mutex:   mutex,
		session: session,
		name:    name,
	}, nil
}
