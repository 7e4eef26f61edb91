// internal/infra/etcd/etcd_membership.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"periodic-engine/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// NodeRegistryPrefix is the etcd prefix where nodes register themselves.
	NodeRegistryPrefix = "/periodic/nodes/"
)

// etcdMembership keeps this node registered under a lease and mirrors the
// registrations of every other node.
type etcdMembership struct {
	client  *clientv3.Client
	ttl     time.Duration
	logger  *slog.Logger
	leaseID clientv3.LeaseID
	key     string

	mu    sync.RWMutex
	nodes map[string]domain.Node
}

// NewEtcdMembership creates a membership whose registration expires ttl
// after the process stops refreshing it.
func NewEtcdMembership(client *clientv3.Client, ttl time.Duration, logger *slog.Logger) domain.Membership {
	return &etcdMembership{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "node-membership"),
		nodes:  make(map[string]domain.Node),
	}
}

// Join registers the node and keeps its lease alive in the background.
func (m *etcdMembership) Join(ctx context.Context, node domain.Node) error {
	value, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}
	m.key = NodeRegistryPrefix + node.ID

	// 1. Create a new lease with a TTL.
	ttl := int64(m.ttl / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	leaseResp, err := m.client.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to grant lease: %w", err)
	}
	m.leaseID = leaseResp.ID

	// 2. Put the node's registration under the lease.
	if _, err := m.client.Put(ctx, m.key, string(value), clientv3.WithLease(m.leaseID)); err != nil {
		return fmt.Errorf("failed to put node registration key: %w", err)
	}

	// 3. Refresh the lease until it is revoked.
	keepAliveCh, err := m.client.KeepAlive(context.WithoutCancel(ctx), m.leaseID)
	if err != nil {
		return fmt.Errorf("failed to start keep-alive: %w", err)
	}

	go func() {
		for ka := range keepAliveCh {
			m.logger.Debug("lease keep-alive refreshed", "lease_id", ka.ID, "ttl", ka.TTL)
		}
		m.logger.Warn("keep-alive channel closed, node registration may have expired")
	}()

	m.logger.Info("node registered", "key", m.key, "http_addr", node.HttpAddr)
	return nil
}

// Leave revokes the lease, which deletes the registration.
func (m *etcdMembership) Leave(ctx context.Context) error {
	if m.leaseID == 0 {
		return nil
	}
	m.logger.Info("deregistering node", "key", m.key)
	if _, err := m.client.Revoke(ctx, m.leaseID); err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}
	return nil
}

// Watch loads the current registrations and follows changes until ctx ends.
func (m *etcdMembership) Watch(ctx context.Context) {
	m.logger.Info("starting to watch for nodes")

	// 1. Initial load of all existing nodes
	rev, err := m.loadInitialNodes(ctx)
	if err != nil {
		m.logger.Error("failed to perform initial node load", "error", err)
	}

	// 2. Set up a watch for future changes
	opts := []clientv3.OpOption{clientv3.WithPrefix()}
	if rev > 0 {
		opts = append(opts, clientv3.WithRev(rev+1))
	}
	for watchResp := range m.client.Watch(ctx, NodeRegistryPrefix, opts...) {
		for _, event := range watchResp.Events {
			m.apply(event.Type, event.Kv.Key, event.Kv.Value)
		}
	}
	m.logger.Info("stopped watching for nodes")
}

func (m *etcdMembership) loadInitialNodes(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := m.client.Get(ctx, NodeRegistryPrefix, clientv3.WithPrefix())
	if err != nil {
		return 0, err
	}
	for _, kv := range resp.Kvs {
		m.apply(clientv3.EventTypePut, kv.Key, kv.Value)
	}
	return resp.Header.Revision, nil
}

// apply folds one registration change into the node table.
func (m *etcdMembership) apply(typ clientv3.EventType, key, value []byte) {
	id := strings.TrimPrefix(string(key), NodeRegistryPrefix)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch typ {
	case clientv3.EventTypePut:
		node, err := decodeNode(id, value)
		if err != nil {
			m.logger.Warn("ignoring malformed node registration", "id", id, "error", err)
			return
		}
		if _, ok := m.nodes[id]; !ok {
			m.logger.Info("node discovered", "id", id, "http_addr", node.HttpAddr)
		}
		m.nodes[id] = node
	case clientv3.EventTypeDelete:
		// lease expired or graceful shutdown
		m.logger.Info("node deregistered", "id", id)
		delete(m.nodes, id)
	}
}

// Nodes returns the known nodes sorted by start time.
func (m *etcdMembership) Nodes() []domain.Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedNodes(m.nodes)
}

func decodeNode(id string, value []byte) (domain.Node, error) {
	var node domain.Node
	if err := json.Unmarshal(value, &node); err != nil {
		return domain.Node{}, err
	}
	if node.ID == "" {
		node.ID = id
	}
	return node, nil
}

func sortedNodes(nodes map[string]domain.Node) []domain.Node {
	out := make([]domain.Node, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}
