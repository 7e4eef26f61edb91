// internal/infra/etcd/etcd_action.go
package etcd

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"path"
	"slices"

	"periodic-engine/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	OpPut    = "put"
	OpDelete = "delete"

	defaultKeyField = "id"

	// MaxTxnOps matches the default --max-txn-ops of an etcd server.
	MaxTxnOps = 128
)

type etcdAction struct {
	client   *clientv3.Client
	prefix   string
	keyField string
	op       string
	tracer   trace.Tracer
}

// NewEtcdAction returns an action that writes a batch in transactions of at
// most MaxTxnOps operations. Each transaction is atomic on its own; a failed
// one stops the batch, and earlier ones stay committed. Each row is stored as JSON under prefix/<row[keyField]>, or that key is
// deleted when spec.Op is "delete". Rows read from an etcd source already
// carry their full key in _key, which is used when keyField is absent.
func NewEtcdAction(client *clientv3.Client, spec domain.ActionSpec) (domain.Action, error) {
	op := spec.Op
	if op == "" {
		op = OpPut
	}
	if op != OpPut && op != OpDelete {
		return nil, fmt.Errorf("%w: unknown etcd op %q", domain.ErrInvalidConfig, spec.Op)
	}
	keyField := spec.KeyField
	if keyField == "" {
		keyField = defaultKeyField
	}
	return &etcdAction{
		client:   client,
		prefix:   spec.Prefix,
		keyField: keyField,
		op:       op,
		tracer:   otel.Tracer("periodic-engine-etcd-action"),
	}, nil
}

func (a *etcdAction) Execute(ctx context.Context, batch domain.Batch) error {
	ctx, span := a.tracer.Start(ctx, "action.etcd.Execute", trace.WithAttributes(
		attribute.String("etcd.op", a.op),
		attribute.String("etcd.prefix", a.prefix),
		attribute.Int("batch.size", len(batch)),
	))
	defer span.End()

	ops, err := a.ops(batch)
	if err != nil {
		return err
	}

	var committed int
	for chunk := range txnChunks(ops) {
		if _, err := a.client.Txn(ctx).Then(chunk...).Commit(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "etcd transaction failed")
			return fmt.Errorf("etcd transaction failed after %d of %d operations: %w", committed, len(ops), err)
		}
		committed += len(chunk)
	}
	return nil
}

func (a *etcdAction) ops(batch domain.Batch) ([]clientv3.Op, error) {
	ops := make([]clientv3.Op, 0, len(batch))
	for _, row := range batch {
		key, err := a.key(row)
		if err != nil {
			return nil, err
		}
		if a.op == OpDelete {
			ops = append(ops, clientv3.OpDelete(key))
			continue
		}
		value, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("failed to encode row %s: %w", key, err)
		}
		ops = append(ops, clientv3.OpPut(key, string(value)))
	}
	return ops, nil
}

// txnChunks splits ops into groups the server accepts in one transaction.
func txnChunks(ops []clientv3.Op) iter.Seq[[]clientv3.Op] {
	return slices.Chunk(ops, MaxTxnOps)
}

func (a *etcdAction) key(row domain.Row) (string, error) {
	if v, ok := row[a.keyField]; ok && v != nil {
		return path.Join(a.prefix, fmt.Sprint(v)), nil
	}
	if k, ok := row[KeyField].(string); ok && k != "" {
		return k, nil
	}
	return "", fmt.Errorf("row has no %s field", a.keyField)
}
