// Package infra wires the concrete sources, actions and predicates.
package infra

import (
	"fmt"
	"log/slog"
	"net/http"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/infra/etcd"
	infrahttp "periodic-engine/internal/infra/http"
	"periodic-engine/internal/infra/shell"
	"periodic-engine/internal/infra/static"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Factory builds engine components from job definition specs.
type Factory struct {
	etcd   *clientv3.Client
	http   *http.Client
	logger *slog.Logger
}

// NewFactory creates a factory. etcdClient may be nil, in which case etcd
// sources and actions are rejected.
func NewFactory(etcdClient *clientv3.Client, httpClient *http.Client, logger *slog.Logger) *Factory {
	return &Factory{etcd: etcdClient, http: httpClient, logger: logger}
}

func (f *Factory) Source(spec domain.SourceSpec) (domain.SourceFactory, error) {
	switch spec.Type {
	case domain.SourceTypeHTTP:
		return infrahttp.NewHttpSourceFactory(spec, f.http)
	case domain.SourceTypeEtcd:
		if f.etcd == nil {
			return nil, fmt.Errorf("%w: etcd source used but etcd is not configured", domain.ErrInvalidConfig)
		}
		return etcd.NewEtcdSourceFactory(f.etcd, spec)
	case domain.SourceTypeStatic:
		return static.NewSourceFactory(spec), nil
	default:
		return nil, fmt.Errorf("%w: unknown source type %q", domain.ErrInvalidConfig, spec.Type)
	}
}

func (f *Factory) Action(spec domain.ActionSpec) (domain.Action, error) {
	switch spec.Type {
	case domain.ActionTypeHTTP:
		return infrahttp.NewHttpAction(spec, f.http)
	case domain.ActionTypeShell:
		return shell.NewShellAction(spec, f.logger)
	case domain.ActionTypeEtcd:
		if f.etcd == nil {
			return nil, fmt.Errorf("%w: etcd action used but etcd is not configured", domain.ErrInvalidConfig)
		}
		return etcd.NewEtcdAction(f.etcd, spec)
	default:
		return nil, fmt.Errorf("%w: unknown action type %q", domain.ErrInvalidConfig, spec.Type)
	}
}

func (f *Factory) Predicate(spec domain.PredicateSpec) (domain.Predicate, error) {
	switch spec.Type {
	case domain.PredicateTypeHTTP:
		return infrahttp.NewHttpPredicate(spec, f.http)
	case domain.PredicateTypeShell:
		return shell.NewShellPredicate(spec)
	case domain.PredicateTypeStatic:
		return static.NewPredicate(spec), nil
	default:
		return nil, fmt.Errorf("%w: unknown predicate type %q", domain.ErrInvalidConfig, spec.Type)
	}
}
