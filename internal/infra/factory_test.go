package infra

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"periodic-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"
)

func newTestFactory(withEtcd bool) *Factory {
	var client *clientv3.Client
	if withEtcd {
		// never dialled, the constructors only keep the reference
		client = clientv3.NewCtxClient(context.Background())
	}
	return NewFactory(client, http.DefaultClient, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFactory_Source(t *testing.T) {
	tests := []struct {
		name     string
		withEtcd bool
		spec     domain.SourceSpec
		wantErr  bool
	}{
		{"http", false, domain.SourceSpec{Type: domain.SourceTypeHTTP, URL: "http://rows"}, false},
		{"http without url", false, domain.SourceSpec{Type: domain.SourceTypeHTTP}, true},
		{"static", false, domain.SourceSpec{Type: domain.SourceTypeStatic, Rows: []domain.Row{{"id": 1}}}, false},
		{"etcd", true, domain.SourceSpec{Type: domain.SourceTypeEtcd, Prefix: "/users"}, false},
		{"etcd not configured", false, domain.SourceSpec{Type: domain.SourceTypeEtcd, Prefix: "/users"}, true},
		{"unknown", true, domain.SourceSpec{Type: "kafka"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := newTestFactory(tt.withEtcd).Source(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				assert.Nil(t, src)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, src)
		})
	}
}

func TestFactory_Action(t *testing.T) {
	tests := []struct {
		name     string
		withEtcd bool
		spec     domain.ActionSpec
		wantErr  bool
	}{
		{"http", false, domain.ActionSpec{Type: domain.ActionTypeHTTP, URL: "http://sink"}, false},
		{"shell", false, domain.ActionSpec{Type: domain.ActionTypeShell, Command: "cat"}, false},
		{"shell without command", false, domain.ActionSpec{Type: domain.ActionTypeShell}, true},
		{"etcd", true, domain.ActionSpec{Type: domain.ActionTypeEtcd, Prefix: "/users"}, false},
		{"etcd not configured", false, domain.ActionSpec{Type: domain.ActionTypeEtcd, Prefix: "/users"}, true},
		{"unknown", true, domain.ActionSpec{Type: "smtp"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			action, err := newTestFactory(tt.withEtcd).Action(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				assert.Nil(t, action)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, action)
		})
	}
}

func TestFactory_Predicate(t *testing.T) {
	tests := []struct {
		name    string
		spec    domain.PredicateSpec
		wantErr bool
	}{
		{"http", domain.PredicateSpec{Type: domain.PredicateTypeHTTP, URL: "http://more"}, false},
		{"shell", domain.PredicateSpec{Type: domain.PredicateTypeShell, Command: "echo true"}, false},
		{"static", domain.PredicateSpec{Type: domain.PredicateTypeStatic}, false},
		{"shell without command", domain.PredicateSpec{Type: domain.PredicateTypeShell}, true},
		{"unknown", domain.PredicateSpec{Type: "sql"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pred, err := newTestFactory(false).Predicate(tt.spec)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrInvalidConfig)
				assert.Nil(t, pred)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, pred)
		})
	}
}
