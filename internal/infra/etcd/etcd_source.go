// internal/infra/etcd/etcd_source.go
package etcd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"periodic-engine/internal/domain"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const (
	// KeyField holds the etcd key of every row read by an etcd source.
	KeyField        = "_key"
	defaultPageSize = 500
)

type sourceFactory struct {
	client   *clientv3.Client
	prefix   string
	pageSize int64
}

// NewEtcdSourceFactory returns a factory reading every key under spec.Prefix.
// Keys are read page by page at the revision of the first page, so the pass
// sees a consistent snapshot.
//
// A string carry resumes the scan after that key, which lets loop jobs page
// through a prefix one cycle at a time.
func NewEtcdSourceFactory(client *clientv3.Client, spec domain.SourceSpec) (domain.SourceFactory, error) {
	if spec.Prefix == "" {
		return nil, fmt.Errorf("%w: etcd source needs a prefix", domain.ErrInvalidConfig)
	}
	pageSize := spec.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &sourceFactory{client: client, prefix: spec.Prefix, pageSize: int64(pageSize)}, nil
}

func (f *sourceFactory) Open(_ context.Context, carry any) (domain.WorkSource, error) {
	next := f.prefix
	if after, ok := carry.(string); ok && after != "" {
		next = after + "\x00"
	}
	return &etcdSource{
		client:   f.client,
		next:     next,
		end:      clientv3.GetPrefixRangeEnd(f.prefix),
		pageSize: f.pageSize,
	}, nil
}

type etcdSource struct {
	client   *clientv3.Client
	next     string
	end      string
	pageSize int64
	rev      int64
	buf      []domain.Row
	done     bool
}

func (s *etcdSource) Next(ctx context.Context) (domain.Row, error) {
	for len(s.buf) == 0 {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetch(ctx); err != nil {
			return nil, err
		}
	}
	row := s.buf[0]
	s.buf = s.buf[1:]
	return row, nil
}

func (s *etcdSource) fetch(ctx context.Context) error {
	opts := []clientv3.OpOption{
		clientv3.WithRange(s.end),
		clientv3.WithLimit(s.pageSize),
	}
	if s.rev > 0 {
		opts = append(opts, clientv3.WithRev(s.rev))
	}

	resp, err := s.client.Get(ctx, s.next, opts...)
	if err != nil {
		return fmt.Errorf("failed to read etcd range %s: %w", s.next, err)
	}
	if s.rev == 0 {
		s.rev = resp.Header.Revision
	}

	for _, kv := range resp.Kvs {
		s.buf = append(s.buf, decodeRow(kv.Key, kv.Value))
	}
	if len(resp.Kvs) > 0 {
		s.next = string(resp.Kvs[len(resp.Kvs)-1].Key) + "\x00"
	}
	s.done = !resp.More || len(resp.Kvs) == 0
	return nil
}

func (s *etcdSource) Close() error { return nil }

// decodeRow turns a JSON object value into a row. Other values are kept as
// a string under "value".
func decodeRow(key, value []byte) domain.Row {
	row := domain.Row{}
	if bytes.HasPrefix(bytes.TrimSpace(value), []byte("{")) {
		dec := json.NewDecoder(bytes.NewReader(value))
		dec.UseNumber()
		if err := dec.Decode(&row); err != nil {
			row = domain.Row{"value": string(value)}
		}
	} else {
		row["value"] = string(value)
	}
	row[KeyField] = string(key)
	return row
}
