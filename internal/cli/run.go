package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"periodic-engine/internal/domain"
	"periodic-engine/internal/engine"
	"periodic-engine/internal/infra"
	"periodic-engine/internal/infra/etcd"
	"periodic-engine/internal/infra/memory"
	"periodic-engine/internal/pool"
	"periodic-engine/internal/usecase"

	"github.com/spf13/cobra"
	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

type runOptions struct {
	file   string
	schema bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one job definition in-process and print its results",
		Long: `Reads a job definition from a YAML file, runs it to completion and prints
one JSON result per pass (one per cycle for loop jobs). Ctrl-C terminates the
job; batches already in flight still finish.`,
		Example: `  periodic run -f jobs/reindex.yaml
  periodic run -f jobs/migrate.yaml --schema`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runJob(ctx, cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "job definition file (YAML)")
	cmd.Flags().BoolVar(&opts.schema, "schema", false, "allow schema statements such as shell commands")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// loadDefinition reads a YAML job definition.
func loadDefinition(path string) (*domain.JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var def domain.JobDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidConfig, path, err)
	}
	return &def, nil
}

func runJob(ctx context.Context, cmd *cobra.Command, a *app, opts runOptions) error {
	logger, err := newLogger(cmd.ErrOrStderr(), a.cfg.LogLevel)
	if err != nil {
		return err
	}

	def, err := loadDefinition(opts.file)
	if err != nil {
		return err
	}
	if opts.schema {
		def.Schema = true
	}

	var etcdClient *clientv3.Client
	if a.cfg.UsesEtcd() {
		etcdClient, err = etcd.NewClient(a.cfg.EtcdEndpoints, a.cfg.EtcdTimeout)
		if err != nil {
			return err
		}
		defer etcdClient.Close()
	}

	pools := pool.NewRegistry(a.cfg.DefaultPoolSize, a.cfg.Pools, logger)
	runner := usecase.NewRunner(
		engine.New(pools, logger),
		infra.NewFactory(etcdClient, &http.Client{Timeout: time.Minute}, logger),
		usecase.NewStatementValidator(),
		memory.NewExecutionRepository(),
		memory.NewLocker(),
		logger,
	)

	handle, err := runner.Start(ctx, def)
	if err != nil {
		return err
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Warn("interrupted, terminating job", "job_name", def.Name)
			handle.Cancel()
		case <-handle.Done():
		}
	}()

	enc := json.NewEncoder(cmd.OutOrStdout())
	for result := range handle.Results(context.Background()) {
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
	return handle.Err()
}
