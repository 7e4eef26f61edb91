// internal/domain/config.go
package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// CommitMode controls how a failing batch is accounted for.
type CommitMode string

const (
	// CommitModeBatch commits or fails a batch as one unit.
	CommitModeBatch CommitMode = "batch"
	// CommitModeRow retries the rows of a failed batch one by one.
	CommitModeRow CommitMode = "row"
)

const (
	DefaultBatchSize       = 10000
	DefaultConcurrency     = 1
	DefaultFailedParamsCap = 50
	DefaultPoolName        = "default"
)

// JobConfig holds the per-job engine options. It is decoded once at
// submission time and never consulted as a free-form map afterwards.
//
// A BatchSize of zero or less disables batching: the whole source becomes a
// single batch. A FailedParamsCap of zero disables failed parameter capture.
type JobConfig struct {
	BatchSize       int           `mapstructure:"batchSize" json:"batchSize"`
	Concurrency     int           `mapstructure:"concurrency" json:"concurrency" validate:"min=0"`
	Retries         int           `mapstructure:"retries" json:"retries" validate:"min=0,max=100"`
	RetryBackoff    time.Duration `mapstructure:"retryBackoff" json:"retryBackoff" validate:"min=0"`
	FailedParamsCap int           `mapstructure:"failedParamsCap" json:"failedParamsCap" validate:"min=0"`
	CommitMode      CommitMode    `mapstructure:"commitMode" json:"commitMode" validate:"oneof=batch row"`
	PoolName        string        `mapstructure:"poolName" json:"poolName" validate:"required,max=64"`
	Timeout         time.Duration `mapstructure:"timeout" json:"timeout" validate:"min=0"`
}

var configValidate = validator.New()

// DefaultJobConfig returns the configuration used for keys a caller leaves out.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		BatchSize:       DefaultBatchSize,
		Concurrency:     DefaultConcurrency,
		FailedParamsCap: DefaultFailedParamsCap,
		CommitMode:      CommitModeBatch,
		PoolName:        DefaultPoolName,
	}
}

// ParseJobConfig decodes a free-form option map on top of the defaults.
// Unknown keys and out-of-range values are configuration errors.
func ParseJobConfig(raw map[string]any) (JobConfig, error) {
	cfg := DefaultJobConfig()
	if len(raw) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		})
		if err != nil {
			return JobConfig{}, fmt.Errorf("failed to build config decoder: %w", err)
		}
		if err := dec.Decode(raw); err != nil {
			return JobConfig{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return JobConfig{}, err
	}
	return cfg, nil
}

// Validate checks the ranges of every option.
func (c JobConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
