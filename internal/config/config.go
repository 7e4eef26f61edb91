// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PERIODIC_HTTP_LISTEN_ADDR.
const EnvPrefix = "PERIODIC"

// Config holds all configuration for our application.
// The mapstructure tags are used by Viper to unmarshal the data.
type Config struct {
	// Leave empty to run on in-memory repositories without coordination.
	EtcdEndpoints     []string       `mapstructure:"etcd_endpoints"`
	EtcdTimeout       time.Duration  `mapstructure:"etcd_timeout" validate:"gt=0"`
	HttpListenAddr    string         `mapstructure:"http_listen_addr" validate:"required"`
	GrpcListenAddr    string         `mapstructure:"grpc_listen_addr"`
	LeaderElectionTTL time.Duration  `mapstructure:"leader_election_ttl" validate:"gte=1s"`
	LockTTL           time.Duration  `mapstructure:"lock_ttl" validate:"gte=1s"`
	ShutdownTimeout   time.Duration  `mapstructure:"shutdown_timeout" validate:"gt=0"`
	NodeID            string         `mapstructure:"node_id"`
	DefaultPoolSize   int            `mapstructure:"default_pool_size" validate:"gte=0"`
	Pools             map[string]int `mapstructure:"pools" validate:"dive,gt=0"`
	LogLevel          string         `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	TraceExporter     string         `mapstructure:"trace_exporter" validate:"oneof=stdout none"`
}

// UsesEtcd reports whether etcd-backed repositories and coordination are configured.
func (c *Config) UsesEtcd() bool {
	return len(c.EtcdEndpoints) > 0
}

// Load loads configuration from file and environment variables. An empty
// path searches ./configs and the working directory for config.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("etcd_endpoints", []string{})
	v.SetDefault("etcd_timeout", "5s")
	v.SetDefault("http_listen_addr", ":8080")
	v.SetDefault("grpc_listen_addr", ":9090")
	v.SetDefault("leader_election_ttl", "10s")
	v.SetDefault("lock_ttl", "10s")
	v.SetDefault("shutdown_timeout", "15s")
	v.SetDefault("default_pool_size", 0)
	v.SetDefault("log_level", "info")
	v.SetDefault("trace_exporter", "none")

	// Set config file details
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")    // name of config file (without extension)
		v.SetConfigType("yaml")      // or "json", "toml"
		v.AddConfigPath("./configs") // path to look for the config file in
		v.AddConfigPath(".")         // optionally look for config in the working directory
	}

	// Read environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file; defaults and env vars apply.
	}

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
