package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/xylose/go-threadcache/core"
)

// EnvPrefix prefixes every environment variable read through viper,
// e.g. THREADCACHE_LOG_LEVEL for log.level.
const EnvPrefix = "THREADCACHE"

// Config represents the complete threadcache command configuration
type Config struct {
	// MaxThreads is the worker count (0 = resolve from NUM_PTHREADS or GOMAXPROCS)
	MaxThreads int           `mapstructure:"max_threads" default:"0"`
	Pool       PoolConfig    `mapstructure:"pool"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
	Log        LogConfig     `mapstructure:"log"`
}

// PoolConfig controls the worker pool identity and bookkeeping
type PoolConfig struct {
	ID string `mapstructure:"id" default:"threadcache"`
	// HistoryCapacity is the number of execution records kept per pool
	HistoryCapacity int `mapstructure:"history_capacity" default:"100"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled      bool          `mapstructure:"enabled" default:"false"`
	Address      string        `mapstructure:"address" default:":9090"`
	Namespace    string        `mapstructure:"namespace" default:"threadcache"`
	PollInterval time.Duration `mapstructure:"poll_interval" default:"1s"`
}

// LogConfig controls the zap logger built by the command
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" default:"info"`
	// Format is console or json
	Format string `mapstructure:"format" default:"console"`
}

// Default returns a Config populated from the struct tags.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config: invalid default tags: %v", err))
	}
	return cfg
}

// SetDefaults registers default values with v
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("max_threads", d.MaxThreads)

	v.SetDefault("pool.id", d.Pool.ID)
	v.SetDefault("pool.history_capacity", d.Pool.HistoryCapacity)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.address", d.Metrics.Address)
	v.SetDefault("metrics.namespace", d.Metrics.Namespace)
	v.SetDefault("metrics.poll_interval", d.Metrics.PollInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// NewViper returns a viper instance with defaults registered and
// THREADCACHE_* environment variables enabled.
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., THREADCACHE_METRICS_ADDRESS for metrics.address
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"threads":           "max_threads",
	"pool-id":           "pool.id",
	"history":           "pool.history_capacity",
	"metrics":           "metrics.enabled",
	"metrics-addr":      "metrics.address",
	"metrics-namespace": "metrics.namespace",
	"log-level":         "log.level",
	"log-format":        "log.format",
}

// RegisterFlags adds the configuration flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.Int("threads", d.MaxThreads, "worker threads (0 = NUM_PTHREADS or GOMAXPROCS)")
	fs.String("pool-id", d.Pool.ID, "pool identifier used in logs and metrics")
	fs.Int("history", d.Pool.HistoryCapacity, "number of execution records kept")
	fs.Bool("metrics", d.Metrics.Enabled, "serve Prometheus metrics")
	fs.String("metrics-addr", d.Metrics.Address, "address of the metrics endpoint")
	fs.String("metrics-namespace", d.Metrics.Namespace, "Prometheus metric namespace")
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: console or json")
}

// BindFlags binds every flag registered by RegisterFlags that is present
// in fs to its configuration key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := fs.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, errs)
	}
	return &cfg, nil
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidLogFormats returns the list of valid log formats
func ValidLogFormats() []string {
	return []string{"console", "json"}
}

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d validation errors: %s", len(e), strings.Join(msgs, "; "))
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.MaxThreads != 0 && ValidateMaxThreads(c.MaxThreads) != nil {
		errs = append(errs, ValidationError{
			Field:   "max_threads",
			Value:   c.MaxThreads,
			Message: fmt.Sprintf("must be 0 or in [%d, %d]", MinThreads, MaxThreads),
		})
	}
	if strings.TrimSpace(c.Pool.ID) == "" {
		errs = append(errs, ValidationError{Field: "pool.id", Value: c.Pool.ID, Message: "must not be empty"})
	}
	if c.Pool.HistoryCapacity < 1 {
		errs = append(errs, ValidationError{Field: "pool.history_capacity", Value: c.Pool.HistoryCapacity, Message: "must be positive"})
	}
	if c.Metrics.Enabled && c.Metrics.Address == "" {
		errs = append(errs, ValidationError{Field: "metrics.address", Value: c.Metrics.Address, Message: "required when metrics are enabled"})
	}
	if c.Metrics.PollInterval <= 0 {
		errs = append(errs, ValidationError{Field: "metrics.poll_interval", Value: c.Metrics.PollInterval, Message: "must be positive"})
	}
	if !slices.Contains(ValidLogLevels(), c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Value:   c.Log.Level,
			Message: "must be one of " + strings.Join(ValidLogLevels(), ", "),
		})
	}
	if !slices.Contains(ValidLogFormats(), c.Log.Format) {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Value:   c.Log.Format,
			Message: "must be one of " + strings.Join(ValidLogFormats(), ", "),
		})
	}
	return errs
}

// PoolOptions converts the loaded configuration into core pool options.
func (c *Config) PoolOptions(logger core.Logger, metrics core.Metrics) *core.PoolConfig {
	return &core.PoolConfig{
		Logger:          logger,
		Metrics:         metrics,
		HistoryCapacity: c.Pool.HistoryCapacity,
	}
}
