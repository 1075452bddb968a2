package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full hub configuration.
type Config struct {
	// Hub identity and protocol tag.
	Hub HubConfig `yaml:"hub" env:"HUB"`

	// Registry discovery settings.
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`

	// Redis card store settings.
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database execution store settings.
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Workflow engine settings.
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Monitor buffering and alerting settings.
	Monitor MonitorConfig `yaml:"monitor" env:"MONITOR"`

	// Log settings.
	Log LogConfig `yaml:"log" env:"LOG"`
}

// HubConfig identifies the hub instance.
type HubConfig struct {
	Name string `yaml:"name" env:"NAME"`
	// DefaultTimeout bounds direct capability invocations.
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// MetricsNamespace prefixes exported Prometheus metrics.
	MetricsNamespace string `yaml:"metrics_namespace" env:"METRICS_NAMESPACE"`
	// MetricsAddr is the listen address of the /metrics and /health
	// endpoints. Empty disables the listener.
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
}

// RegistryConfig tunes agent discovery.
type RegistryConfig struct {
	// DefaultTTL applies to cards registered without an explicit TTL.
	DefaultTTL time.Duration `yaml:"default_ttl" env:"DEFAULT_TTL"`
	// SweepInterval is how often expired cards are evicted.
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
	// EnableSweep starts the background eviction loop.
	EnableSweep bool `yaml:"enable_sweep" env:"ENABLE_SWEEP"`
	// Store selects card persistence: "memory" or "redis".
	Store string `yaml:"store" env:"STORE"`
}

// RedisConfig connects the Redis card store.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig connects the SQL execution store.
type DatabaseConfig struct {
	// Enabled turns on workflow execution persistence.
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Driver is one of "sqlite", "mysql", "postgres".
	Driver   string `yaml:"driver" env:"DRIVER"`
	Host     string `yaml:"host" env:"HOST"`
	Port     int    `yaml:"port" env:"PORT"`
	User     string `yaml:"user" env:"USER"`
	Password string `yaml:"password" env:"PASSWORD"`
	Name     string `yaml:"name" env:"NAME"`
	SSLMode  string `yaml:"ssl_mode" env:"SSL_MODE"`
}

// WorkflowConfig tunes the workflow engine.
type WorkflowConfig struct {
	// StepTimeout bounds agent-invocation steps without their own timeout.
	StepTimeout time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
}

// MonitorConfig tunes metric buffering and alert throttling.
type MonitorConfig struct {
	// SampleCapacity bounds each response-time and metric series.
	SampleCapacity int `yaml:"sample_capacity" env:"SAMPLE_CAPACITY"`
	// AlertsPerMinute throttles alerts per (agent, metric) pair.
	AlertsPerMinute int `yaml:"alerts_per_minute" env:"ALERTS_PER_MINUTE"`
}

// LogConfig tunes the zap logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format is "json" or "console".
	Format string `yaml:"format" env:"FORMAT"`
	// OutputPaths lists zap sinks; defaults to stdout.
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
}

// Loader builds a Config from defaults, file, and environment, in priority
// order: defaults < YAML file < environment variables.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the AGENTHUB env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTHUB"}
}

// WithConfigPath sets the YAML file path. A missing file is not an error;
// defaults and environment still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// setFieldsFromEnv walks the struct, reading PREFIX_TAG[_SUBTAG...] variables
// for every field carrying an env tag.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}
	return nil
}

// MustLoad loads configuration from the given path and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []string
	switch c.Registry.Store {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown registry store %q", c.Registry.Store))
	}
	if c.Registry.DefaultTTL < 0 {
		errs = append(errs, "registry default_ttl must not be negative")
	}
	if c.Database.Enabled {
		switch c.Database.Driver {
		case "sqlite", "mysql", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("unknown database driver %q", c.Database.Driver))
		}
	}
	if c.Monitor.SampleCapacity <= 0 {
		errs = append(errs, "monitor sample_capacity must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DSN returns the driver-specific connection string.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
