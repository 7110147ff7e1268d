package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Juancams/behaviorfleets/bus/redisbus"
	"github.com/Juancams/behaviorfleets/fleet"
)

// Config is the full configuration of a fleet process. A process
// normally runs either the executor or the delegate role, but both
// sections are always present so one file can describe a whole
// deployment.
type Config struct {
	// Agent configures the executor role.
	Agent fleet.ExecutorConfig `yaml:"agent" env:"AGENT"`

	// Delegate configures the delegating role.
	Delegate fleet.ProxyConfig `yaml:"delegate" env:"DELEGATE"`

	// Bus selects and configures the message transport.
	Bus BusConfig `yaml:"bus" env:"BUS"`

	// Log configures logging.
	Log LogConfig `yaml:"log" env:"LOG"`

	// Metrics configures the Prometheus endpoint.
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// BusConfig selects the transport shared by the fleet.
type BusConfig struct {
	// Kind is the transport implementation: "inproc" or "redis".
	Kind string `yaml:"kind" env:"KIND"`

	// MailboxSize bounds each subscription's buffered mailbox. Only
	// used by the in-process transport; the Redis transport carries its
	// own mailbox setting.
	MailboxSize int `yaml:"mailbox_size" env:"MAILBOX_SIZE"`

	// Redis configures the Redis transport.
	Redis redisbus.Config `yaml:"redis" env:"REDIS"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is "json" or "console".
	Format string `yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled turns the HTTP metrics listener on.
	Enabled bool `yaml:"enabled" env:"ENABLED"`

	// Addr is the listen address of the metrics endpoint.
	Addr string `yaml:"addr" env:"ADDR"`

	// Namespace prefixes every exported metric.
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Loader loads configuration with builder-style options.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "BEHAVIORFLEETS",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults and environment overrides still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator adds a validation hook run after loading.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, then the YAML
// file, then environment variables.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
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

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv walks the struct recursively, joining env tags with
// underscores to form the variable name for each leaf field.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Time{}) {
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
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

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
		// Comma-separated string slices only.
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

// MustLoad loads configuration from a file and panics on failure.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from defaults and environment only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for values no fleet role can run
// with.
func (c *Config) Validate() error {
	var errs []string

	switch c.Bus.Kind {
	case "inproc", "redis":
	default:
		errs = append(errs, fmt.Sprintf("unknown bus kind %q (supported: inproc, redis)", c.Bus.Kind))
	}
	if c.Bus.Kind == "redis" && c.Bus.Redis.Addr == "" {
		errs = append(errs, "redis bus requires an address")
	}

	if c.Agent.TickInterval <= 0 {
		errs = append(errs, "agent tick_interval must be positive")
	}
	if c.Agent.HeartbeatInterval <= 0 {
		errs = append(errs, "agent heartbeat_interval must be positive")
	}
	if c.Delegate.RemoteTimeout < 0 {
		errs = append(errs, "delegate remote_timeout must not be negative")
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log level %q", c.Log.Level))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, "metrics endpoint requires an address")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
